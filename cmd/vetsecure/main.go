// vetsecure: CLI de administración. Opera directo contra el store (no por
// HTTP): alta de usuarios, inspección de tokens, cifrado de valores PII y
// códigos TOTP para debug.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/vetsecure/internal/authz"
	"github.com/dropDatabas3/vetsecure/internal/config"
	jwtx "github.com/dropDatabas3/vetsecure/internal/jwt"
	"github.com/dropDatabas3/vetsecure/internal/security/fieldcrypt"
	"github.com/dropDatabas3/vetsecure/internal/security/mfa"
	"github.com/dropDatabas3/vetsecure/internal/security/password"
	"github.com/dropDatabas3/vetsecure/internal/store/core"
	"github.com/dropDatabas3/vetsecure/internal/store/pg"
)

func main() {
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:           "vetsecure",
		Short:         "herramientas de administración de VetSecure",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "ruta al config YAML (opcional)")

	root.AddCommand(
		userCreateCmd(&configPath),
		tokenInspectCmd(&configPath),
		encCmd(&configPath),
		totpCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}

func openStore(ctx context.Context, cfg *config.Config) (*pg.Store, error) {
	if cfg.Storage.Driver != "postgres" {
		return nil, fmt.Errorf("el CLI requiere storage.driver=postgres (driver actual: %s)", cfg.Storage.Driver)
	}
	cipher, err := fieldcrypt.New(cfg.Encryption.Key)
	if err != nil {
		return nil, err
	}
	return pg.New(ctx, cfg.Storage.DSN, pg.PoolConfig{
		MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
		MinConns:        cfg.Storage.Postgres.MinConns,
		ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
	}, cipher)
}

func userCreateCmd(configPath *string) *cobra.Command {
	var (
		email, username, name, pass, role, phone, address string
	)
	cmd := &cobra.Command{
		Use:   "user-create",
		Short: "crea un usuario local",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if _, err := authz.ParseRole(role); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return err
			}

			hash, err := password.Hash(password.Default, pass)
			if err != nil {
				return err
			}
			u := &core.User{
				ID:           uuid.NewString(),
				Email:        email,
				Username:     username,
				Name:         name,
				PasswordHash: &hash,
				Role:         role,
				Provider:     core.ProviderLocal,
			}
			if phone != "" {
				u.Phone = &phone
			}
			if address != "" {
				u.Address = &address
			}
			if err := st.CreateUser(ctx, u); err != nil {
				return err
			}
			fmt.Printf("usuario creado: %s (%s, rol %s)\n", u.ID, u.Email, u.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email (requerido)")
	cmd.Flags().StringVar(&username, "username", "", "username (requerido)")
	cmd.Flags().StringVar(&name, "name", "", "nombre completo")
	cmd.Flags().StringVar(&pass, "password", "", "password (requerido)")
	cmd.Flags().StringVar(&role, "role", string(authz.RolePetOwner), "rol del usuario")
	cmd.Flags().StringVar(&phone, "phone", "", "teléfono (se cifra en reposo)")
	cmd.Flags().StringVar(&address, "address", "", "dirección (se cifra en reposo)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func tokenInspectCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token-inspect <jwt>",
		Short: "valida un token y muestra sus claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			issuer, err := jwtx.New(cfg.JWT.Secret)
			if err != nil {
				return err
			}
			issuer.Iss = cfg.JWT.Issuer
			issuer.Aud = cfg.JWT.Audience

			claims, err := issuer.Parse(args[0])
			if err != nil {
				return err
			}
			out, _ := json.MarshalIndent(claims, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	return cmd
}

func encCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enc",
		Short: "cifra y descifra valores con la clave del servicio",
	}

	encrypt := &cobra.Command{
		Use:   "encrypt <valor>",
		Short: "cifra un valor en texto plano",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cipher, err := cipherFromConfig(*configPath)
			if err != nil {
				return err
			}
			out, err := cipher.Encrypt(args[0])
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	decrypt := &cobra.Command{
		Use:   "decrypt <ciphertext>",
		Short: "descifra un valor cifrado",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cipher, err := cipherFromConfig(*configPath)
			if err != nil {
				return err
			}
			out, err := cipher.Decrypt(args[0])
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.AddCommand(encrypt, decrypt)
	return cmd
}

func cipherFromConfig(configPath string) (*fieldcrypt.Cipher, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return fieldcrypt.New(cfg.Encryption.Key)
}

func totpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "totp <secret-base32>",
		Short: "muestra el código TOTP actual para un secreto (debug)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := mfa.NewService("VetSecure")
			code, err := svc.CodeAt(args[0], time.Now())
			if err != nil {
				return err
			}
			fmt.Println(code)
			return nil
		},
	}
}
