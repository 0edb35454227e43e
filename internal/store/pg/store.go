// Package pg implementa core.Repository sobre Postgres con pgxpool.
// El cifrado de campos PII ocurre acá, en el límite del storage: las
// columnas phone/address/mfa_secret guardan ciphertext, los structs core
// circulan en texto plano.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/vetsecure/internal/security/fieldcrypt"
	"github.com/dropDatabas3/vetsecure/internal/store/core"
)

type Store struct {
	pool   *pgxpool.Pool
	cipher *fieldcrypt.Cipher
}

type PoolConfig struct {
	MaxOpenConns    int
	MinConns        int
	ConnMaxLifetime string
}

func New(ctx context.Context, dsn string, cfg PoolConfig, cipher *fieldcrypt.Cipher) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime != "" {
		if d, err := time.ParseDuration(cfg.ConnMaxLifetime); err == nil {
			pcfg.MaxConnLifetime = d
			pcfg.MaxConnIdleTime = d
		}
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 5
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	s := &Store{pool: pool, cipher: cipher}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func parseUUID(id string) (uuid.UUID, error) { return uuid.Parse(id) }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const userColumns = `id, email, username, name, password_hash, role,
	phone, address,
	mfa_enabled, mfa_secret, mfa_recovery_hashes,
	auth_provider, google_subject, created_at, updated_at`

func (s *Store) scanUser(row pgx.Row) (*core.User, error) {
	var u core.User
	var id uuid.UUID
	err := row.Scan(&id, &u.Email, &u.Username, &u.Name, &u.PasswordHash, &u.Role,
		&u.Phone, &u.Address,
		&u.MFAEnabled, &u.MFASecret, &u.MFARecoveryHashes,
		&u.Provider, &u.GoogleSubject, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	u.ID = id.String()

	// descifrar PII y secreto antes de entregar
	if u.Phone, err = s.cipher.DecryptPtr(u.Phone); err != nil {
		return nil, fmt.Errorf("decrypt phone: %w", err)
	}
	if u.Address, err = s.cipher.DecryptPtr(u.Address); err != nil {
		return nil, fmt.Errorf("decrypt address: %w", err)
	}
	if u.MFASecret, err = s.cipher.DecryptPtr(u.MFASecret); err != nil {
		return nil, fmt.Errorf("decrypt mfa secret: %w", err)
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	uid, err := parseUUID(id)
	if err != nil {
		return nil, core.ErrNotFound
	}
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, uid))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username))
}

func (s *Store) CreateUser(ctx context.Context, u *core.User) error {
	uid, err := parseUUID(u.ID)
	if err != nil {
		return core.ErrInvalid
	}
	phone, err := s.cipher.EncryptPtr(u.Phone)
	if err != nil {
		return err
	}
	address, err := s.cipher.EncryptPtr(u.Address)
	if err != nil {
		return err
	}
	secret, err := s.cipher.EncryptPtr(u.MFASecret)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO users
			(id, email, username, name, password_hash, role,
			 phone, address,
			 mfa_enabled, mfa_secret, mfa_recovery_hashes,
			 auth_provider, google_subject)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, uid, u.Email, u.Username, u.Name, u.PasswordHash, u.Role,
		phone, address,
		u.MFAEnabled, secret, u.MFARecoveryHashes,
		u.Provider, u.GoogleSubject)
	if isUniqueViolation(err) {
		return core.ErrConflict
	}
	return err
}

func (s *Store) SetMFAState(ctx context.Context, userID string, st core.MFAState) error {
	uid, err := parseUUID(userID)
	if err != nil {
		return core.ErrNotFound
	}
	secret, err := s.cipher.EncryptPtr(st.Secret)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET mfa_enabled = $2, mfa_secret = $3, mfa_recovery_hashes = $4, updated_at = now()
		WHERE id = $1
	`, uid, st.Enabled, secret, st.RecoveryHashes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ReplaceRecoveryHashes: UPDATE condicional sobre el valor previo. Dos
// requests concurrentes con el mismo código: uno matchea, el otro recibe
// ErrConflict. Una sola vuelta, sin transacción explícita.
func (s *Store) ReplaceRecoveryHashes(ctx context.Context, userID string, expected, updated string) error {
	uid, err := parseUUID(userID)
	if err != nil {
		return core.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET mfa_recovery_hashes = $3, updated_at = now()
		WHERE id = $1 AND mfa_recovery_hashes = $2
	`, uid, expected, updated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrConflict
	}
	return nil
}
