package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/vetsecure/internal/audit"
	"github.com/dropDatabas3/vetsecure/internal/config"
	httpx "github.com/dropDatabas3/vetsecure/internal/http"
	mw "github.com/dropDatabas3/vetsecure/internal/http/middlewares"
	"github.com/dropDatabas3/vetsecure/internal/http/router"
	jwtx "github.com/dropDatabas3/vetsecure/internal/jwt"
	"github.com/dropDatabas3/vetsecure/internal/oauth/google"
	"github.com/dropDatabas3/vetsecure/internal/observability/logger"
	"github.com/dropDatabas3/vetsecure/internal/rate"
	"github.com/dropDatabas3/vetsecure/internal/security/fieldcrypt"
	"github.com/dropDatabas3/vetsecure/internal/security/mfa"
	"github.com/dropDatabas3/vetsecure/internal/service/auth"
	"github.com/dropDatabas3/vetsecure/internal/store/core"
	"github.com/dropDatabas3/vetsecure/internal/store/memory"
	"github.com/dropDatabas3/vetsecure/internal/store/pg"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "ruta al config YAML (opcional)")
	flag.Parse()

	// .env es cortesía de dev; en prod las vars vienen del entorno real.
	_ = godotenv.Load()

	// La config se valida antes de armar el logger: si falla, stderr pelado.
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config inválida:", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "vetsecure"})
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cipher, err := fieldcrypt.New(cfg.Encryption.Key)
	if err != nil {
		log.Fatal("encryption key inválida", logger.Err(err))
	}

	repo, cleanup, err := buildStore(ctx, cfg, cipher)
	if err != nil {
		log.Fatal("no se pudo abrir el store", logger.Err(err))
	}
	defer cleanup()

	issuer, err := jwtx.New(cfg.JWT.Secret)
	if err != nil {
		log.Fatal("jwt secret inválido", logger.Err(err))
	}
	issuer.Iss = cfg.JWT.Issuer
	issuer.Aud = cfg.JWT.Audience
	issuer.AccessTTL = config.ParseTTL(cfg.JWT.AccessTTL, issuer.AccessTTL)
	issuer.RefreshTTL = config.ParseTTL(cfg.JWT.RefreshTTL, issuer.RefreshTTL)
	issuer.MFATTL = config.ParseTTL(cfg.JWT.MFATTL, issuer.MFATTL)

	mfaSvc := mfa.NewService(cfg.MFA.Issuer)

	var verifier google.Verifier
	if cfg.Google.Enabled {
		verifier = google.New(cfg.Google.ClientID)
		log.Info("login con Google habilitado")
	}

	svc := auth.New(repo, issuer, mfaSvc, verifier, audit.ZapSink{}, cfg.MFA.QRSize)

	loginLimiter, mfaLimiter := buildLimiters(cfg)
	if loginLimiter == nil {
		log.Warn("rate limiting deshabilitado")
	}

	metricsHandler, err := httpx.RegisterMetrics(nil)
	if err != nil {
		log.Fatal("no se pudieron registrar las métricas", logger.Err(err))
	}

	mux := router.New(router.Deps{
		Auth:         svc,
		Issuer:       issuer,
		Repo:         repo,
		LoginLimiter: loginLimiter,
		MFALimiter:   mfaLimiter,
		CORSOrigins:  cfg.Server.CORSAllowedOrigins,
	})

	appSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	// El listener de ops recibe el mismo trato que la API: request id y
	// log estructurado por scrape.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", mw.Chain(metricsHandler, mw.WithRequestID(), mw.WithLogging()))
	metricsSrv := &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("API escuchando", logger.Addr(cfg.Server.Addr))
		if err := appSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("métricas escuchando", logger.Addr(cfg.Server.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		return appSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server terminó con error", logger.Err(err))
		os.Exit(1)
	}
	log.Info("apagado limpio")
}

func buildStore(ctx context.Context, cfg *config.Config, cipher *fieldcrypt.Cipher) (core.Repository, func(), error) {
	switch cfg.Storage.Driver {
	case "postgres":
		st, err := pg.New(ctx, cfg.Storage.DSN, pg.PoolConfig{
			MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
			MinConns:        cfg.Storage.Postgres.MinConns,
			ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
		}, cipher)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return memory.New(cipher), func() {}, nil
	}
}

func buildLimiters(cfg *config.Config) (login, mfaVerify rate.Limiter) {
	if !cfg.Rate.Enabled {
		return nil, nil
	}
	loginWindow := config.ParseTTL(cfg.Rate.Login.Window, time.Minute)
	mfaWindow := config.ParseTTL(cfg.Rate.MFAVerify.Window, time.Minute)

	if cfg.Rate.Backend == "redis" && cfg.Rate.Redis.Addr != "" {
		client := rdb.NewClient(&rdb.Options{Addr: cfg.Rate.Redis.Addr, DB: cfg.Rate.Redis.DB})
		return rate.NewRedisLimiter(client, cfg.Rate.Redis.Prefix+"login", cfg.Rate.Login.Limit, loginWindow),
			rate.NewRedisLimiter(client, cfg.Rate.Redis.Prefix+"mfa", cfg.Rate.MFAVerify.Limit, mfaWindow)
	}
	return rate.NewMemoryLimiter(cfg.Rate.Login.Limit, loginWindow),
		rate.NewMemoryLimiter(cfg.Rate.MFAVerify.Limit, mfaWindow)
}
