package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/bootstrap"
	carthttp "github.com/Skotchmaster/storefront/internal/cart/httpserver"
	cartrepo "github.com/Skotchmaster/storefront/internal/cart/repo"
	cartservice "github.com/Skotchmaster/storefront/internal/cart/service"
	cataloghttp "github.com/Skotchmaster/storefront/internal/catalog/httpserver"
	catalogrepo "github.com/Skotchmaster/storefront/internal/catalog/repo"
	catalogservice "github.com/Skotchmaster/storefront/internal/catalog/service"
	"github.com/Skotchmaster/storefront/internal/httpserver"
	identityhttp "github.com/Skotchmaster/storefront/internal/identity/httpserver"
	identityrepo "github.com/Skotchmaster/storefront/internal/identity/repo"
	identityservice "github.com/Skotchmaster/storefront/internal/identity/service"
	invoicehttp "github.com/Skotchmaster/storefront/internal/invoice/httpserver"
	invoicerepo "github.com/Skotchmaster/storefront/internal/invoice/repo"
	invoiceservice "github.com/Skotchmaster/storefront/internal/invoice/service"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/pkg/apperr"
	"github.com/Skotchmaster/storefront/pkg/config"
	pkgdb "github.com/Skotchmaster/storefront/pkg/db"
	"github.com/Skotchmaster/storefront/pkg/events"
	"github.com/Skotchmaster/storefront/pkg/logging"
	"github.com/Skotchmaster/storefront/pkg/metrics"
	authmw "github.com/Skotchmaster/storefront/pkg/middleware/auth"
	"github.com/Skotchmaster/storefront/pkg/middleware/idempotency"
	loggingmw "github.com/Skotchmaster/storefront/pkg/middleware/logging"
	metricsmw "github.com/Skotchmaster/storefront/pkg/middleware/metrics"
	"github.com/Skotchmaster/storefront/pkg/migrate"
	"github.com/Skotchmaster/storefront/pkg/redisstore"
	"github.com/Skotchmaster/storefront/pkg/search"
	"github.com/Skotchmaster/storefront/pkg/storage"
	"github.com/Skotchmaster/storefront/pkg/tokens"
	"github.com/Skotchmaster/storefront/pkg/validate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: could not load .env: %v", err)
	}
	cfg := config.Load()
	cfg.MustValidate()

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(logging.IntoContext(ctx, logger), cfg, logger); err != nil {
		logger.Error("server_stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server_stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.AutoMigrate {
		if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := pkgdb.Open(openCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := pkgdb.Close(db); err != nil {
			logger.Warn("db_close_failed", "error", err)
		}
	}()

	seeder := &bootstrap.Seeder{
		DB:            db,
		AdminEmail:    cfg.DefaultAdminEmail,
		AdminPassword: cfg.DefaultAdminPassword,
		AdminUsername: cfg.DefaultAdminUsername,
	}
	known, err := seeder.Seed(ctx)
	if err != nil {
		return err
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(cfg.KafkaBrokers)
		defer producer.Close()
		publisher = producer
	}

	var index catalogservice.Indexer
	if cfg.Search.URL != "" {
		es, err := search.NewClient(search.Config(cfg.Search))
		if err != nil {
			return err
		}
		if err := es.Ping(ctx); err != nil {
			logger.Warn("search_unavailable", "error", err)
		}
		index = es
	}

	var idem idempotency.Store
	if cfg.Redis.URL != "" {
		rdb, err := redisstore.New(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		idem = rdb
	}

	store, err := storage.New(ctx, storage.Config{
		Backend: cfg.Store.Backend,
		Dir:     cfg.Store.Dir,
		S3: storage.S3Config{
			Bucket:    cfg.Store.Bucket,
			Region:    cfg.Store.Region,
			Endpoint:  cfg.Store.Endpoint,
			AccessKey: cfg.Store.AccessKey,
			SecretKey: cfg.Store.SecretKey,
		},
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	issuer := &tokens.Issuer{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	}
	identity := &identityservice.IdentityService{
		Repo:   &identityrepo.GormRepo{DB: db},
		Tokens: issuer,
		Store:  store,
		Events: publisher,
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validate.New()
	e.HTTPErrorHandler = apperr.ErrorHandler
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(metricsmw.NewHTTPMetrics(reg).Middleware())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: cfg.CORSOrigins, AllowCredentials: true}))

	httpserver.Register(e, &httpserver.Deps{
		Identity: &identityhttp.IdentityHTTP{Svc: identity},
		Catalog: &cataloghttp.CatalogHTTP{Svc: &catalogservice.CatalogService{
			Repo:              &catalogrepo.GormRepo{DB: db},
			Events:            publisher,
			Index:             index,
			DefaultCategoryID: known.DefaultCategoryID,
		}},
		Cart: &carthttp.CartHTTP{Svc: &cartservice.CartService{
			Repo:   &cartrepo.GormRepo{DB: db},
			Events: publisher,
		}},
		Invoice: &invoicehttp.InvoiceHTTP{Svc: &invoiceservice.InvoiceService{
			Repo:    &invoicerepo.GormRepo{DB: db},
			Store:   store,
			Events:  publisher,
			Metrics: metrics.NewCheckoutMetrics(reg),
		}},
		Auth:        authmw.NewAutoRefreshMiddleware(cfg.JWTAccessSecret, identity, string(models.RoleAdmin)),
		Idempotency: idem,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Ready:       ready(db),
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server_listening", "addr", srv.Addr, "admin_id", known.AdminID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		logger.Info("server_shutting_down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func ready(db *gorm.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			return errors.New("database unavailable")
		}
		return nil
	}
}
