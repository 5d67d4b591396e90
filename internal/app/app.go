package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/audit"
	"github.com/isfo/attestation-service/internal/cache"
	"github.com/isfo/attestation-service/internal/config"
	"github.com/isfo/attestation-service/internal/database"
	"github.com/isfo/attestation-service/internal/httpapi"
	"github.com/isfo/attestation-service/internal/httpapi/handlers"
	httpmiddleware "github.com/isfo/attestation-service/internal/httpapi/middleware"
	"github.com/isfo/attestation-service/internal/notify"
	"github.com/isfo/attestation-service/internal/password"
	googleprovider "github.com/isfo/attestation-service/internal/providers/google"
	"github.com/isfo/attestation-service/internal/services/auth"
	"github.com/isfo/attestation-service/internal/services/loginaudit"
	"github.com/isfo/attestation-service/internal/services/requests"
	"github.com/isfo/attestation-service/internal/services/students"
	"github.com/isfo/attestation-service/internal/services/verification"
	"github.com/isfo/attestation-service/internal/store"
	"github.com/isfo/attestation-service/internal/token"
)

// App wires core dependencies and exposes server lifecycle controls.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	db         *entsql.Driver
	redis      *redis.Client
	notifier   *notify.Service
	httpServer *http.Server

	inline       bool
	dispatchCtx  context.Context
	stopDispatch context.CancelFunc
	dispatchWG   sync.WaitGroup
}

// Infra is the storage shared by the server and the worker.
type Infra struct {
	DB    *entsql.Driver
	Redis *redis.Client
	Store *store.Store
}

// Close releases the database and Redis connections.
func (i *Infra) Close() error {
	return errors.Join(i.DB.Close(), i.Redis.Close())
}

// OpenInfra connects to PostgreSQL and Redis, migrating the schema when
// configured to.
func OpenInfra(ctx context.Context, cfg *config.Config) (*Infra, error) {
	drv, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(ctx, drv); err != nil {
			_ = drv.Close()
			return nil, err
		}
	}
	redisClient, err := cache.New(ctx, cfg.Redis)
	if err != nil {
		_ = drv.Close()
		return nil, err
	}
	return &Infra{DB: drv, Redis: redisClient, Store: store.New(drv)}, nil
}

// NewNotifier builds the notification service over the configured queue.
func NewNotifier(cfg *config.Config, infra *Infra, logger *zap.Logger) *notify.Service {
	var queue notify.Queue
	switch cfg.Notify.Backend {
	case "memory":
		queue = notify.NewInMemory(256)
	default:
		queue = notify.NewRedisQueue(infra.Redis, cfg.Redis.Namespace+":"+cfg.Notify.QueueKey, logger)
	}
	return notify.New(notify.Dependencies{
		Requests: infra.Store.Requests,
		Students: infra.Store.Students,
		Mailer:   notify.NewMailer(cfg.Mail, logger),
		Queue:    queue,
		Config:   cfg.Mail,
		Logger:   logger,
	})
}

// New constructs the application.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	infra, err := OpenInfra(ctx, cfg)
	if err != nil {
		return nil, err
	}
	st := infra.Store

	tokenSvc, err := token.NewService(cfg.Token)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	googleProvider, err := googleprovider.New(cfg.Providers.Google)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}

	hasher := password.NewHasher(cfg.Security)
	auditor := audit.New(st.AuditLogs, logger)
	notifier := NewNotifier(cfg, infra, logger)

	loc, err := time.LoadLocation(cfg.Mail.Location)
	if err != nil {
		logger.Warn("unknown location, using UTC", zap.String("location", cfg.Mail.Location), zap.Error(err))
		loc = time.UTC
	}

	attempts := loginaudit.New(loginaudit.Dependencies{
		Repository: st.LoginAudit,
		Students:   st.Students,
		Staff:      st.Staff,
		WindowRows: cfg.Audit.WindowRows,
		Logger:     logger,
	})

	authDeps := auth.Dependencies{
		Staff:            st.Staff,
		Students:         st.Students,
		Tokens:           tokenSvc,
		Hasher:           hasher,
		Attempts:         attempts,
		Auditor:          auditor,
		OAuthStateSecret: cfg.Security.OAuthStateSecret,
		Logger:           logger,
	}
	if googleProvider != nil {
		authDeps.Google = googleProvider
	}
	authService := auth.New(authDeps)

	requestService := requests.New(requests.Dependencies{
		Repository: st.Requests,
		Roster:     st.Students,
		Notifier:   notifier,
		Auditor:    auditor,
		Logger:     logger,
	})
	studentService := students.New(students.Dependencies{
		Repository:        st.Students,
		Hasher:            hasher,
		Auditor:           auditor,
		Logger:            logger,
		EmailDomain:       cfg.Import.EmailDomain,
		PasswordMinLength: cfg.Security.PasswordMinLength,
	})
	verificationService := verification.New(verification.Dependencies{
		Codes:    st.Verification,
		Students: st.Students,
		Mailer:   notifier,
		Issuer:   authService,
		Attempts: attempts,
		TTL:      cfg.Mail.CodeTTL,
		Logger:   logger,
	})

	authMiddleware := httpmiddleware.NewAuth(authService)
	limiter := httpmiddleware.NewRateLimiter(cache.NewWindowCounter(infra.Redis), cfg.Redis.Namespace, logger)

	router := httpapi.NewRouter(httpapi.RouterDeps{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		HealthHandler: handlers.Health(map[string]handlers.Pinger{
			"postgres": handlers.PingFunc(infra.DB.DB().PingContext),
			"redis": handlers.PingFunc(func(ctx context.Context) error {
				return infra.Redis.Ping(ctx).Err()
			}),
		}),
		MetricsHandler:     promhttp.Handler(),
		RequireAuthHandler: authMiddleware.RequireAuth,
		RateLimitLogin:     limiter.Limit("login", cfg.Security.LoginRateLimit, time.Minute, remoteHost),
		RateLimitCode:      limiter.Limit("code", cfg.Security.CodeRateLimit, time.Minute, remoteHost),

		Auth:          handlers.NewAuthHandler(authService, verificationService, logger),
		Requests:      handlers.NewRequestHandler(requestService, loc, logger),
		Students:      handlers.NewStudentHandler(studentService, cfg.HTTP.MaxUploadBytes, logger),
		Security:      handlers.NewSecurityHandler(attempts, loc, logger),
		Notifications: handlers.NewNotificationHandler(verificationService, notifier, logger),
		Admin:         handlers.NewAdminHandler(st.Staff, auditor, hasher, cfg.Security.PasswordMinLength, logger),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	inline := cfg.Notify.Inline
	if cfg.Notify.Backend == "memory" && !inline {
		logger.Warn("memory notification queue needs the inline dispatcher, enabling it")
		inline = true
	}

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	return &App{
		cfg:          cfg,
		logger:       logger,
		db:           infra.DB,
		redis:        infra.Redis,
		notifier:     notifier,
		httpServer:   server,
		inline:       inline,
		dispatchCtx:  dispatchCtx,
		stopDispatch: stopDispatch,
	}, nil
}

// Run starts the inline notification dispatcher when enabled, then the HTTP
// server with TLS if certificates are configured.
func (a *App) Run() error {
	if a.inline {
		a.dispatchWG.Add(1)
		go func() {
			defer a.dispatchWG.Done()
			if err := a.notifier.Run(a.dispatchCtx); err != nil {
				a.logger.Error("notification dispatcher failed", zap.Error(err))
			}
		}()
	}

	if a.cfg.HTTP.TLSCertFile != "" && a.cfg.HTTP.TLSKeyFile != "" {
		a.logger.Info("starting HTTPS server",
			zap.String("cert", a.cfg.HTTP.TLSCertFile),
			zap.String("key", a.cfg.HTTP.TLSKeyFile),
			zap.String("addr", a.httpServer.Addr),
		)
		return a.httpServer.ListenAndServeTLS(a.cfg.HTTP.TLSCertFile, a.cfg.HTTP.TLSKeyFile)
	}
	a.logger.Info("starting HTTP server", zap.String("addr", a.httpServer.Addr))
	return a.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and the dispatcher, then closes
// resources.
func (a *App) Shutdown(ctx context.Context) error {
	shutdownErr := a.httpServer.Shutdown(ctx)

	a.stopDispatch()
	a.dispatchWG.Wait()

	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
		if shutdownErr == nil {
			shutdownErr = err
		}
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Warn("failed to close redis client", zap.Error(err))
		if shutdownErr == nil {
			shutdownErr = err
		}
	}
	return shutdownErr
}

// remoteHost keys rate limits by client address. RealIP has already
// replaced RemoteAddr when a proxy header is present.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
