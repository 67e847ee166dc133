package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shortlink/internal/admission"
	"shortlink/internal/auth"
	"shortlink/internal/cache"
	"shortlink/internal/client"
	"shortlink/internal/config"
	"shortlink/internal/dbpool"
	"shortlink/internal/handler"
	"shortlink/internal/identity"
	"shortlink/internal/quota"
	"shortlink/internal/repository"
	"shortlink/internal/service"
	"shortlink/internal/stats"
	"shortlink/internal/tls"
	"shortlink/internal/util"

	"github.com/go-chi/chi/v5"
)

// Factory manages the lifecycle of all application dependencies.
type Factory struct {
	config     *config.Config
	tlsManager *tls.Manager

	// Clients
	pool             *dbpool.Pool
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	clickhouseClient *client.ClickHouseClient

	// Admission components
	limiter       *admission.RateLimiter
	states        *auth.OAuthStateStore
	authenticator *auth.SessionAuthenticator
	enforcer      *quota.Enforcer
	pipeline      *admission.Pipeline
	dbSink        *stats.DBSink

	// Services
	linkService  *service.LinkService
	authService  *service.AuthService
	adminService *service.AdminService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		f.tlsManager = tls.NewManager(&tls.Config{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
		})
	}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	f.initializeComponents()
	go f.runSweepers()

	util.Info("factory initialized",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("redis_enabled", f.redisClient != nil),
		util.Bool("kafka_enabled", f.kafkaProducer != nil),
		util.Bool("clickhouse_enabled", f.clickhouseClient != nil),
	)
	return f, nil
}

// initializeClients brings up the database pool and the optional clients.
// The pool is mandatory; everything else degrades to disabled with a
// warning so the service can still serve redirects.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := dbpool.New(ctx,
		dbpool.PgxFactory(f.config.Database.URL),
		f.config.Database.PoolSize,
		f.config.Database.AcquireTimeout,
		util.Get())
	if err != nil {
		return fmt.Errorf("postgres pool: %w", err)
	}
	f.pool = pool

	if err := dbpool.Bootstrap(ctx, f.pool, f.config.Database.SchemaFile, util.Get()); err != nil {
		util.Warn("schema bootstrap incomplete", util.ErrorField(err))
	}

	if f.config.Redis.Enabled {
		if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
			util.Warn("Redis initialization failed - proceeding without redirect cache", util.ErrorField(err))
		} else {
			f.redisClient = redisClient
		}
	}

	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without event stream", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
		}
	}

	if f.config.Clickhouse.Enabled {
		if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			util.Warn("ClickHouse initialization failed - proceeding without click analytics", util.ErrorField(err))
		} else {
			f.clickhouseClient = chClient
		}
	}

	return nil
}

func (f *Factory) initializeComponents() {
	cfg := f.config
	logger := util.Get()

	linkRepo := repository.NewLinkRepository(f.pool, logger)
	userRepo := repository.NewUserRepository(f.pool, logger)
	sessionRepo := repository.NewSessionRepository(f.pool, logger)
	settingsRepo := repository.NewSettingsRepository(f.pool, logger)
	statsRepo := repository.NewStatsRepository(f.pool, logger)

	f.limiter = admission.NewRateLimiter(cfg.App.RateCapacity, cfg.App.RateRefillPerSec)
	f.states = auth.NewOAuthStateStore(cfg.App.OAuthStateTTL)
	f.authenticator = auth.NewSessionAuthenticator(f.pool, sessionRepo, logger)
	f.enforcer = quota.NewEnforcer(f.pool, settingsRepo, cfg.App.GuestDailyCap, logger)

	f.dbSink = stats.NewDBSink(statsRepo, logger)
	sinks := stats.MultiSink{f.dbSink}
	if f.kafkaProducer != nil {
		sinks = append(sinks, stats.NewKafkaSink(f.kafkaProducer, cfg.Kafka.Topic, logger))
	}
	f.pipeline = admission.NewPipeline(f.limiter, f.authenticator, sinks, logger)

	var redirectCache service.RedirectCache
	if f.redisClient != nil {
		redirectCache = cache.NewLinkCache(f.redisClient, 5*time.Minute, logger)
	}
	var clickSink service.ClickSink
	if f.clickhouseClient != nil {
		clickSink = stats.NewClickRecorder(f.clickhouseClient, logger)
	}

	provider := identity.NewGoogleProvider(&cfg.Google)

	f.linkService = service.NewLinkService(linkRepo, f.enforcer, redirectCache, clickSink, cfg.App, logger)
	f.authService = service.NewAuthService(userRepo, sessionRepo, f.states, provider, cfg.App.SessionTTLDays, logger)
	f.adminService = service.NewAdminService(linkRepo, userRepo, statsRepo, logger)
}

// runSweepers periodically evicts idle rate buckets and expired oauth
// states so both maps stay bounded.
func (f *Factory) runSweepers() {
	ticker := time.NewTicker(f.config.App.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			evicted := f.limiter.Sweep(f.config.App.BucketIdleEvictAt)
			expired := f.states.Sweep()
			if evicted > 0 || expired > 0 {
				util.Debug("sweep pass",
					util.Int("buckets_evicted", evicted),
					util.Int("states_expired", expired),
				)
			}
		case <-f.closed:
			return
		}
	}
}

// Router assembles the HTTP surface.
func (f *Factory) Router() chi.Router {
	logger := util.Get()
	links := handler.NewLinkHandler(f.linkService, logger)
	authH := handler.NewAuthHandler(f.authService, f.authenticator, logger)
	admin := handler.NewAdminHandler(f.adminService, logger)
	return handler.NewRouter(links, authH, admin, f.pipeline, f.HealthCheck, logger)
}

// HealthCheck probes every initialized dependency.
func (f *Factory) HealthCheck(ctx context.Context) map[string]string {
	out := map[string]string{}

	check := func(name string, fn func(context.Context) error) {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := fn(cctx); err != nil {
			out[name] = err.Error()
		} else {
			out[name] = "healthy"
		}
	}

	check("postgres", f.pool.HealthCheck)
	if f.redisClient != nil {
		check("redis", f.redisClient.HealthCheck)
	}
	if f.kafkaProducer != nil {
		check("kafka", f.kafkaProducer.HealthCheck)
	}
	if f.clickhouseClient != nil {
		check("clickhouse", f.clickhouseClient.HealthCheck)
	}
	return out
}

// Close shuts everything down exactly once, sinks first so buffered
// events still reach their stores.
func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)

		if f.dbSink != nil {
			f.dbSink.Close()
		}
		if f.kafkaProducer != nil {
			_ = f.kafkaProducer.Close()
		}
		if f.clickhouseClient != nil {
			_ = f.clickhouseClient.Close()
		}
		if f.redisClient != nil {
			_ = f.redisClient.Close()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		f.pool.Close(ctx)

		util.Info("factory closed")
	})
	return nil
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.Manager {
	return f.tlsManager
}
