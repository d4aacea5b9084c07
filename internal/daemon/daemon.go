package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/studyaddict/studyaddict/internal/api"
	"github.com/studyaddict/studyaddict/internal/app/cloudsync"
	"github.com/studyaddict/studyaddict/internal/app/events"
	"github.com/studyaddict/studyaddict/internal/app/progression"
	"github.com/studyaddict/studyaddict/internal/domain"
	"github.com/studyaddict/studyaddict/internal/health"
	"github.com/studyaddict/studyaddict/internal/infra/metrics"
	"github.com/studyaddict/studyaddict/internal/infra/natsbus"
	"github.com/studyaddict/studyaddict/internal/infra/postgres"
	"github.com/studyaddict/studyaddict/internal/infra/redisdoc"
	"github.com/studyaddict/studyaddict/internal/infra/sqlite"
	"github.com/studyaddict/studyaddict/internal/logging"
)

// Daemon is the Study Addict runtime. It wires together all services.
type Daemon struct {
	Config   Config
	Log      *zap.Logger
	DB       *sqlite.DB
	Remote   cloudsync.RemoteStore
	Queue    *cloudsync.Queue
	Sync     *cloudsync.Service
	Bus      *events.Bus
	Hub      *api.Hub
	NATS     *natsbus.Publisher
	Registry *progression.Registry
	Health   *health.Checker
	Server   *api.Server

	closeRemote func() error
	cancel      context.CancelFunc
	closeOnce   sync.Once
}

// openTimeout bounds connecting to the remote store and NATS.
const openTimeout = 15 * time.Second

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	home := studyaddictHome()
	if err := os.MkdirAll(home, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	log, err := logging.New(cfg.LoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := sqlite.Open(home)
	if err != nil {
		return nil, abort(log, fmt.Errorf("open database: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	remote, closeRemote, err := openRemote(ctx, cfg, db)
	if err != nil {
		db.Close()
		return nil, abort(log, err)
	}

	d := &Daemon{
		Config:      cfg,
		Log:         log,
		DB:          db,
		Remote:      remote,
		closeRemote: closeRemote,
	}

	// ─── Sync ───────────────────────────────────────────────────────────

	clock := cfg.Clock()
	d.Queue = cloudsync.NewQueue(remote, cfg.QueuePolicy(), log.Named("queue"))
	d.Sync = cloudsync.NewService(remote, d.Queue, clock, log.Named("sync"))

	// ─── Events ─────────────────────────────────────────────────────────

	d.Bus = events.NewBus(log.Named("events"))
	d.Hub = api.NewHub(log.Named("stream"))
	eventLog := log.Named("eventlog")

	d.Bus.Subscribe("log", events.LogHandler(log.Named("events")))
	d.Bus.Subscribe("metrics", metrics.Record)
	d.Bus.Subscribe("eventlog", func(ev domain.Event) {
		if err := db.AppendEvent(ev); err != nil {
			eventLog.Warn("event not logged", zap.String("kind", string(ev.Kind)), zap.Error(err))
		}
	})
	d.Bus.Subscribe("stream", d.Hub.Broadcast)

	if cfg.NATS.Enabled {
		pub, err := natsbus.Connect(cfg.NATSPublisherConfig(), log.Named("nats"))
		if err != nil {
			log.Warn("nats unavailable, events stay local", zap.Error(err))
		} else {
			d.NATS = pub
			d.Bus.Subscribe("nats", pub.Handle)
		}
	}

	// ─── Sessions ───────────────────────────────────────────────────────

	rules := cfg.ProgressionRules()
	badges := progression.DefaultBadgeCatalog()
	engineLog := log.Named("engine")
	d.Registry = progression.NewRegistry(func(s domain.Session) *progression.Engine {
		return progression.NewEngine(progression.Config{
			Session: s,
			Rules:   rules,
			Badges:  badges,
			Clock:   clock,
			Sync:    d.Sync,
			Local:   db,
			Emitter: d.Bus,
			Logger:  engineLog,
		})
	}, log.Named("registry"))

	// ─── Health & API ───────────────────────────────────────────────────

	d.Health = health.NewChecker(
		parseDuration(cfg.Telemetry.HealthInterval, 60*time.Second),
		log.Named("health"),
		health.LocalStoreCheck(db.PingContext),
		health.RemoteStoreCheck(d.Sync.Ping),
	)
	if d.NATS != nil {
		d.Health.Add(health.ConnectionCheck("nats", d.NATS.Connected))
	}

	d.Server = api.NewServer(api.Options{
		Registry:    d.Registry,
		Events:      db,
		Health:      d.Health,
		Hub:         d.Hub,
		SyncStats:   d.Sync.Stats,
		JWTSecret:   cfg.API.JWTSecret,
		CORSOrigins: cfg.API.CORSOrigins,
		Metrics:     cfg.Telemetry.Prometheus,
		Logger:      log.Named("api"),
	})

	log.Info("daemon ready",
		zap.String("home", home),
		zap.String("sync_backend", cfg.Sync.Backend),
		zap.Bool("nats", d.NATS != nil))
	return d, nil
}

// abort logs a construction failure and flushes the logger before the
// daemon is abandoned.
func abort(log *zap.Logger, err error) error {
	log.Error("daemon init failed", zap.Error(err))
	_ = log.Sync()
	return err
}

// openRemote opens the configured remote document store.
func openRemote(ctx context.Context, cfg Config, db *sqlite.DB) (cloudsync.RemoteStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Sync.Backend {
	case BackendMemory:
		return cloudsync.NewMemoryStore(), noop, nil
	case BackendSQLite:
		return sqlite.NewDocumentStore(db), noop, nil
	case BackendRedis:
		store, err := redisdoc.Open(ctx, cfg.RedisStoreConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		return store, store.Close, nil
	case BackendPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresStoreConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, func() error { store.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown sync backend %q", cfg.Sync.Backend)
	}
}

// Session returns the started engine for s.
func (d *Daemon) Session(ctx context.Context, s domain.Session) *progression.Engine {
	return d.Registry.Get(ctx, s)
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)
	go d.collect(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket streams are long-lived
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		d.Hub.Close()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Study Addict serving on http://%s\n", addr)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}
	d.Log.Info("serving", zap.String("addr", addr))

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// collect refreshes the session and save queue gauges.
func (d *Daemon) collect(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		d.observe()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Daemon) observe() {
	stats := d.Sync.Stats()
	metrics.SessionsActive.Set(float64(d.Registry.Len()))
	metrics.SaveQueuePending.Set(float64(stats.Pending))
	metrics.SaveQueueDropped.Set(float64(stats.Dropped))
}

// Close drains pending saves and shuts down all daemon resources.
func (d *Daemon) Close() {
	d.closeOnce.Do(func() {
		d.Log.Info("shutting down", zap.Strings("sessions", d.Registry.Sessions()))
		if d.cancel != nil {
			d.cancel()
		}

		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := d.Queue.Flush(flushCtx); err != nil {
			d.Log.Warn("pending saves not flushed", zap.Error(err), zap.Int("pending", d.Queue.Stats().Pending))
		}
		cancel()
		d.Queue.Close()

		d.Hub.Close()
		if d.NATS != nil {
			if err := d.NATS.Close(); err != nil {
				d.Log.Warn("nats drain failed", zap.Error(err))
			}
		}
		if d.closeRemote != nil {
			if err := d.closeRemote(); err != nil {
				d.Log.Warn("remote store close failed", zap.Error(err))
			}
		}
		_ = d.DB.Close()
		_ = d.Log.Sync()
	})
}
