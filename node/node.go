// Package node wires collectors, sender filters and downloads of a filemesh node.
package node

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"
	"github.com/mitchellh/mapstructure"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/filemesh/go-filemesh/codec"
	"github.com/filemesh/go-filemesh/collector"
	"github.com/filemesh/go-filemesh/common/types"
	"github.com/filemesh/go-filemesh/config"
	"github.com/filemesh/go-filemesh/downloads"
	"github.com/filemesh/go-filemesh/eventloop"
	"github.com/filemesh/go-filemesh/knowledge"
	"github.com/filemesh/go-filemesh/log"
	"github.com/filemesh/go-filemesh/metrics"
	"github.com/filemesh/go-filemesh/retry"
	"github.com/filemesh/go-filemesh/senderfilters"
	"github.com/filemesh/go-filemesh/sql"
	"github.com/filemesh/go-filemesh/sql/stores"
	"github.com/filemesh/go-filemesh/tokens"
)

const (
	AppLogger       = "app"
	DatabaseLogger  = "database"
	CollectorLogger = "collector"
	DownloadsLogger = "downloads"
	SenderLogger    = "senderfilters"
	TokensLogger    = "tokens"
	EventLoopLogger = "eventloop"
)

const (
	lockFile     = "filemesh.lock"
	identityFile = "identity"
)

var (
	// ErrUnknownStore is returned if the store was not added.
	ErrUnknownStore = errors.New("node: unknown store")
	// ErrNoTransport is returned by the default fetcher.
	ErrNoTransport = errors.New("node: transport is not configured")
)

// Option to modify an App instance.
type Option func(app *App)

// WithLog enables logger for an App.
func WithLog(logger *zap.Logger) Option {
	return func(app *App) {
		app.log = logger
	}
}

// WithConfig overwrites default App config.
func WithConfig(conf *config.Config) Option {
	return func(app *App) {
		app.Config = conf
	}
}

// WithFetcher sets transport used to download components.
func WithFetcher(fetcher downloads.Fetcher) Option {
	return func(app *App) {
		app.fetcher = fetcher
	}
}

// WithClock sets clock of the event loop.
func WithClock(clock clockwork.Clock) Option {
	return func(app *App) {
		app.clock = clock
	}
}

type noTransport struct{}

func (noTransport) Fetch(context.Context, types.SOCID, types.DID) error {
	return ErrNoTransport
}

// New creates an instance of the filemesh app.
func New(opts ...Option) *App {
	defaultConfig := config.DefaultConfig()
	app := &App{
		Config:  &defaultConfig,
		log:     log.NewNop(),
		clock:   clockwork.NewRealClock(),
		fetcher: noTransport{},
		loggers: make(map[string]*zap.AtomicLevel),
		senders: make(map[types.SIndex]*senderfilters.SenderFilters),
		online:  make(map[types.DID]struct{}),
		started: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// App is a filemesh node.
type App struct {
	Config   *config.Config
	log      *zap.Logger
	clock    clockwork.Clock
	fileLock *flock.Flock
	identity types.DID
	fetcher  downloads.Fetcher

	db         *sql.Database
	loop       *eventloop.Loop
	tokens     *tokens.Manager
	retrier    *retry.Retrier
	downloads  *downloads.Downloads
	collectors *collector.Registry

	// senders and online are accessed only on the loop.
	senders map[types.SIndex]*senderfilters.SenderFilters
	online  map[types.DID]struct{}

	loggers map[string]*zap.AtomicLevel
	started chan struct{} // closed once the app has finished starting
	eg      *errgroup.Group
}

// Started returns a channel that is closed once the app is started.
func (app *App) Started() <-chan struct{} {
	return app.started
}

// Identity returns the device identity of the node.
func (app *App) Identity() types.DID {
	return app.identity
}

// Lock locks the data directory of the app. Only one app can use it at a time.
func (app *App) Lock() error {
	if err := os.MkdirAll(app.Config.DataDir(), 0o700); err != nil {
		return log.ErrEnsureDataDir(app.Config.DataDir(), err)
	}
	fl := flock.New(filepath.Join(app.Config.DataDir(), lockFile))
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("flock %s: %w", fl.Path(), err)
	} else if !locked {
		return fmt.Errorf("only one filemesh instance should be running (locking file %s)", fl.Path())
	}
	app.fileLock = fl
	return nil
}

// Unlock unlocks the app. It is a no-op if the app is not locked.
func (app *App) Unlock() {
	if app.fileLock == nil {
		return
	}
	if err := app.fileLock.Unlock(); err != nil {
		app.log.Error("failed to unlock file", zap.String("path", app.fileLock.Path()), zap.Error(err))
	}
	app.fileLock = nil
}

// Initialize prepares the data directory and loads the identity of the node.
func (app *App) Initialize() error {
	if err := os.MkdirAll(app.Config.DataDir(), 0o700); err != nil {
		return log.ErrEnsureDataDir(app.Config.DataDir(), err)
	}
	if err := app.loadIdentity(); err != nil {
		return err
	}
	app.log.Info("filemesh node is starting",
		zap.String("go", runtime.Version()),
		zap.String("os", runtime.GOOS+"-"+runtime.GOARCH),
		zap.Stringer("identity", app.identity),
		zap.String("data", app.Config.DataDir()),
	)
	return nil
}

func (app *App) loadIdentity() error {
	path := filepath.Join(app.Config.DataDir(), identityFile)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		app.identity = types.RandomDID()
		if err := atomic.WriteFile(path, bytes.NewReader(codec.MustEncode(&app.identity))); err != nil {
			return fmt.Errorf("write identity %s: %w", path, err)
		}
		app.log.Info("created new identity", zap.Stringer("identity", app.identity))
		return nil
	case err != nil:
		return fmt.Errorf("read identity %s: %w", path, err)
	}
	var did types.DID
	if err := codec.Decode(data, &did); err != nil {
		return fmt.Errorf("decode identity %s: %w", path, err)
	}
	app.identity = did
	return nil
}

// addLogger returns named child of the app logger with the level configured for the module.
// Levels can be changed later with SetLogLevel.
func (app *App) addLogger(name string) *zap.Logger {
	lvl, err := decodeLoggerLevel(app.Config, name)
	if err != nil {
		app.log.Panic("unable to decode logger level", zap.String("module", name), zap.Error(err))
	}
	logger := app.log
	if app.log.Core().Enabled(lvl.Level()) {
		app.loggers[name] = &lvl
		logger = logger.WithOptions(zap.IncreaseLevel(lvl))
	}
	return logger.Named(name)
}

// SetLogLevel updates the log level of an existing logger.
func (app *App) SetLogLevel(name, loglevel string) error {
	lvl, ok := app.loggers[name]
	if !ok {
		return fmt.Errorf("cannot find logger %v", name)
	}
	if err := lvl.UnmarshalText([]byte(loglevel)); err != nil {
		return fmt.Errorf("unmarshal text: %w", err)
	}
	return nil
}

func decodeLoggerLevel(cfg *config.Config, name string) (zap.AtomicLevel, error) {
	lvl := zap.NewAtomicLevel()
	loggers := map[string]string{}
	if err := mapstructure.Decode(cfg.LOGGING, &loggers); err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("error decoding mapstructure: %w", err)
	}
	level, ok := loggers[name]
	if ok {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return zap.AtomicLevel{}, fmt.Errorf("cannot parse logging for %v: %w", name, err)
		}
	}
	return lvl, nil
}

func (app *App) setupDB() error {
	db, err := sql.Open("file:"+app.Config.DatabasePath(),
		sql.WithLogger(app.addLogger(DatabaseLogger)),
		sql.WithConnections(app.Config.DatabaseConnections),
		sql.WithLatencyMetering(app.Config.DatabaseLatencyMetering),
	)
	if err != nil {
		return log.ErrOpenDatabase(app.Config.DatabasePath(), err)
	}
	app.db = db
	return nil
}

func (app *App) initServices() error {
	app.loop = eventloop.New(
		eventloop.WithLogger(app.addLogger(EventLoopLogger)),
		eventloop.WithClock(app.clock),
	)
	app.tokens = tokens.New(
		tokens.WithLogger(app.addLogger(TokensLogger)),
		tokens.WithConfig(app.Config.Tokens),
	)
	collectorLog := app.addLogger(CollectorLogger)
	app.retrier = retry.New(app.loop,
		retry.WithLogger(collectorLog),
		retry.WithConfig(app.Config.Retry),
	)
	dopts := []downloads.Opt{
		downloads.WithLogger(app.addLogger(DownloadsLogger)),
		downloads.WithOnSuccess(app.collected),
	}
	if app.Config.DownloadRequests > 0 {
		dopts = append(dopts, downloads.WithRateLimit(app.Config.DownloadInterval, app.Config.DownloadRequests))
	}
	app.downloads = downloads.New(app.loop, app.fetcher, dopts...)
	app.collectors = collector.NewRegistry(
		app.db,
		app.loop,
		app.retrier,
		knowledge.SkipRule{},
		app.downloads,
		app.tokens,
		collector.WithLogger(collectorLog),
		collector.WithConfig(app.Config.Collector),
	)
	all, err := stores.All(app.db)
	if err != nil {
		return err
	}
	return app.db.WithTx(context.Background(), func(tx *sql.Tx) error {
		for _, sidx := range all {
			if err := app.openStore(tx, sidx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (app *App) openStore(tx sql.Transaction, sidx types.SIndex) error {
	sf, err := senderfilters.New(tx, sidx,
		senderfilters.WithLogger(app.addLogger(SenderLogger)),
		senderfilters.WithCacheSize(app.Config.SenderCacheSize),
	)
	if err != nil {
		return err
	}
	if _, err := app.collectors.AddStore(sidx); err != nil {
		return err
	}
	app.senders[sidx] = sf
	tx.OnRollback(func() {
		app.collectors.Close(sidx)
		delete(app.senders, sidx)
	})
	return nil
}

// collected is executed on the loop once a component was downloaded.
func (app *App) collected(ctx context.Context, socid types.SOCID) error {
	return app.db.WithTx(ctx, func(tx *sql.Tx) error {
		return knowledge.Collected(tx, socid)
	})
}

// Start opens the database and runs the node until ctx is canceled.
func (app *App) Start(ctx context.Context) error {
	if err := app.setupDB(); err != nil {
		return err
	}
	if err := app.initServices(); err != nil {
		return fmt.Errorf("init services: %w", err)
	}
	app.eg, ctx = errgroup.WithContext(ctx)
	app.eg.Go(func() error {
		if err := app.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if app.Config.CollectMetrics {
		app.eg.Go(func() error {
			return metrics.Serve(ctx, app.log, fmt.Sprintf(":%d", app.Config.MetricsPort))
		})
	}
	if app.Config.MetricsPush != "" {
		app.eg.Go(func() error {
			metrics.PushMetrics(ctx, app.log, app.Config.MetricsPush, app.Config.MetricsPushPeriod, app.identity.String())
			return nil
		})
	}
	if err := app.loop.Call(ctx, func(ctx context.Context) error {
		app.collectors.RestartAll(ctx)
		return nil
	}); err != nil {
		return err
	}
	close(app.started)
	<-ctx.Done()
	return app.eg.Wait()
}

// Cleanup stops all app services.
func (app *App) Cleanup() {
	app.log.Info("app cleanup starting...")
	if app.downloads != nil {
		if err := app.downloads.Close(); err != nil {
			app.log.Warn("failed to stop downloads", zap.Error(err))
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.log.Warn("failed to close database", zap.Error(err))
		}
	}
	app.log.Info("app cleanup completed")
}

// Run initializes the node and blocks until ctx is canceled.
func (app *App) Run(ctx context.Context) error {
	if err := app.Lock(); err != nil {
		return fmt.Errorf("getting exclusive file lock: %w", err)
	}
	defer app.Unlock()
	if err := app.Initialize(); err != nil {
		return fmt.Errorf("initializing app: %w", err)
	}
	err := app.Start(ctx)
	cleanup := make(chan struct{})
	go func() {
		app.Cleanup()
		close(cleanup)
	}()
	select {
	case <-cleanup:
	case <-time.After(30 * time.Second):
		app.log.Error("app failed to clean up in time")
	}
	return err
}
