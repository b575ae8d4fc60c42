// Package toystudio installs, launches and removes git-hosted Python products
// described by manifest files. It wires the internal components from a
// toystudio.toml document and exposes them as one Studio.
package toystudio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/toystudio/internal/config"
	"github.com/loykin/toystudio/internal/explorer"
	"github.com/loykin/toystudio/internal/history"
	"github.com/loykin/toystudio/internal/history/factory"
	"github.com/loykin/toystudio/internal/lifecycle"
	"github.com/loykin/toystudio/internal/manifest"
	"github.com/loykin/toystudio/internal/metrics"
	"github.com/loykin/toystudio/internal/paths"
	"github.com/loykin/toystudio/internal/process"
	"github.com/loykin/toystudio/internal/pyenv"
	"github.com/loykin/toystudio/internal/registry"
	"github.com/loykin/toystudio/internal/server"
	itls "github.com/loykin/toystudio/internal/tls"
	"github.com/loykin/toystudio/internal/vcs"
)

type (
	Config  = config.Config
	Product = manifest.Product
	Status  = lifecycle.Status
	Event   = history.Event
	Python  = pyenv.Python
)

// LoadConfig reads a toystudio.toml document. An empty or missing path yields defaults.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Studio owns one installation root.
type Studio struct {
	cfg    *Config
	logger *slog.Logger
	orch   *lifecycle.Orchestrator
	uv     *pyenv.Provisioner
	sink   history.Sink
	open   func(path string) error
}

type Option func(*studioOptions)

type studioOptions struct {
	logger   *slog.Logger
	sync     lifecycle.Syncer
	prov     lifecycle.Provisioner
	sink     history.Sink
	opener   func(path string) error
	launcher process.Strategy
}

// WithLogger overrides the logger built from the [log] section.
func WithLogger(l *slog.Logger) Option { return func(o *studioOptions) { o.logger = l } }

// WithSyncer replaces the git synchronizer.
func WithSyncer(s lifecycle.Syncer) Option { return func(o *studioOptions) { o.sync = s } }

// WithProvisioner replaces the uv provisioner used by install and startup.
func WithProvisioner(p lifecycle.Provisioner) Option {
	return func(o *studioOptions) { o.prov = p }
}

// WithHistorySink records lifecycle events into s regardless of [history].
func WithHistorySink(s history.Sink) Option { return func(o *studioOptions) { o.sink = s } }

func WithOpener(open func(path string) error) Option {
	return func(o *studioOptions) { o.opener = open }
}

func WithLauncher(l process.Strategy) Option { return func(o *studioOptions) { o.launcher = l } }

// New builds a Studio for cfg and rebuilds the registry from the apps directory.
// Manifests under products.seed_dir are copied into the catalog when missing.
func New(cfg *Config, opts ...Option) (*Studio, error) {
	if cfg == nil {
		var err error
		if cfg, err = config.Load(""); err != nil {
			return nil, err
		}
	}
	var so studioOptions
	for _, o := range opts {
		o(&so)
	}
	log := so.logger
	if log == nil {
		log = cfg.Log.NewSlogger()
	}

	environment, err := cfg.Environment()
	if err != nil {
		return nil, fmt.Errorf("build environment: %w", err)
	}
	runner := process.ExecRunner{Env: environment.Merge(nil), Logger: log}

	uv := pyenv.New(runner, cfg.UVBinary(), log)
	syncer := so.sync
	if syncer == nil {
		syncer = vcs.New(runner, cfg.Git.Binary, log)
	}
	prov := so.prov
	if prov == nil {
		prov = uv
	}

	sink := so.sink
	if sink == nil && cfg.History.Enabled {
		if sink, err = factory.NewSinkFromDSN(cfg.History.DSN); err != nil {
			return nil, fmt.Errorf("open history sink: %w", err)
		}
	}

	layout := cfg.Layout()
	reg := registry.New()
	if err := reg.Rebuild(layout.AppsDir(), layout.Ext); err != nil {
		_ = closeSink(sink)
		return nil, fmt.Errorf("rebuild registry: %w", err)
	}

	lc := lifecycle.Config{
		Layout:      layout,
		Registry:    reg,
		Sync:        syncer,
		Provisioner: prov,
		Launcher:    so.launcher,
		Env:         environment,
		Logger:      log,
		History:     sink,
	}
	if cfg.Products.LogOutput && runtime.GOOS != "windows" {
		lc.OutputLog = cfg.Log.ProductWriters
	}

	s := &Studio{
		cfg:    cfg,
		logger: log,
		orch:   lifecycle.New(lc),
		uv:     uv,
		sink:   sink,
		open:   so.opener,
	}
	if s.open == nil {
		s.open = explorer.Open
	}
	if cfg.Products.SeedDir != "" {
		added, err := s.orch.Seed(cfg.Products.SeedDir)
		if err != nil {
			log.Warn("seed manifests failed", "dir", cfg.Products.SeedDir, "error", err)
		} else if len(added) > 0 {
			log.Info("seeded manifests", "dir", cfg.Products.SeedDir, "added", added)
		}
	}
	return s, nil
}

func (s *Studio) Config() *Config { return s.cfg }
func (s *Studio) Layout() paths.Layout { return s.orch.Layout() }
func (s *Studio) Logger() *slog.Logger { return s.logger }
func (s *Studio) Orchestrator() *lifecycle.Orchestrator { return s.orch }

func (s *Studio) ListAll(ctx context.Context) ([]*Product, error) { return s.orch.ListAll(ctx) }

func (s *Studio) ListInstalled(ctx context.Context) ([]*Product, error) {
	return s.orch.ListInstalled(ctx)
}

func (s *Studio) Status(ctx context.Context, id string) (*Status, error) {
	return s.orch.Status(ctx, id)
}

func (s *Studio) Install(ctx context.Context, id string) error { return s.orch.Install(ctx, id) }
func (s *Studio) Reinstall(ctx context.Context, id string) error { return s.orch.Reinstall(ctx, id) }
func (s *Studio) Uninstall(ctx context.Context, id string) error { return s.orch.Uninstall(ctx, id) }
func (s *Studio) Upgrade(ctx context.Context, id string) error { return s.orch.Upgrade(ctx, id) }
func (s *Studio) Startup(ctx context.Context, id string) error { return s.orch.Startup(ctx, id) }
func (s *Studio) Shutdown(ctx context.Context, id string) error { return s.orch.Shutdown(ctx, id) }

// ShutdownAll stops every running product.
func (s *Studio) ShutdownAll(ctx context.Context) error { return s.orch.ShutdownAll(ctx) }

// Seed copies manifests from srcDir that the catalog lacks.
func (s *Studio) Seed(srcDir string) ([]string, error) { return s.orch.Seed(srcDir) }

// Open reveals a named directory (products, apps, backup, output, root) or a
// product's install directory in the platform file manager.
func (s *Studio) Open(target string) error {
	dir, err := explorer.Resolve(s.Layout(), target)
	if err != nil {
		return err
	}
	return s.open(dir)
}

func (s *Studio) UVCacheDir() (string, error) { return s.uv.CacheDir() }

func (s *Studio) UVPythons() ([]Python, error) { return s.uv.Pythons() }

// ErrNoHistory is returned by History when no queryable sink is configured.
var ErrNoHistory = errors.New("history is not enabled or its sink cannot be queried")

// History returns recorded lifecycle events, newest first.
func (s *Studio) History(ctx context.Context, product string, limit int) ([]Event, error) {
	q, ok := s.sink.(history.Querier)
	if !ok {
		return nil, ErrNoHistory
	}
	return q.Query(ctx, history.Filter{Product: product, Limit: limit})
}

// Router builds the HTTP API for this studio. Extra options are applied last.
func (s *Studio) Router(opts ...server.Option) *server.Router {
	base := []server.Option{
		server.WithUV(s.uv),
		server.WithLogger(s.logger),
		server.WithOpener(s.open),
	}
	if q, ok := s.sink.(history.Querier); ok {
		base = append(base, server.WithHistory(q))
	}
	return server.NewRouter(s, s.cfg.Server.BasePath, append(base, opts...)...)
}

// Close releases the history sink.
func (s *Studio) Close() error {
	return closeSink(s.sink)
}

func closeSink(sink history.Sink) error {
	if c, ok := sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Serve runs the HTTP API until ctx is done, then stops the listener and every
// running product. Metrics are mounted on the API unless metrics.listen names
// a separate address.
func (s *Studio) Serve(ctx context.Context) error {
	tlsCfg, err := itls.Setup(s.cfg.Server.TLS)
	if err != nil {
		return fmt.Errorf("server tls: %w", err)
	}

	var routerOpts []server.Option
	var metricsSrv *http.Server
	if s.cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		sampler := metrics.NewSampler(s.cfg.Metrics.Interval, s.orch.RunningPIDs, s.logger)
		sampler.Start(ctx)
		defer sampler.Stop()

		if s.cfg.Metrics.Listen == "" || s.cfg.Metrics.Listen == s.cfg.Server.Listen {
			routerOpts = append(routerOpts, server.WithMetrics())
		} else {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			metricsSrv = &http.Server{Addr: s.cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.logger.Error("metrics server failed", "addr", s.cfg.Metrics.Listen, "error", err)
				}
			}()
		}
	}

	srv := server.NewServer(s.cfg.Server.Listen, s.Router(routerOpts...))
	srv.TLSConfig = tlsCfg

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tlsCfg != nil {
			// certificates come from TLSConfig.GetCertificate
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()
	s.logger.Info("toystudio serving", "addr", s.cfg.Server.Listen, "base", s.cfg.Server.BasePath, "tls", tlsCfg != nil)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown", "error", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := s.orch.ShutdownAll(shutdownCtx); err != nil {
		s.logger.Warn("shutdown products", "error", err)
	}
	return serveErr
}
