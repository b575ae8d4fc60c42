// Package lifecycle drives products through install, launch and removal.
package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/toystudio/internal/env"
	"github.com/loykin/toystudio/internal/errs"
	"github.com/loykin/toystudio/internal/history"
	"github.com/loykin/toystudio/internal/metrics"
	"github.com/loykin/toystudio/internal/paths"
	"github.com/loykin/toystudio/internal/process"
	"github.com/loykin/toystudio/internal/registry"
)

// Syncer brings a product's source checkout up to date.
type Syncer interface {
	Sync(remoteURL, branch, target, backupDir string) (string, error)
}

// Provisioner prepares a product's runtime environment and wraps its launch command.
type Provisioner interface {
	Provision(dir, pythonVersion string) error
	RunArgs(args []string) []string
	Binary() string
}

// LogWriters opens stdout and stderr sinks for a launched product. Nil writers
// mean the product inherits the daemon's stdio.
type LogWriters func(name string) (stdout, stderr io.WriteCloser, err error)

type Config struct {
	Layout      paths.Layout
	Registry    *registry.Registry
	Sync        Syncer
	Provisioner Provisioner
	Launcher    process.Strategy
	Env         *env.Env
	Logger      *slog.Logger
	History     history.Sink
	OutputLog   LogWriters
	GOOS        string
	// UpgradeSource is the directory upgrade reads manifests from. Empty means
	// the manifest catalog itself.
	UpgradeSource string
	Grace         time.Duration
}

// Orchestrator sequences the other components for each lifecycle operation.
// It is safe for concurrent use; the registry is its only shared state.
type Orchestrator struct {
	layout     paths.Layout
	reg        *registry.Registry
	sync       Syncer
	prov       Provisioner
	launcher   process.Strategy
	env        *env.Env
	logger     *slog.Logger
	history    history.Sink
	outputLog  LogWriters
	goos       string
	upgradeDir string
	grace      time.Duration
	now        func() time.Time
}

func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		layout:     cfg.Layout,
		reg:        cfg.Registry,
		sync:       cfg.Sync,
		prov:       cfg.Provisioner,
		launcher:   cfg.Launcher,
		env:        cfg.Env,
		logger:     cfg.Logger,
		history:    cfg.History,
		outputLog:  cfg.OutputLog,
		goos:       cfg.GOOS,
		upgradeDir: cfg.UpgradeSource,
		grace:      cfg.Grace,
		now:        time.Now,
	}
	if o.reg == nil {
		o.reg = registry.New()
	}
	if o.launcher == nil {
		o.launcher = process.Default()
	}
	if o.env == nil {
		o.env = env.New()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.goos == "" {
		o.goos = runtime.GOOS
	}
	if o.upgradeDir == "" {
		o.upgradeDir = o.layout.ManifestsDir()
	}
	if o.grace <= 0 {
		o.grace = process.DefaultGrace
	}
	return o
}

// Registry exposes the registry the orchestrator mutates.
func (o *Orchestrator) Registry() *registry.Registry { return o.reg }

// Layout exposes the directory layout.
func (o *Orchestrator) Layout() paths.Layout { return o.layout }

// checkID rejects ids that would escape the manifest or apps directories.
func checkID(op, id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return errs.Schema(op, id, errInvalidID)
	}
	return nil
}

// do wraps one mutating operation with logging, metrics and a history event.
func (o *Orchestrator) do(ctx context.Context, typ history.EventType, id string, fn func(ev *history.Event) error) error {
	ev := history.Event{Type: typ, Product: id, OperationID: uuid.NewString()}
	log := o.logger.With("op", string(typ), "product", id, "operation_id", ev.OperationID)
	started := o.now()
	log.InfoContext(ctx, "operation started")

	err := checkID(string(typ), id)
	if err == nil {
		err = fn(&ev)
	}

	metrics.ObserveOperation(string(typ), started, err)
	ev.OccurredAt = o.now().UTC()
	elapsed := ev.OccurredAt.Sub(started)
	if err != nil {
		ev.Error = err.Error()
		log.ErrorContext(ctx, "operation failed", "error", err, "kind", errs.KindOf(err), "duration", elapsed)
	} else {
		log.InfoContext(ctx, "operation finished", "duration", elapsed)
	}
	o.emit(ctx, log, ev)
	return err
}

func (o *Orchestrator) emit(ctx context.Context, log *slog.Logger, ev history.Event) {
	if o.history == nil {
		return
	}
	if err := o.history.Send(ctx, ev); err != nil {
		log.WarnContext(ctx, "history send failed", "error", err)
	}
}
