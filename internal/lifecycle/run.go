package lifecycle

import (
	"context"
	"errors"
	"os"

	"github.com/loykin/toystudio/internal/errs"
	"github.com/loykin/toystudio/internal/history"
	"github.com/loykin/toystudio/internal/manifest"
	"github.com/loykin/toystudio/internal/metrics"
	"github.com/loykin/toystudio/internal/process"
	"github.com/loykin/toystudio/internal/registry"
)

// Startup launches the product's startup command through the environment manager
// and registers the resulting handle. A product with a live process is rejected.
func (o *Orchestrator) Startup(ctx context.Context, id string) error {
	return o.do(ctx, history.EventStartup, id, func(ev *history.Event) error {
		p, err := manifest.Parse(o.layout.ManifestPath(id))
		if err != nil {
			return err
		}
		h, err := o.reg.StartExclusive(id, func() (*process.Handle, error) {
			return o.launch(p)
		})
		if errors.Is(err, registry.ErrAlreadyRunning) {
			return errs.State("startup", id, err)
		}
		if err != nil {
			return err
		}
		ev.PID = h.PID()
		metrics.IncStart(id)
		o.logger.InfoContext(ctx, "product launched", "product", id, "pid", h.PID())
		return nil
	})
}

func (o *Orchestrator) launch(p *manifest.Product) (*process.Handle, error) {
	dir := o.installDir(p.ID)
	if fi, err := os.Stat(dir); err != nil {
		return nil, errs.IO("startup", dir, err)
	} else if !fi.IsDir() {
		return nil, errs.IO("startup", dir, errors.New("not a directory"))
	}
	out := o.layout.OutputDir()
	if err := os.MkdirAll(out, 0o750); err != nil {
		return nil, errs.IO("create output dir", out, err)
	}
	tmpl, err := p.StartupCommand(o.goos)
	if err != nil {
		return nil, err
	}
	args, err := manifest.SplitArgs(manifest.Render(tmpl, map[string]string{manifest.OutputPlaceholder: out}))
	if err != nil {
		return nil, errs.Schema("parse startup command", p.ID, err)
	}
	if len(args) == 0 {
		return nil, errs.Schema("parse startup command", p.ID, errors.New("empty startup command"))
	}

	opts := []process.Option{process.WithEnv(o.env.Merge(nil)), process.WithGrace(o.grace)}
	if o.outputLog != nil {
		stdout, stderr, err := o.outputLog(o.layout.NameOf(p.ID))
		if err != nil {
			return nil, errs.IO("open product logs", p.ID, err)
		}
		if stdout != nil || stderr != nil {
			opts = append(opts, process.WithOutput(stdout, stderr))
		}
	}
	return o.launcher.Spawn(dir, o.prov.Binary(), o.prov.RunArgs(args), opts...)
}

// Shutdown terminates the product's process if it has one. The product stays installed.
func (o *Orchestrator) Shutdown(ctx context.Context, id string) error {
	return o.do(ctx, history.EventShutdown, id, func(ev *history.Event) error {
		h, err := o.reg.StopExclusive(id, func(h *process.Handle) error {
			return h.Terminate()
		})
		if h == nil {
			return nil
		}
		ev.PID = h.PID()
		if err != nil {
			return errs.IO("terminate", id, err)
		}
		metrics.IncStop(id)
		return nil
	})
}

// ShutdownAll terminates every registered process, for daemon exit.
func (o *Orchestrator) ShutdownAll(ctx context.Context) error {
	var all []error
	for _, e := range o.reg.Snapshot() {
		if !e.Running {
			continue
		}
		if err := o.Shutdown(ctx, e.ID); err != nil {
			all = append(all, err)
		}
	}
	return errors.Join(all...)
}
