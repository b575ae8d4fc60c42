package lifecycle

import (
	"context"
	"time"

	"github.com/loykin/toystudio/internal/manifest"
	"github.com/loykin/toystudio/internal/process"
)

// Status is the live view of one product.
type Status struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Version    string         `json:"version,omitempty"`
	Install    bool           `json:"install"`
	Running    bool           `json:"running"`
	PID        int            `json:"pid,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	ExitCode   *int           `json:"exit_code,omitempty"`
	InstallDir string         `json:"install_dir"`
	Stats      *process.Stats `json:"stats,omitempty"`
}

// ListAll returns every catalog manifest with install and running filled in.
// Manifests that fail to parse are logged and skipped.
func (o *Orchestrator) ListAll(ctx context.Context) ([]*manifest.Product, error) {
	products, bad, err := manifest.List(o.layout.ManifestsDir(), o.layout.Ext)
	if err != nil {
		return nil, err
	}
	for _, b := range bad {
		o.logger.WarnContext(ctx, "skipping manifest", "error", b)
	}
	for _, p := range products {
		installed := o.reg.IsInstalled(p.ID)
		running := o.reg.IsRunning(p.ID)
		p.Install = &installed
		p.Running = &running
	}
	return products, nil
}

// ListInstalled is ListAll restricted to installed products.
func (o *Orchestrator) ListInstalled(ctx context.Context) ([]*manifest.Product, error) {
	all, err := o.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*manifest.Product, 0, len(all))
	for _, p := range all {
		if *p.Install {
			out = append(out, p)
		}
	}
	return out, nil
}

// Status reports one product. The manifest must exist and parse.
func (o *Orchestrator) Status(_ context.Context, id string) (*Status, error) {
	if err := checkID("status", id); err != nil {
		return nil, err
	}
	p, err := manifest.Parse(o.layout.ManifestPath(id))
	if err != nil {
		return nil, err
	}
	st := &Status{
		ID:         p.ID,
		Name:       p.Name,
		Version:    p.Version,
		Install:    o.reg.IsInstalled(id),
		InstallDir: o.installDir(id),
	}
	h := o.reg.Handle(id)
	if h == nil {
		return st, nil
	}
	st.PID = h.PID()
	started := h.StartedAt()
	st.StartedAt = &started
	switch h.Poll() {
	case process.Running:
		st.Running = true
		if s, err := h.Stats(); err == nil {
			st.Stats = &s
		}
	case process.Exited:
		code := h.ExitCode()
		st.ExitCode = &code
	}
	return st, nil
}

// RunningPIDs maps every running product to its pid, and reports the installed count.
// It is the metrics sampler source.
func (o *Orchestrator) RunningPIDs() (map[string]int32, int) {
	snap := o.reg.Snapshot()
	pids := make(map[string]int32)
	for _, e := range snap {
		if e.Running {
			pids[e.ID] = int32(e.PID)
		}
	}
	return pids, len(snap)
}
