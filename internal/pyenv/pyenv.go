package pyenv

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/loykin/toystudio/internal/errs"
	"github.com/loykin/toystudio/internal/process"
)

// DefaultBinary is the uv executable looked up on PATH.
const DefaultBinary = "uv"

// Provisioner drives uv to build and run a product's isolated environment.
type Provisioner struct {
	runner process.Runner
	uv     string
	logger *slog.Logger
}

func New(runner process.Runner, binary string, logger *slog.Logger) *Provisioner {
	if binary == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Provisioner{runner: runner, uv: binary, logger: logger}
}

// Binary is the uv executable used for provisioning and for launching products.
func (p *Provisioner) Binary() string { return p.uv }

// Provision creates the environment pinned to pythonVersion, then syncs dependencies.
// The sync step only runs when the environment was created.
func (p *Provisioner) Provision(dir, pythonVersion string) error {
	if err := p.CreateEnv(dir, pythonVersion); err != nil {
		return err
	}
	return p.SyncDeps(dir)
}

func (p *Provisioner) CreateEnv(dir, pythonVersion string) error {
	p.logger.Info("uv venv", "dir", dir, "python", pythonVersion)
	_, err := p.runner.Run(dir, p.uv, "venv", "-p", pythonVersion)
	return err
}

func (p *Provisioner) SyncDeps(dir string) error {
	p.logger.Info("uv sync", "dir", dir)
	_, err := p.runner.Run(dir, p.uv, "sync")
	return err
}

// RunArgs returns the uv arguments that run args inside the environment.
func (p *Provisioner) RunArgs(args []string) []string {
	return append([]string{"run"}, args...)
}

// CacheDir reports uv's cache directory.
func (p *Provisioner) CacheDir() (string, error) {
	return p.runner.Run("", p.uv, "cache", "dir")
}

// Python is one interpreter managed by uv.
type Python struct {
	Key            string  `json:"key"`
	Version        string  `json:"version"`
	Implementation string  `json:"implementation"`
	OS             string  `json:"os"`
	Arch           string  `json:"arch"`
	Path           *string `json:"path"`
}

// Pythons lists the uv-managed interpreters installed on this machine.
func (p *Provisioner) Pythons() ([]Python, error) {
	out, err := p.runner.Run("", p.uv, "python", "list",
		"--output-format", "json",
		"--python-preference", "only-managed",
		"--only-installed")
	if err != nil {
		return nil, err
	}
	var list []Python
	if out == "" {
		return list, nil
	}
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		return nil, errs.Schema("uv python list", "", fmt.Errorf("decode output: %w", err))
	}
	return list, nil
}
