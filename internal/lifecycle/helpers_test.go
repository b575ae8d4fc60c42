package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loykin/toystudio/internal/history"
	"github.com/loykin/toystudio/internal/paths"
	"github.com/loykin/toystudio/internal/registry"
)

const manifestTmpl = `
name = "%s"
version = "1.0.0"

[download]
git_url = "%s"
branch = "%s"
python_version = "3.11"

[linux]
startup = '%s'
shutdown = ""
`

func writeManifest(t *testing.T, dir, id, gitURL, branch, startup string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	name := strings.TrimSuffix(id, filepath.Ext(id))
	body := fmt.Sprintf(manifestTmpl, name, gitURL, branch, startup)
	require.NoError(t, os.WriteFile(filepath.Join(dir, id), []byte(body), 0o644))
}

type syncCall struct{ url, branch, target, backup string }

// fakeSyncer records calls and drops a marker file into the target.
type fakeSyncer struct {
	mu    sync.Mutex
	calls []syncCall
	err   error
}

func (f *fakeSyncer) Sync(url, branch, target, backup string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, syncCall{url, branch, target, backup})
	if f.err != nil {
		return "", f.err
	}
	return "", os.WriteFile(filepath.Join(target, "synced.txt"), []byte(branch), 0o644)
}

// shellProvisioner stands in for uv: provisioning is recorded and "run" executes
// the product command directly through sh.
type shellProvisioner struct {
	mu       sync.Mutex
	versions []string
	err      error
}

func (p *shellProvisioner) Provision(dir, version string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.versions = append(p.versions, version)
	return p.err
}

func (p *shellProvisioner) RunArgs(args []string) []string {
	return append([]string{"-c", `exec "$@"`, "uv-run"}, args...)
}

func (p *shellProvisioner) Binary() string { return "sh" }

// memSink collects history events.
type memSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (m *memSink) Send(_ context.Context, e history.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) all() []history.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]history.Event(nil), m.events...)
}

type fixture struct {
	root   string
	layout paths.Layout
	reg    *registry.Registry
	sync   *fakeSyncer
	prov   *shellProvisioner
	sink   *memSink
	orch   *Orchestrator
}

func newFixture(t *testing.T, mods ...func(*Config)) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		root:   root,
		layout: paths.New(root),
		reg:    registry.New(),
		sync:   &fakeSyncer{},
		prov:   &shellProvisioner{},
		sink:   &memSink{},
	}
	cfg := Config{
		Layout:      f.layout,
		Registry:    f.reg,
		Sync:        f.sync,
		Provisioner: f.prov,
		History:     f.sink,
		GOOS:        "linux",
		Grace:       500 * time.Millisecond,
	}
	for _, m := range mods {
		m(&cfg)
	}
	f.orch = New(cfg)
	t.Cleanup(func() { _ = f.orch.ShutdownAll(context.Background()) })
	return f
}

func (f *fixture) manifest(t *testing.T, id, startup string) {
	t.Helper()
	writeManifest(t, f.layout.ManifestsDir(), id, "https://example.com/"+id, "main", startup)
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a Unix shell")
	}
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func git(t *testing.T, dir string, args ...string) {
	t.Helper()
	full := append([]string{"-c", "user.name=toystudio", "-c", "user.email=toy@example.com", "-c", "init.defaultBranch=main"}, args...)
	cmd := exec.Command("git", full...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

// newRemote creates a repository with one commit on main.
func newRemote(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "remote")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	git(t, dir, "init")
	git(t, dir, "checkout", "-B", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte("[project]\nname='demo'\n"), 0o644))
	git(t, dir, "add", ".")
	git(t, dir, "commit", "-m", "init")
	return dir
}
