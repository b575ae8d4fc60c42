package pyenv

import (
	"reflect"
	"strings"
	"testing"

	"github.com/loykin/toystudio/internal/errs"
)

type call struct {
	dir  string
	name string
	args []string
}

type fakeRunner struct {
	calls  []call
	fail   map[string]error // keyed by first argument
	output map[string]string
}

func (f *fakeRunner) Run(dir, name string, args ...string) (string, error) {
	f.calls = append(f.calls, call{dir: dir, name: name, args: args})
	key := ""
	if len(args) > 0 {
		key = args[0]
	}
	if err := f.fail[key]; err != nil {
		return "", err
	}
	return f.output[key], nil
}

func TestProvisionRunsVenvThenSync(t *testing.T) {
	r := &fakeRunner{}
	p := New(r, "", nil)
	if err := p.Provision("/apps/demo", "3.11"); err != nil {
		t.Fatalf("provision: %v", err)
	}
	want := []call{
		{dir: "/apps/demo", name: "uv", args: []string{"venv", "-p", "3.11"}},
		{dir: "/apps/demo", name: "uv", args: []string{"sync"}},
	}
	if !reflect.DeepEqual(r.calls, want) {
		t.Fatalf("calls = %+v", r.calls)
	}
}

func TestProvisionStopsAfterVenvFailure(t *testing.T) {
	r := &fakeRunner{fail: map[string]error{"venv": errs.Tool("uv venv", "No interpreter found for Python 9.9")}}
	p := New(r, "/opt/uv", nil)
	err := p.Provision("/apps/demo", "9.9")
	if !errs.Is(err, errs.KindTool) || err.Error() != "No interpreter found for Python 9.9" {
		t.Fatalf("unexpected error %v", err)
	}
	if len(r.calls) != 1 || r.calls[0].name != "/opt/uv" {
		t.Fatalf("sync must not run after venv failure: %+v", r.calls)
	}
}

func TestProvisionSyncFailure(t *testing.T) {
	r := &fakeRunner{fail: map[string]error{"sync": errs.Tool("uv sync", "resolution failed")}}
	if err := New(r, "", nil).Provision("/d", "3.12"); err == nil || !strings.Contains(err.Error(), "resolution failed") {
		t.Fatalf("want sync error, got %v", err)
	}
}

func TestRunArgs(t *testing.T) {
	got := New(&fakeRunner{}, "", nil).RunArgs([]string{"python", "main.py"})
	if !reflect.DeepEqual(got, []string{"run", "python", "main.py"}) {
		t.Fatalf("got %v", got)
	}
}

func TestPythons(t *testing.T) {
	r := &fakeRunner{output: map[string]string{
		"python": `[{"key":"cpython-3.12.4-linux-x86_64-gnu","version":"3.12.4","implementation":"cpython","os":"linux","arch":"x86_64","path":"/home/u/.local/share/uv/python/cpython-3.12.4/bin/python3"}]`,
		"cache":  "/home/u/.cache/uv",
	}}
	p := New(r, "", nil)
	list, err := p.Pythons()
	if err != nil {
		t.Fatalf("pythons: %v", err)
	}
	if len(list) != 1 || list[0].Version != "3.12.4" || list[0].Path == nil {
		t.Fatalf("unexpected list %+v", list)
	}
	wantArgs := []string{"python", "list", "--output-format", "json", "--python-preference", "only-managed", "--only-installed"}
	if !reflect.DeepEqual(r.calls[0].args, wantArgs) {
		t.Fatalf("args = %v", r.calls[0].args)
	}
	dir, err := p.CacheDir()
	if err != nil || dir != "/home/u/.cache/uv" {
		t.Fatalf("cache dir = %q, %v", dir, err)
	}
}

func TestPythonsBadJSON(t *testing.T) {
	r := &fakeRunner{output: map[string]string{"python": "not json"}}
	if _, err := New(r, "", nil).Pythons(); !errs.Is(err, errs.KindSchema) {
		t.Fatalf("want schema error, got %v", err)
	}
}
