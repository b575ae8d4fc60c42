package manifest

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/loykin/toystudio/internal/errs"
)

const sample = `
id = "something-else"
name = "ComfyUI"
version = "0.3.10"
description = "node based diffusion UI"
platforms = ["windows", "linux", "macos"]
category = "image"

[device_support]
cpu = true
nvidia = true

[requirements]
ram = "16GB"
vram = "8GB"
disk_space = "20GB"

[download]
git_url = "https://github.com/comfyanonymous/ComfyUI.git"
branch = "master"
python_version = "3.12"

[windows]
startup = "python main.py --output-directory ${output}"
shutdown = ""

[linux]
startup = "python main.py --output-directory \"${output}\" --listen"
`

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return p
}

func TestParseFilenameWins(t *testing.T) {
	dir := t.TempDir()
	p, err := Parse(writeManifest(t, dir, "comfyui.toml", sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.ID != "comfyui.toml" {
		t.Fatalf("id = %q, want filename", p.ID)
	}
	if p.Download.Branch != "master" || p.Download.PythonVersion != "3.12" {
		t.Fatalf("download not decoded: %+v", p.Download)
	}
	if !p.DeviceSupport.Nvidia || p.Requirements.VRAM != "8GB" {
		t.Fatalf("opaque tables not decoded")
	}
	if p.MacOS != nil {
		t.Fatalf("macos table should be absent")
	}
}

func TestParseErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Parse(filepath.Join(dir, "missing.toml")); !errs.Is(err, errs.KindIO) {
		t.Fatalf("missing file: want io error, got %v", err)
	}
	bad := writeManifest(t, dir, "bad.toml", "name = [1,")
	if _, err := Parse(bad); !errs.Is(err, errs.KindSchema) {
		t.Fatalf("syntax: want schema error, got %v", err)
	}
	wrongType := writeManifest(t, dir, "type.toml", "name = 3\n")
	if _, err := Parse(wrongType); !errs.Is(err, errs.KindSchema) {
		t.Fatalf("type mismatch: want schema error, got %v", err)
	}
	noDownload := writeManifest(t, dir, "nodl.toml", "name = \"x\"\n")
	if _, err := Parse(noDownload); !errs.Is(err, errs.KindSchema) {
		t.Fatalf("missing download: want schema error, got %v", err)
	}
}

func TestStartupCommand(t *testing.T) {
	dir := t.TempDir()
	p, err := Parse(writeManifest(t, dir, "c.toml", sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := p.StartupCommand("windows"); err != nil {
		t.Fatalf("windows: %v", err)
	}
	if _, err := p.StartupCommand("darwin"); !errs.Is(err, errs.KindUnsupportedPlatform) {
		t.Fatalf("darwin: want unsupported platform, got %v", err)
	}
	if _, err := p.StartupCommand("plan9"); !errs.Is(err, errs.KindUnsupportedPlatform) {
		t.Fatalf("plan9: want unsupported platform, got %v", err)
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "b.toml", sample)
	writeManifest(t, dir, "a.toml", sample)
	writeManifest(t, dir, "broken.toml", "name=")
	writeManifest(t, dir, "readme.md", "# not a manifest")
	ps, bad, err := List(dir, ".toml")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ps) != 2 || ps[0].ID != "a.toml" || ps[1].ID != "b.toml" {
		t.Fatalf("unexpected list: %+v", ps)
	}
	if len(bad) != 1 {
		t.Fatalf("expected one bad manifest, got %v", bad)
	}
	ps, bad, err = List(filepath.Join(dir, "nope"), ".toml")
	if err != nil || len(ps) != 0 || len(bad) != 0 {
		t.Fatalf("missing dir should be empty")
	}
	if _, _, err := List(filepath.Join(dir, "a.toml"), ".toml"); !errs.Is(err, errs.KindIO) {
		t.Fatalf("listing a file should be an io error, got %v", err)
	}
}

func TestRenderAndSplit(t *testing.T) {
	line := Render(`python main.py --output-directory "${output}" --port ${port}`, map[string]string{
		"output": "/srv/out dir",
	})
	args, err := SplitArgs(line)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := []string{"python", "main.py", "--output-directory", "/srv/out dir", "--port", "${port}"}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("got %q want %q", args, want)
	}
	if _, err := SplitArgs(`python 'oops`); err == nil {
		t.Fatalf("expected unterminated quote error")
	}
	args, _ = SplitArgs(`a 'b c' "d\"e" '' "f\\g"`)
	if !reflect.DeepEqual(args, []string{"a", "b c", `d"e`, "", `f\g`}) {
		t.Fatalf("quoted: %q", args)
	}

	line = Render(`main.py --output-directory "${output}"`, map[string]string{
		"output": `C:\Users\me\toy studio\output`,
	})
	args, err = SplitArgs(line)
	if err != nil {
		t.Fatalf("split windows path: %v", err)
	}
	want = []string{"main.py", "--output-directory", `C:\Users\me\toy studio\output`}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("windows path: got %q want %q", args, want)
	}
}
