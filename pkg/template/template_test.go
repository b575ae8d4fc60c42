package template

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/toystudio/internal/manifest"
)

func fixedGenerator() *Generator {
	return &Generator{now: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }}
}

func TestGenerator_Generate(t *testing.T) {
	g := fixedGenerator()
	opts := Options{Name: "Demo App", GitURL: "https://example.com/demo.git"}

	tests := []struct {
		templateType TemplateType
		wantStartup  string
		wantCategory string
	}{
		{TypeGradio, "python app.py --server-name 127.0.0.1", "webui"},
		{TypeStreamlit, "streamlit run app.py --server.headless true", "webui"},
		{TypeComfyUI, "python main.py --output-directory ${output}", "image"},
		{TypeSimple, "python main.py", "tool"},
		{TypeBasic, "python main.py", "tool"},
	}
	for _, tt := range tests {
		t.Run(string(tt.templateType), func(t *testing.T) {
			p, err := g.Generate(tt.templateType, opts)
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			for _, goos := range []string{"windows", "darwin", "linux"} {
				got, err := p.StartupCommand(goos)
				if err != nil || got != tt.wantStartup {
					t.Fatalf("%s startup = %q, %v", goos, got, err)
				}
			}
			if p.Category != tt.wantCategory {
				t.Errorf("category = %q", p.Category)
			}
			if p.Download.Branch != "main" || p.Download.PythonVersion != "3.11" || p.Version != "0.1.0" {
				t.Errorf("defaults not applied: %+v %q", p.Download, p.Version)
			}
			if p.CreatedAt != "2026-03-01" {
				t.Errorf("created_at = %q", p.CreatedAt)
			}
		})
	}
}

func TestGenerator_Errors(t *testing.T) {
	g := NewGenerator()
	if _, err := g.Generate("nope", Options{Name: "x", GitURL: "u"}); err == nil {
		t.Fatal("expected unknown type error")
	}
	_, err := g.Generate(TypeSimple, Options{Name: "x"})
	if err == nil || !strings.Contains(err.Error(), "download.git_url") {
		t.Fatalf("expected missing git_url, got %v", err)
	}
}

func TestGenerateTOMLParsesBack(t *testing.T) {
	g := fixedGenerator()
	b, err := g.GenerateTOML(TypeComfyUI, Options{
		Name:          "comfy",
		GitURL:        "https://github.com/comfyanonymous/ComfyUI.git",
		Branch:        "master",
		PythonVersion: "3.12",
	})
	if err != nil {
		t.Fatalf("toml: %v", err)
	}
	if strings.Contains(string(b), "install") || strings.Contains(string(b), "running") {
		t.Fatalf("listing-only fields leaked:\n%s", b)
	}
	path := filepath.Join(t.TempDir(), FileName("comfy"))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := manifest.Parse(path)
	if err != nil {
		t.Fatalf("generated manifest does not parse: %v\n%s", err, b)
	}
	if p.ID != "comfy.toml" || p.Download.Branch != "master" || p.Download.PythonVersion != "3.12" {
		t.Fatalf("round trip lost fields: %+v", p)
	}
	out := manifest.Render(p.Linux.Startup, map[string]string{manifest.OutputPlaceholder: "/out"})
	if out != "python main.py --output-directory /out" {
		t.Fatalf("render = %q", out)
	}
}

func TestGenerateJSON(t *testing.T) {
	b, err := fixedGenerator().GenerateJSON(TypeGradio, Options{Name: "g", GitURL: "https://example.com/g"})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["name"] != "g" || m["package_type"] != "gradio" {
		t.Fatalf("json = %v", m)
	}
	if _, err := fixedGenerator().GenerateJSON("bad", Options{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestFileNameAndTypes(t *testing.T) {
	if got := FileName(" Stable Diffusion "); got != "stable-diffusion.toml" {
		t.Fatalf("FileName = %q", got)
	}
	if len(NewGenerator().GetSupportedTypes()) != 4 {
		t.Fatal("unexpected supported types")
	}
}
