// Package template generates starter product manifests.
package template

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/loykin/toystudio/internal/manifest"
)

// TemplateType represents the kind of product a manifest launches.
type TemplateType string

const (
	TypeGradio    TemplateType = "gradio"
	TypeStreamlit TemplateType = "streamlit"
	TypeComfyUI   TemplateType = "comfyui"
	TypeSimple    TemplateType = "simple"
	TypeBasic     TemplateType = "basic"
)

// Options fills the required manifest fields.
type Options struct {
	Name          string
	GitURL        string
	Branch        string
	PythonVersion string
	Version       string
	Description   string
}

// Generator provides template generation functionality
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a new template generator
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// Generate builds a manifest of the given type. The result passes manifest validation.
func (g *Generator) Generate(t TemplateType, o Options) (*manifest.Product, error) {
	startup, category, err := commandFor(t)
	if err != nil {
		return nil, err
	}
	if o.Branch == "" {
		o.Branch = "main"
	}
	if o.PythonVersion == "" {
		o.PythonVersion = "3.11"
	}
	if o.Version == "" {
		o.Version = "0.1.0"
	}
	today := g.now().UTC().Format("2006-01-02")
	p := &manifest.Product{
		Name:        o.Name,
		Version:     o.Version,
		Description: o.Description,
		PackageType: string(t),
		Category:    category,
		Platforms:   []string{"windows", "macos", "linux"},
		CreatedAt:   today,
		UpdatedAt:   today,
		DeviceSupport: manifest.DeviceSupport{
			CPU: true,
		},
		Download: manifest.Download{
			GitURL:        o.GitURL,
			Branch:        o.Branch,
			PythonVersion: o.PythonVersion,
		},
		Windows: &manifest.Commands{Startup: startup},
		MacOS:   &manifest.Commands{Startup: startup},
		Linux:   &manifest.Commands{Startup: startup},
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// GenerateTOML renders the manifest document ready to drop into the catalog.
func (g *Generator) GenerateTOML(t TemplateType, o Options) ([]byte, error) {
	p, err := g.Generate(t, o)
	if err != nil {
		return nil, err
	}
	b, err := toml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	return b, nil
}

// GenerateJSON creates a JSON representation of the template
func (g *Generator) GenerateJSON(t TemplateType, o Options) ([]byte, error) {
	p, err := g.Generate(t, o)
	if err != nil {
		return nil, err
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	return b, nil
}

// GetSupportedTypes returns a list of all supported template types
func (g *Generator) GetSupportedTypes() []string {
	return []string{
		string(TypeGradio),
		string(TypeStreamlit),
		string(TypeComfyUI),
		string(TypeSimple),
	}
}

// FileName is the catalog file name for a product name.
func FileName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-")) + ".toml"
}

func commandFor(t TemplateType) (startup, category string, err error) {
	switch t {
	case TypeGradio:
		return "python app.py --server-name 127.0.0.1", "webui", nil
	case TypeStreamlit:
		return "streamlit run app.py --server.headless true", "webui", nil
	case TypeComfyUI:
		return "python main.py --output-directory ${output}", "image", nil
	case TypeSimple, TypeBasic, "":
		return "python main.py", "tool", nil
	}
	return "", "", fmt.Errorf("unknown template type: %s (supported: gradio, streamlit, comfyui, simple)", t)
}
