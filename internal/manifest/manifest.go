package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/loykin/toystudio/internal/errs"
)

// OutputPlaceholder is substituted with the resolved output directory in startup commands.
const OutputPlaceholder = "output"

type DeviceSupport struct {
	CPU    bool `toml:"cpu" json:"cpu"`
	Nvidia bool `toml:"nvidia" json:"nvidia"`
}

type Requirements struct {
	RAM       string `toml:"ram" json:"ram"`
	VRAM      string `toml:"vram" json:"vram"`
	DiskSpace string `toml:"disk_space" json:"disk_space"`
}

// Download locates the source repository and the interpreter it needs.
type Download struct {
	GitURL        string `toml:"git_url" json:"git_url"`
	Branch        string `toml:"branch" json:"branch"`
	PythonVersion string `toml:"python_version" json:"python_version"`
}

// Commands holds the startup and shutdown templates of one OS.
type Commands struct {
	Startup  string `toml:"startup" json:"startup"`
	Shutdown string `toml:"shutdown" json:"shutdown"`
}

// Product is a parsed manifest. Install and Running are only filled by listings.
type Product struct {
	ID            string        `toml:"id,omitempty" json:"id"`
	Name          string        `toml:"name" json:"name"`
	Version       string        `toml:"version" json:"version"`
	Description   string        `toml:"description" json:"description"`
	Icon          string        `toml:"icon" json:"icon"`
	CoverImage    string        `toml:"cover_image" json:"cover_image"`
	PackageType   string        `toml:"package_type" json:"package_type"`
	Introduction  string        `toml:"introduction" json:"introduction"`
	ServiceNotes  string        `toml:"service_notes" json:"service_notes"`
	Platforms     []string      `toml:"platforms" json:"platforms"`
	Category      string        `toml:"category" json:"category"`
	Publisher     string        `toml:"publisher,omitempty" json:"publisher,omitempty"`
	FileSize      string        `toml:"file_size,omitempty" json:"file_size,omitempty"`
	CreatedAt     string        `toml:"created_at" json:"created_at"`
	UpdatedAt     string        `toml:"updated_at" json:"updated_at"`
	DeviceSupport DeviceSupport `toml:"device_support" json:"device_support"`
	Requirements  Requirements  `toml:"requirements" json:"requirements"`
	Download      Download      `toml:"download" json:"download"`
	Windows       *Commands     `toml:"windows,omitempty" json:"windows,omitempty"`
	MacOS         *Commands     `toml:"macos,omitempty" json:"macos,omitempty"`
	Linux         *Commands     `toml:"linux,omitempty" json:"linux,omitempty"`

	Install *bool `toml:"-" json:"install,omitempty"`
	Running *bool `toml:"-" json:"running,omitempty"`
}

// Parse loads the manifest at path. The file name always becomes the product id,
// whatever the document itself declares.
func Parse(path string) (*Product, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errs.IO("read manifest", path, err)
	}
	var p Product
	if err := toml.Unmarshal(b, &p); err != nil {
		return nil, errs.Schema("decode manifest", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, errs.Schema("validate manifest", path, err)
	}
	p.ID = filepath.Base(path)
	return &p, nil
}

// Validate checks the fields the lifecycle depends on.
func (p *Product) Validate() error {
	var missing []string
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(p.Download.GitURL) == "" {
		missing = append(missing, "download.git_url")
	}
	if strings.TrimSpace(p.Download.Branch) == "" {
		missing = append(missing, "download.branch")
	}
	if strings.TrimSpace(p.Download.PythonVersion) == "" {
		missing = append(missing, "download.python_version")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required field(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

// Commands returns the command table for goos, or nil.
func (p *Product) Commands(goos string) *Commands {
	switch goos {
	case "windows":
		return p.Windows
	case "darwin", "macos":
		return p.MacOS
	case "linux":
		return p.Linux
	}
	return nil
}

// StartupCommand returns the raw startup template for goos.
func (p *Product) StartupCommand(goos string) (string, error) {
	c := p.Commands(goos)
	if c == nil || strings.TrimSpace(c.Startup) == "" {
		return "", errs.UnsupportedPlatform("startup command", p.ID, fmt.Errorf("Unsupported OS: %s", goos))
	}
	return c.Startup, nil
}

// ShutdownCommand returns the raw shutdown template for goos. Empty is allowed.
func (p *Product) ShutdownCommand(goos string) (string, error) {
	c := p.Commands(goos)
	if c == nil {
		return "", errs.UnsupportedPlatform("shutdown command", p.ID, fmt.Errorf("Unsupported OS: %s", goos))
	}
	return c.Shutdown, nil
}

// List parses every manifest with extension ext in dir, sorted by id.
// Files that fail to parse are returned in bad alongside the good ones.
// A missing directory yields an empty list; any other read failure is an io error.
func List(dir, ext string) (products []*Product, bad []error, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, errs.IO("read manifest dir", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	products = make([]*Product, 0, len(names))
	for _, n := range names {
		p, perr := Parse(filepath.Join(dir, n))
		if perr != nil {
			bad = append(bad, perr)
			continue
		}
		products = append(products, p)
	}
	return products, bad, nil
}
