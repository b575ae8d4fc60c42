package paths

import (
	"path/filepath"
	"strings"
)

// DefaultManifestExt is the file extension of product manifests.
const DefaultManifestExt = ".toml"

// Layout maps a root directory to the canonical on-disk locations.
// It holds no state besides the root and never touches the filesystem.
type Layout struct {
	Root string
	Ext  string // manifest extension including the dot
}

func New(root string) Layout { return Layout{Root: root, Ext: DefaultManifestExt} }

// WithExt returns a copy of l using ext as manifest extension.
func (l Layout) WithExt(ext string) Layout {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if ext == "" {
		ext = DefaultManifestExt
	}
	l.Ext = ext
	return l
}

func (l Layout) ManifestsDir() string { return filepath.Join(l.Root, ".local", "products") }
func (l Layout) AppsDir() string      { return filepath.Join(l.Root, "apps") }
func (l Layout) BackupDir() string    { return filepath.Join(l.Root, ".local", "bak") }
func (l Layout) OutputDir() string    { return filepath.Join(l.Root, "output") }
func (l Layout) LogsDir() string      { return filepath.Join(l.Root, "logs") }

func (l Layout) InstallDir(name string) string { return filepath.Join(l.AppsDir(), name) }

func (l Layout) ManifestPath(id string) string { return filepath.Join(l.ManifestsDir(), id) }

// NameOf strips the manifest extension from id.
func (l Layout) NameOf(id string) string {
	return strings.TrimSuffix(id, l.ext())
}

// IDOf appends the manifest extension to name.
func (l Layout) IDOf(name string) string { return name + l.ext() }

func (l Layout) ext() string {
	if l.Ext == "" {
		return DefaultManifestExt
	}
	return l.Ext
}
