// Package explorer reveals directories in the host file manager.
package explorer

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/loykin/toystudio/internal/errs"
	"github.com/loykin/toystudio/internal/paths"
	"github.com/loykin/toystudio/internal/process"
)

// Opener picks the file-manager command for one OS and starts it.
type Opener struct {
	GOOS   string
	WSL    bool
	Runner process.Runner // used for wslpath
	// Start launches the command without waiting for it.
	Start func(name string, args ...string) error
}

func New() *Opener {
	return &Opener{
		GOOS:   runtime.GOOS,
		WSL:    runtime.GOOS == "linux" && IsWSL(),
		Runner: process.ExecRunner{},
		Start:  startDetached,
	}
}

// Open shows path using the host's default file manager.
func Open(path string) error { return New().Open(path) }

func (o *Opener) Open(path string) error {
	if _, err := os.Stat(path); err != nil {
		return errs.IO("open", path, err)
	}
	name, args, err := o.Command(path)
	if err != nil {
		return err
	}
	if err := o.Start(name, args...); err != nil {
		return errs.IO("start "+name, path, err)
	}
	return nil
}

// Command returns the program and arguments Open would run.
func (o *Opener) Command(path string) (string, []string, error) {
	switch {
	case o.GOOS == "windows":
		return "explorer.exe", []string{strings.ReplaceAll(path, "/", `\`)}, nil
	case o.WSL:
		win, err := o.Runner.Run("", "wslpath", "-w", path)
		if err != nil {
			return "", nil, err
		}
		return "explorer.exe", []string{win}, nil
	case o.GOOS == "darwin":
		return "open", []string{path}, nil
	default:
		return "xdg-open", []string{path}, nil
	}
}

// IsWSL reports whether the kernel identifies itself as Microsoft's.
func IsWSL() bool {
	b, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(b)), "microsoft")
}

func startDetached(name string, args ...string) error {
	// #nosec G204 -- program is one of a fixed set of file managers
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Targets accepted by Resolve besides a product id.
const (
	TargetProducts = "products"
	TargetApps     = "apps"
	TargetBackup   = "backup"
	TargetOutput   = "output"
	TargetRoot     = "root"
)

// Resolve maps a named target or a product id to a directory of l.
func Resolve(l paths.Layout, target string) (string, error) {
	switch target {
	case TargetProducts:
		return l.ManifestsDir(), nil
	case TargetApps:
		return l.AppsDir(), nil
	case TargetBackup:
		return l.BackupDir(), nil
	case TargetOutput:
		return l.OutputDir(), nil
	case TargetRoot:
		return l.Root, nil
	}
	if target == "" || target == "." || strings.Contains(target, "..") || strings.ContainsAny(target, `/\`) {
		return "", errs.Schema("open", target, errors.New("invalid target"))
	}
	return l.InstallDir(l.NameOf(target)), nil
}
