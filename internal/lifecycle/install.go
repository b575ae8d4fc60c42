package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/toystudio/internal/errs"
	"github.com/loykin/toystudio/internal/history"
	"github.com/loykin/toystudio/internal/manifest"
)

var errInvalidID = errors.New("invalid product id")

// Install syncs the product source, provisions its environment and marks it installed.
// The first failing step aborts; earlier side effects are kept.
func (o *Orchestrator) Install(ctx context.Context, id string) error {
	return o.do(ctx, history.EventInstall, id, func(*history.Event) error {
		return o.install(id, o.layout.ManifestPath(id))
	})
}

// Reinstall deletes the install directory and installs again.
func (o *Orchestrator) Reinstall(ctx context.Context, id string) error {
	return o.do(ctx, history.EventReinstall, id, func(*history.Event) error {
		dir := o.installDir(id)
		if err := os.RemoveAll(dir); err != nil {
			return errs.IO("remove install dir", dir, err)
		}
		return o.install(id, o.layout.ManifestPath(id))
	})
}

// Uninstall deletes the install directory and then forgets the product.
// A running process is left alone.
func (o *Orchestrator) Uninstall(ctx context.Context, id string) error {
	return o.do(ctx, history.EventUninstall, id, func(ev *history.Event) error {
		dir := o.installDir(id)
		if err := os.RemoveAll(dir); err != nil {
			return errs.IO("remove install dir", dir, err)
		}
		if h := o.reg.Remove(id); h.Alive() {
			ev.PID = h.PID()
			o.logger.WarnContext(ctx, "uninstalled product still running", "product", id, "pid", h.PID())
		}
		return nil
	})
}

// Upgrade installs from the manifest found in the upgrade source. When that source is
// not the catalog, the catalog copy is replaced after a successful upgrade.
func (o *Orchestrator) Upgrade(ctx context.Context, id string) error {
	return o.do(ctx, history.EventUpgrade, id, func(*history.Event) error {
		src := filepath.Join(o.upgradeDir, id)
		if err := o.install(id, src); err != nil {
			return err
		}
		dst := o.layout.ManifestPath(id)
		if same(src, dst) {
			return nil
		}
		return copyFile(src, dst)
	})
}

func (o *Orchestrator) install(id, manifestPath string) error {
	p, err := manifest.Parse(manifestPath)
	if err != nil {
		return err
	}
	dir := o.installDir(id)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errs.IO("create install dir", dir, err)
	}
	if _, err := o.sync.Sync(p.Download.GitURL, p.Download.Branch, dir, o.layout.BackupDir()); err != nil {
		return err
	}
	if err := o.prov.Provision(dir, p.Download.PythonVersion); err != nil {
		return err
	}
	o.reg.MarkInstalled(id)
	return nil
}

func (o *Orchestrator) installDir(id string) string {
	return o.layout.InstallDir(o.layout.NameOf(id))
}

// Seed copies manifests from srcDir into the catalog, skipping ids already present.
// It returns the ids it added.
func (o *Orchestrator) Seed(srcDir string) ([]string, error) {
	des, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, errs.IO("read seed dir", srcDir, err)
	}
	dst := o.layout.ManifestsDir()
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return nil, errs.IO("create manifest dir", dst, err)
	}
	var added []string
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, o.layout.Ext) {
			continue
		}
		target := filepath.Join(dst, name)
		if _, err := os.Stat(target); err == nil {
			continue
		}
		if err := copyFile(filepath.Join(srcDir, name), target); err != nil {
			return added, err
		}
		added = append(added, name)
	}
	if len(added) > 0 {
		o.logger.Info("seeded manifests", "count", len(added), "from", srcDir)
	}
	return added, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return errs.IO("open manifest", src, err)
	}
	defer func() { _ = in.Close() }()
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return errs.IO("create manifest dir", filepath.Dir(dst), err)
	}
	tmp := dst + ".tmp"
	out, err := os.OpenFile(filepath.Clean(tmp), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return errs.IO("write manifest", tmp, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return errs.IO("write manifest", tmp, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return errs.IO("write manifest", tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return errs.IO("write manifest", dst, fmt.Errorf("rename: %w", err))
	}
	return nil
}

func same(a, b string) bool {
	ai, err1 := os.Stat(a)
	bi, err2 := os.Stat(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return os.SameFile(ai, bi)
}
