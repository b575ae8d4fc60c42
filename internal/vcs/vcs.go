package vcs

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/toystudio/internal/errs"
	"github.com/loykin/toystudio/internal/process"
)

// DefaultBinary is the git executable looked up on PATH.
const DefaultBinary = "git"

// Synchronizer brings an install directory into agreement with a remote repository.
type Synchronizer struct {
	runner process.Runner
	git    string
	logger *slog.Logger
	now    func() time.Time
}

// New returns a Synchronizer running git through runner. An empty binary means "git".
func New(runner process.Runner, binary string, logger *slog.Logger) *Synchronizer {
	if binary == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Synchronizer{runner: runner, git: binary, logger: logger, now: time.Now}
}

// Sync clones, updates, or relocates-then-clones target so that it tracks remoteURL at branch.
//   - target missing or empty: clone
//   - target present but not a repository: move it under backupDir, then clone
//   - target is a repository of the same remote: pull
//   - target is a repository of another remote: conflict, target untouched
func (s *Synchronizer) Sync(remoteURL, branch, target, backupDir string) (string, error) {
	fi, err := os.Stat(target)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s.Clone(remoteURL, branch, target)
	case err != nil:
		return "", errs.IO("stat", target, err)
	}

	if fi.IsDir() {
		empty, err := isEmptyDir(target)
		if err != nil {
			return "", err
		}
		if empty {
			return s.Clone(remoteURL, branch, target)
		}
		repo, err := s.IsRepository(target)
		if err != nil {
			return "", err
		}
		if repo {
			return s.syncRepository(remoteURL, target)
		}
	}

	moved, err := s.MoveToBackup(target, backupDir)
	if err != nil {
		return "", err
	}
	s.logger.Warn("relocated foreign directory before clone", "target", target, "backup", moved)
	return s.Clone(remoteURL, branch, target)
}

func (s *Synchronizer) syncRepository(remoteURL, target string) (string, error) {
	current, err := s.RemoteURL(target)
	if err != nil && !errs.Is(err, errs.KindTool) {
		return "", err
	}
	if !SameRemote(current, remoteURL) {
		return "", errs.Conflict("sync", target, fmt.Errorf(
			"existing repository remote does not match: existing %q, requested %q", current, remoteURL))
	}
	return s.Update(target)
}

// Clone runs a single-branch clone of remoteURL into target.
func (s *Synchronizer) Clone(remoteURL, branch, target string) (string, error) {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return "", errs.IO("mkdir", parent, err)
	}
	s.logger.Info("git clone", "url", remoteURL, "branch", branch, "target", target)
	// run from the caller's working directory so a relative target keeps its meaning
	return s.runner.Run("", s.git, "clone", remoteURL, "-b", branch, "--single-branch", target)
}

// Update pulls the current branch of the repository at target.
func (s *Synchronizer) Update(target string) (string, error) {
	s.logger.Info("git pull", "target", target)
	return s.runner.Run(target, s.git, "pull")
}

// RemoteURL returns remote.origin.url of the repository at target.
func (s *Synchronizer) RemoteURL(target string) (string, error) {
	return s.runner.Run(target, s.git, "config", "--get", "remote.origin.url")
}

// IsRepository reports whether target is the top level of a git work tree.
// A directory nested inside some other repository does not count.
func (s *Synchronizer) IsRepository(target string) (bool, error) {
	out, err := s.runner.Run(target, s.git, "rev-parse", "--git-dir")
	if err != nil {
		if errs.Is(err, errs.KindTool) {
			return false, nil
		}
		return false, err
	}
	gitDir := strings.TrimSpace(out)
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(target, gitDir)
	}
	top, err := canonical(filepath.Dir(gitDir))
	if err != nil {
		return false, nil
	}
	want, err := canonical(target)
	if err != nil {
		return false, errs.IO("canonicalize", target, err)
	}
	return top == want, nil
}

// MoveToBackup renames target into backupDir as <base>-<UTC stamp>, adding a
// random suffix when that name is already taken. It returns the new location.
func (s *Synchronizer) MoveToBackup(target, backupDir string) (string, error) {
	if err := os.MkdirAll(backupDir, 0o750); err != nil {
		return "", errs.IO("mkdir", backupDir, err)
	}
	name := filepath.Base(target) + "-" + s.now().UTC().Format("20060102T150405Z")
	dest := filepath.Join(backupDir, name)
	if _, err := os.Lstat(dest); err == nil {
		dest = dest + "-" + uuid.NewString()[:8]
	}
	if err := os.Rename(target, dest); err != nil {
		return "", errs.IO("move to backup", target, err)
	}
	return dest, nil
}

// Normalize strips trailing slashes and ".git" suffixes, in any order and count.
func Normalize(url string) string {
	u := strings.TrimSpace(url)
	for {
		next := strings.TrimSuffix(strings.TrimSuffix(u, "/"), ".git")
		if next == u {
			return u
		}
		u = next
	}
}

// SameRemote compares two remote URLs after normalization.
func SameRemote(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	return na != "" && na == nb
}

func isEmptyDir(dir string) (bool, error) {
	f, err := os.Open(filepath.Clean(dir))
	if err != nil {
		return false, errs.IO("open", dir, err)
	}
	defer func() { _ = f.Close() }()
	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, errs.IO("read dir", dir, err)
	}
	return false, nil
}

func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
