package process

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/toystudio/internal/errs"
)

// Strategy spawns a program inside a directory. One implementation exists per host OS.
type Strategy interface {
	Spawn(dir, program string, args []string, opts ...Option) (*Handle, error)
}

type options struct {
	env    []string
	stdout io.WriteCloser
	stderr io.WriteCloser
	grace  time.Duration
}

// Option customizes a single Spawn call.
type Option func(*options)

// WithEnv sets the complete child environment.
func WithEnv(env []string) Option { return func(o *options) { o.env = env } }

// WithOutput redirects stdout/stderr instead of inheriting the parent's streams.
// The writers are closed once the process has been reaped.
// Platforms that open a dedicated console ignore it.
func WithOutput(stdout, stderr io.WriteCloser) Option {
	return func(o *options) {
		o.stdout = stdout
		o.stderr = stderr
	}
}

// WithGrace sets the wait between the polite stop request and the kill.
func WithGrace(d time.Duration) Option { return func(o *options) { o.grace = d } }

func buildOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Canonicalize resolves dir to an absolute, symlink-free path that must exist.
func Canonicalize(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errs.IO("canonicalize", dir, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", errs.IO("canonicalize", dir, err)
	}
	fi, err := os.Stat(resolved)
	if err != nil {
		return "", errs.IO("canonicalize", dir, err)
	}
	if !fi.IsDir() {
		return "", errs.IO("canonicalize", dir, fmt.Errorf("not a directory"))
	}
	return resolved, nil
}

func writerOr(w io.WriteCloser, def *os.File) io.Writer {
	if w != nil {
		return w
	}
	return def
}

func closersOf(ws ...io.WriteCloser) []io.Closer {
	var out []io.Closer
	for _, w := range ws {
		if w != nil {
			out = append(out, w)
		}
	}
	return out
}
