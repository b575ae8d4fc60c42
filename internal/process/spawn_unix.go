//go:build !windows

package process

import (
	"os"
	"os/exec"

	"github.com/loykin/toystudio/internal/errs"
)

// Default returns the strategy for the host OS.
func Default() Strategy { return inheritStrategy{} }

// inheritStrategy runs the program directly, inheriting the parent's stdio.
type inheritStrategy struct{}

func (inheritStrategy) Spawn(dir, program string, args []string, opts ...Option) (*Handle, error) {
	o := buildOptions(opts)
	wd, err := Canonicalize(dir)
	if err != nil {
		return nil, err
	}
	// ok: program and args come from the product manifest the operator installed
	// #nosec G204
	cmd := exec.Command(program, args...)
	cmd.Dir = wd
	if len(o.env) > 0 {
		cmd.Env = o.env
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = writerOr(o.stdout, os.Stdout)
	cmd.Stderr = writerOr(o.stderr, os.Stderr)
	configureSysProcAttr(cmd)
	h, err := start(cmd, o.grace, closersOf(o.stdout, o.stderr)...)
	if err != nil {
		return nil, errs.IO("spawn "+program, wd, err)
	}
	return h, nil
}
