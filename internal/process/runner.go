package process

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/loykin/toystudio/internal/errs"
)

// Runner executes an external tool to completion and returns its trimmed stdout.
// A non-zero exit yields a tool error whose message is the tool's stderr.
// Failing to start the tool at all yields an io error.
type Runner interface {
	Run(dir, name string, args ...string) (string, error)
}

// ExecRunner is the os/exec backed Runner. Env nil means inherit the parent environment.
type ExecRunner struct {
	Env    []string
	Logger *slog.Logger
}

func (r ExecRunner) Run(dir, name string, args ...string) (string, error) {
	op := name
	if len(args) > 0 {
		op = name + " " + args[0]
	}
	if r.Logger != nil {
		r.Logger.Debug("exec", "dir", dir, "cmd", name, "args", args)
	}
	// ok: tool name comes from configuration, arguments are built internally
	// #nosec G204
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	if len(r.Env) > 0 {
		cmd.Env = r.Env
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = fmt.Sprintf("%s exited with code %d", op, ee.ExitCode())
			}
			return strings.TrimSpace(stdout.String()), errs.Tool(op, msg)
		}
		return "", errs.IO("start "+name, dir, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
