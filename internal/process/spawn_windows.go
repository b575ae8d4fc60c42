//go:build windows

package process

import (
	"os/exec"

	"github.com/loykin/toystudio/internal/errs"
)

// Default returns the strategy for the host OS.
func Default() Strategy { return consoleStrategy{} }

// consoleStrategy opens a new console window running the command through cmd.exe.
type consoleStrategy struct{}

func (consoleStrategy) Spawn(dir, program string, args []string, opts ...Option) (*Handle, error) {
	o := buildOptions(opts)
	wd, err := Canonicalize(dir)
	if err != nil {
		return nil, err
	}
	line := BuildCommandLine(wd, program, args)
	// #nosec G204
	cmd := exec.Command("cmd.exe")
	cmd.Dir = wd
	if len(o.env) > 0 {
		cmd.Env = o.env
	}
	configureSysProcAttr(cmd, `cmd.exe /C "`+line+`"`)
	// output writers are not used; the console window shows the output
	for _, c := range closersOf(o.stdout, o.stderr) {
		_ = c.Close()
	}
	h, err := start(cmd, o.grace)
	if err != nil {
		return nil, errs.IO("spawn "+program, wd, err)
	}
	return h, nil
}
