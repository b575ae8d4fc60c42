//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// Windows creation flags
const (
	CREATE_NEW_CONSOLE = 0x00000010
)

// configureSysProcAttr opens a new console window for the child and passes
// cmdLine verbatim so cmd.exe sees the operators unquoted.
func configureSysProcAttr(cmd *exec.Cmd, cmdLine string) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine:       cmdLine,
		CreationFlags: CREATE_NEW_CONSOLE,
	}
}
