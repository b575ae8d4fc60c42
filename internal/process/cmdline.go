package process

import "strings"

// BuildCommandLine builds the cmd.exe line used by the console strategy:
// the command is echoed first, then it changes into dir, runs program and pauses.
// A pause is only appended when the command does not already contain one.
func BuildCommandLine(dir, program string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteArg(program))
	for _, a := range args {
		parts = append(parts, quoteArg(a))
	}
	command := strings.Join(parts, " ")
	run := `cd /d "` + dir + `" && ` + command
	if !strings.Contains(strings.ToLower(command), "pause") {
		run += " & pause"
	}
	return "echo " + escapeEcho(run) + " & " + run
}

// quoteArg wraps a in double quotes when it holds blanks or quotes. cmd.exe has
// no backslash escape, so embedded quotes are doubled.
func quoteArg(a string) string {
	if a == "" {
		return `""`
	}
	if strings.ContainsAny(a, " \t\"") {
		return `"` + strings.ReplaceAll(a, `"`, `""`) + `"`
	}
	return a
}

// escapeEcho caret-escapes the cmd.exe operators so echo prints them literally.
func escapeEcho(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '^', '&', '|', '<', '>':
			b.WriteByte('^')
		}
		b.WriteRune(r)
	}
	return b.String()
}
