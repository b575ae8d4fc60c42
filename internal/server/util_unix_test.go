//go:build !windows

package server

import "path/filepath"

func seedSourceDir() string {
	return filepath.Join(string(filepath.Separator), "srv", "toystudio", "seed")
}
