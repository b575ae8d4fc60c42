package server

import "path/filepath"

func seedSourceDir() string {
	return filepath.Join(`C:\`, "toystudio", "seed")
}
