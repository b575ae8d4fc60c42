package main

import "time"

// GlobalFlags are persistent on the root command. APIUrl switches every
// product command to a running daemon instead of the local root.
type GlobalFlags struct {
	ConfigPath string
	Root       string
	APIUrl     string
	APITimeout time.Duration
	Insecure   bool
}

// Flag structs decouple cobra from the command logic for testing.

type ListFlags struct {
	Installed bool
}

type ProductFlags struct {
	ID string
}

type StartupFlags struct {
	ID string
	// Detach returns right after launch. Without a daemon the product is then
	// no longer tracked by any registry.
	Detach bool
}

type OpenFlags struct {
	Target string
}

type SeedFlags struct {
	Dir string
}

type HistoryFlags struct {
	Product string
	Limit   int
}

type ConfigFlags struct {
	Key   string
	Value string
}

type ManifestFlags struct {
	Type          string
	Name          string
	GitURL        string
	Branch        string
	PythonVersion string
	Version       string
	Description   string
	Output        string
	JSON          bool
	Force         bool
}

type ServeFlags struct {
	Daemonize bool
	PidFile   string
	LogFile   string
}
