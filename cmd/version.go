package main

import "fmt"

// GetVersion returns the current version.
func GetVersion() string {
	return version
}

// GetFullVersionInfo returns detailed build information.
func GetFullVersionInfo() string {
	return fmt.Sprintf("Version: %s\nCommit: %s\nBuilt: %s", version, commit, date)
}

// GetVersionWithPrefix returns the version with the binary name prefix.
func GetVersionWithPrefix() string {
	return fmt.Sprintf("cartelera version: %s", version)
}
