// Package app loads configuration and wires the shared store, the local
// passphrase cache and peer options for the CLI.
package app
