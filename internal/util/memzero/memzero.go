// Package memzero wipes key material held in byte slices.
package memzero

// Zero overwrites b with zeros.
func Zero(b []byte) { clear(b) }
