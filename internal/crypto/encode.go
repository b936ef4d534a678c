package crypto

import "encoding/base64"

// B64 renders ciphertext as standard, padded base64 without newlines.
func B64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// UnB64 parses text produced by B64.
func UnB64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
