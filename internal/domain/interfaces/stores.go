package interfaces

import domaintypes "gossips/internal/domain/types"

// PassphraseStore is the local, never-shared cache holding the passphrase a
// user typed for a room while secure mode is negotiated and active.
type PassphraseStore interface {
	SavePassphrase(room domaintypes.RoomID, passphrase string) error
	LoadPassphrase(room domaintypes.RoomID) (string, bool, error)
	DeletePassphrase(room domaintypes.RoomID) error
}
