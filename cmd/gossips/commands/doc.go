// Package commands defines the gossips CLI.
//
// Commands
//
//   - room   Print the room identifier shared by two peers
//   - chat   Join the room with a peer and chat interactively
//   - demo   Run the two-peer secure-mode scenario in one process
//
// Inside chat, plain lines go to the unencrypted feed until secure mode is
// active. /secure proposes secure mode, /accept and /decline answer a
// proposal, /key <passphrase> enters the shared passphrase, /cancel abandons
// a negotiation, /end leaves secure mode and /exit quits. Quitting by any
// path, signals included, terminates secure mode for both peers and wipes
// the secure log.
package commands
