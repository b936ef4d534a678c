package domain

import "strings"

// Root collections of the shared store.
const (
	chatsRoot      = "chats"
	requestsRoot   = "secureChatRequests"
	rendezvousRoot = "CheckNodePoint"
)

// JoinPath joins segments with "/", the separator every Channel accepts.
func JoinPath(segments ...string) string { return strings.Join(segments, "/") }

// MessagesPath is the plain message log of a room.
func MessagesPath(room RoomID) string {
	return JoinPath(chatsRoot, room.String(), "messages")
}

// SecureMessagesPath is the encrypted message log of a room.
func SecureMessagesPath(room RoomID) string {
	return JoinPath(chatsRoot, room.String(), "securemessages")
}

// WrongKeyPath holds the fire-once wrong-key broadcast flag.
func WrongKeyPath(room RoomID) string {
	return JoinPath(chatsRoot, room.String(), "isWrong")
}

// TerminatedPath holds the fire-once termination broadcast flag.
func TerminatedPath(room RoomID) string {
	return JoinPath(chatsRoot, room.String(), "isTerminated")
}

// RequestPath holds the room's SecureRequest record.
func RequestPath(room RoomID) string {
	return JoinPath(requestsRoot, room.String())
}

// RendezvousPath holds the passphrase-entered flag.
func RendezvousPath(room RoomID) string {
	return JoinPath(rendezvousRoot, room.String(), "dialogState")
}

// RendezvousRoot is the parent of RendezvousPath, removed on consumption.
func RendezvousRoot(room RoomID) string {
	return JoinPath(rendezvousRoot, room.String())
}
