// Package domain defines core data models and interfaces shared across the app.
// It contains plain types (wire/state), contracts (interfaces), the room
// identity rule and the layout of the shared store.
package domain
