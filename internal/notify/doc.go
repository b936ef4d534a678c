// Package notify provides domain.Notifier implementations: a console
// renderer for the CLI, a Recorder that keeps every event, and Multi to
// fan one event out to several notifiers.
package notify
