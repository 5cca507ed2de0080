// Package update models inbound Telegram webhook payloads.
// It resolves the dynamically-shaped update body into a tagged union
// (message vs callback query, text vs audio) once at the boundary.
package update
