// Package staging manages the local ephemeral directory for in-progress
// audio files: unique path allocation, idempotent release, and a periodic
// janitor sweep for files leaked by crashed jobs.
package staging
