// Package analytics ships per-request events to an optional external
// collector. Reporting is fire and forget: the collector being slow or
// down never delays or fails webhook handling.
package analytics
