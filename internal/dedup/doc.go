// Package dedup filters duplicate webhook deliveries using a persisted
// high-water mark over update ids. Persistence failures are logged and
// non-fatal; the tracker then behaves as if no prior state existed.
package dedup
