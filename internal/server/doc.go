// Package server exposes the Telegram webhook endpoint together with
// health, stats and Prometheus metrics endpoints. Updates are
// acknowledged immediately and processed in the background.
package server
