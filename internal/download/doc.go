// Package download resolves platform file references to local staging files,
// enforcing the size cap before any content transfer.
package download
