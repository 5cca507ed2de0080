// Package prefs stores each user's recognition model choice in a JSON file
// with atomic replace-on-write updates.
package prefs
