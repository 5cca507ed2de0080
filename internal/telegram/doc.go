// Package telegram implements the thin HTTP client for the Telegram Bot API
// methods used by the bot: messaging, chat actions, callback acknowledgement,
// webhook registration, and file metadata/content retrieval.
package telegram
