// Package transcode normalizes downloaded Telegram audio to the mono
// 16 kHz 16-bit PCM WAV format expected by the recognition backends.
//
// Conversion shells out to ffmpeg through a context-aware runner so a
// job deadline cancels the subprocess. The converted file is probed
// with a WAV header check before it is handed to the dispatcher.
package transcode
