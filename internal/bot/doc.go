// Package bot contains the update handler and the admission gate that
// together drive the transcription pipeline.
//
// The gate enforces one job per chat: while a chat's job is in flight,
// every further event from that chat — audio, text commands and model
// selection callbacks alike — is rejected with a single "please wait"
// notice per busy period. Admitted jobs download the attachment,
// normalize it with ffmpeg, submit it for recognition and reply with
// the transcript, each stage under its own deadline.
package bot
