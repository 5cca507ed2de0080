// Package asr dispatches normalized audio to the speech recognition
// backends over multipart HTTP.
//
// Two backends are supported: a fast model and a precise model, each
// behind its own endpoint. The dispatcher picks the backend from the
// sender's stored preference and falls back to the fast model when the
// preference is missing or unknown. An empty transcript is a valid
// result and means the backend heard no speech.
package asr
