package bot

import (
	"time"

	"github.com/dtfyu3/rus-asr-bot-express/internal/update"
)

// JobState tracks how far a transcription job has progressed
type JobState int

const (
	StateAdmitted JobState = iota
	StateRetrieving
	StateConverting
	StateDispatching
	StateCompleted
	StateFailed
)

// String returns a human-readable state name for logging
func (s JobState) String() string {
	switch s {
	case StateAdmitted:
		return "admitted"
	case StateRetrieving:
		return "retrieving"
	case StateConverting:
		return "converting"
	case StateDispatching:
		return "dispatching"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job carries the context of one audio message being transcribed
type Job struct {
	ChatID    int64
	MessageID int64
	File      update.File
	State     JobState
	StartedAt time.Time

	// Staging file paths accumulated along the pipeline; released once
	// when the job finishes
	rawPath string
	wavPath string
}

// newJob creates a job in the admitted state
func newJob(chatID, messageID int64, file update.File) *Job {
	return &Job{
		ChatID:    chatID,
		MessageID: messageID,
		File:      file,
		State:     StateAdmitted,
		StartedAt: time.Now(),
	}
}

// stagingPaths returns the paths the job has created so far
func (j *Job) stagingPaths() []string {
	paths := make([]string, 0, 2)
	if j.rawPath != "" {
		paths = append(paths, j.rawPath)
	}
	if j.wavPath != "" {
		paths = append(paths, j.wavPath)
	}
	return paths
}
