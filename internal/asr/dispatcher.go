package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"
)

// Recognition model identifiers
const (
	ModelFast    = "fast"
	ModelPrecise = "precise"
)

// Sentinel errors for recognition failures
var (
	// ErrEndpointUnconfigured means the selected model has no backend URL
	ErrEndpointUnconfigured = errors.New("recognition endpoint is not configured")
	// ErrUnreachable means the backend could not be reached at the transport level
	ErrUnreachable = errors.New("recognition backend is unreachable")
	// ErrBadResponse means the backend answered with a non-success status or
	// a body that does not carry a transcript
	ErrBadResponse = errors.New("recognition backend returned an invalid response")
)

// Transcript is the recognition result. An empty Text is a valid outcome
// meaning no speech was detected.
type Transcript struct {
	Text string `json:"text"`
}

// Config contains recognition dispatcher configuration
type Config struct {
	FastEndpoint    string
	PreciseEndpoint string
	DefaultModel    string
	Timeout         time.Duration
}

// ModelSource resolves the preferred recognition model for a user
type ModelSource interface {
	Get(userID int64) string
}

// Dispatcher routes normalized audio files to the recognition backend
// selected by the sender's model preference
type Dispatcher struct {
	config     Config
	prefs      ModelSource
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDispatcher creates a recognition dispatcher
func NewDispatcher(config Config, prefs ModelSource, logger *slog.Logger) *Dispatcher {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = ModelFast
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Dispatcher{
		config:     config,
		prefs:      prefs,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ResolveModel returns the model that will serve the given user. Unknown
// stored values fall back to the fast model.
func (d *Dispatcher) ResolveModel(userID int64) string {
	model := d.config.DefaultModel
	if d.prefs != nil {
		model = d.prefs.Get(userID)
	}
	if model != ModelFast && model != ModelPrecise {
		d.logger.Warn("Unknown model preference, falling back to fast",
			slog.Int64("user_id", userID),
			slog.String("model", model),
		)
		model = ModelFast
	}
	return model
}

// Transcribe sends the WAV file at audioPath to the backend serving the
// user's preferred model and returns the transcript
func (d *Dispatcher) Transcribe(ctx context.Context, userID int64, audioPath string) (Transcript, string, error) {
	model := d.ResolveModel(userID)

	endpoint := d.endpointFor(model)
	if endpoint == "" {
		return Transcript{}, model, fmt.Errorf("%w: model %s", ErrEndpointUnconfigured, model)
	}

	startTime := time.Now()
	transcript, err := d.doRequest(ctx, endpoint, audioPath)
	if err != nil {
		return Transcript{}, model, err
	}

	d.logger.Info("Transcription completed",
		slog.Int64("user_id", userID),
		slog.String("model", model),
		slog.Duration("duration", time.Since(startTime)),
		slog.Int("text_length", len(transcript.Text)),
	)

	return transcript, model, nil
}

// endpointFor maps a model name to its backend URL
func (d *Dispatcher) endpointFor(model string) string {
	switch model {
	case ModelPrecise:
		return d.config.PreciseEndpoint
	default:
		return d.config.FastEndpoint
	}
}

// doRequest performs a single multipart recognition request
func (d *Dispatcher) doRequest(ctx context.Context, endpoint, audioPath string) (Transcript, error) {
	body, contentType, err := buildMultipartBody(audioPath)
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to build recognition request: %w", err)
	}

	url := strings.TrimRight(endpoint, "/") + "/transcribe"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return Transcript{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Transcript{}, fmt.Errorf("%w: failed to read body: %v", ErrBadResponse, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Transcript{}, fmt.Errorf("%w: HTTP %d: %s", ErrBadResponse, resp.StatusCode, truncate(string(respBody), 256))
	}

	var transcript Transcript
	if err := json.Unmarshal(respBody, &transcript); err != nil {
		return Transcript{}, fmt.Errorf("%w: failed to parse JSON: %v", ErrBadResponse, err)
	}

	return transcript, nil
}

// buildMultipartBody reads the audio file into a multipart form with a
// single "audio" file part
func buildMultipartBody(audioPath string) (*bytes.Buffer, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("cannot open audio file: %w", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="audio"; filename="audio.wav"`)
	header.Set("Content-Type", "audio/wav")

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to copy audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

// truncate shortens a string for error context
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
