package asr

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// staticPrefs returns the same model for every user
type staticPrefs struct {
	model string
}

func (p *staticPrefs) Get(userID int64) string {
	return p.model
}

func writeAudioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voice.oga.wav")
	if err := os.WriteFile(path, []byte("RIFF fake wav payload"), 0o644); err != nil {
		t.Fatalf("Failed to write audio file: %v", err)
	}
	return path
}

func newTestDispatcher(fastURL, preciseURL, model string) *Dispatcher {
	return NewDispatcher(Config{
		FastEndpoint:    fastURL,
		PreciseEndpoint: preciseURL,
		DefaultModel:    ModelFast,
		Timeout:         5 * time.Second,
	}, &staticPrefs{model: model}, testLogger())
}

func TestTranscribeSuccess(t *testing.T) {
	var gotPath, gotField, gotFilename, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
		}
		for field, headers := range r.MultipartForm.File {
			gotField = field
			gotFilename = headers[0].Filename
			gotContentType = headers[0].Header.Get("Content-Type")
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "привет мир"})
	}))
	defer server.Close()

	d := newTestDispatcher(server.URL, "", ModelFast)
	transcript, model, err := d.Transcribe(context.Background(), 42, writeAudioFile(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if transcript.Text != "привет мир" {
		t.Errorf("Expected transcript text, got %q", transcript.Text)
	}
	if model != ModelFast {
		t.Errorf("Expected fast model, got %q", model)
	}
	if gotPath != "/transcribe" {
		t.Errorf("Expected POST /transcribe, got %q", gotPath)
	}
	if gotField != "audio" {
		t.Errorf("Expected form field 'audio', got %q", gotField)
	}
	if gotFilename != "audio.wav" {
		t.Errorf("Expected filename audio.wav, got %q", gotFilename)
	}
	if gotContentType != "audio/wav" {
		t.Errorf("Expected audio/wav part content type, got %q", gotContentType)
	}
}

func TestTranscribeEmptyTextIsValid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"text": ""}`)
	}))
	defer server.Close()

	d := newTestDispatcher(server.URL, "", ModelFast)
	transcript, _, err := d.Transcribe(context.Background(), 1, writeAudioFile(t))
	if err != nil {
		t.Fatalf("Expected empty transcript to succeed, got %v", err)
	}
	if transcript.Text != "" {
		t.Errorf("Expected empty text, got %q", transcript.Text)
	}
}

func TestTranscribeRoutesPreciseModel(t *testing.T) {
	var fastHits, preciseHits int
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fastHits++
		io.WriteString(w, `{"text": "fast"}`)
	}))
	defer fast.Close()
	precise := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		preciseHits++
		io.WriteString(w, `{"text": "precise"}`)
	}))
	defer precise.Close()

	d := newTestDispatcher(fast.URL, precise.URL, ModelPrecise)
	transcript, model, err := d.Transcribe(context.Background(), 7, writeAudioFile(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if model != ModelPrecise {
		t.Errorf("Expected precise model, got %q", model)
	}
	if transcript.Text != "precise" || preciseHits != 1 || fastHits != 0 {
		t.Errorf("Expected request to hit the precise backend only (fast=%d precise=%d)", fastHits, preciseHits)
	}
}

func TestResolveModelUnknownFallsBack(t *testing.T) {
	d := newTestDispatcher("http://fast.local", "http://precise.local", "turbo-v9")
	if model := d.ResolveModel(3); model != ModelFast {
		t.Errorf("Expected unknown preference to fall back to fast, got %q", model)
	}
}

func TestTranscribeUnconfiguredEndpoint(t *testing.T) {
	d := newTestDispatcher("http://fast.local", "", ModelPrecise)
	_, model, err := d.Transcribe(context.Background(), 5, writeAudioFile(t))
	if !errors.Is(err, ErrEndpointUnconfigured) {
		t.Fatalf("Expected ErrEndpointUnconfigured, got %v", err)
	}
	if model != ModelPrecise {
		t.Errorf("Expected resolved model in error path, got %q", model)
	}
}

func TestTranscribeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	d := newTestDispatcher(server.URL, "", ModelFast)
	_, _, err := d.Transcribe(context.Background(), 1, writeAudioFile(t))
	if !errors.Is(err, ErrBadResponse) {
		t.Fatalf("Expected ErrBadResponse, got %v", err)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("Expected status code in error, got %v", err)
	}
}

func TestTranscribeMalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json at all")
	}))
	defer server.Close()

	d := newTestDispatcher(server.URL, "", ModelFast)
	_, _, err := d.Transcribe(context.Background(), 1, writeAudioFile(t))
	if !errors.Is(err, ErrBadResponse) {
		t.Fatalf("Expected ErrBadResponse, got %v", err)
	}
}

func TestTranscribeUnreachableBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // Immediately close so the port refuses connections

	d := newTestDispatcher(server.URL, "", ModelFast)
	_, _, err := d.Transcribe(context.Background(), 1, writeAudioFile(t))
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("Expected ErrUnreachable, got %v", err)
	}
}

func TestTranscribeMissingAudioFile(t *testing.T) {
	d := newTestDispatcher("http://fast.local", "", ModelFast)
	_, _, err := d.Transcribe(context.Background(), 1, filepath.Join(t.TempDir(), "missing.wav"))
	if err == nil {
		t.Fatal("Expected error for missing audio file")
	}
}

func TestTranscribeContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		io.WriteString(w, `{"text": "late"}`)
	}))
	defer server.Close()

	d := newTestDispatcher(server.URL, "", ModelFast)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := d.Transcribe(ctx, 1, writeAudioFile(t))
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("Expected transport-level error on deadline, got %v", err)
	}
}
