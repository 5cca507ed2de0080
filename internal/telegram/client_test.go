package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		Token:       "123456:test",
		APIBaseURL:  server.URL,
		FileBaseURL: server.URL + "/file",
	}, testLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	return client, server
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(Config{}, testLogger()); err == nil {
		t.Error("Expected error for empty token")
	}
}

func TestSendMessage(t *testing.T) {
	var gotPath string
	var gotPayload map[string]interface{}

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotPayload)
		io.WriteString(w, `{"ok": true, "result": {"message_id": 99}}`)
	}))

	messageID, err := client.SendMessage(context.Background(), SendMessageParams{
		ChatID:           777,
		Text:             "hello",
		ReplyToMessageID: 42,
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if messageID != 99 {
		t.Errorf("Expected message id 99, got %d", messageID)
	}

	if gotPath != "/bot123456:test/sendMessage" {
		t.Errorf("Unexpected request path: %s", gotPath)
	}

	if gotPayload["text"] != "hello" {
		t.Errorf("Unexpected text in payload: %v", gotPayload["text"])
	}

	if _, ok := gotPayload["reply_parameters"]; !ok {
		t.Error("Expected reply_parameters in payload")
	}
}

func TestSendMessageTruncatesLongText(t *testing.T) {
	var gotPayload map[string]interface{}

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		io.WriteString(w, `{"ok": true, "result": {"message_id": 1}}`)
	}))

	_, err := client.SendMessage(context.Background(), SendMessageParams{
		ChatID: 777,
		Text:   strings.Repeat("a", 5000),
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	text, _ := gotPayload["text"].(string)
	if len(text) != maxMessageLength {
		t.Errorf("Expected text truncated to %d, got %d", maxMessageLength, len(text))
	}
}

func TestAPIErrorSurfacesDescription(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"ok": false, "description": "Bad Request: chat not found"}`)
	}))

	_, err := client.SendMessage(context.Background(), SendMessageParams{ChatID: 1, Text: "x"})
	if err == nil {
		t.Fatal("Expected error for API rejection")
	}

	if !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("Expected description in error, got: %v", err)
	}
}

func TestGetFile(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/getFile") {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		io.WriteString(w, `{"ok": true, "result": {"file_id": "f1", "file_size": 2048, "file_path": "voice/file_12.oga"}}`)
	}))

	info, err := client.GetFile(context.Background(), "f1")
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}

	if info.FilePath != "voice/file_12.oga" {
		t.Errorf("Unexpected file path: %s", info.FilePath)
	}

	if info.FileSize != 2048 {
		t.Errorf("Unexpected file size: %d", info.FileSize)
	}
}

func TestDownloadFile(t *testing.T) {
	content := []byte("fake audio bytes")

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file/bot123456:test/voice/file_12.oga" {
			http.NotFound(w, r)
			return
		}
		w.Write(content)
	}))

	var buf bytes.Buffer
	if err := client.DownloadFile(context.Background(), "voice/file_12.oga", &buf); err != nil {
		t.Fatalf("DownloadFile failed: %v", err)
	}

	if !bytes.Equal(buf.Bytes(), content) {
		t.Errorf("Downloaded content mismatch: got %q", buf.Bytes())
	}
}

func TestDownloadFileHTTPError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))

	var buf bytes.Buffer
	if err := client.DownloadFile(context.Background(), "voice/missing.oga", &buf); err == nil {
		t.Error("Expected error for HTTP 404")
	}
}

func TestSetWebhookIncludesSecret(t *testing.T) {
	var gotPayload map[string]interface{}

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		io.WriteString(w, `{"ok": true, "result": true}`)
	}))

	if err := client.SetWebhook(context.Background(), "https://bot.example.com/webhook", "s3cret"); err != nil {
		t.Fatalf("SetWebhook failed: %v", err)
	}

	if gotPayload["url"] != "https://bot.example.com/webhook" {
		t.Errorf("Unexpected webhook url: %v", gotPayload["url"])
	}

	if gotPayload["secret_token"] != "s3cret" {
		t.Errorf("Expected secret token in payload, got: %v", gotPayload["secret_token"])
	}
}
