package download

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dtfyu3/rus-asr-bot-express/internal/staging"
	"github.com/dtfyu3/rus-asr-bot-express/internal/telegram"
	"github.com/dtfyu3/rus-asr-bot-express/internal/update"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeFileAPI is a scriptable platform file surface
type fakeFileAPI struct {
	info        telegram.FileInfo
	infoErr     error
	content     []byte
	downloadErr error

	getFileCalls  int
	downloadCalls int
}

func (f *fakeFileAPI) GetFile(ctx context.Context, fileID string) (telegram.FileInfo, error) {
	f.getFileCalls++
	return f.info, f.infoErr
}

func (f *fakeFileAPI) DownloadFile(ctx context.Context, filePath string, dst io.Writer) error {
	f.downloadCalls++
	if f.downloadErr != nil {
		return f.downloadErr
	}
	_, err := dst.Write(f.content)
	return err
}

func newTestRetriever(t *testing.T, api *fakeFileAPI, maxSize int64) (*Retriever, *staging.Dir) {
	t.Helper()
	dir, err := staging.NewDir(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewDir failed: %v", err)
	}
	return NewRetriever(api, dir, maxSize, testLogger()), dir
}

func TestRetrieveSuccess(t *testing.T) {
	api := &fakeFileAPI{
		info:    telegram.FileInfo{FileID: "f1", FileSize: 1024, FilePath: "voice/file_12.oga"},
		content: []byte("fake audio"),
	}
	retriever, dir := newTestRetriever(t, api, 16*1024*1024)

	path, err := retriever.Retrieve(context.Background(), update.File{FileID: "f1", FileSize: 1024})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	if filepath.Dir(path) != dir.Path() {
		t.Errorf("Expected staging path, got %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected staging file to exist: %v", err)
	}

	if string(data) != "fake audio" {
		t.Errorf("Unexpected file content: %q", data)
	}
}

func TestRetrieveOversizedReportedByUpdate(t *testing.T) {
	api := &fakeFileAPI{}
	retriever, _ := newTestRetriever(t, api, 1024)

	_, err := retriever.Retrieve(context.Background(), update.File{FileID: "f1", FileSize: 20 * 1024 * 1024})
	if !errors.Is(err, ErrOversized) {
		t.Fatalf("Expected ErrOversized, got %v", err)
	}

	// The cap must reject before any platform round-trip
	if api.getFileCalls != 0 || api.downloadCalls != 0 {
		t.Errorf("Expected no API calls, got getFile=%d download=%d", api.getFileCalls, api.downloadCalls)
	}
}

func TestRetrieveOversizedReportedByMetadata(t *testing.T) {
	api := &fakeFileAPI{
		info: telegram.FileInfo{FileID: "f1", FileSize: 2048, FilePath: "voice/big.oga"},
	}
	retriever, _ := newTestRetriever(t, api, 1024)

	_, err := retriever.Retrieve(context.Background(), update.File{FileID: "f1"})
	if !errors.Is(err, ErrOversized) {
		t.Fatalf("Expected ErrOversized, got %v", err)
	}

	if api.downloadCalls != 0 {
		t.Errorf("Expected no content fetch for oversized file, got %d", api.downloadCalls)
	}
}

func TestRetrieveInvalidMetadata(t *testing.T) {
	api := &fakeFileAPI{
		info: telegram.FileInfo{FileID: "f1", FileSize: 100},
	}
	retriever, _ := newTestRetriever(t, api, 1024)

	_, err := retriever.Retrieve(context.Background(), update.File{FileID: "f1"})
	if !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("Expected ErrInvalidMetadata, got %v", err)
	}
}

func TestRetrieveMetadataNetworkFailure(t *testing.T) {
	api := &fakeFileAPI{
		infoErr: errors.New("connection refused"),
	}
	retriever, _ := newTestRetriever(t, api, 1024)

	_, err := retriever.Retrieve(context.Background(), update.File{FileID: "f1"})
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Expected ErrNetwork, got %v", err)
	}
}

func TestRetrieveContentFailureRemovesPartialFile(t *testing.T) {
	api := &fakeFileAPI{
		info:        telegram.FileInfo{FileID: "f1", FileSize: 100, FilePath: "voice/file_12.oga"},
		downloadErr: errors.New("connection reset"),
	}
	retriever, dir := newTestRetriever(t, api, 1024)

	_, err := retriever.Retrieve(context.Background(), update.File{FileID: "f1"})
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Expected ErrNetwork, got %v", err)
	}

	entries, readErr := os.ReadDir(dir.Path())
	if readErr != nil {
		t.Fatalf("Failed to read staging dir: %v", readErr)
	}

	if len(entries) != 0 {
		t.Errorf("Expected no leftover staging files, found %d", len(entries))
	}
}

func TestRetrieveConcurrentJobsGetDistinctPaths(t *testing.T) {
	api := &fakeFileAPI{
		info:    telegram.FileInfo{FileID: "f1", FileSize: 10, FilePath: "voice/file_12.oga"},
		content: []byte("audio"),
	}
	retriever, _ := newTestRetriever(t, api, 1024)

	first, err := retriever.Retrieve(context.Background(), update.File{FileID: "f1"})
	if err != nil {
		t.Fatalf("First retrieve failed: %v", err)
	}

	second, err := retriever.Retrieve(context.Background(), update.File{FileID: "f1"})
	if err != nil {
		t.Fatalf("Second retrieve failed: %v", err)
	}

	if first == second {
		t.Errorf("Expected distinct staging paths, both were %s", first)
	}
}
