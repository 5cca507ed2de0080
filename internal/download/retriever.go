package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dtfyu3/rus-asr-bot-express/internal/staging"
	"github.com/dtfyu3/rus-asr-bot-express/internal/telegram"
	"github.com/dtfyu3/rus-asr-bot-express/internal/update"
)

// Download failure taxonomy. Callers classify with errors.Is.
var (
	// ErrOversized means the platform-reported size exceeds the cap;
	// detected before any content is transferred.
	ErrOversized = errors.New("file exceeds the size limit")

	// ErrInvalidMetadata means the platform response lacks a usable file path
	ErrInvalidMetadata = errors.New("invalid file metadata")

	// ErrNetwork wraps transport failures at either the metadata or
	// content fetch stage
	ErrNetwork = errors.New("file transfer failed")
)

// FileAPI is the platform surface the retriever needs
type FileAPI interface {
	GetFile(ctx context.Context, fileID string) (telegram.FileInfo, error)
	DownloadFile(ctx context.Context, filePath string, dst io.Writer) error
}

// Retriever resolves a platform file reference to bytes on staging storage
type Retriever struct {
	api     FileAPI
	dir     *staging.Dir
	maxSize int64
	logger  *slog.Logger
}

// NewRetriever creates a retriever writing into the staging directory
func NewRetriever(api FileAPI, dir *staging.Dir, maxSize int64, logger *slog.Logger) *Retriever {
	return &Retriever{
		api:     api,
		dir:     dir,
		maxSize: maxSize,
		logger:  logger,
	}
}

// MaxSize returns the configured size cap in bytes
func (r *Retriever) MaxSize() int64 {
	return r.maxSize
}

// Retrieve downloads the referenced file to a uniquely named staging path.
// The size cap is enforced on reported sizes before the content fetch, so an
// oversized file never costs a transfer. On any error the partial staging
// file is removed.
func (r *Retriever) Retrieve(ctx context.Context, ref update.File) (string, error) {
	if ref.FileSize > r.maxSize {
		return "", fmt.Errorf("%w: reported %d bytes, cap %d", ErrOversized, ref.FileSize, r.maxSize)
	}

	info, err := r.api.GetFile(ctx, ref.FileID)
	if err != nil {
		return "", fmt.Errorf("%w: resolving metadata for %s: %w", ErrNetwork, ref.FileID, err)
	}

	if info.FilePath == "" {
		return "", fmt.Errorf("%w: no file path for %s", ErrInvalidMetadata, ref.FileID)
	}

	if info.FileSize > r.maxSize {
		return "", fmt.Errorf("%w: reported %d bytes, cap %d", ErrOversized, info.FileSize, r.maxSize)
	}

	localPath := r.dir.NewPath(info.FilePath)

	dst, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create staging file: %w", err)
	}

	if err := r.api.DownloadFile(ctx, info.FilePath, dst); err != nil {
		dst.Close()
		r.dir.Remove(localPath)
		return "", fmt.Errorf("%w: fetching content for %s: %w", ErrNetwork, ref.FileID, err)
	}

	if err := dst.Close(); err != nil {
		r.dir.Remove(localPath)
		return "", fmt.Errorf("failed to finalize staging file: %w", err)
	}

	r.logger.Info("Downloaded audio file to staging",
		slog.String("file_id", ref.FileID),
		slog.String("path", localPath),
		slog.Int64("size", info.FileSize),
	)

	return localPath, nil
}
