package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/go-audio/wav"
)

// Target format for recognition backends
const (
	targetSampleRate = 16000
	targetChannels   = 1
	targetBitDepth   = 16
)

// ConversionError reports a failed normalization with subprocess context
type ConversionError struct {
	Message  string
	ExitCode int
	Stderr   string
	Err      error
}

// Error formats conversion failures for logs
func (e *ConversionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("conversion failed: %s (exit=%d): %s", e.Message, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("conversion failed: %s", e.Message)
}

// Unwrap exposes the underlying error for errors.Is / errors.As
func (e *ConversionError) Unwrap() error {
	return e.Err
}

// commandResult is an internal process execution response
type commandResult struct {
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec
type execRunner struct{}

// Run executes one command and captures stderr and the exit code
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// Converter normalizes arbitrary input audio to mono 16 kHz 16-bit PCM WAV
// via an external ffmpeg process
type Converter struct {
	ffmpegPath string
	runner     commandRunner
	probe      func(path string) error
	logger     *slog.Logger
}

// NewConverter constructs the production converter
func NewConverter(logger *slog.Logger) *Converter {
	return &Converter{
		ffmpegPath: "ffmpeg",
		runner:     &execRunner{},
		probe:      probeWavFormat,
		logger:     logger,
	}
}

// Normalize converts the input file to the target PCM format and returns the
// path of the new file. The output is always distinct from the input; both
// are the caller's to release.
func (c *Converter) Normalize(ctx context.Context, inputPath string) (string, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return "", &ConversionError{Message: fmt.Sprintf("cannot access input file %s", inputPath), Err: err}
	}

	outputPath := inputPath + ".wav"
	args := buildFFmpegArgs(inputPath, outputPath)

	result, runErr := c.runner.Run(ctx, c.ffmpegPath, args...)
	if runErr != nil {
		return "", &ConversionError{
			Message:  "ffmpeg exited with an error",
			ExitCode: result.ExitCode,
			Stderr:   tail(result.Stderr, 512),
			Err:      runErr,
		}
	}

	if _, err := os.Stat(outputPath); err != nil {
		return "", &ConversionError{Message: "ffmpeg completed but the output file is missing", Err: err}
	}

	if err := c.probe(outputPath); err != nil {
		os.Remove(outputPath)
		return "", &ConversionError{Message: "output file is not in the target format", Err: err}
	}

	c.logger.Info("Normalized audio file",
		slog.String("input", inputPath),
		slog.String("output", outputPath),
	)

	return outputPath, nil
}

// buildFFmpegArgs builds CLI args for mono 16k s16le WAV output
func buildFFmpegArgs(inputPath, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", fmt.Sprintf("%d", targetChannels),
		"-ar", fmt.Sprintf("%d", targetSampleRate),
		"-c:a", "pcm_s16le",
		outputPath,
	}
}

// probeWavFormat verifies the converted file really carries the target
// PCM format, catching ffmpeg builds that silently fall back
func probeWavFormat(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open output file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return fmt.Errorf("cannot read WAV header: %w", err)
	}

	if dec.SampleRate != targetSampleRate {
		return fmt.Errorf("unexpected sample rate %d, want %d", dec.SampleRate, targetSampleRate)
	}
	if dec.NumChans != targetChannels {
		return fmt.Errorf("unexpected channel count %d, want %d", dec.NumChans, targetChannels)
	}
	if dec.BitDepth != targetBitDepth {
		return fmt.Errorf("unexpected bit depth %d, want %d", dec.BitDepth, targetBitDepth)
	}

	return nil
}

// tail returns the last max bytes of s for compact error context
func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}

// NewConverterForTests constructs a converter with injectable dependencies
func NewConverterForTests(ffmpegPath string, runner commandRunner, probe func(path string) error, logger *slog.Logger) *Converter {
	return &Converter{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		probe:      probe,
		logger:     logger,
	}
}
