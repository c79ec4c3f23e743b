package remux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

const (
	ffmpegCommand = "ffmpeg"

	// Generous probe/analysis buffers so ffmpeg copes with concatenated
	// transport-stream input.
	analyzeDuration = "2147483647"
	probeSize       = "2147483647"

	// minOutputBytes is the plausibility floor for a produced file.
	minOutputBytes = 1024

	// diagnosticLimit caps how much captured tool output an error carries.
	diagnosticLimit = 2048
)

// RemuxError indicates the external tool failed to produce a usable output
// container.
type RemuxError struct {
	Output string
	Err    error
}

func (e *RemuxError) Error() string {
	return fmt.Sprintf("remux failed: %v: %s", e.Err, e.Output)
}

func (e *RemuxError) Unwrap() error {
	return e.Err
}

// MergeError indicates the audio/video mux failed.
type MergeError struct {
	Output string
	Err    error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge failed: %v: %s", e.Err, e.Output)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// Pipeline wraps the external media tool. Availability is probed once at
// construction; when the tool is missing, remuxing degrades to a plain
// rename and merging fails outright.
type Pipeline struct {
	path      string
	available bool
	log       zerolog.Logger
}

func New(path string, logger zerolog.Logger) *Pipeline {
	if path == "" {
		path = ffmpegCommand
	}
	log := logger.With().Str("component", "remux").Logger()
	resolved, err := exec.LookPath(path)
	if err != nil {
		log.Warn().Str("tool", path).Msg("media tool not found, remux degrades to rename")
		return &Pipeline{path: path, log: log}
	}
	return &Pipeline{path: resolved, available: true, log: log}
}

// Available reports whether the external tool was found at startup.
func (p *Pipeline) Available() bool {
	return p.available
}

func remuxArgs(input, output string) []string {
	return []string{
		"-y",
		"-i", input,
		"-analyzeduration", analyzeDuration,
		"-probesize", probeSize,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		"-f", "mp4",
		output,
	}
}

func mergeArgs(video, audio, output string) []string {
	return []string{
		"-y",
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c", "copy",
		output,
	}
}

// Remux repackages input into a standard MP4 container at output, deleting
// input on success. Without the tool, input is renamed to output unremuxed.
func (p *Pipeline) Remux(ctx context.Context, input, output string) (string, error) {
	if !p.available {
		if err := os.Rename(input, output); err != nil {
			return "", &RemuxError{Err: err}
		}
		return output, nil
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.path, remuxArgs(input, output)...)
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	if !plausibleOutput(output) || runErr != nil {
		os.Remove(output)
		if runErr == nil {
			runErr = errors.New("output missing or implausibly small")
		}
		return "", &RemuxError{Output: tailOf(&stderr), Err: runErr}
	}

	os.Remove(input)
	p.log.Info().Str("path", output).Msg("remux complete")
	return output, nil
}

// Merge muxes the video stream of video and the audio stream of audio into
// output. Both inputs are consumed: they are deleted whether or not the mux
// succeeds, so failed intermediates never pile up in the cache.
func (p *Pipeline) Merge(ctx context.Context, video, audio, output string) (string, error) {
	defer os.Remove(video)
	defer os.Remove(audio)

	if !p.available {
		return "", &MergeError{Err: errors.New("media tool is not available")}
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.path, mergeArgs(video, audio, output)...)
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	if !plausibleOutput(output) || runErr != nil {
		os.Remove(output)
		if runErr == nil {
			runErr = errors.New("output missing or implausibly small")
		}
		return "", &MergeError{Output: tailOf(&stderr), Err: runErr}
	}

	p.log.Info().Str("path", output).Msg("merge complete")
	return output, nil
}

func plausibleOutput(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() >= minOutputBytes
}

func tailOf(buf *bytes.Buffer) string {
	s := buf.String()
	if len(s) > diagnosticLimit {
		s = s[len(s)-diagnosticLimit:]
	}
	return strings.TrimSpace(s)
}
