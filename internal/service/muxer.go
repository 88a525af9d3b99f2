package service

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// MuxJob describes one narrated slideshow.
type MuxJob struct {
	Manifest string
	Audio    string
	Output   string
	FPS      int
}

// Muxer combines an image timeline with a narration track.
type Muxer interface {
	Available() bool
	Mux(ctx context.Context, job MuxJob) error
}

// FFmpegMuxer shells out to the ffmpeg binary.
type FFmpegMuxer struct {
	binary string
}

func NewFFmpegMuxer(binary string) *FFmpegMuxer {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegMuxer{binary: binary}
}

// Available reports whether the binary can be found.
func (m *FFmpegMuxer) Available() bool {
	_, err := exec.LookPath(m.binary)
	return err == nil
}

// Args returns the ffmpeg command line for job, without the binary.
func (m *FFmpegMuxer) Args(job MuxJob) []string {
	video := ffmpeg.Input(job.Manifest, ffmpeg.KwArgs{"f": "concat", "safe": 0})
	audio := ffmpeg.Input(job.Audio)
	return ffmpeg.Output([]*ffmpeg.Stream{video, audio}, job.Output, ffmpeg.KwArgs{
		"c:v":      "libx264",
		"c:a":      "aac",
		"pix_fmt":  "yuv420p",
		"r":        job.FPS,
		"shortest": "",
		"movflags": "faststart",
	}).OverWriteOutput().GetArgs()
}

// Mux runs ffmpeg once. The output is trimmed to the shorter of the two
// tracks. On failure ffmpeg's stderr is returned verbatim as the diagnostic.
func (m *FFmpegMuxer) Mux(ctx context.Context, job MuxJob) error {
	path, err := exec.LookPath(m.binary)
	if err != nil {
		return unavailable("video muxing", "ffmpeg binary not found on PATH")
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, m.Args(job)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return &CollaboratorError{Collaborator: "ffmpeg", Diagnostic: diag, Err: err}
	}
	return nil
}
