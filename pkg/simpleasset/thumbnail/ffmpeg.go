package thumbnail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/tendant/simple-asset/pkg/simpleasset"
)

// FFmpeg extracts a frame with the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	// Timeout bounds each tool invocation. Zero means no limit beyond ctx.
	Timeout time.Duration
}

var _ simpleasset.ThumbnailGenerator = (*FFmpeg)(nil)

// NewFFmpeg returns a generator using the binaries found on PATH when the paths are empty.
func NewFFmpeg(ffmpegPath, ffprobePath string, timeout time.Duration) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, Timeout: timeout}
}

// ExtractThumbnail probes the media, then grabs one JPEG frame one second in
// (or at the start for clips of two seconds or less).
func (f *FFmpeg) ExtractThumbnail(ctx context.Context, mediaPath string) (*simpleasset.Thumbnail, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	out, err := run(ctx, f.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		mediaPath)
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}
	probe, err := parseProbe(out)
	if err != nil {
		return nil, err
	}

	seek := seekFor(probe.duration)
	frame, err := run(ctx, f.FFmpegPath,
		"-v", "error",
		"-ss", strconv.FormatFloat(seek.Seconds(), 'f', 3, 64),
		"-i", mediaPath,
		"-vframes", "1",
		"-q:v", "2",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"pipe:1")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	if len(frame) == 0 {
		return nil, errors.New("ffmpeg produced no frame")
	}

	return &simpleasset.Thumbnail{
		Image:       frame,
		ContentType: "image/jpeg",
		Duration:    probe.duration,
		Width:       probe.width,
		Height:      probe.height,
	}, nil
}

func seekFor(duration time.Duration) time.Duration {
	if duration > 2*time.Second {
		return time.Second
	}
	return 0
}

type probeResult struct {
	duration time.Duration
	width    int
	height   int
}

func parseProbe(out []byte) (probeResult, error) {
	var raw struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return probeResult{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(raw.Streams) == 0 || raw.Streams[0].Width <= 0 || raw.Streams[0].Height <= 0 {
		return probeResult{}, errors.New("no video stream found")
	}

	res := probeResult{width: raw.Streams[0].Width, height: raw.Streams[0].Height}
	if raw.Format.Duration != "" {
		secs, err := strconv.ParseFloat(raw.Format.Duration, 64)
		if err != nil {
			return probeResult{}, fmt.Errorf("parse duration %q: %w", raw.Format.Duration, err)
		}
		res.duration = time.Duration(secs * float64(time.Second))
	}
	return res, nil
}

func run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return nil, fmt.Errorf("%w: %s", err, truncate(msg, 512))
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
