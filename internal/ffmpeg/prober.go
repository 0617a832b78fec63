package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// ErrNoVideoStream indicates the probed file has no video stream.
var ErrNoVideoStream = errors.New("no video stream found")

// ProbeResult contains the ffprobe output we consume.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// ProbeStream contains stream information.
type ProbeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"` // video, audio, subtitle, data
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	PixFmt    string `json:"pix_fmt,omitempty"`
	Duration  string `json:"duration,omitempty"`
	BitRate   string `json:"bit_rate,omitempty"`
}

// VideoInfo is the distilled probe result the pipeline works with.
type VideoInfo struct {
	Codec    string  `json:"codec"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Duration float64 `json:"duration"` // seconds
}

// Prober runs ffprobe against media files.
type Prober struct {
	binaryPath string
	timeout    time.Duration
	runner     *Runner
}

// NewProber creates a Prober using the given ffprobe binary.
func NewProber(binaryPath string, timeout time.Duration, logger *slog.Logger) *Prober {
	return &Prober{
		binaryPath: binaryPath,
		timeout:    timeout,
		runner:     NewRunner(logger),
	}
}

// Probe runs ffprobe and parses its JSON output.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	out, err := p.runner.RunOutput(ctx, p.binaryPath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", path, err)
	}

	var result ProbeResult
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("parsing probe output for %s: %w", path, err)
	}
	return &result, nil
}

// ProbeVideo probes a file and distills the first video stream.
func (p *Prober) ProbeVideo(ctx context.Context, path string) (*VideoInfo, error) {
	result, err := p.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	return result.VideoInfo()
}

// FirstVideoStream returns the first stream with codec_type video.
func (r *ProbeResult) FirstVideoStream() (*ProbeStream, bool) {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "video" {
			return &r.Streams[i], true
		}
	}
	return nil, false
}

// VideoInfo distills the first video stream and the container duration.
// The stream duration wins when present; some containers only report
// duration at the format level.
func (r *ProbeResult) VideoInfo() (*VideoInfo, error) {
	stream, ok := r.FirstVideoStream()
	if !ok {
		return nil, ErrNoVideoStream
	}

	duration := parseDuration(stream.Duration)
	if duration == 0 {
		duration = parseDuration(r.Format.Duration)
	}

	return &VideoInfo{
		Codec:    stream.CodecName,
		Width:    stream.Width,
		Height:   stream.Height,
		Duration: duration,
	}, nil
}

// parseDuration parses ffprobe's decimal-seconds duration strings.
// Returns 0 for empty or malformed values.
func parseDuration(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return d
}
