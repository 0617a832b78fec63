// Package ffmpeg provides FFmpeg/FFprobe binary detection and subprocess
// wrappers for the media pipeline.
package ffmpeg

import (
	"fmt"

	"github.com/mediavault/mediavault/internal/config"
	"github.com/mediavault/mediavault/internal/util"
)

// Binaries holds the resolved paths of the FFmpeg tool binaries.
type Binaries struct {
	FFmpegPath  string `json:"ffmpeg_path"`
	FFprobePath string `json:"ffprobe_path"`
}

// DetectBinaries resolves ffmpeg and ffprobe. Explicitly configured paths
// win; otherwise the FFMPEG_PATH/FFPROBE_PATH environment variables, the
// working directory, and PATH are searched in that order.
func DetectBinaries(cfg config.FFmpegConfig) (*Binaries, error) {
	ffmpegPath := cfg.BinaryPath
	if ffmpegPath == "" {
		p, err := util.FindBinary("ffmpeg", "FFMPEG_PATH")
		if err != nil {
			return nil, fmt.Errorf("detecting ffmpeg: %w", err)
		}
		ffmpegPath = p
	}

	ffprobePath := cfg.ProbePath
	if ffprobePath == "" {
		p, err := util.FindBinary("ffprobe", "FFPROBE_PATH")
		if err != nil {
			return nil, fmt.Errorf("detecting ffprobe: %w", err)
		}
		ffprobePath = p
	}

	return &Binaries{
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
	}, nil
}
