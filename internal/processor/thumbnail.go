package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/image/webp"

	"github.com/mediavault/mediavault/internal/cryptobox"
	"github.com/mediavault/mediavault/internal/ffmpeg"
)

// Video thumbnail parameters.
const (
	thumbDuration     = 3  // seconds of animation
	thumbFPS          = 10 // animated thumbnail frame rate
	thumbCompression  = 6
	previewWidth      = 480
	previewFPS        = 5 // preview keeps every previewFPS-th sampled frame
	previewMaxFrames  = 20
	previewQuality    = 80
	minArtifactBytes  = 1000 // smaller outputs are treated as broken encodes
	thumbStartMinimum = 5.0  // seconds; never sample the very beginning
)

// thumbnailer produces the animated thumbnail and preview for a video,
// degrading to static frames and finally a placeholder when FFmpeg fails.
type thumbnailer struct {
	ffmpegPath string
	runner     *ffmpeg.Runner
	logger     *slog.Logger
}

func newThumbnailer(ffmpegPath string, logger *slog.Logger) *thumbnailer {
	return &thumbnailer{
		ffmpegPath: ffmpegPath,
		runner:     ffmpeg.NewRunner(logger),
		logger:     logger,
	}
}

// thumbStart skips the first 10% of the video, but at least the lead-in.
func thumbStart(duration float64) float64 {
	start := duration * 0.1
	if start < thumbStartMinimum {
		start = thumbStartMinimum
	}
	return start
}

// generate writes thumbnail.webp and preview.webp into outputDir. It always
// leaves both files behind; on total failure they are the placeholder image.
func (g *thumbnailer) generate(ctx context.Context, inputPath, outputDir string, duration float64) (string, string, error) {
	thumbnailPath := filepath.Join(outputDir, "thumbnail.webp")
	previewPath := filepath.Join(outputDir, "preview.webp")
	start := thumbStart(duration)

	animated := g.animatedThumbnail(ctx, inputPath, thumbnailPath, start)
	if !animated {
		g.staticFrame(ctx, inputPath, thumbnailPath, start)
	}

	if animated {
		if err := g.animatedPreview(ctx, inputPath, previewPath, start); err != nil {
			g.logger.Warn("preview generation failed, reusing thumbnail",
				slog.String("error", err.Error()))
			if validArtifact(thumbnailPath) {
				if err := copyFile(thumbnailPath, previewPath); err != nil {
					g.staticFrame(ctx, inputPath, previewPath, start+5)
				}
			} else {
				g.staticFrame(ctx, inputPath, previewPath, start+5)
			}
		}
	} else {
		g.staticFrame(ctx, inputPath, previewPath, start+5)
	}

	// Final validation: anything missing or undecodable gets one more
	// static attempt, then the placeholder so downstream encryption always
	// has a file.
	for _, path := range []string{thumbnailPath, previewPath} {
		if validArtifact(path) {
			continue
		}
		g.logger.Warn("artifact invalid, regenerating", slog.String("path", path))
		g.staticFrame(ctx, inputPath, path, start)
		if !validArtifact(path) {
			g.logger.Warn("artifact invalid after all attempts, writing placeholder",
				slog.String("path", path))
			if err := os.WriteFile(path, cryptobox.PlaceholderWebP, 0o644); err != nil {
				return "", "", fmt.Errorf("writing placeholder %s: %w", path, err)
			}
		}
	}

	return thumbnailPath, previewPath, nil
}

// animatedThumbnail attempts the 3-second animated WebP. Returns true when
// the produced file is usable.
func (g *thumbnailer) animatedThumbnail(ctx context.Context, inputPath, outputPath string, start float64) bool {
	err := g.runner.Run(ctx, g.ffmpegPath,
		"-i", inputPath,
		"-ss", formatSeconds(start),
		"-t", strconv.Itoa(thumbDuration),
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1:flags=lanczos", thumbFPS, thumbWidth),
		"-c:v", "libwebp",
		"-lossless", "0",
		"-compression_level", strconv.Itoa(thumbCompression),
		"-quality", strconv.Itoa(thumbQuality),
		"-preset", "default",
		"-loop", "0",
		"-an",
		"-vsync", "0",
		"-y",
		outputPath,
	)
	if err != nil {
		g.logger.Warn("animated thumbnail failed", slog.String("error", err.Error()))
		return false
	}
	if !validArtifact(outputPath) {
		g.logger.Warn("animated thumbnail too small or undecodable",
			slog.String("path", outputPath))
		return false
	}
	return true
}

// previewFilter samples at one frame per second, scales, and then keeps
// every previewFPS-th frame of the sampled stream.
func previewFilter() string {
	return fmt.Sprintf("fps=1,scale=%d:-1:flags=lanczos,select='not(mod(n\\,%d))'",
		previewWidth, previewFPS)
}

// animatedPreview samples a ten second window into a short animation.
func (g *thumbnailer) animatedPreview(ctx context.Context, inputPath, outputPath string, start float64) error {
	err := g.runner.Run(ctx, g.ffmpegPath,
		"-i", inputPath,
		"-ss", formatSeconds(start),
		"-t", "10",
		"-vf", previewFilter(),
		"-frames:v", strconv.Itoa(previewMaxFrames),
		"-c:v", "libwebp",
		"-lossless", "0",
		"-compression_level", strconv.Itoa(thumbCompression),
		"-quality", strconv.Itoa(previewQuality),
		"-preset", "default",
		"-loop", "0",
		"-an",
		"-vsync", "0",
		"-y",
		outputPath,
	)
	if err != nil {
		return err
	}
	if !validArtifact(outputPath) {
		return fmt.Errorf("preview %s too small or undecodable", outputPath)
	}
	return nil
}

// staticFrame extracts a single frame, trying an explicit WebP encode first
// and falling back to FFmpeg's extension-inferred encoder.
func (g *thumbnailer) staticFrame(ctx context.Context, inputPath, outputPath string, start float64) {
	attempts := [][]string{
		{
			"-i", inputPath,
			"-ss", formatSeconds(start),
			"-vframes", "1",
			"-vf", fmt.Sprintf("scale=%d:-1:flags=lanczos", thumbWidth),
			"-c:v", "libwebp",
			"-lossless", "0",
			"-compression_level", strconv.Itoa(thumbCompression),
			"-quality", strconv.Itoa(thumbQuality),
			"-y",
			outputPath,
		},
		{
			"-i", inputPath,
			"-ss", formatSeconds(maxFloat(0, start-2)),
			"-vframes", "1",
			"-vf", fmt.Sprintf("scale=%d:-1:flags=lanczos", thumbWidth),
			"-y",
			outputPath,
		},
	}

	for i, args := range attempts {
		if err := g.runner.Run(ctx, g.ffmpegPath, args...); err != nil {
			g.logger.Warn("static frame attempt failed",
				slog.Int("attempt", i+1),
				slog.String("error", err.Error()),
			)
			continue
		}
		if validArtifact(outputPath) {
			return
		}
		g.logger.Warn("static frame attempt produced unusable file",
			slog.Int("attempt", i+1),
			slog.String("path", outputPath),
		)
	}
}

// validArtifact reports whether path holds a plausibly complete WebP: big
// enough to be a real encode and carrying a decodable header.
func validArtifact(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.Size() < minArtifactBytes {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	cfg, err := webp.DecodeConfig(f)
	return err == nil && cfg.Width > 0 && cfg.Height > 0
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// formatSeconds renders a seek offset the way FFmpeg expects it.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 2, 64)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
