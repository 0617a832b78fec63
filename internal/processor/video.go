package processor

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
	"golang.org/x/sync/errgroup"

	"github.com/mediavault/mediavault/internal/ffmpeg"
	"github.com/mediavault/mediavault/internal/keystore"
)

// Video pipeline parameters.
const (
	videoPreset        = "veryfast"
	videoCRF           = 23
	audioBitrate       = "128k"
	segmentDuration    = 10
	manifestName       = "stream.m3u8"
	segmentNamePattern = "segment%03d.ts"
)

// hlsScaleFilter caps output at 1280x720 without upscaling, keeping both
// dimensions even for libx264.
const hlsScaleFilter = `scale=w=trunc(iw*min(1\,min(1280/iw\,720/ih))/2)*2:h=trunc(ih*min(1\,min(1280/iw\,720/ih))/2)*2`

// VideoResult describes the artifacts produced for a video asset. Paths are
// relative to the assets directory.
type VideoResult struct {
	Width         int
	Height        int
	Duration      float64
	StoragePath   string
	ThumbnailPath string
	PreviewPath   string
	IVHex         string
}

// VideoTransformer converts an intake video into an encrypted HLS stream
// plus thumbnail artifacts.
type VideoTransformer interface {
	Process(ctx context.Context, inputPath, videoID string, key []byte) (*VideoResult, error)
}

// hlsTransformer implements VideoTransformer by driving FFmpeg's native HLS
// encryption.
type hlsTransformer struct {
	assetsDir     string
	keys          *keystore.Keystore
	binaries      *ffmpeg.Binaries
	prober        *ffmpeg.Prober
	runner        *ffmpeg.Runner
	thumbs        *thumbnailer
	encodeTimeout time.Duration
	logger        *slog.Logger
}

// NewVideoTransformer creates the FFmpeg-backed video transformer writing
// under assetsDir/videos.
func NewVideoTransformer(assetsDir string, keys *keystore.Keystore, binaries *ffmpeg.Binaries, probeTimeout, encodeTimeout time.Duration, logger *slog.Logger) VideoTransformer {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "video-transformer"))
	return &hlsTransformer{
		assetsDir:     assetsDir,
		keys:          keys,
		binaries:      binaries,
		prober:        ffmpeg.NewProber(binaries.FFprobePath, probeTimeout, logger),
		runner:        ffmpeg.NewRunner(logger),
		thumbs:        newThumbnailer(binaries.FFmpegPath, logger),
		encodeTimeout: encodeTimeout,
		logger:        logger,
	}
}

func (t *hlsTransformer) Process(ctx context.Context, inputPath, videoID string, key []byte) (*VideoResult, error) {
	info, err := t.prober.ProbeVideo(ctx, inputPath)
	if err != nil {
		return nil, err
	}

	outputDir := filepath.Join(t.assetsDir, "videos", videoID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating video dir: %w", err)
	}

	ivHex, err := newSegmentIV()
	if err != nil {
		return nil, err
	}

	keyInfoPath, err := t.keys.WriteKeyInfo(videoID, ivHex)
	if err != nil {
		return nil, err
	}
	defer t.keys.RemoveKeyInfo(keyInfoPath)

	// Thumbnails render from the source in parallel with the encode.
	var thumbnailPath, previewPath string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		thumbnailPath, previewPath, err = t.thumbs.generate(gctx, inputPath, outputDir, info.Duration)
		return err
	})
	g.Go(func() error {
		return t.encodeHLS(gctx, inputPath, outputDir, keyInfoPath)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := verifyManifest(filepath.Join(outputDir, manifestName)); err != nil {
		return nil, err
	}

	if _, err := sealArtifact(key, thumbnailPath, t.logger); err != nil {
		return nil, err
	}
	if _, err := sealArtifact(key, previewPath, t.logger); err != nil {
		return nil, err
	}

	t.logger.Info("video processed",
		slog.String("video_id", videoID),
		slog.Int("width", info.Width),
		slog.Int("height", info.Height),
		slog.Float64("duration_seconds", info.Duration),
	)

	return &VideoResult{
		Width:         info.Width,
		Height:        info.Height,
		Duration:      info.Duration,
		StoragePath:   fmt.Sprintf("videos/%s/%s", videoID, manifestName),
		ThumbnailPath: fmt.Sprintf("videos/%s/thumbnail.webp%s", videoID, EncryptedSuffix),
		PreviewPath:   fmt.Sprintf("videos/%s/preview.webp%s", videoID, EncryptedSuffix),
		IVHex:         ivHex,
	}, nil
}

func (t *hlsTransformer) encodeHLS(ctx context.Context, inputPath, outputDir, keyInfoPath string) error {
	if t.encodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.encodeTimeout)
		defer cancel()
	}

	return t.runner.Run(ctx, t.binaries.FFmpegPath,
		"-i", inputPath,
		"-vf", hlsScaleFilter,
		"-c:v", "libx264",
		"-preset", videoPreset,
		"-crf", strconv.Itoa(videoCRF),
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-hls_time", strconv.Itoa(segmentDuration),
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(outputDir, segmentNamePattern),
		"-hls_key_info_file", keyInfoPath,
		"-hls_segment_type", "mpegts",
		"-hls_flags", "delete_segments+independent_segments",
		filepath.Join(outputDir, manifestName),
	)
}

// verifyManifest parses the produced playlist and confirms it is a media
// playlist with at least one segment and AES-128 encryption declared.
func verifyManifest(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading manifest %s: %w", path, err)
	}

	pl, err := playlist.Unmarshal(raw)
	if err != nil {
		return fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	media, ok := pl.(*playlist.Media)
	if !ok {
		return fmt.Errorf("manifest %s is not a media playlist", path)
	}
	if len(media.Segments) == 0 {
		return fmt.Errorf("manifest %s has no segments", path)
	}
	if !bytes.Contains(raw, []byte("#EXT-X-KEY:METHOD=AES-128")) {
		return fmt.Errorf("manifest %s missing AES-128 key declaration", path)
	}
	return nil
}

// newSegmentIV returns a fresh per-video IV for the HLS encryptor, hex
// encoded the way the key-info file wants it.
func newSegmentIV() (string, error) {
	iv := make([]byte, 16)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating segment IV: %w", err)
	}
	return hex.EncodeToString(iv), nil
}
