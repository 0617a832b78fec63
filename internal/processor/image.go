package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/h2non/bimg"
)

// Image pipeline parameters.
const (
	maxImageWidth  = 3840
	maxImageHeight = 2160
	imageQuality   = 85
	thumbWidth     = 320
	thumbQuality   = 75
)

// ImageResult describes the artifacts produced for an image asset. Paths are
// relative to the assets directory.
type ImageResult struct {
	Width         int
	Height        int
	StoragePath   string
	ThumbnailPath string
}

// ImageTransformer converts an intake image into encrypted WebP artifacts.
type ImageTransformer interface {
	Process(ctx context.Context, inputPath, imageID string, key []byte) (*ImageResult, error)
}

// bimgTransformer implements ImageTransformer on libvips.
type bimgTransformer struct {
	assetsDir string
	logger    *slog.Logger
}

// NewImageTransformer creates the libvips-backed image transformer writing
// under assetsDir/images.
func NewImageTransformer(assetsDir string, logger *slog.Logger) ImageTransformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &bimgTransformer{
		assetsDir: assetsDir,
		logger:    logger.With(slog.String("component", "image-transformer")),
	}
}

func (t *bimgTransformer) Process(ctx context.Context, inputPath, imageID string, key []byte) (*ImageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf, err := bimg.Read(inputPath)
	if err != nil {
		return nil, fmt.Errorf("reading image %s: %w", inputPath, err)
	}

	meta, err := bimg.Metadata(buf)
	if err != nil {
		return nil, fmt.Errorf("decoding image %s: %w", inputPath, err)
	}

	imagesDir := filepath.Join(t.assetsDir, "images")
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating images dir: %w", err)
	}

	mainPath := filepath.Join(imagesDir, imageID+".webp")
	thumbPath := filepath.Join(imagesDir, imageID+"_thumb.webp")

	width, height := fitWithin(meta.Size.Width, meta.Size.Height, maxImageWidth, maxImageHeight)
	mainOpts := bimg.Options{
		Type:    bimg.WEBP,
		Quality: imageQuality,
	}
	if width != meta.Size.Width || height != meta.Size.Height {
		mainOpts.Width = width
		mainOpts.Height = height
	}
	if meta.Alpha {
		// Transparency is flattened onto white before the lossy encode.
		mainOpts.Flatten = true
		mainOpts.Background = bimg.Color{R: 255, G: 255, B: 255}
	}

	mainBuf, err := bimg.NewImage(buf).Process(mainOpts)
	if err != nil {
		return nil, fmt.Errorf("converting image %s: %w", inputPath, err)
	}
	if err := bimg.Write(mainPath, mainBuf); err != nil {
		return nil, fmt.Errorf("writing %s: %w", mainPath, err)
	}

	thumbOpts := bimg.Options{
		Type:    bimg.WEBP,
		Quality: thumbQuality,
		Width:   thumbWidth,
	}
	if meta.Alpha {
		thumbOpts.Flatten = true
		thumbOpts.Background = bimg.Color{R: 255, G: 255, B: 255}
	}
	thumbBuf, err := bimg.NewImage(buf).Process(thumbOpts)
	if err != nil {
		return nil, fmt.Errorf("generating thumbnail for %s: %w", inputPath, err)
	}
	if err := bimg.Write(thumbPath, thumbBuf); err != nil {
		return nil, fmt.Errorf("writing %s: %w", thumbPath, err)
	}

	if _, err := sealArtifact(key, mainPath, t.logger); err != nil {
		return nil, err
	}
	if _, err := sealArtifact(key, thumbPath, t.logger); err != nil {
		return nil, err
	}

	t.logger.Info("image processed",
		slog.String("image_id", imageID),
		slog.Int("width", width),
		slog.Int("height", height),
	)

	return &ImageResult{
		Width:         width,
		Height:        height,
		StoragePath:   fmt.Sprintf("images/%s.webp%s", imageID, EncryptedSuffix),
		ThumbnailPath: fmt.Sprintf("images/%s_thumb.webp%s", imageID, EncryptedSuffix),
	}, nil
}

// fitWithin shrinks (w, h) proportionally so both fit inside (maxW, maxH).
// Dimensions already inside the bounds are returned unchanged.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scaleW := float64(maxW) / float64(w)
	scaleH := float64(maxH) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	outW := int(float64(w) * scale)
	outH := int(float64(h) * scale)
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}
	return outW, outH
}
