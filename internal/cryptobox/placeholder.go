package cryptobox

// PlaceholderWebP is a minimal 1x1 black WebP image. It is emitted directly
// as the final fallback artifact when thumbnail generation fails, so the
// fallback path never re-enters the pipeline.
var PlaceholderWebP = []byte{
	0x52, 0x49, 0x46, 0x46, 0x24, 0x00, 0x00, 0x00, // RIFF....
	0x57, 0x45, 0x42, 0x50, 0x56, 0x50, 0x38, 0x20, // WEBPVP8<space>
	0x18, 0x00, 0x00, 0x00, 0x30, 0x01, 0x00, 0x9d,
	0x01, 0x2a, 0x01, 0x00, 0x01, 0x00, 0x01, 0x40,
	0x25, 0xa4, 0x00, 0x03, 0x70, 0x00, 0xfe, 0xfb,
	0x94, 0x00, 0x00,
}

// ZeroIV is the all-zero IV used when sealing the placeholder, making the
// placeholder artifact byte-stable across runs.
var ZeroIV = make([]byte, IVSize)

// SealedPlaceholder returns the encrypted placeholder artifact under the
// given key.
func SealedPlaceholder(key []byte) ([]byte, error) {
	return EncryptWithIV(key, ZeroIV, PlaceholderWebP)
}
