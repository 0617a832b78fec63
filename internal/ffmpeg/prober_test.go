package ffmpeg

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProbeOutput = `{
  "streams": [
    {
      "index": 0,
      "codec_name": "aac",
      "codec_type": "audio"
    },
    {
      "index": 1,
      "codec_name": "h264",
      "codec_type": "video",
      "width": 1920,
      "height": 1080,
      "pix_fmt": "yuv420p",
      "duration": "120.500000"
    }
  ],
  "format": {
    "format_name": "mov,mp4,m4a,3gp,3g2,mj2",
    "duration": "120.533333",
    "size": "10485760",
    "bit_rate": "696254"
  }
}`

func TestProbeResult_FirstVideoStream(t *testing.T) {
	var result ProbeResult
	require.NoError(t, json.Unmarshal([]byte(sampleProbeOutput), &result))

	stream, ok := result.FirstVideoStream()
	require.True(t, ok)
	assert.Equal(t, 1, stream.Index)
	assert.Equal(t, "h264", stream.CodecName)
	assert.Equal(t, 1920, stream.Width)
	assert.Equal(t, 1080, stream.Height)
}

func TestProbeResult_VideoInfo(t *testing.T) {
	var result ProbeResult
	require.NoError(t, json.Unmarshal([]byte(sampleProbeOutput), &result))

	info, err := result.VideoInfo()
	require.NoError(t, err)
	assert.Equal(t, "h264", info.Codec)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.InDelta(t, 120.5, info.Duration, 0.001)
}

func TestProbeResult_VideoInfo_FormatDurationFallback(t *testing.T) {
	result := ProbeResult{
		Streams: []ProbeStream{
			{Index: 0, CodecName: "vp9", CodecType: "video", Width: 640, Height: 480},
		},
		Format: ProbeFormat{Duration: "33.25"},
	}

	info, err := result.VideoInfo()
	require.NoError(t, err)
	assert.InDelta(t, 33.25, info.Duration, 0.001)
}

func TestProbeResult_VideoInfo_NoVideoStream(t *testing.T) {
	result := ProbeResult{
		Streams: []ProbeStream{
			{Index: 0, CodecName: "mp3", CodecType: "audio"},
		},
	}

	_, err := result.VideoInfo()
	assert.ErrorIs(t, err, ErrNoVideoStream)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"", 0},
		{"garbage", 0},
		{"0", 0},
		{"12.5", 12.5},
		{"3600.000000", 3600},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseDuration(tt.input))
		})
	}
}
