package thumbnail

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-asset/pkg/simpleasset"
)

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestSeekFor(t *testing.T) {
	tests := []struct {
		duration time.Duration
		want     time.Duration
	}{
		{0, 0},
		{2 * time.Second, 0},
		{2*time.Second + time.Millisecond, time.Second},
		{10 * time.Minute, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, seekFor(tt.duration), "duration %s", tt.duration)
	}
}

func TestParseProbe(t *testing.T) {
	t.Run("Video", func(t *testing.T) {
		out := []byte(`{"streams":[{"width":1920,"height":1080}],"format":{"duration":"12.500000"}}`)
		res, err := parseProbe(out)
		require.NoError(t, err)
		assert.Equal(t, 1920, res.width)
		assert.Equal(t, 1080, res.height)
		assert.Equal(t, 12500*time.Millisecond, res.duration)
	})

	t.Run("NoVideoStream", func(t *testing.T) {
		_, err := parseProbe([]byte(`{"streams":[],"format":{"duration":"3.0"}}`))
		assert.Error(t, err)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := parseProbe([]byte("not json"))
		assert.Error(t, err)
	})
}

func TestFFmpeg_FailsOnNonMedia(t *testing.T) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a video"), 0644))

	_, err := NewFFmpeg("", "", 10*time.Second).ExtractThumbnail(context.Background(), path)
	assert.Error(t, err)
}

func TestFFmpeg_MissingBinary(t *testing.T) {
	gen := NewFFmpeg("/nonexistent/ffmpeg", "/nonexistent/ffprobe", time.Second)
	_, err := gen.ExtractThumbnail(context.Background(), "/tmp/whatever.mp4")
	assert.Error(t, err)
}

func TestImage_ScalesDown(t *testing.T) {
	path := writePNG(t, 200, 100)

	thumb, err := NewImage(50, 0).ExtractThumbnail(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", thumb.ContentType)
	assert.Equal(t, 200, thumb.Width)
	assert.Equal(t, 100, thumb.Height)
	assert.Equal(t, "200x100", thumb.Resolution())

	decoded, err := jpeg.Decode(bytes.NewReader(thumb.Image))
	require.NoError(t, err)
	assert.Equal(t, 50, decoded.Bounds().Dx())
	assert.Equal(t, 25, decoded.Bounds().Dy())
}

func TestImage_RejectsNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.bin")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0644))

	_, err := NewImage(0, 0).ExtractThumbnail(context.Background(), path)
	assert.Error(t, err)
}

// writeOversizedPNG writes a tiny PNG whose header claims width x height RGBA pixels.
func writeOversizedPNG(t *testing.T, width, height uint32) string {
	t.Helper()
	chunk := func(typ string, data []byte) []byte {
		var b bytes.Buffer
		_ = binary.Write(&b, binary.BigEndian, uint32(len(data)))
		b.WriteString(typ)
		b.Write(data)
		_ = binary.Write(&b, binary.BigEndian, crc32.ChecksumIEEE(append([]byte(typ), data...)))
		return b.Bytes()
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], width)
	binary.BigEndian.PutUint32(ihdr[4:8], height)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	buf.Write(chunk("IHDR", ihdr))
	buf.Write(chunk("IDAT", []byte{0}))
	buf.Write(chunk("IEND", nil))

	path := filepath.Join(t.TempDir(), "huge.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestImage_RejectsOversizedHeader(t *testing.T) {
	path := writeOversizedPNG(t, 12000, 12000)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := NewImage(640, 0).ExtractThumbnail(context.Background(), path)
	runtime.ReadMemStats(&after)

	assert.ErrorIs(t, err, ErrImageTooLarge)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(16<<20))
}

func TestImage_PixelLimit(t *testing.T) {
	path := writePNG(t, 200, 100)

	_, err := NewImage(50, 200*100-1).ExtractThumbnail(context.Background(), path)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	thumb, err := NewImage(50, 200*100).ExtractThumbnail(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 200, thumb.Width)
}

func TestRouter(t *testing.T) {
	videoErr := errors.New("video called")
	video := simpleasset.ThumbnailGeneratorFunc(func(ctx context.Context, p string) (*simpleasset.Thumbnail, error) {
		return nil, videoErr
	})

	r := NewRouter(video, NewImage(32, 0))

	t.Run("ImageGoesToImageGenerator", func(t *testing.T) {
		thumb, err := r.ExtractThumbnail(context.Background(), writePNG(t, 64, 64))
		require.NoError(t, err)
		assert.NotEmpty(t, thumb.Image)
	})

	t.Run("TextIsRejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.txt")
		require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))
		_, err := r.ExtractThumbnail(context.Background(), path)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, videoErr)
	})

	t.Run("NoGenerators", func(t *testing.T) {
		r := NewRouter(nil, nil)
		_, err := r.ExtractThumbnail(context.Background(), writePNG(t, 8, 8))
		assert.Error(t, err)
	})
}
