package transcode

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	"math"

	"github.com/disintegration/imaging"
)

// ErrEncodeFailed reports that the JPEG encoder produced no output.
var ErrEncodeFailed = errors.New("image re-encode produced no output")

// Config bounds the output resolution and sets the JPEG quality on a 0-1 scale.
type Config struct {
	MaxWidth  int
	MaxHeight int
	Quality   float64
}

// Result is the re-encoded image plus its transfer-ready text form.
type Result struct {
	JPEG   []byte
	Base64 string
	Width  int
	Height int
}

// TargetSize computes the capped output dimensions. Width is corrected
// first, then height; when both caps bind the final pair follows the
// height correction and may deviate slightly from the ideal aspect fit.
func TargetSize(origWidth, origHeight, maxWidth, maxHeight int) (int, int) {
	aspect := float64(origWidth) / float64(origHeight)

	width, height := origWidth, origHeight
	if width > maxWidth {
		width = maxWidth
		height = int(math.Round(float64(width) / aspect))
	}
	if height > maxHeight {
		height = maxHeight
		width = int(math.Round(float64(height) * aspect))
	}
	return width, height
}

// Transcode scales the decoded image into the configured bounds and
// re-encodes it as JPEG, returning both the bytes and their base64 text.
func Transcode(img image.Image, cfg Config) (*Result, error) {
	bounds := img.Bounds()
	targetWidth, targetHeight := TargetSize(bounds.Dx(), bounds.Dy(), cfg.MaxWidth, cfg.MaxHeight)

	scaled := img
	if targetWidth != bounds.Dx() || targetHeight != bounds.Dy() {
		scaled = imaging.Resize(img, targetWidth, targetHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: encoderQuality(cfg.Quality)}); err != nil {
		return nil, errors.Join(ErrEncodeFailed, err)
	}
	if buf.Len() == 0 {
		return nil, ErrEncodeFailed
	}

	encoded := buf.Bytes()
	return &Result{
		JPEG:   encoded,
		Base64: base64.StdEncoding.EncodeToString(encoded),
		Width:  targetWidth,
		Height: targetHeight,
	}, nil
}

// encoderQuality maps the 0-1 quality scale onto the encoder's 1-100 range.
func encoderQuality(quality float64) int {
	q := int(math.Round(quality * 100))
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}
	return q
}
