package transcode

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"testing"
)

func testConfig() Config {
	return Config{MaxWidth: 1280, MaxHeight: 1280, Quality: 0.85}
}

func TestTargetSizeWidthBoundOnly(t *testing.T) {
	width, height := TargetSize(2000, 1000, 1280, 1280)
	if width != 1280 || height != 640 {
		t.Fatalf("expected 1280x640, got %dx%d", width, height)
	}
}

func TestTargetSizeHeightBoundOnly(t *testing.T) {
	width, height := TargetSize(1000, 2000, 1280, 1280)
	if width != 640 || height != 1280 {
		t.Fatalf("expected 640x1280, got %dx%d", width, height)
	}
}

func TestTargetSizeUnderCapsUnchanged(t *testing.T) {
	width, height := TargetSize(800, 600, 1280, 1280)
	if width != 800 || height != 600 {
		t.Fatalf("expected 800x600 untouched, got %dx%d", width, height)
	}
}

func TestTargetSizeBothCapsBindWidthFirst(t *testing.T) {
	// Width is corrected first (3000x1500 -> 1280x640), then the height cap
	// rescales from the already-capped pair (640 > 600 -> 1200x600).
	width, height := TargetSize(3000, 1500, 1280, 600)
	if width != 1200 || height != 600 {
		t.Fatalf("expected 1200x600, got %dx%d", width, height)
	}
}

func TestTargetSizeRoundsHalfUp(t *testing.T) {
	// 1280 / (1000/667) rounds to 854, not truncates to 853.
	width, height := TargetSize(2000, 1334, 1280, 1280)
	if width != 1280 || height != 854 {
		t.Fatalf("expected 1280x854, got %dx%d", width, height)
	}
}

func TestTranscodeScalesAndEncodesJPEG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2000, 1000))

	result, err := Transcode(src, testConfig())
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if result.Width != 1280 || result.Height != 640 {
		t.Fatalf("expected 1280x640, got %dx%d", result.Width, result.Height)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(result.JPEG))
	if err != nil {
		t.Fatalf("output does not decode: %v", err)
	}
	if format != "jpeg" {
		t.Fatalf("expected jpeg output, got %s", format)
	}
	if cfg.Width != 1280 || cfg.Height != 640 {
		t.Fatalf("encoded dimensions %dx%d, expected 1280x640", cfg.Width, cfg.Height)
	}
}

func TestTranscodeBase64MatchesPayload(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 300))

	result, err := Transcode(src, testConfig())
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(result.Base64)
	if err != nil {
		t.Fatalf("base64 does not decode: %v", err)
	}
	if !bytes.Equal(decoded, result.JPEG) {
		t.Fatal("base64 text does not round-trip to the encoded bytes")
	}
}

func TestTranscodeLeavesSmallImagesUnscaled(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 640, 480))

	result, err := Transcode(src, testConfig())
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if result.Width != 640 || result.Height != 480 {
		t.Fatalf("expected 640x480, got %dx%d", result.Width, result.Height)
	}

	cfg, err := jpegConfig(result.JPEG)
	if err != nil {
		t.Fatalf("output does not decode: %v", err)
	}
	if cfg.Width != 640 || cfg.Height != 480 {
		t.Fatalf("encoded dimensions %dx%d, expected 640x480", cfg.Width, cfg.Height)
	}
}

func TestEncoderQualityMapping(t *testing.T) {
	cases := []struct {
		quality float64
		want    int
	}{
		{0.85, 85},
		{1.0, 100},
		{0.004, 1},
		{1.5, 100},
	}
	for _, tc := range cases {
		if got := encoderQuality(tc.quality); got != tc.want {
			t.Fatalf("encoderQuality(%v) = %d, expected %d", tc.quality, got, tc.want)
		}
	}
}

func jpegConfig(data []byte) (image.Config, error) {
	return jpeg.DecodeConfig(bytes.NewReader(data))
}
