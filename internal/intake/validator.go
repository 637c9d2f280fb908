package intake

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	// Registered decoders match the default MIME allow-list.
	_ "image/jpeg"
	_ "image/png"
)

// RejectReason identifies why a candidate was refused.
type RejectReason string

const (
	RejectOversize        RejectReason = "oversize"
	RejectUnsupportedType RejectReason = "unsupported_type"
	RejectTooSmall        RejectReason = "too_small"
	RejectDecodeFailed    RejectReason = "decode_failed"
)

// Config bounds what the validator accepts.
type Config struct {
	MaxBytes         int
	AllowedMIMETypes []string
	MinDimension     int
}

// Candidate is a user-supplied file awaiting validation. It lives only for
// the duration of a single transfer cycle.
type Candidate struct {
	Data     []byte
	MIMEType string
}

// Accepted carries the decoded image so the transcoder does not decode twice.
type Accepted struct {
	Image  image.Image
	Width  int
	Height int
	Format string
}

// RejectError reports a failed validation with a user-presentable message.
type RejectError struct {
	Reason  RejectReason
	Width   int
	Height  int
	Message string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("intake rejected (%s): %s", e.Reason, e.Message)
}

// UserMessage returns the text safe to surface to the uploader.
func (e *RejectError) UserMessage() string {
	return e.Message
}

// Validate checks the candidate against the configured limits. The byte cap
// and MIME allow-list are checked before any decode work happens.
func Validate(cand Candidate, cfg Config) (*Accepted, error) {
	if len(cand.Data) > cfg.MaxBytes {
		return nil, &RejectError{
			Reason:  RejectOversize,
			Message: fmt.Sprintf("image exceeds the %d byte limit", cfg.MaxBytes),
		}
	}

	if !mimeAllowed(cand.MIMEType, cfg.AllowedMIMETypes) {
		return nil, &RejectError{
			Reason:  RejectUnsupportedType,
			Message: fmt.Sprintf("unsupported image type %q, accepted types: %s", cand.MIMEType, strings.Join(cfg.AllowedMIMETypes, ", ")),
		}
	}

	img, format, err := image.Decode(bytes.NewReader(cand.Data))
	if err != nil {
		return nil, &RejectError{
			Reason:  RejectDecodeFailed,
			Message: "cannot process image",
		}
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < cfg.MinDimension || height < cfg.MinDimension {
		return nil, &RejectError{
			Reason:  RejectTooSmall,
			Width:   width,
			Height:  height,
			Message: fmt.Sprintf("image is %dx%d, both dimensions must be at least %d", width, height, cfg.MinDimension),
		}
	}

	return &Accepted{Image: img, Width: width, Height: height, Format: format}, nil
}

func mimeAllowed(mimeType string, allowed []string) bool {
	for _, candidate := range allowed {
		if strings.EqualFold(candidate, mimeType) {
			return true
		}
	}
	return false
}
