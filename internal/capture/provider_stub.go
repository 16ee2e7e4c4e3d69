//go:build !darwin

package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

func defaultProvider() Provider {
	return &syntheticProvider{}
}

// syntheticProvider generates a deterministic gradient frame on platforms
// without a native screenshot backend, so the rest of the pipeline can be
// exercised end to end.
type syntheticProvider struct{}

func (p *syntheticProvider) Sources(ctx context.Context, width, height int) ([]Source, error) {
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 800
	}
	return []Source{&syntheticSource{width: width, height: height}}, nil
}

type syntheticSource struct {
	width, height int
}

func (s *syntheticSource) Name() string { return "synthetic" }

func (s *syntheticSource) Frame() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / s.width),
				G: uint8(y * 255 / s.height),
				B: 96,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode synthetic frame: %w", err)
	}
	return buf.Bytes(), nil
}

// remediationHint names the likely fix for a capture failure on this
// platform, surfaced alongside the diagnostic.
func remediationHint() string {
	return "no native screenshot backend on this platform; the synthetic provider should not fail"
}
