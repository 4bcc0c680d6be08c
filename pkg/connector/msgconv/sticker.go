// Copyright 2024-2026 Aiku AI

package msgconv

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kettek/apng"
)

// StickerOptions controls the animated sticker transcode. Stickers arrive as
// APNG, which the target protocol cannot render; they are re-encoded as a
// looping GIF. GIF has no alpha channel, so any pixel whose alpha falls below
// AlphaThreshold is substituted with the TransparencyKey color, which becomes
// the GIF transparent index.
type StickerOptions struct {
	AlphaThreshold  uint8
	TransparencyKey color.NRGBA
}

// DefaultStickerOptions mirrors the community sticker renderer: alpha below
// 200 keys out to magenta.
func DefaultStickerOptions() StickerOptions {
	return StickerOptions{
		AlphaThreshold:  200,
		TransparencyKey: color.NRGBA{R: 0xFF, G: 0x00, B: 0xFF, A: 0xFF},
	}
}

// convertSticker downloads the sticker economy asset and transcodes it.
func (c *Converter) convertSticker(ctx context.Context, stickerType string) ([]byte, error) {
	if stickerType == "" {
		return nil, fmt.Errorf("sticker node has no type attribute")
	}
	assetURL := strings.TrimSuffix(c.StickerBaseURL, "/") + "/" + url.PathEscape(stickerType)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build sticker request: %w", err)
	}
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download sticker %q: %w", stickerType, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download sticker %q: status %d", stickerType, resp.StatusCode)
	}
	return APNGToGIF(resp.Body, c.Sticker)
}

// APNG dispose and blend operation codes.
const (
	apngDisposeNone       = 0
	apngDisposeBackground = 1
	apngDisposePrevious   = 2
	apngBlendSource       = 0
)

// APNGToGIF re-encodes an animated PNG as a looping GIF, compositing each
// frame onto a shared canvas and substituting the transparency key for
// low-alpha pixels. A plain single-frame PNG yields a single-frame GIF.
func APNGToGIF(r io.Reader, opts StickerOptions) ([]byte, error) {
	a, err := apng.DecodeAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode APNG: %w", err)
	}
	frames := make([]apng.Frame, 0, len(a.Frames))
	for _, f := range a.Frames {
		if f.IsDefault {
			continue
		}
		frames = append(frames, f)
	}
	if len(frames) == 0 {
		frames = a.Frames
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("APNG contains no frames")
	}

	bounds := frames[0].Image.Bounds().Add(image.Pt(frames[0].XOffset, frames[0].YOffset))
	canvas := image.NewNRGBA(image.Rect(0, 0, bounds.Max.X, bounds.Max.Y))
	pal := stickerPalette(opts.TransparencyKey)

	out := &gif.GIF{LoopCount: 0}
	for _, f := range frames {
		prev := image.NewNRGBA(canvas.Bounds())
		copy(prev.Pix, canvas.Pix)

		fb := f.Image.Bounds()
		target := image.Rect(f.XOffset, f.YOffset, f.XOffset+fb.Dx(), f.YOffset+fb.Dy())
		op := draw.Over
		if f.BlendOp == apngBlendSource {
			op = draw.Src
		}
		draw.Draw(canvas, target, f.Image, fb.Min, op)

		out.Image = append(out.Image, quantizeFrame(canvas, pal, opts.AlphaThreshold))
		out.Delay = append(out.Delay, frameDelay(f))
		out.Disposal = append(out.Disposal, gif.DisposalBackground)

		switch f.DisposeOp {
		case apngDisposeBackground:
			draw.Draw(canvas, target, image.Transparent, image.Point{}, draw.Src)
		case apngDisposePrevious:
			copy(canvas.Pix, prev.Pix)
		case apngDisposeNone:
		}
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode GIF: %w", err)
	}
	return buf.Bytes(), nil
}

// stickerPalette returns a 256-color palette whose first entry is the fully
// transparent key color.
func stickerPalette(key color.NRGBA) color.Palette {
	pal := make(color.Palette, 0, 256)
	pal = append(pal, color.NRGBA{R: key.R, G: key.G, B: key.B, A: 0})
	pal = append(pal, palette.Plan9[:255]...)
	return pal
}

// quantizeFrame maps the canvas into the sticker palette. Pixels under the
// alpha threshold go to the transparent key index.
func quantizeFrame(canvas *image.NRGBA, pal color.Palette, threshold uint8) *image.Paletted {
	b := canvas.Bounds()
	dst := image.NewPaletted(b, pal)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			px := canvas.NRGBAAt(x, y)
			if px.A < threshold {
				dst.SetColorIndex(x, y, 0)
				continue
			}
			px.A = 0xFF
			dst.SetColorIndex(x, y, uint8(pal.Index(px)))
		}
	}
	return dst
}

// frameDelay converts an APNG delay fraction to GIF hundredths of a second.
func frameDelay(f apng.Frame) int {
	den := int(f.DelayDenominator)
	if den == 0 {
		den = 100
	}
	return int(f.DelayNumerator) * 100 / den
}
