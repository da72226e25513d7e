// Package vision holds the pure image analysis used to answer login
// challenges. Every function is deterministic and works in image pixel
// coordinates; callers scale to on-screen coordinates with Scale.
package vision

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"
)

var (
	// ErrNotFound means no candidate cleared the acceptance threshold.
	ErrNotFound = errors.New("vision: no match")
	// ErrUnsupported means the requested color or shape is outside the vocabulary.
	ErrUnsupported = errors.New("vision: unsupported target")
)

// Point is a sub-pixel location.
type Point struct {
	X, Y float64
}

// In reports whether p lies inside r (inclusive of the max edge).
func (p Point) In(r image.Rectangle) bool {
	return p.X >= float64(r.Min.X) && p.X <= float64(r.Max.X) &&
		p.Y >= float64(r.Min.Y) && p.Y <= float64(r.Max.Y)
}

// Scale maps p from an image of natural size to the same image rendered at
// displayed size, linearly per axis.
func Scale(p Point, natural, displayed image.Point) Point {
	out := p
	if natural.X > 0 {
		out.X = p.X * float64(displayed.X) / float64(natural.X)
	}
	if natural.Y > 0 {
		out.Y = p.Y * float64(displayed.Y) / float64(natural.Y)
	}
	return out
}

// DecodeDataURI decodes an <img src> value carrying base64 image data. A bare
// base64 payload without the data: prefix is accepted too.
func DecodeDataURI(src string) (image.Image, error) {
	payload := strings.TrimSpace(src)
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx < 0 {
			return nil, fmt.Errorf("vision: malformed data uri")
		}
		payload = payload[idx+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("vision: decode base64: %w", err)
	}
	return Decode(raw)
}

// Decode decodes PNG, JPEG or GIF bytes.
func Decode(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("vision: decode image: %w", err)
	}
	return img, nil
}

// plane is a dense float grid used for gradient and correlation work.
type plane struct {
	w, h int
	v    []float64
}

func newPlane(w, h int) *plane { return &plane{w: w, h: h, v: make([]float64, w*h)} }

func (p *plane) at(x, y int) float64 { return p.v[y*p.w+x] }

func (p *plane) set(x, y int, f float64) { p.v[y*p.w+x] = f }

// grayPlane converts img to luminance. Transparent pixels become black so a
// cut-out piece keeps a hard outline.
func grayPlane(img image.Image) *plane {
	b := img.Bounds()
	p := newPlane(b.Dx(), b.Dy())
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			r, g, bl, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			if a == 0 {
				continue
			}
			// RGBA() is alpha premultiplied, so partially transparent edges fade to black.
			lum := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
			p.set(x, y, lum)
		}
	}
	return p
}

// sobel returns the gradient magnitude of p with replicated borders.
func sobel(p *plane) *plane {
	out := newPlane(p.w, p.h)
	clamp := func(v, hi int) int {
		if v < 0 {
			return 0
		}
		if v >= hi {
			return hi - 1
		}
		return v
	}
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			at := func(dx, dy int) float64 { return p.at(clamp(x+dx, p.w), clamp(y+dy, p.h)) }
			gx := -at(-1, -1) - 2*at(-1, 0) - at(-1, 1) + at(1, -1) + 2*at(1, 0) + at(1, 1)
			gy := -at(-1, -1) - 2*at(0, -1) - at(1, -1) + at(-1, 1) + 2*at(0, 1) + at(1, 1)
			out.set(x, y, math.Hypot(gx, gy))
		}
	}
	return out
}

// alphaBounds returns the bounding box of pixels with non-zero alpha, in
// image-relative coordinates. Fully opaque images return their full extent.
func alphaBounds(img image.Image) (image.Rectangle, bool) {
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Dx(), b.Dy(), -1, -1
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			_, _, _, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			if a == 0 {
				continue
			}
			if x < minX {
				minX = x
			}
			if y < minY {
				minY = y
			}
			if x > maxX {
				maxX = x
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < 0 {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

func rgb8(c color.Color) (uint8, uint8, uint8) {
	r, g, b, _ := c.RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}
