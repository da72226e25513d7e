package vision

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// hsvRange is an inclusive HSV box on the OpenCV scale (H 0-180, S and V 0-255).
type hsvRange struct {
	lo, hi [3]float64
}

var colorTable = map[string]hsvRange{
	"紫色": {[3]float64{125, 50, 50}, [3]float64{145, 255, 255}},
	"灰色": {[3]float64{0, 0, 50}, [3]float64{180, 50, 255}},
	"粉色": {[3]float64{160, 50, 50}, [3]float64{180, 255, 255}},
	"蓝色": {[3]float64{100, 50, 50}, [3]float64{130, 255, 255}},
	"绿色": {[3]float64{40, 50, 50}, [3]float64{80, 255, 255}},
	"橙色": {[3]float64{10, 50, 50}, [3]float64{25, 255, 255}},
	"黄色": {[3]float64{25, 50, 50}, [3]float64{35, 255, 255}},
	"红色": {[3]float64{0, 50, 50}, [3]float64{10, 255, 255}},
}

var colorAliases = map[string]string{
	"purple": "紫色", "紫": "紫色",
	"gray": "灰色", "grey": "灰色", "灰": "灰色",
	"pink": "粉色", "粉": "粉色", "粉红色": "粉色",
	"blue": "蓝色", "蓝": "蓝色",
	"green": "绿色", "绿": "绿色",
	"orange": "橙色", "橙": "橙色",
	"yellow": "黄色", "黄": "黄色",
	"red": "红色", "红": "红色",
}

// CanonicalColor resolves a color name or alias to its table key.
func CanonicalColor(name string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if _, ok := colorTable[n]; ok {
		return n, true
	}
	if c, ok := colorAliases[n]; ok {
		return c, true
	}
	return "", false
}

// SupportedColors lists the color table keys.
func SupportedColors() []string {
	out := make([]string, 0, len(colorTable))
	for k := range colorTable {
		out = append(out, k)
	}
	return out
}

// toHSV converts 8-bit RGB to HSV on the OpenCV scale.
func toHSV(r, g, b uint8) (h, s, v float64) {
	rf, gf, bf := float64(r), float64(g), float64(b)
	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	v = max
	if max == 0 {
		return 0, 0, 0
	}
	delta := max - min
	s = 255 * delta / max
	if delta == 0 {
		return 0, s, v
	}
	var deg float64
	switch max {
	case rf:
		deg = 60 * (gf - bf) / delta
	case gf:
		deg = 120 + 60*(bf-rf)/delta
	default:
		deg = 240 + 60*(rf-gf)/delta
	}
	if deg < 0 {
		deg += 360
	}
	return deg / 2, s, v
}

func (r hsvRange) contains(h, s, v float64) bool {
	return h >= r.lo[0] && h <= r.hi[0] &&
		s >= r.lo[1] && s <= r.hi[1] &&
		v >= r.lo[2] && v <= r.hi[2]
}

// FindColorRegionCentroid thresholds img against the HSV range of colorName,
// takes the largest 8-connected component and returns its centroid.
// ErrNotFound is returned when that component is smaller than minArea.
func FindColorRegionCentroid(img image.Image, colorName string, minArea int) (Point, error) {
	key, ok := CanonicalColor(colorName)
	if !ok {
		return Point{}, fmt.Errorf("%w: color %q", ErrUnsupported, colorName)
	}
	rng := colorTable[key]
	b := img.Bounds()
	m := newMask(b.Dx(), b.Dy())
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			h, s, v := toHSV(rgb8(img.At(b.Min.X+x, b.Min.Y+y)))
			m.on[y*m.w+x] = rng.contains(h, s, v)
		}
	}
	c := largest(label(m))
	if c == nil || c.area < minArea {
		return Point{}, fmt.Errorf("%w: no %s region", ErrNotFound, key)
	}
	p := c.centroid()
	return Point{X: p.X + float64(b.Min.X), Y: p.Y + float64(b.Min.Y)}, nil
}
