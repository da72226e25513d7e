package vision

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

const glyphSize = 32

// GlyphSet holds normalized reference renderings per character.
type GlyphSet struct {
	templates map[rune][][]float64
}

// NewGlyphSet builds a set from reference images keyed by character.
func NewGlyphSet(refs map[rune][]image.Image) *GlyphSet {
	gs := &GlyphSet{templates: make(map[rune][][]float64, len(refs))}
	for r, imgs := range refs {
		for _, img := range imgs {
			if v, ok := normalizeGlyph(img, img.Bounds()); ok {
				gs.templates[r] = append(gs.templates[r], v)
			}
		}
	}
	return gs
}

// LoadGlyphSet reads every image in dir. The character is the first rune of
// the file name, so "字.png" and "字_2.png" both describe 字.
func LoadGlyphSet(dir string) (*GlyphSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read glyph dir: %w", err)
	}
	refs := map[rune][]image.Image{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".png" && ext != ".jpg" && ext != ".jpeg" && ext != ".gif" {
			continue
		}
		r, _ := utf8.DecodeRuneInString(e.Name())
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		img, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		refs[r] = append(refs[r], img)
	}
	return NewGlyphSet(refs), nil
}

// Len is the number of characters with at least one template.
func (g *GlyphSet) Len() int {
	if g == nil {
		return 0
	}
	return len(g.templates)
}

// CharMatch is a classified character region.
type CharMatch struct {
	Char   rune
	Center Point
	Box    image.Rectangle
	Score  float64
}

// ClassifyOptions tunes ClassifyCharacterRegions.
type ClassifyOptions struct {
	// Margin expands each box before classification. Zero uses 10 pixels.
	Margin int
	// MinScore is the minimum template correlation. Zero uses 0.5.
	MinScore float64
}

// ClassifyCharacterRegions classifies each detected box against the expected
// characters and returns matches ordered by expected. Each character and
// each box is used at most once; boxes that match nothing are dropped, so
// callers must treat a short result as failure.
func ClassifyCharacterRegions(img image.Image, boxes []image.Rectangle, expected []rune, glyphs *GlyphSet, opts ClassifyOptions) []CharMatch {
	if opts.Margin <= 0 {
		opts.Margin = 10
	}
	if opts.MinScore <= 0 {
		opts.MinScore = 0.5
	}
	if glyphs == nil || len(expected) == 0 {
		return nil
	}

	type cand struct {
		box, char int
		score     float64
	}
	var cands []cand
	bounds := img.Bounds()
	for bi, box := range boxes {
		region := image.Rect(box.Min.X-opts.Margin, box.Min.Y-opts.Margin, box.Max.X+opts.Margin, box.Max.Y+opts.Margin).Intersect(bounds)
		v, ok := normalizeGlyph(img, region)
		if !ok {
			continue
		}
		for ci, r := range expected {
			best := math.Inf(-1)
			for _, t := range glyphs.templates[r] {
				if s := correlate(v, t); s > best {
					best = s
				}
			}
			if best >= opts.MinScore {
				cands = append(cands, cand{box: bi, char: ci, score: best})
			}
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })

	usedBox := map[int]bool{}
	assigned := make([]*CharMatch, len(expected))
	for _, c := range cands {
		if usedBox[c.box] || assigned[c.char] != nil {
			continue
		}
		usedBox[c.box] = true
		box := boxes[c.box]
		assigned[c.char] = &CharMatch{
			Char:   expected[c.char],
			Box:    box,
			Score:  c.score,
			Center: Point{X: float64(box.Min.X+box.Max.X) / 2, Y: float64(box.Min.Y+box.Max.Y) / 2},
		}
	}
	out := make([]CharMatch, 0, len(expected))
	for _, m := range assigned {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out
}

// DetectGlyphBoxes finds candidate character boxes: dark or strongly
// contrasting strokes, dilated so multi-stroke characters merge, with
// components below minArea dropped. Boxes are sorted left to right.
func DetectGlyphBoxes(img image.Image, minArea int) []image.Rectangle {
	if minArea <= 0 {
		minArea = 40
	}
	b := img.Bounds()
	ink := inkMask(img, b)
	grown := dilate(ink, 2)
	var boxes []image.Rectangle
	for _, c := range label(grown) {
		// Count only original ink inside the grown region.
		n := 0
		for _, p := range c.pixels {
			if ink.get(p.X, p.Y) {
				n++
			}
		}
		if n < minArea {
			continue
		}
		boxes = append(boxes, c.bounds.Add(b.Min))
	}
	sort.Slice(boxes, func(i, j int) bool { return boxes[i].Min.X < boxes[j].Min.X })
	return boxes
}

// inkMask binarizes region with Otsu's threshold; the darker class is ink.
func inkMask(img image.Image, region image.Rectangle) *mask {
	w, h := region.Dx(), region.Dy()
	gray := make([]float64, w*h)
	var hist [256]int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl := rgb8(img.At(region.Min.X+x, region.Min.Y+y))
			l := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)
			gray[y*w+x] = l
			hist[int(l)]++
		}
	}
	t := otsu(hist[:], w*h)
	m := newMask(w, h)
	for i, l := range gray {
		m.on[i] = float64(int(l)) <= t
	}
	// A flat region has no ink.
	if t < 0 {
		for i := range m.on {
			m.on[i] = false
		}
	}
	return m
}

// otsu returns the threshold maximizing between-class variance, or -1 when
// the histogram has a single populated bin.
func otsu(hist []int, total int) float64 {
	var sum float64
	populated := 0
	for i, c := range hist {
		sum += float64(i * c)
		if c > 0 {
			populated++
		}
	}
	if populated < 2 {
		return -1
	}
	var sumB, wB float64
	best, bestT := -1.0, 0
	for t := 0; t < len(hist); t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best, bestT = between, t
		}
	}
	return float64(bestT)
}

// normalizeGlyph binarizes region, crops to the ink, pads to a square and
// resamples to glyphSize x glyphSize by area averaging.
func normalizeGlyph(img image.Image, region image.Rectangle) ([]float64, bool) {
	if region.Empty() {
		return nil, false
	}
	ink := inkMask(img, region)
	minX, minY, maxX, maxY := ink.w, ink.h, -1, -1
	for y := 0; y < ink.h; y++ {
		for x := 0; x < ink.w; x++ {
			if !ink.on[y*ink.w+x] {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < 0 {
		return nil, false
	}
	cw, ch := maxX-minX+1, maxY-minY+1
	side := cw
	if ch > side {
		side = ch
	}
	offX := minX - (side-cw)/2
	offY := minY - (side-ch)/2

	out := make([]float64, glyphSize*glyphSize)
	scale := float64(side) / glyphSize
	for gy := 0; gy < glyphSize; gy++ {
		for gx := 0; gx < glyphSize; gx++ {
			x0, x1 := float64(gx)*scale, float64(gx+1)*scale
			y0, y1 := float64(gy)*scale, float64(gy+1)*scale
			var acc, n float64
			for sy := int(y0); float64(sy) < y1; sy++ {
				for sx := int(x0); float64(sx) < x1; sx++ {
					n++
					if ink.get(offX+sx, offY+sy) {
						acc++
					}
				}
			}
			if n > 0 {
				out[gy*glyphSize+gx] = acc / n
			}
		}
	}
	return out, true
}

// correlate is the Pearson correlation of two equal-length vectors.
func correlate(a, b []float64) float64 {
	var ma, mb float64
	for i := range a {
		ma += a[i]
		mb += b[i]
	}
	ma /= float64(len(a))
	mb /= float64(len(b))
	var num, da, db float64
	for i := range a {
		x, y := a[i]-ma, b[i]-mb
		num += x * y
		da += x * x
		db += y * y
	}
	if da == 0 || db == 0 {
		return 0
	}
	return num / math.Sqrt(da*db)
}
