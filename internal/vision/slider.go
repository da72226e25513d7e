package vision

import (
	"fmt"
	"image"
	"math"
)

// SliderOptions tunes FindSliderOffset.
type SliderOptions struct {
	// MinScore is the minimum normalized cross-correlation accepted. Zero uses 0.3.
	MinScore float64
	// Top is the vertical position of the piece image inside the background.
	// Negative means the piece image is aligned with the background top.
	Top int
}

// SliderMatch is the best placement of the piece over the background.
type SliderMatch struct {
	// Offset is how far the piece image must move right to cover the gap.
	Offset int
	// PieceLeft is the first opaque column of the piece image.
	PieceLeft int
	Score     float64
}

// FindSliderOffset slides the opaque part of piece horizontally across
// background and returns the displacement with the highest normalized
// cross-correlation of gradient magnitudes. Ties resolve to the smallest
// offset. ErrNotFound is returned when the best score is below MinScore.
func FindSliderOffset(piece, background image.Image, opts SliderOptions) (SliderMatch, error) {
	minScore := opts.MinScore
	if minScore <= 0 {
		minScore = 0.3
	}
	top := opts.Top
	if top < 0 {
		top = 0
	}

	box, ok := alphaBounds(piece)
	if !ok {
		return SliderMatch{}, fmt.Errorf("%w: piece is fully transparent", ErrNotFound)
	}
	// Keep a one pixel frame so the outline edge is part of the template.
	pw, ph := piece.Bounds().Dx(), piece.Bounds().Dy()
	box = image.Rect(box.Min.X-1, box.Min.Y-1, box.Max.X+1, box.Max.Y+1).Intersect(image.Rect(0, 0, pw, ph))

	bgGrad := sobel(grayPlane(background))
	pcGrad := sobel(grayPlane(piece))

	tw, th := box.Dx(), box.Dy()
	rowStart := top + box.Min.Y
	if rowStart+th > bgGrad.h || tw > bgGrad.w {
		return SliderMatch{}, fmt.Errorf("%w: piece does not fit background", ErrNotFound)
	}

	tmpl := make([]float64, 0, tw*th)
	var tMean float64
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			v := pcGrad.at(x, y)
			tmpl = append(tmpl, v)
			tMean += v
		}
	}
	tMean /= float64(len(tmpl))
	var tVar float64
	for i := range tmpl {
		tmpl[i] -= tMean
		tVar += tmpl[i] * tmpl[i]
	}
	if tVar == 0 {
		return SliderMatch{}, fmt.Errorf("%w: piece has no texture", ErrNotFound)
	}

	best := SliderMatch{Score: math.Inf(-1), PieceLeft: box.Min.X}
	bestX := -1
	n := float64(tw * th)
	for x0 := 0; x0+tw <= bgGrad.w; x0++ {
		var sum, sumSq, cross float64
		i := 0
		for y := 0; y < th; y++ {
			row := (rowStart + y) * bgGrad.w
			for x := 0; x < tw; x++ {
				v := bgGrad.v[row+x0+x]
				sum += v
				sumSq += v * v
				cross += tmpl[i] * v
				i++
			}
		}
		wVar := sumSq - sum*sum/n
		if wVar <= 0 {
			continue
		}
		// tmpl is zero-mean, so cross already equals the centred product.
		score := cross / math.Sqrt(tVar*wVar)
		if score > best.Score+1e-9 {
			best.Score = score
			bestX = x0
		}
	}
	if bestX < 0 || best.Score < minScore {
		return SliderMatch{Score: best.Score, PieceLeft: box.Min.X}, fmt.Errorf("%w: best score %.3f", ErrNotFound, best.Score)
	}
	best.Offset = bestX - box.Min.X
	return best, nil
}
