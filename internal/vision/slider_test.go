package vision

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func textured(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 128 + 60*math.Sin(float64(x)/7) + 50*math.Cos(float64(y)/5+float64(x)/11)
			img.Set(x, y, color.RGBA{R: uint8(v), G: uint8(v * 0.9), B: uint8(255 - v), A: 255})
		}
	}
	return img
}

// sliderPair cuts a square piece out of a textured background at offset d and
// darkens the gap it leaves behind.
func sliderPair(d int) (piece, background *image.RGBA) {
	const (
		bgW, bgH  = 220, 60
		pieceW    = 50
		side      = 34
		sqX, sqY  = 8, 13
		gapDarken = 0.45
	)
	src := textured(bgW, bgH)
	piece = image.NewRGBA(image.Rect(0, 0, pieceW, bgH))
	background = image.NewRGBA(src.Bounds())
	copy(background.Pix, src.Pix)
	for y := sqY; y < sqY+side; y++ {
		for x := sqX; x < sqX+side; x++ {
			piece.Set(x, y, src.At(d+x, y))
			c := src.RGBAAt(d+x, y)
			background.SetRGBA(d+x, y, color.RGBA{
				R: uint8(float64(c.R) * gapDarken),
				G: uint8(float64(c.G) * gapDarken),
				B: uint8(float64(c.B) * gapDarken),
				A: 255,
			})
		}
	}
	return piece, background
}

func TestFindSliderOffsetKnownAnswer(t *testing.T) {
	for _, d := range []int{30, 117, 160} {
		piece, bg := sliderPair(d)
		m, err := FindSliderOffset(piece, bg, SliderOptions{})
		require.NoError(t, err, "offset %d", d)
		require.InDelta(t, d, m.Offset, 3, "offset %d", d)
		require.Equal(t, 7, m.PieceLeft)
		require.Greater(t, m.Score, 0.3)
	}
}

func TestFindSliderOffsetRejectsTransparentPiece(t *testing.T) {
	piece := image.NewRGBA(image.Rect(0, 0, 40, 60))
	_, bg := sliderPair(50)
	_, err := FindSliderOffset(piece, bg, SliderOptions{})
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestFindSliderOffsetFlatBackground(t *testing.T) {
	piece, _ := sliderPair(50)
	bg := fill(220, 60, color.White)
	_, err := FindSliderOffset(piece, bg, SliderOptions{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindSliderOffsetPieceTooTall(t *testing.T) {
	piece, bg := sliderPair(50)
	_, err := FindSliderOffset(piece, bg, SliderOptions{Top: 40})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindSliderOffsetHonoursThreshold(t *testing.T) {
	piece, bg := sliderPair(80)
	_, err := FindSliderOffset(piece, bg, SliderOptions{MinScore: 1.01})
	require.ErrorIs(t, err, ErrNotFound)
}
