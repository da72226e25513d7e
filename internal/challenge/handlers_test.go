package challenge

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"sessionkeeper-go/internal/config"
	apperrors "sessionkeeper-go/internal/errors"
	"sessionkeeper-go/internal/page"
	"sessionkeeper-go/internal/page/pagetest"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func dataURI(t *testing.T, img image.Image) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(encodePNG(t, img))
}

// puzzle cuts a square from a textured background at offset d and darkens
// the hole it leaves.
func puzzle(d int) (piece, background *image.RGBA) {
	const (
		w, h     = 220, 60
		side     = 34
		sqX, sqY = 8, 13
	)
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 128 + 60*math.Sin(float64(x)/7) + 50*math.Cos(float64(y)/5+float64(x)/11)
			src.Set(x, y, color.RGBA{R: uint8(v), G: uint8(v * 0.9), B: uint8(255 - v), A: 255})
		}
	}
	piece = image.NewRGBA(image.Rect(0, 0, 50, h))
	background = image.NewRGBA(src.Bounds())
	copy(background.Pix, src.Pix)
	for y := sqY; y < sqY+side; y++ {
		for x := sqX; x < sqX+side; x++ {
			c := src.RGBAAt(d+x, y)
			piece.SetRGBA(x, y, c)
			background.SetRGBA(d+x, y, color.RGBA{R: uint8(float64(c.R) * 0.45), G: uint8(float64(c.G) * 0.45), B: uint8(float64(c.B) * 0.45), A: 255})
		}
	}
	return piece, background
}

func TestSliderDragsToGap(t *testing.T) {
	sel := config.DefaultSelectors()
	cfg := config.Default().Challenge
	piece, bg := puzzle(117)

	p := pagetest.New()
	p.Show(sel.SliderWidget, sel.SliderButton)
	p.Attrs[sel.SliderPiece] = map[string]string{"src": dataURI(t, piece)}
	p.Attrs[sel.SliderBackground] = map[string]string{"src": dataURI(t, bg)}
	// rendered at half size
	p.Boxes[sel.SliderBackground] = page.Rect{X: 100, Y: 200, Width: 110, Height: 30}
	p.Boxes[sel.SliderPiece] = page.Rect{X: 100, Y: 200, Width: 25, Height: 30}
	p.Boxes[sel.SliderButton] = page.Rect{X: 100, Y: 240, Width: 40, Height: 40}

	var dragged float64
	p.OnDrag(func(p *pagetest.Page, from page.Point, steps []page.Step) {
		require.Equal(t, page.Point{X: 120, Y: 260}, from)
		dragged = steps[len(steps)-1].X - from.X
		p.Hide(sel.SliderWidget, sel.SliderButton)
	})

	s := NewSlider(sel, cfg, testOptions())
	res, err := s.Solve(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, Resolved, res.State)
	require.Equal(t, 1, res.Attempts)
	require.InDelta(t, 117.0/2, dragged, 2)
}

func TestSliderRefreshesFlatPuzzle(t *testing.T) {
	sel := config.DefaultSelectors()
	cfg := config.Default().Challenge

	flat := func(w, h int) *image.RGBA {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for i := range img.Pix {
			img.Pix[i] = 0x80
		}
		return img
	}
	p := pagetest.New()
	p.Show(sel.SliderWidget, sel.SliderButton)
	p.Attrs[sel.SliderPiece] = map[string]string{"src": dataURI(t, flat(50, 60))}
	p.Attrs[sel.SliderBackground] = map[string]string{"src": dataURI(t, flat(220, 60))}
	p.Boxes[sel.SliderBackground] = page.Rect{X: 100, Y: 200, Width: 220, Height: 60}
	p.Boxes[sel.SliderPiece] = page.Rect{X: 100, Y: 200, Width: 50, Height: 60}
	p.Boxes[sel.SliderButton] = page.Rect{X: 100, Y: 270, Width: 40, Height: 40}

	s := NewSlider(sel, cfg, testOptions())
	res, err := s.Solve(context.Background(), p)
	require.Equal(t, apperrors.KindChallengeAbandoned, apperrors.KindOf(err))
	require.Equal(t, Abandoned, res.State)
	require.Equal(t, 5, res.Attempts)
	require.Equal(t, res.Attempts, p.Count("click "+sel.SliderRefresh))
	require.Zero(t, p.Count("drag"))
}

func TestSliderFreshPuzzleAfterRefresh(t *testing.T) {
	sel := config.DefaultSelectors()
	cfg := config.Default().Challenge
	piece, bg := puzzle(117)

	p := pagetest.New()
	p.Show(sel.SliderWidget, sel.SliderButton)
	// first puzzle has not rendered yet
	p.Boxes[sel.SliderBackground] = page.Rect{X: 100, Y: 200}
	p.Boxes[sel.SliderPiece] = page.Rect{X: 100, Y: 200, Width: 25, Height: 30}
	p.Boxes[sel.SliderButton] = page.Rect{X: 100, Y: 240, Width: 40, Height: 40}
	p.Attrs[sel.SliderPiece] = map[string]string{"src": dataURI(t, piece)}
	p.Attrs[sel.SliderBackground] = map[string]string{"src": dataURI(t, bg)}
	p.OnClick(sel.SliderRefresh, func(p *pagetest.Page) {
		p.Boxes[sel.SliderBackground] = page.Rect{X: 100, Y: 200, Width: 110, Height: 30}
	})
	p.OnDrag(func(p *pagetest.Page, _ page.Point, _ []page.Step) { p.Hide(sel.SliderWidget) })

	res, err := NewSlider(sel, cfg, testOptions()).Solve(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, Resolved, res.State)
	require.Equal(t, 2, res.Attempts)
	require.Equal(t, 1, p.Count("click "+sel.SliderRefresh))
	require.Equal(t, 1, p.Count("drag"))
}

func TestSliderWithoutWidgetIsNoop(t *testing.T) {
	p := pagetest.New()
	s := NewSlider(config.DefaultSelectors(), config.Default().Challenge, testOptions())
	res, err := s.Solve(context.Background(), p)
	require.NoError(t, err)
	require.False(t, res.Triggered)
	require.Zero(t, p.Count("drag"))
}

func colorBoard() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			c := color.RGBA{R: 255, G: 255, B: 255, A: 255}
			switch {
			case x >= 120 && x < 160 && y >= 30 && y < 70:
				c = color.RGBA{B: 255, A: 255}
			case x >= 20 && x < 50 && y >= 20 && y < 50:
				c = color.RGBA{G: 200, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestSelectionClicksColorRegion(t *testing.T) {
	sel := config.DefaultSelectors()
	sel.ShapePrompt = "div.captcha_footer span"
	cfg := config.Default().Challenge

	p := pagetest.New()
	p.Show(sel.ShapeWidget)
	p.Texts[sel.ShapePrompt] = "请选出图中蓝色的图形"
	p.Shots[sel.ShapeImage] = encodePNG(t, colorBoard())
	p.Boxes[sel.ShapeImage] = page.Rect{X: 50, Y: 60, Width: 100, Height: 50}

	var clicked []page.Point
	p.OnClickAt(func(_ *pagetest.Page, pt page.Point) { clicked = append(clicked, pt) })
	p.OnClick(sel.ShapeConfirm, func(p *pagetest.Page) { p.Hide(sel.ShapeWidget) })

	s := NewSelection(sel, cfg, nil, nil, testOptions())
	res, err := s.Solve(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, Resolved, res.State)
	require.Len(t, clicked, 1)
	require.InDelta(t, 120, clicked[0].X, 1)
	require.InDelta(t, 85, clicked[0].Y, 1)
	require.Equal(t, 1, p.Count("click "+sel.ShapeConfirm))
}

func TestSelectionRefreshesUnreadablePromptUntilAbandoned(t *testing.T) {
	sel := config.DefaultSelectors()
	cfg := config.Default().Challenge

	p := pagetest.New()
	p.Show(sel.ShapeWidget)
	p.Texts[sel.ShapePrompt] = "请依次点击：安"

	s := NewSelection(sel, cfg, DOMPrompt{}, nil, testOptions())
	res, err := s.Solve(context.Background(), p)
	require.Equal(t, apperrors.KindChallengeAbandoned, apperrors.KindOf(err))
	require.Equal(t, Abandoned, res.State)
	require.Equal(t, cfg.RetryBudget, p.Count("click "+sel.ShapeRefresh))
	require.Zero(t, p.Count("clickat"))
}
