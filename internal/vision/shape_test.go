package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

type drawnShape struct {
	shape  Shape
	bounds image.Rectangle
}

func shapeBoard() (*image.RGBA, []drawnShape) {
	img := fill(520, 120, color.White)
	var out []drawnShape

	tri := []Point{{18, 80}, {62, 80}, {40, 42}}
	fillPolygon(img, tri, color.RGBA{R: 220, G: 30, B: 30, A: 255})
	out = append(out, drawnShape{ShapeTriangle, polyBounds(tri)})

	sq := image.Rect(90, 42, 126, 78)
	fillRect(img, sq, color.RGBA{G: 160, A: 255})
	out = append(out, drawnShape{ShapeSquare, sq})

	rect := image.Rect(145, 48, 195, 73)
	fillRect(img, rect, color.RGBA{B: 220, A: 255})
	out = append(out, drawnShape{ShapeRectangle, rect})

	fillAnnulus(img, 230, 60, 0, 20, color.RGBA{R: 128, B: 200, A: 255})
	out = append(out, drawnShape{ShapeCircle, image.Rect(210, 40, 250, 80)})

	hex := regularPolygon(290, 60, 22, 6, 0)
	fillPolygon(img, hex, color.RGBA{R: 240, G: 140, A: 255})
	out = append(out, drawnShape{ShapeHexagon, polyBounds(hex)})

	st := star(350, 62, 24, 9)
	fillPolygon(img, st, color.RGBA{R: 200, G: 180, A: 255})
	out = append(out, drawnShape{ShapeStar, polyBounds(st)})

	trap := []Point{{390, 78}, {440, 78}, {428, 50}, {402, 50}}
	fillPolygon(img, trap, color.RGBA{R: 240, G: 100, B: 180, A: 255})
	out = append(out, drawnShape{ShapeTrapezoid, polyBounds(trap)})

	fillAnnulus(img, 480, 60, 11, 20, color.RGBA{R: 90, G: 90, B: 90, A: 255})
	out = append(out, drawnShape{ShapeRing, image.Rect(460, 40, 500, 80)})

	return img, out
}

func TestFindShapeCentroidVocabulary(t *testing.T) {
	img, shapes := shapeBoard()
	for _, s := range shapes {
		t.Run(string(s.shape), func(t *testing.T) {
			p, err := FindShapeCentroid(img, s.shape, ShapeOptions{})
			require.NoError(t, err)
			require.True(t, p.In(s.bounds), "centroid %+v outside %v", p, s.bounds)
		})
	}
}

func TestFindShapeCentroidAliases(t *testing.T) {
	img, _ := shapeBoard()
	p, err := FindShapeCentroid(img, "hexagon", ShapeOptions{})
	require.NoError(t, err)
	require.InDelta(t, 290, p.X, 2)
}

func TestFindShapeCentroidCircleFallsBackToRing(t *testing.T) {
	img := fill(120, 80, color.White)
	fillAnnulus(img, 60, 40, 10, 22, color.RGBA{B: 200, A: 255})

	p, err := FindShapeCentroid(img, ShapeCircle, ShapeOptions{})
	require.NoError(t, err)
	require.InDelta(t, 60, p.X, 1)
	require.InDelta(t, 40, p.Y, 1)
}

func TestFindShapeCentroidNotFound(t *testing.T) {
	img := fill(100, 100, color.White)
	fillRect(img, image.Rect(30, 30, 66, 66), color.RGBA{G: 160, A: 255})

	_, err := FindShapeCentroid(img, ShapeTriangle, ShapeOptions{})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = FindShapeCentroid(img, "octagon", ShapeOptions{})
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestSimplifyClosedSquare(t *testing.T) {
	sq := []Point{{0, 0}, {10, 0}, {10, 5}, {10, 10}, {0, 10}, {0, 5}}
	out := simplifyClosed(sq, 0.5)
	require.Len(t, out, 4)
}
