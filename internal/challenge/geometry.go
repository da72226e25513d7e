package challenge

import (
	"image"
	"math"
	"time"

	"sessionkeeper-go/internal/page"
	"sessionkeeper-go/internal/vision"
)

// toScreen maps a point of an element's image onto the viewport, given the
// image's natural size and the element's rendered box.
func toScreen(pt vision.Point, natural image.Point, box page.Rect) page.Point {
	displayed := image.Pt(int(math.Round(box.Width)), int(math.Round(box.Height)))
	scaled := vision.Scale(pt, natural, displayed)
	return page.Point{X: box.X + scaled.X, Y: box.Y + scaled.Y}
}

// trajectory builds a drag of distance pixels along x from start. It eases
// out, overshoots by overshoot pixels and settles back, with small vertical
// wobble and uneven pauses.
func (s *Solver) trajectory(start page.Point, distance, overshoot float64) []page.Step {
	target := distance + overshoot
	n := int(math.Abs(target) / 4)
	if n < 15 {
		n = 15
	}
	if n > 60 {
		n = 60
	}
	steps := make([]page.Step, 0, n+4)
	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n)
		eased := 1 - math.Pow(1-t, 3)
		wobble := (s.float() - 0.5) * 3
		if i == n {
			wobble = 0
		}
		steps = append(steps, page.Step{
			Point: page.Point{X: start.X + target*eased, Y: start.Y + wobble},
			Pause: s.between(8*time.Millisecond, 20*time.Millisecond),
		})
	}
	if overshoot != 0 {
		const back = 3
		for i := 1; i <= back; i++ {
			x := start.X + target - overshoot*float64(i)/back
			steps = append(steps, page.Step{
				Point: page.Point{X: x, Y: start.Y},
				Pause: s.between(20*time.Millisecond, 50*time.Millisecond),
			})
		}
	}
	last := &steps[len(steps)-1]
	last.Pause = s.between(100*time.Millisecond, 300*time.Millisecond)
	return steps
}
