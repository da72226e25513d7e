package vision

import "image"

// mask is a binary image in image-relative coordinates.
type mask struct {
	w, h int
	on   []bool
}

func newMask(w, h int) *mask { return &mask{w: w, h: h, on: make([]bool, w*h)} }

func (m *mask) get(x, y int) bool {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return false
	}
	return m.on[y*m.w+x]
}

// component is one 8-connected region of a mask.
type component struct {
	area   int
	bounds image.Rectangle
	sumX   float64
	sumY   float64
	pixels []image.Point
}

func (c *component) centroid() Point {
	// +0.5 moves from pixel index to pixel centre.
	return Point{X: c.sumX/float64(c.area) + 0.5, Y: c.sumY/float64(c.area) + 0.5}
}

// label finds the 8-connected components of m, in scan order.
func label(m *mask) []*component {
	seen := make([]bool, len(m.on))
	var out []*component
	stack := make([]image.Point, 0, 64)
	for start := range m.on {
		if !m.on[start] || seen[start] {
			continue
		}
		sx, sy := start%m.w, start/m.w
		c := &component{bounds: image.Rect(sx, sy, sx+1, sy+1)}
		seen[start] = true
		stack = append(stack[:0], image.Pt(sx, sy))
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			c.area++
			c.sumX += float64(p.X)
			c.sumY += float64(p.Y)
			c.pixels = append(c.pixels, p)
			c.bounds = c.bounds.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := p.X+dx, p.Y+dy
					if !m.get(nx, ny) {
						continue
					}
					idx := ny*m.w + nx
					if seen[idx] {
						continue
					}
					seen[idx] = true
					stack = append(stack, image.Pt(nx, ny))
				}
			}
		}
		out = append(out, c)
	}
	return out
}

// largest returns the component with the greatest area, first wins on ties.
func largest(cs []*component) *component {
	var best *component
	for _, c := range cs {
		if best == nil || c.area > best.area {
			best = c
		}
	}
	return best
}

// dilate grows m by r pixels in every direction.
func dilate(m *mask, r int) *mask {
	out := newMask(m.w, m.h)
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			if !m.on[y*m.w+x] {
				continue
			}
			for dy := -r; dy <= r; dy++ {
				for dx := -r; dx <= r; dx++ {
					nx, ny := x+dx, y+dy
					if nx >= 0 && ny >= 0 && nx < m.w && ny < m.h {
						out.on[ny*m.w+nx] = true
					}
				}
			}
		}
	}
	return out
}
