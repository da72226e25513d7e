package vision

import (
	"fmt"
	"image"
	"math"
	"sort"
	"strings"
)

// Shape is a member of the shape challenge vocabulary.
type Shape string

const (
	ShapeTriangle  Shape = "三角形"
	ShapeSquare    Shape = "正方形"
	ShapeRectangle Shape = "长方形"
	ShapeStar      Shape = "五角星"
	ShapeHexagon   Shape = "六边形"
	ShapeCircle    Shape = "圆形"
	ShapeTrapezoid Shape = "梯形"
	ShapeRing      Shape = "圆环"
	shapeUnknown   Shape = ""
)

var shapeAliases = map[string]Shape{
	"三角形": ShapeTriangle, "triangle": ShapeTriangle,
	"正方形": ShapeSquare, "square": ShapeSquare,
	"长方形": ShapeRectangle, "矩形": ShapeRectangle, "rectangle": ShapeRectangle,
	"五角星": ShapeStar, "星形": ShapeStar, "star": ShapeStar,
	"六边形": ShapeHexagon, "hexagon": ShapeHexagon,
	"圆形": ShapeCircle, "圆": ShapeCircle, "circle": ShapeCircle,
	"梯形": ShapeTrapezoid, "trapezoid": ShapeTrapezoid,
	"圆环": ShapeRing, "环形": ShapeRing, "ring": ShapeRing,
}

// ParseShape resolves a shape name or alias.
func ParseShape(name string) (Shape, bool) {
	s, ok := shapeAliases[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// ShapeOptions tunes FindShapeCentroid.
type ShapeOptions struct {
	// MinArea drops specks. Zero uses 80 pixels.
	MinArea int
	// BackgroundDistance is the RGB distance from the border color that counts
	// as foreground. Zero uses 60.
	BackgroundDistance float64
}

// FindShapeCentroid segments foreground regions of img, classifies each by
// its contour and returns the centroid of the largest region of the wanted
// shape. Circles and rings stand in for each other when the exact kind is absent.
func FindShapeCentroid(img image.Image, shape Shape, opts ShapeOptions) (Point, error) {
	want, ok := ParseShape(string(shape))
	if !ok {
		return Point{}, fmt.Errorf("%w: shape %q", ErrUnsupported, shape)
	}
	if opts.MinArea <= 0 {
		opts.MinArea = 80
	}
	if opts.BackgroundDistance <= 0 {
		opts.BackgroundDistance = 60
	}

	b := img.Bounds()
	m := foregroundMask(img, opts.BackgroundDistance)
	byKind := map[Shape]*component{}
	for _, c := range label(m) {
		if c.area < opts.MinArea {
			continue
		}
		kind := classifyComponent(c)
		if cur := byKind[kind]; cur == nil || c.area > cur.area {
			byKind[kind] = c
		}
	}

	prefs := []Shape{want}
	switch want {
	case ShapeCircle:
		prefs = append(prefs, ShapeRing)
	case ShapeRing:
		prefs = append(prefs, ShapeCircle)
	}
	for _, k := range prefs {
		if c := byKind[k]; c != nil {
			p := c.centroid()
			return Point{X: p.X + float64(b.Min.X), Y: p.Y + float64(b.Min.Y)}, nil
		}
	}
	return Point{}, fmt.Errorf("%w: no %s", ErrNotFound, want)
}

// foregroundMask marks pixels far from the mean border color.
func foregroundMask(img image.Image, dist float64) *mask {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var sr, sg, sb, n float64
	add := func(x, y int) {
		r, g, bl := rgb8(img.At(b.Min.X+x, b.Min.Y+y))
		sr += float64(r)
		sg += float64(g)
		sb += float64(bl)
		n++
	}
	for x := 0; x < w; x++ {
		add(x, 0)
		add(x, h-1)
	}
	for y := 1; y < h-1; y++ {
		add(0, y)
		add(w-1, y)
	}
	br, bg, bb := sr/n, sg/n, sb/n

	m := newMask(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl := rgb8(img.At(b.Min.X+x, b.Min.Y+y))
			dr, dg, db := float64(r)-br, float64(g)-bg, float64(bl)-bb
			m.on[y*w+x] = math.Sqrt(dr*dr+dg*dg+db*db) > dist
		}
	}
	return m
}

// classifyComponent maps a region to a shape using hole area, solidity,
// hull circularity and the vertex count of the simplified hull.
func classifyComponent(c *component) Shape {
	if holeArea(c) > c.area/10 {
		return ShapeRing
	}
	hull := convexHull(cornerPoints(c))
	if len(hull) < 3 {
		return shapeUnknown
	}
	hullArea := polygonArea(hull)
	perim := polygonPerimeter(hull)
	if hullArea <= 0 || perim <= 0 {
		return shapeUnknown
	}
	solidity := float64(c.area) / hullArea
	if solidity < 0.75 {
		return ShapeStar
	}
	circularity := 4 * math.Pi * hullArea / (perim * perim)
	if circularity >= 0.95 {
		return ShapeCircle
	}

	poly := simplifyClosed(hull, 0.04*perim)
	switch len(poly) {
	case 3:
		return ShapeTriangle
	case 4:
		return classifyQuad(poly)
	case 6:
		return ShapeHexagon
	}
	return shapeUnknown
}

func classifyQuad(q []Point) Shape {
	side := func(i int) Point {
		a, b := q[i], q[(i+1)%4]
		return Point{X: b.X - a.X, Y: b.Y - a.Y}
	}
	s0, s1, s2, s3 := side(0), side(1), side(2), side(3)
	p02, p13 := parallel(s0, s2), parallel(s1, s3)
	switch {
	case p02 && p13:
		l0, l1 := math.Hypot(s0.X, s0.Y), math.Hypot(s1.X, s1.Y)
		ratio := l0 / l1
		if ratio > 1 {
			ratio = 1 / ratio
		}
		if ratio >= 0.85 {
			return ShapeSquare
		}
		return ShapeRectangle
	case p02 || p13:
		return ShapeTrapezoid
	}
	return shapeUnknown
}

func parallel(a, b Point) bool {
	la, lb := math.Hypot(a.X, a.Y), math.Hypot(b.X, b.Y)
	if la == 0 || lb == 0 {
		return false
	}
	return math.Abs(a.X*b.Y-a.Y*b.X)/(la*lb) < math.Sin(8*math.Pi/180)
}

// holeArea counts background pixels inside the bounding box that cannot be
// reached from outside the component.
func holeArea(c *component) int {
	w, h := c.bounds.Dx()+2, c.bounds.Dy()+2
	grid := make([]bool, w*h)
	for _, p := range c.pixels {
		grid[(p.Y-c.bounds.Min.Y+1)*w+(p.X-c.bounds.Min.X+1)] = true
	}
	reached := make([]bool, w*h)
	stack := []int{0}
	reached[0] = true
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			j := ny*w + nx
			if grid[j] || reached[j] {
				continue
			}
			reached[j] = true
			stack = append(stack, j)
		}
	}
	holes := 0
	for i := range grid {
		if !grid[i] && !reached[i] {
			holes++
		}
	}
	return holes
}

// cornerPoints returns the pixel corners of boundary pixels, so the hull
// covers whole pixels rather than pixel centres.
func cornerPoints(c *component) []Point {
	in := make(map[image.Point]bool, len(c.pixels))
	for _, p := range c.pixels {
		in[p] = true
	}
	seen := map[image.Point]bool{}
	var pts []Point
	for _, p := range c.pixels {
		if in[image.Pt(p.X+1, p.Y)] && in[image.Pt(p.X-1, p.Y)] && in[image.Pt(p.X, p.Y+1)] && in[image.Pt(p.X, p.Y-1)] {
			continue
		}
		for _, q := range [4]image.Point{p, image.Pt(p.X+1, p.Y), image.Pt(p.X, p.Y+1), image.Pt(p.X+1, p.Y+1)} {
			if !seen[q] {
				seen[q] = true
				pts = append(pts, Point{X: float64(q.X), Y: float64(q.Y)})
			}
		}
	}
	return pts
}

// convexHull is Andrew's monotone chain; collinear points are dropped and the
// result is counter-clockwise.
func convexHull(pts []Point) []Point {
	if len(pts) < 3 {
		return pts
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})
	cross := func(o, a, b Point) float64 {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}
	hull := make([]Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

func polygonArea(poly []Point) float64 {
	var a float64
	for i := range poly {
		j := (i + 1) % len(poly)
		a += poly[i].X*poly[j].Y - poly[j].X*poly[i].Y
	}
	return math.Abs(a) / 2
}

func polygonPerimeter(poly []Point) float64 {
	var p float64
	for i := range poly {
		j := (i + 1) % len(poly)
		p += math.Hypot(poly[j].X-poly[i].X, poly[j].Y-poly[i].Y)
	}
	return p
}

func segmentDistance(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l := math.Hypot(dx, dy)
	if l == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	return math.Abs(dy*p.X-dx*p.Y+b.X*a.Y-b.Y*a.X) / l
}

// douglasPeucker simplifies an open polyline, keeping both endpoints.
func douglasPeucker(pts []Point, eps float64) []Point {
	if len(pts) < 3 {
		return append([]Point(nil), pts...)
	}
	idx, maxD := 0, -1.0
	for i := 1; i < len(pts)-1; i++ {
		if d := segmentDistance(pts[i], pts[0], pts[len(pts)-1]); d > maxD {
			idx, maxD = i, d
		}
	}
	if maxD <= eps {
		return []Point{pts[0], pts[len(pts)-1]}
	}
	left := douglasPeucker(pts[:idx+1], eps)
	right := douglasPeucker(pts[idx:], eps)
	return append(left[:len(left)-1], right...)
}

// simplifyClosed runs Douglas-Peucker on a closed polygon split at its two
// most distant vertices, then drops any vertex that sits within eps of the
// line through its neighbours, including the split anchors.
func simplifyClosed(poly []Point, eps float64) []Point {
	if len(poly) <= 3 {
		return poly
	}
	far, farD := 0, -1.0
	for i := range poly {
		if d := math.Hypot(poly[i].X-poly[0].X, poly[i].Y-poly[0].Y); d > farD {
			far, farD = i, d
		}
	}
	first := douglasPeucker(poly[:far+1], eps)
	second := douglasPeucker(append(append([]Point{}, poly[far:]...), poly[0]), eps)
	out := make([]Point, 0, len(first)+len(second))
	out = append(out, first[:len(first)-1]...)
	out = append(out, second[:len(second)-1]...)

	for changed := true; changed && len(out) > 3; {
		changed = false
		for i := range out {
			prev, next := out[(i+len(out)-1)%len(out)], out[(i+1)%len(out)]
			if segmentDistance(out[i], prev, next) <= eps {
				out = append(out[:i], out[i+1:]...)
				changed = true
				break
			}
		}
	}
	return out
}
