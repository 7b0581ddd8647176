package clusterer

import "math"

type Rectangle struct {
	X0, Y0, X1, Y1 float64
}

func rectAround(c Point, r float64) Rectangle {
	return Rectangle{c.X - r, c.Y - r, c.X + r, c.Y + r}
}

func (r Rectangle) Dx() float64 { return r.X1 - r.X0 }
func (r Rectangle) Dy() float64 { return r.Y1 - r.Y0 }

// Empty reports whether r has no area.
func (r Rectangle) Empty() bool {
	return r.X0 >= r.X1 || r.Y0 >= r.Y1
}

func (r *Rectangle) Extend(s Rectangle) {
	if s.Empty() {
		return
	}

	if r.Empty() {
		*r = s
		return
	}

	r.X0 = math.Min(r.X0, s.X0)
	r.Y0 = math.Min(r.Y0, s.Y0)
	r.X1 = math.Max(r.X1, s.X1)
	r.Y1 = math.Max(r.Y1, s.Y1)
}

func (r Rectangle) Overlaps(s Rectangle) bool {
	return !r.Empty() && !s.Empty() &&
		r.X0 < s.X1 && s.X0 < r.X1 &&
		r.Y0 < s.Y1 && s.Y0 < r.Y1
}
