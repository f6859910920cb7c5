package ecc

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrNotOnCurve is returned when point coordinates do not satisfy the curve
// equation.
var ErrNotOnCurve = errors.New("ecc: point is not on the curve")

// Point is a point on the short Weierstrass curve y^2 = x^3 + A*x + B over
// the field of A and B. X and Y are both nil for the point at infinity, the
// group identity.
type Point struct {
	X *FieldElement
	Y *FieldElement
	A *FieldElement
	B *FieldElement
}

// NewPoint creates a curve point, validating the curve equation. Pass nil x
// and y for the point at infinity.
func NewPoint(x, y, a, b *FieldElement) (*Point, error) {
	if (x == nil) != (y == nil) {
		return nil, fmt.Errorf("%w: one coordinate missing", ErrNotOnCurve)
	}
	p := &Point{X: x, Y: y, A: a, B: b}
	if x == nil {
		return p, nil
	}

	// y^2 == x^3 + a*x + b
	y2 := y.Pow(big.NewInt(2))
	x3 := x.Pow(big.NewInt(3))
	ax, err := a.Mul(x)
	if err != nil {
		return nil, err
	}
	rhs, err := x3.Add(ax)
	if err != nil {
		return nil, err
	}
	rhs, err = rhs.Add(b)
	if err != nil {
		return nil, err
	}
	if !y2.Eq(rhs) {
		return nil, fmt.Errorf("%w: (%v, %v)", ErrNotOnCurve, x.Num, y.Num)
	}
	return p, nil
}

// IsInfinity reports whether the point is the group identity.
func (p *Point) IsInfinity() bool {
	return p.X == nil
}

// Eq reports whether two points are the same point on the same curve.
func (p *Point) Eq(other *Point) bool {
	if other == nil {
		return false
	}
	if !p.A.Eq(other.A) || !p.B.Eq(other.B) {
		return false
	}
	if p.IsInfinity() || other.IsInfinity() {
		return p.IsInfinity() && other.IsInfinity()
	}
	return p.X.Eq(other.X) && p.Y.Eq(other.Y)
}

func (p *Point) sameCurve(other *Point) error {
	if !p.A.Eq(other.A) || !p.B.Eq(other.B) {
		return fmt.Errorf("%w: points on different curves", ErrDomainMismatch)
	}
	return nil
}

// Add returns p + other under the elliptic-curve group law.
func (p *Point) Add(other *Point) (*Point, error) {
	if err := p.sameCurve(other); err != nil {
		return nil, err
	}
	return p.add(other), nil
}

// add implements the group law assuming both points share a curve. Division
// never fails: the denominators are zero exactly in the cases handled before
// the slope is formed.
func (p *Point) add(other *Point) *Point {
	if p.IsInfinity() {
		return other
	}
	if other.IsInfinity() {
		return p
	}

	// Additive inverse: same x, different y (or y == 0 when doubling below).
	if p.X.Eq(other.X) && !p.Y.Eq(other.Y) {
		return &Point{A: p.A, B: p.B}
	}

	var s *FieldElement
	if p.Eq(other) {
		if p.Y.Num.Sign() == 0 {
			// Vertical tangent.
			return &Point{A: p.A, B: p.B}
		}
		// s = (3*x^2 + a) / (2*y)
		num := p.X.Pow(big.NewInt(2)).ScalarMul(big.NewInt(3))
		num, _ = num.Add(p.A)
		den := p.Y.ScalarMul(big.NewInt(2))
		s, _ = num.Div(den)
	} else {
		// s = (y2 - y1) / (x2 - x1)
		num, _ := other.Y.Sub(p.Y)
		den, _ := other.X.Sub(p.X)
		s, _ = num.Div(den)
	}

	// x3 = s^2 - x1 - x2; y3 = s*(x1 - x3) - y1
	x3 := s.Pow(big.NewInt(2))
	x3, _ = x3.Sub(p.X)
	x3, _ = x3.Sub(other.X)
	y3, _ := p.X.Sub(x3)
	y3, _ = y3.Mul(s)
	y3, _ = y3.Sub(p.Y)

	return &Point{X: x3, Y: y3, A: p.A, B: p.B}
}

// Mul returns coef * p using double-and-add from the least significant bit.
func (p *Point) Mul(coef *big.Int) *Point {
	c := new(big.Int).Set(coef)
	current := p
	result := &Point{A: p.A, B: p.B}
	for c.Sign() > 0 {
		if c.Bit(0) == 1 {
			result = result.add(current)
		}
		current = current.add(current)
		c.Rsh(c, 1)
	}
	return result
}

func (p *Point) String() string {
	if p.IsInfinity() {
		return "Point(infinity)"
	}
	return fmt.Sprintf("Point(%s, %s)", p.X.Num.Text(16), p.Y.Num.Text(16))
}
