package ecc

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrDomainMismatch is returned when two field elements or points from
	// different domains are combined.
	ErrDomainMismatch = errors.New("ecc: operands belong to different fields")

	// ErrValueOutOfRange is returned when a value falls outside its valid
	// interval, e.g. a field element not in [0, p).
	ErrValueOutOfRange = errors.New("ecc: value out of range")
)

// FieldElement is an integer in the prime field of order Prime. All
// arithmetic is modulo Prime. Elements are immutable; operations return new
// values.
type FieldElement struct {
	Num   *big.Int
	Prime *big.Int
}

// NewFieldElement creates a field element, requiring 0 <= num < prime.
func NewFieldElement(num, prime *big.Int) (*FieldElement, error) {
	if num.Sign() < 0 || num.Cmp(prime) >= 0 {
		return nil, fmt.Errorf("%w: %v not in [0, %v)", ErrValueOutOfRange, num, prime)
	}
	return &FieldElement{
		Num:   new(big.Int).Set(num),
		Prime: new(big.Int).Set(prime),
	}, nil
}

// Eq reports whether two field elements have the same value and field.
func (e *FieldElement) Eq(other *FieldElement) bool {
	if other == nil {
		return false
	}
	return e.Num.Cmp(other.Num) == 0 && e.Prime.Cmp(other.Prime) == 0
}

func (e *FieldElement) sameField(other *FieldElement) error {
	if e.Prime.Cmp(other.Prime) != 0 {
		return ErrDomainMismatch
	}
	return nil
}

// Add returns e + other mod p.
func (e *FieldElement) Add(other *FieldElement) (*FieldElement, error) {
	if err := e.sameField(other); err != nil {
		return nil, err
	}
	num := new(big.Int).Add(e.Num, other.Num)
	num.Mod(num, e.Prime)
	return &FieldElement{Num: num, Prime: e.Prime}, nil
}

// Sub returns e - other mod p.
func (e *FieldElement) Sub(other *FieldElement) (*FieldElement, error) {
	if err := e.sameField(other); err != nil {
		return nil, err
	}
	num := new(big.Int).Sub(e.Num, other.Num)
	num.Mod(num, e.Prime)
	return &FieldElement{Num: num, Prime: e.Prime}, nil
}

// Mul returns e * other mod p.
func (e *FieldElement) Mul(other *FieldElement) (*FieldElement, error) {
	if err := e.sameField(other); err != nil {
		return nil, err
	}
	num := new(big.Int).Mul(e.Num, other.Num)
	num.Mod(num, e.Prime)
	return &FieldElement{Num: num, Prime: e.Prime}, nil
}

// Pow returns e^exp mod p. Negative exponents are normalized modulo p-1
// before exponentiation (Fermat's little theorem).
func (e *FieldElement) Pow(exp *big.Int) *FieldElement {
	pMinusOne := new(big.Int).Sub(e.Prime, big.NewInt(1))
	n := new(big.Int).Mod(exp, pMinusOne)
	num := new(big.Int).Exp(e.Num, n, e.Prime)
	return &FieldElement{Num: num, Prime: e.Prime}
}

// Div returns e / other mod p using the Fermat inverse other^(p-2).
func (e *FieldElement) Div(other *FieldElement) (*FieldElement, error) {
	if err := e.sameField(other); err != nil {
		return nil, err
	}
	if other.Num.Sign() == 0 {
		return nil, fmt.Errorf("%w: division by zero", ErrValueOutOfRange)
	}
	exp := new(big.Int).Sub(e.Prime, big.NewInt(2))
	inv := new(big.Int).Exp(other.Num, exp, e.Prime)
	num := new(big.Int).Mul(e.Num, inv)
	num.Mod(num, e.Prime)
	return &FieldElement{Num: num, Prime: e.Prime}, nil
}

// ScalarMul returns c * e for a plain integer c.
func (e *FieldElement) ScalarMul(c *big.Int) *FieldElement {
	num := new(big.Int).Mul(e.Num, c)
	num.Mod(num, e.Prime)
	return &FieldElement{Num: num, Prime: e.Prime}
}

func (e *FieldElement) String() string {
	return fmt.Sprintf("FieldElement_%s(%s)", e.Prime.Text(16), e.Num.Text(16))
}
