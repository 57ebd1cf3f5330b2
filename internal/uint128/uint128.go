// Package uint128 provides a checked unsigned 128-bit integer backed by
// holiman/uint256. Every arithmetic operation reports overflow or underflow as
// an error instead of wrapping or saturating.
package uint128

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"

	"github.com/holiman/uint256"
)

var (
	// ErrOverflow is returned when a result does not fit in 128 bits.
	ErrOverflow = errors.New("uint128: overflow")
	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("uint128: underflow")
	// ErrDivideByZero is returned by Div and MulDiv for a zero divisor.
	ErrDivideByZero = errors.New("uint128: divide by zero")
	// ErrCastOverflow is returned when narrowing to uint64 loses bits.
	ErrCastOverflow = errors.New("uint128: value does not fit in uint64")
)

const bitSize = 128

// Uint128 is an immutable unsigned 128-bit value. The zero value is 0.
type Uint128 struct {
	v uint256.Int
}

// Zero and One are convenience constants.
var (
	Zero = Uint128{}
	One  = From64(1)
	// Max is 2^128 - 1.
	Max = func() Uint128 {
		var u Uint128
		u.v.SetAllOne()
		u.v.Rsh(&u.v, 256-bitSize)
		return u
	}()
)

// From64 widens a uint64.
func From64(x uint64) Uint128 {
	var u Uint128
	u.v.SetUint64(x)
	return u
}

// FromParts builds a value from its high and low 64-bit halves.
func FromParts(hi, lo uint64) Uint128 {
	var u Uint128
	u.v[0] = lo
	u.v[1] = hi
	return u
}

// Parse reads a base-10 string.
func Parse(s string) (Uint128, error) {
	var u Uint128
	if err := u.v.SetFromDecimal(s); err != nil {
		return Zero, fmt.Errorf("uint128: parse %q: %w", s, err)
	}
	if u.v.BitLen() > bitSize {
		return Zero, fmt.Errorf("uint128: parse %q: %w", s, ErrOverflow)
	}
	return u, nil
}

func fromWide(w *uint256.Int) (Uint128, error) {
	if w.BitLen() > bitSize {
		return Zero, ErrOverflow
	}
	return Uint128{v: *w}, nil
}

// Add returns a+b.
func (a Uint128) Add(b Uint128) (Uint128, error) {
	var w uint256.Int
	w.Add(&a.v, &b.v)
	return fromWide(&w)
}

// Sub returns a-b.
func (a Uint128) Sub(b Uint128) (Uint128, error) {
	if a.v.Lt(&b.v) {
		return Zero, ErrUnderflow
	}
	var w uint256.Int
	w.Sub(&a.v, &b.v)
	return Uint128{v: w}, nil
}

// Mul returns a*b. Both operands fit in 128 bits so the 256-bit product
// never wraps; only the 128-bit ceiling is checked.
func (a Uint128) Mul(b Uint128) (Uint128, error) {
	var w uint256.Int
	w.Mul(&a.v, &b.v)
	return fromWide(&w)
}

// Div returns floor(a/b).
func (a Uint128) Div(b Uint128) (Uint128, error) {
	if b.IsZero() {
		return Zero, ErrDivideByZero
	}
	var w uint256.Int
	w.Div(&a.v, &b.v)
	return Uint128{v: w}, nil
}

// MulDiv returns floor(a*b/d) using a 256-bit intermediate product, so it
// succeeds whenever the final quotient fits in 128 bits.
func MulDiv(a, b, d Uint128) (Uint128, error) {
	if d.IsZero() {
		return Zero, ErrDivideByZero
	}
	var w uint256.Int
	w.Mul(&a.v, &b.v)
	w.Div(&w, &d.v)
	return fromWide(&w)
}

// Sqrt returns floor(sqrt(a)) by Newton iteration:
// z = (x+1)/2, y = x; while z < y { y = z; z = (x/z + z)/2 }.
func (a Uint128) Sqrt() Uint128 {
	if a.IsZero() {
		return Zero
	}
	x := a.v
	var z, y, t uint256.Int
	// x+1 may need 129 bits; the 256-bit backing absorbs it.
	z.AddUint64(&x, 1)
	z.Rsh(&z, 1)
	y.Set(&x)
	for z.Lt(&y) {
		y.Set(&z)
		t.Div(&x, &z)
		z.Add(&t, &z)
		z.Rsh(&z, 1)
	}
	return Uint128{v: y}
}

// Cmp returns -1, 0 or +1.
func (a Uint128) Cmp(b Uint128) int { return a.v.Cmp(&b.v) }

// Lt reports a < b.
func (a Uint128) Lt(b Uint128) bool { return a.v.Lt(&b.v) }

// Eq reports a == b.
func (a Uint128) Eq(b Uint128) bool { return a.v.Eq(&b.v) }

// IsZero reports a == 0.
func (a Uint128) IsZero() bool { return a.v.IsZero() }

// Max1 returns a floored to one.
func (a Uint128) Max1() Uint128 {
	if a.IsZero() {
		return One
	}
	return a
}

// Uint64 narrows to uint64.
func (a Uint128) Uint64() (uint64, error) {
	if !a.v.IsUint64() {
		return 0, ErrCastOverflow
	}
	return a.v.Uint64(), nil
}

// Parts returns the high and low 64-bit halves.
func (a Uint128) Parts() (hi, lo uint64) { return a.v[1], a.v[0] }

// BitLen returns the number of significant bits.
func (a Uint128) BitLen() int {
	if a.v[1] != 0 {
		return 64 + bits.Len64(a.v[1])
	}
	return bits.Len64(a.v[0])
}

func (a Uint128) String() string { return a.v.Dec() }

// MarshalText encodes the value in base 10.
func (a Uint128) MarshalText() ([]byte, error) { return []byte(a.v.Dec()), nil }

// UnmarshalText decodes a base-10 value.
func (a *Uint128) UnmarshalText(text []byte) error {
	u, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = u
	return nil
}

// MarshalJSON encodes as a quoted decimal string so clients never lose
// precision in float64 number decoding.
func (a Uint128) MarshalJSON() ([]byte, error) { return json.Marshal(a.v.Dec()) }

// UnmarshalJSON accepts a quoted decimal string or a bare JSON integer.
func (a *Uint128) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	return a.UnmarshalText([]byte(s))
}
