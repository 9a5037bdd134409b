// Package decimal implements exact fixed-point arithmetic on amounts
// represented as an integer mantissa plus a decimal exponent. All price and
// position math in the tracker goes through this package; float64 is never
// used for financial comparisons, only for lossy display/ingest conversions
// that are explicitly marked as such.
package decimal

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Precision is the number of fractional digits used for division results and
// for decimalizing prices ingested from external sources.
const Precision = 15

// Amount is an exact fixed-point number: the real value is
// Mantissa × 10^(−Decimals). Mantissa is a base-10 integer string so the value
// round-trips through JSON without loss.
type Amount struct {
	Mantissa string `json:"tokenAmount"`
	Decimals int32  `json:"decimals"`
}

// Zero returns the canonical zero amount.
func Zero() Amount {
	return Amount{Mantissa: "0", Decimals: 0}
}

// IsZero reports whether a represents zero.
func (a Amount) IsZero() bool {
	return a.mantissaInt().Sign() == 0
}

func (a Amount) mantissaInt() *big.Int {
	m, ok := new(big.Int).SetString(a.Mantissa, 10)
	if !ok {
		// A malformed mantissa can only come from corrupted storage; treat
		// it as zero rather than poisoning every comparison downstream.
		return big.NewInt(0)
	}
	return m
}

// align scales both mantissas to the larger of the two exponents and returns
// the aligned big integers plus the shared exponent.
func align(a, b Amount) (*big.Int, *big.Int, int32) {
	decimals := a.Decimals
	if b.Decimals > decimals {
		decimals = b.Decimals
	}
	am := scaleUp(a.mantissaInt(), decimals-a.Decimals)
	bm := scaleUp(b.mantissaInt(), decimals-b.Decimals)
	return am, bm, decimals
}

func scaleUp(m *big.Int, places int32) *big.Int {
	if places <= 0 {
		return m
	}
	mult := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil)
	return new(big.Int).Mul(m, mult)
}

// Add returns a + b at the larger of the two exponents.
func Add(a, b Amount) Amount {
	am, bm, decimals := align(a, b)
	return Amount{Mantissa: new(big.Int).Add(am, bm).String(), Decimals: decimals}
}

// Sub returns a − b at the larger of the two exponents.
func Sub(a, b Amount) Amount {
	am, bm, decimals := align(a, b)
	diff := new(big.Int).Sub(am, bm)
	if diff.Sign() == 0 {
		return Zero()
	}
	return Amount{Mantissa: diff.String(), Decimals: decimals}
}

// Mul returns a × b exactly; the result exponent is the sum of the operand
// exponents.
func Mul(a, b Amount) Amount {
	prod := new(big.Int).Mul(a.mantissaInt(), b.mantissaInt())
	return Amount{Mantissa: prod.String(), Decimals: a.Decimals + b.Decimals}
}

// Div returns a ÷ b truncated toward zero at `places` fractional digits.
// Truncation toward zero is the fixed rounding rule for the whole module so
// threshold comparisons are reproducible across platforms. Division by zero
// returns (Zero, false).
func Div(a, b Amount, places int32) (Amount, bool) {
	am, bm, _ := align(a, b)
	if bm.Sign() == 0 {
		return Zero(), false
	}
	scaled := scaleUp(am, places)
	q := new(big.Int).Quo(scaled, bm) // Quo truncates toward zero
	return Amount{Mantissa: q.String(), Decimals: places}, true
}

// Cmp compares a and b: −1 if a < b, 0 if equal, +1 if a > b.
func Cmp(a, b Amount) int {
	am, bm, _ := align(a, b)
	return am.Cmp(bm)
}

// Max returns the larger of a and b.
func Max(a, b Amount) Amount {
	if Cmp(a, b) >= 0 {
		return a
	}
	return b
}

// MoveDecimalLeft shifts the decimal point left by `places` (divides by
// 10^places exactly). places must be non-negative.
func MoveDecimalLeft(a Amount, places int32) Amount {
	return Amount{Mantissa: a.Mantissa, Decimals: a.Decimals + places}
}

// FromInt64 builds an exact amount from an integer.
func FromInt64(v int64) Amount {
	return Amount{Mantissa: strconv.FormatInt(v, 10), Decimals: 0}
}

// FromFloat64 decimalizes a float at the given number of fractional digits.
// This is lossy in the same way the float itself is and exists only at ingest
// boundaries (oracle responses, user input already parsed as float).
func FromFloat64(v float64, places int32) Amount {
	s := strconv.FormatFloat(v, 'f', int(places), 64)
	a, err := Parse(s)
	if err != nil {
		return Zero()
	}
	return a
}

// Parse converts a plain decimal string ("12.0045", "-0.3", "7") into an
// Amount. Exponential notation is not accepted.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero(), fmt.Errorf("decimal: empty input")
	}
	if strings.ContainsAny(s, "eE") {
		return Zero(), fmt.Errorf("decimal: exponential notation not supported: %q", s)
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	digits := whole + frac
	if digits == "" {
		return Zero(), fmt.Errorf("decimal: no digits in %q", s)
	}
	m, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Zero(), fmt.Errorf("decimal: invalid number %q", s)
	}
	if neg {
		m.Neg(m)
	}
	return Amount{Mantissa: m.String(), Decimals: int32(len(frac))}, nil
}

// Float64 converts a to a float. Lossy; display and logging only.
func (a Amount) Float64() float64 {
	f, _ := strconv.ParseFloat(a.String(), 64)
	return f
}

// String renders the amount as a plain decimal string.
func (a Amount) String() string {
	m := a.mantissaInt()
	neg := m.Sign() < 0
	digits := new(big.Int).Abs(m).String()
	d := int(a.Decimals)
	var out string
	switch {
	case d <= 0:
		out = digits + strings.Repeat("0", -d)
	case d >= len(digits):
		out = "0." + strings.Repeat("0", d-len(digits)) + digits
	default:
		out = digits[:len(digits)-d] + "." + digits[len(digits)-d:]
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return out
}

// Normalize strips trailing zero digits from the mantissa so that equal
// values share one representation (2.50 becomes 2.5, every zero becomes 0).
func (a Amount) Normalize() Amount {
	m := a.mantissaInt()
	if m.Sign() == 0 {
		return Zero()
	}
	s := m.String()
	d := a.Decimals
	for d > 0 && strings.HasSuffix(s, "0") {
		s = s[:len(s)-1]
		d--
	}
	return Amount{Mantissa: s, Decimals: d}
}

// Key produces a stable string key for use as a map key or storage key
// component, normalized so equal values yield equal keys. FromKey is its
// inverse up to normalization.
func (a Amount) Key() string {
	n := a.Normalize()
	return n.Mantissa + "~" + strconv.FormatInt(int64(n.Decimals), 10)
}

// FromKey parses a key produced by Amount.Key.
func FromKey(key string) (Amount, error) {
	i := strings.LastIndexByte(key, '~')
	if i < 0 {
		return Zero(), fmt.Errorf("decimal: malformed key %q", key)
	}
	d, err := strconv.ParseInt(key[i+1:], 10, 32)
	if err != nil {
		return Zero(), fmt.Errorf("decimal: malformed key %q: %w", key, err)
	}
	if _, ok := new(big.Int).SetString(key[:i], 10); !ok {
		return Zero(), fmt.Errorf("decimal: malformed key mantissa %q", key)
	}
	return Amount{Mantissa: key[:i], Decimals: int32(d)}, nil
}

// Equal reports value equality (2.50 equals 2.5).
func Equal(a, b Amount) bool {
	return Cmp(a, b) == 0
}
