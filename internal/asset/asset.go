package asset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MaxAmount is the largest magnitude an asset may carry.
	MaxAmount int64 = 1<<62 - 1
	// MaxPrecision bounds the number of decimals a symbol may declare.
	MaxPrecision = 18

	maxCodeLen = 7
)

var (
	// ErrInvalidAsset reports a malformed symbol or an out of range amount.
	ErrInvalidAsset = errors.New("invalid asset")
	// ErrSymbolMismatch reports arithmetic or comparison across different symbols.
	ErrSymbolMismatch = errors.New("symbol mismatch")
	// ErrOverflow reports an amount leaving the [-MaxAmount, MaxAmount] range.
	ErrOverflow = errors.New("asset amount overflow")
)

// Symbol identifies a token: an upper-case code plus its decimal precision.
type Symbol struct {
	Code      string
	Precision uint8
}

// NewSymbol validates and builds a symbol.
func NewSymbol(code string, precision uint8) (Symbol, error) {
	s := Symbol{Code: code, Precision: precision}
	if !s.IsValid() {
		return Symbol{}, fmt.Errorf("%w: symbol %q precision %d", ErrInvalidAsset, code, precision)
	}
	return s, nil
}

// MustSymbol is NewSymbol for package-level constants.
func MustSymbol(code string, precision uint8) Symbol {
	s, err := NewSymbol(code, precision)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseSymbol reads the "precision,CODE" form, e.g. "6,HOT".
func ParseSymbol(s string) (Symbol, error) {
	prec, code, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return Symbol{}, fmt.Errorf("%w: symbol %q must look like 4,ABC", ErrInvalidAsset, s)
	}
	p, err := strconv.ParseUint(prec, 10, 8)
	if err != nil {
		return Symbol{}, fmt.Errorf("%w: symbol precision %q", ErrInvalidAsset, prec)
	}
	return NewSymbol(code, uint8(p))
}

// IsValid reports whether the code is 1-7 upper-case letters and the precision is in range.
func (s Symbol) IsValid() bool {
	if len(s.Code) == 0 || len(s.Code) > maxCodeLen || s.Precision > MaxPrecision {
		return false
	}
	for _, r := range s.Code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// IsZero reports whether the symbol is unset.
func (s Symbol) IsZero() bool {
	return s.Code == "" && s.Precision == 0
}

func (s Symbol) String() string {
	return fmt.Sprintf("%d,%s", s.Precision, s.Code)
}

// Asset is a fixed-point amount of a symbol.
type Asset struct {
	Amount int64
	Symbol Symbol
}

// New validates and builds an asset.
func New(amount int64, sym Symbol) (Asset, error) {
	a := Asset{Amount: amount, Symbol: sym}
	if !a.IsValid() {
		return Asset{}, fmt.Errorf("%w: %d of %s", ErrInvalidAsset, amount, sym)
	}
	return a, nil
}

// Zero returns an empty amount of sym.
func Zero(sym Symbol) Asset {
	return Asset{Symbol: sym}
}

// Parse reads "1000.000000 HOT". The number of decimals fixes the precision.
func Parse(s string) (Asset, error) {
	num, code, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return Asset{}, fmt.Errorf("%w: asset %q must look like 1.0000 ABC", ErrInvalidAsset, s)
	}
	precision := 0
	if _, frac, hasFrac := strings.Cut(num, "."); hasFrac {
		if frac == "" {
			return Asset{}, fmt.Errorf("%w: asset %q has an empty fraction", ErrInvalidAsset, s)
		}
		precision = len(frac)
	}
	if precision > MaxPrecision {
		return Asset{}, fmt.Errorf("%w: asset %q has too many decimals", ErrInvalidAsset, s)
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: asset amount %q", ErrInvalidAsset, num)
	}
	sym, err := NewSymbol(strings.TrimSpace(code), uint8(precision))
	if err != nil {
		return Asset{}, err
	}
	scaled := d.Shift(int32(precision))
	if !scaled.IsInteger() || scaled.Abs().GreaterThan(decimal.NewFromInt(MaxAmount)) {
		return Asset{}, fmt.Errorf("%w: asset amount %q out of range", ErrInvalidAsset, num)
	}
	return New(scaled.IntPart(), sym)
}

// IsValid reports whether the symbol is valid and the amount is within range.
func (a Asset) IsValid() bool {
	return a.Symbol.IsValid() && a.Amount >= -MaxAmount && a.Amount <= MaxAmount
}

// IsZero reports whether the amount is zero.
func (a Asset) IsZero() bool {
	return a.Amount == 0
}

// Add returns a+b. Symbols must match.
func (a Asset) Add(b Asset) (Asset, error) {
	if a.Symbol != b.Symbol {
		return Asset{}, fmt.Errorf("%w: %s + %s", ErrSymbolMismatch, a.Symbol, b.Symbol)
	}
	sum := a.Amount + b.Amount
	if sum < -MaxAmount || sum > MaxAmount {
		return Asset{}, fmt.Errorf("%w: %s + %s", ErrOverflow, a, b)
	}
	return Asset{Amount: sum, Symbol: a.Symbol}, nil
}

// Sub returns a-b. Symbols must match.
func (a Asset) Sub(b Asset) (Asset, error) {
	if a.Symbol != b.Symbol {
		return Asset{}, fmt.Errorf("%w: %s - %s", ErrSymbolMismatch, a.Symbol, b.Symbol)
	}
	diff := a.Amount - b.Amount
	if diff < -MaxAmount || diff > MaxAmount {
		return Asset{}, fmt.Errorf("%w: %s - %s", ErrOverflow, a, b)
	}
	return Asset{Amount: diff, Symbol: a.Symbol}, nil
}

// Cmp compares amounts of the same symbol, returning -1, 0 or +1.
func (a Asset) Cmp(b Asset) (int, error) {
	if a.Symbol != b.Symbol {
		return 0, fmt.Errorf("%w: %s vs %s", ErrSymbolMismatch, a.Symbol, b.Symbol)
	}
	switch {
	case a.Amount < b.Amount:
		return -1, nil
	case a.Amount > b.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// Decimal returns the amount as a decimal value with the symbol precision applied.
func (a Asset) Decimal() decimal.Decimal {
	return decimal.New(a.Amount, -int32(a.Symbol.Precision))
}

func (a Asset) String() string {
	if a.Symbol.IsZero() {
		return strconv.FormatInt(a.Amount, 10)
	}
	return a.Decimal().StringFixed(int32(a.Symbol.Precision)) + " " + a.Symbol.Code
}

// MarshalText encodes the asset in its "1.000000 HOT" form.
func (a Asset) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes the "1.000000 HOT" form.
func (a *Asset) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
