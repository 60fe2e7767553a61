package models

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strconv"
)

// Wei is an arbitrary-precision on-chain amount in the smallest unit
// (10^18 wei = 1 HSK). It maps to a NUMERIC column and marshals to a
// decimal string in JSON, since deposit amounts can exceed int64.
type Wei big.Int

// NewWei copies v into a Wei amount.
func NewWei(v *big.Int) *Wei {
	if v == nil {
		return nil
	}
	return (*Wei)(new(big.Int).Set(v))
}

// WeiFromInt64 builds a Wei amount from an int64 value.
func WeiFromInt64(v int64) *Wei {
	return (*Wei)(big.NewInt(v))
}

// BigInt returns the underlying big.Int. Mutating it mutates the Wei value.
func (w *Wei) BigInt() *big.Int {
	return (*big.Int)(w)
}

func (w *Wei) String() string {
	if w == nil {
		return "0"
	}
	return (*big.Int)(w).String()
}

// Value implements driver.Valuer, storing the amount as a decimal string.
func (w *Wei) Value() (driver.Value, error) {
	if w == nil {
		return "0", nil
	}
	return (*big.Int)(w).String(), nil
}

// Scan implements sql.Scanner for NUMERIC, text and integer columns.
func (w *Wei) Scan(src interface{}) error {
	if src == nil {
		(*big.Int)(w).SetInt64(0)
		return nil
	}

	var s string
	switch v := src.(type) {
	case []byte:
		s = string(v)
	case string:
		s = v
	case int64:
		(*big.Int)(w).SetInt64(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Wei", src)
	}

	if _, ok := (*big.Int)(w).SetString(s, 10); !ok {
		return fmt.Errorf("invalid wei amount %q", s)
	}
	return nil
}

// MarshalJSON encodes the amount as a quoted decimal string.
func (w *Wei) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(w.String())), nil
}

// UnmarshalJSON accepts both a quoted decimal string and a bare number.
func (w *Wei) UnmarshalJSON(data []byte) error {
	s := string(data)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	if _, ok := (*big.Int)(w).SetString(s, 10); !ok {
		return fmt.Errorf("invalid wei amount %q", s)
	}
	return nil
}
