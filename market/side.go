package market

import (
	"fmt"
	"strings"
)

// Side: +1 long, -1 short, 0 flat
type Side int8

const (
	Flat  Side = 0
	Long  Side = +1
	Short Side = -1
)

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// Opposite returns the other direction. Flat stays flat.
func (s Side) Opposite() Side { return -s }

// ParseSide accepts long/buy, short/sell and flat/none.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return Long, nil
	case "short", "sell":
		return Short, nil
	case "flat", "none", "":
		return Flat, nil
	default:
		return Flat, fmt.Errorf("unknown side %q", s)
	}
}
