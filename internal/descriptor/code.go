// Package descriptor provides the BUFR descriptor model: FXY codes, the four
// descriptor variants, immutable descriptor tables and code resolution.
package descriptor

import (
	"fmt"
	"strconv"
	"strings"
)

// Code is a 16-bit FXY descriptor identifier: F in bits 15-14, X in 13-8, Y in 7-0.
type Code uint16

// NewCode packs f, x and y into a Code.
func NewCode(f, x, y int) Code {
	return Code((f&0x3)<<14 | (x&0x3F)<<8 | y&0xFF)
}

// F returns the descriptor class.
func (c Code) F() int { return int(c >> 14) }

// X returns the category (or opcode, or replicated field count).
func (c Code) X() int { return int(c>>8) & 0x3F }

// Y returns the entry (or operand, or replication count).
func (c Code) Y() int { return int(c) & 0xFF }

// String formats the code as FXXYYY.
func (c Code) String() string {
	return fmt.Sprintf("%d%02d%03d", c.F(), c.X(), c.Y())
}

// MarshalText implements encoding.TextMarshaler.
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Code) UnmarshalText(text []byte) error {
	parsed, err := ParseCode(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCode parses "FXXYYY" or "F-XX-YYY" notation.
func ParseCode(s string) (Code, error) {
	clean := strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(s))
	if len(clean) != 6 {
		return 0, fmt.Errorf("descriptor code %q: want 6 digits", s)
	}
	f, err := strconv.Atoi(clean[:1])
	if err != nil {
		return 0, fmt.Errorf("descriptor code %q: %w", s, err)
	}
	x, err := strconv.Atoi(clean[1:3])
	if err != nil {
		return 0, fmt.Errorf("descriptor code %q: %w", s, err)
	}
	y, err := strconv.Atoi(clean[3:])
	if err != nil {
		return 0, fmt.Errorf("descriptor code %q: %w", s, err)
	}
	if f > 3 || x > 63 || y > 255 {
		return 0, fmt.Errorf("descriptor code %q: out of range", s)
	}
	return NewCode(f, x, y), nil
}

// MustParseCode is like ParseCode but panics on malformed input.
// It is intended for package-level constants and tests.
func MustParseCode(s string) Code {
	c, err := ParseCode(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Well-known class 31 codes that steer replication and associated fields.
var (
	ShortDelayedReplication     = NewCode(0, 31, 0)
	DelayedReplication          = NewCode(0, 31, 1)
	ExtendedDelayedReplication  = NewCode(0, 31, 2)
	DelayedRepetition           = NewCode(0, 31, 11)
	ExtendedDelayedRepetition   = NewCode(0, 31, 12)
	AssociatedFieldSignificance = NewCode(0, 31, 21)
)

// AssociatedFieldCode is the reserved synthetic code used for associated field
// values. 3 63 255 is never assigned by WMO tables.
const AssociatedFieldCode = Code(0xFFFF)

// IsRegularFactor reports whether c is a delayed replication factor whose value
// counts repetitions that are each read from the data.
func IsRegularFactor(c Code) bool {
	return c == ShortDelayedReplication || c == DelayedReplication || c == ExtendedDelayedReplication
}

// IsRepeatedFactor reports whether c is a delayed repetition factor: the group is
// read once and its values are repeated.
func IsRepeatedFactor(c Code) bool {
	return c == DelayedRepetition || c == ExtendedDelayedRepetition
}
