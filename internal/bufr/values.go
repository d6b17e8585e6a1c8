package bufr

import (
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"

	"bufr_decoder/internal/descriptor"
)

// Value is one decoded data value. Values are never modified after decoding.
type Value struct {
	Descriptor *descriptor.Element
	Raw        uint64 // Raw bits for numeric values.
	Hex        string // Raw bits for text values.
	Missing    bool
	Number     float64
	Text       string
}

// Item is either a *Value or a *Replicated group.
type Item interface {
	item()
}

func (*Value) item()      {}
func (*Replicated) item() {}

// Replicated holds the repetitions of one replication group.
type Replicated struct {
	Descriptor *descriptor.Replication
	Factor     *Value // Nil for fixed replication.
	// Repeated is set when the group was read once and duplicated.
	Repeated    bool
	Repetitions [][]Item
}

// Subset is the ordered content of one BUFR subset.
type Subset []Item

// Values flattens the subset, expanding replications in order.
func (s Subset) Values() []*Value {
	var out []*Value
	var walk func(items []Item)
	walk = func(items []Item) {
		for _, it := range items {
			switch v := it.(type) {
			case *Value:
				out = append(out, v)
			case *Replicated:
				if v.Factor != nil {
					out = append(out, v.Factor)
				}
				for _, rep := range v.Repetitions {
					walk(rep)
				}
			}
		}
	}
	walk(s)
	return out
}

// Find returns the first value for code.
func (s Subset) Find(code descriptor.Code) (*Value, bool) {
	for _, v := range s.Values() {
		if v.Descriptor.FXY == code {
			return v, true
		}
	}
	return nil, false
}

// Float returns the numeric value, false when missing or textual.
func (v *Value) Float() (float64, bool) {
	if v.Missing || v.Descriptor.IsText() {
		return 0, false
	}
	return v.Number, true
}

func (v *Value) String() string {
	switch {
	case v.Missing:
		return "MISSING"
	case v.Descriptor.IsText():
		return v.Text
	}
	return strconv.FormatFloat(v.Number, 'f', -1, 64)
}

type valueJSON struct {
	Code  descriptor.Code `json:"code"`
	Name  string          `json:"name,omitempty"`
	Unit  string          `json:"unit,omitempty"`
	Raw   *uint64         `json:"raw,omitempty"`
	Value any             `json:"value"`
}

// MarshalJSON renders missing values as null.
func (v *Value) MarshalJSON() ([]byte, error) {
	out := valueJSON{Code: v.Descriptor.FXY, Name: v.Descriptor.Name, Unit: v.Descriptor.Unit}
	switch {
	case v.Missing:
	case v.Descriptor.IsText():
		out.Value = v.Text
	default:
		raw := v.Raw
		out.Raw = &raw
		out.Value = v.Number
	}
	return json.Marshal(out)
}

// MarshalJSON renders the replication as its factor and repetitions.
func (r *Replicated) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code        descriptor.Code `json:"replication"`
		Factor      *Value          `json:"factor,omitempty"`
		Repeated    bool            `json:"repeated,omitempty"`
		Repetitions [][]Item        `json:"repetitions"`
	}{r.Descriptor.FXY, r.Factor, r.Repeated, r.Repetitions})
}

func numericValue(el *descriptor.Element, raw uint64, scale int, reference int64, missing bool) *Value {
	v := &Value{Descriptor: el, Raw: raw, Missing: missing}
	if !missing {
		v.Number = float64(int64(raw)+reference) * math.Pow10(-scale)
	}
	return v
}

func textValue(el *descriptor.Element, hexBits string, missing bool) *Value {
	v := &Value{Descriptor: el, Hex: hexBits, Missing: missing}
	if !missing {
		v.Text = ia5(hexBits)
	}
	return v
}

// ia5 maps each octet to the rune of the same value.
func ia5(hexBits string) string {
	data, err := hex.DecodeString(hexBits)
	if err != nil {
		return ""
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

func allOnesHex(hexBits string, width int) bool {
	if width <= 0 {
		return false
	}
	data, err := hex.DecodeString(hexBits)
	if err != nil {
		return false
	}
	for i, b := range data {
		mask := byte(0xFF)
		if rem := width - 8*i; rem < 8 {
			mask = byte(0xFF << (8 - rem))
		}
		if b&mask != mask {
			return false
		}
	}
	return true
}
