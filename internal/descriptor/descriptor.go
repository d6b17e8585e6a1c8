package descriptor

import (
	"strings"
)

// Kind identifies a descriptor variant.
type Kind int

const (
	KindElement Kind = iota
	KindReplication
	KindOperator
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindElement:
		return "element"
	case KindReplication:
		return "replication"
	case KindOperator:
		return "operator"
	case KindSequence:
		return "sequence"
	}
	return "unknown"
}

// Descriptor is one of Element, Replication, Operator or Sequence. The interface
// is sealed: no type outside this package can implement it.
type Descriptor interface {
	Code() Code
	Kind() Kind
	sealed()
}

// Element is a table B descriptor: one data value of fixed width.
type Element struct {
	FXY       Code   `json:"code"`
	Name      string `json:"name"`
	Unit      string `json:"unit"`
	Scale     int    `json:"scale"`
	Reference int64  `json:"reference"`
	Width     int    `json:"width"`
}

func (e *Element) Code() Code { return e.FXY }
func (e *Element) Kind() Kind { return KindElement }
func (*Element) sealed()      {}

// IsText reports whether the element holds CCITT IA5 characters.
func (e *Element) IsText() bool {
	u := normaliseUnit(e.Unit)
	return u == "CCITTIA5" || u == "CHARACTER"
}

// IsCodeOrFlag reports whether the element's value indexes a code or flag table.
func (e *Element) IsCodeOrFlag() bool {
	u := normaliseUnit(e.Unit)
	return strings.HasPrefix(u, "CODETABLE") || strings.HasPrefix(u, "FLAGTABLE")
}

func normaliseUnit(unit string) string {
	return strings.NewReplacer(" ", "", "_", "").Replace(strings.ToUpper(unit))
}

// Replication repeats the Fields descriptors that follow it. Count zero means the
// count is read from the data (delayed replication).
type Replication struct {
	FXY    Code
	Fields int
	Count  int
}

func (r *Replication) Code() Code { return r.FXY }
func (r *Replication) Kind() Kind { return KindReplication }
func (*Replication) sealed()      {}

// Delayed reports whether the repeat count comes from the data.
func (r *Replication) Delayed() bool { return r.Count == 0 }

// Opcode is the X part of an F=2 operator descriptor.
type Opcode int

const (
	OpChangeDataWidth       Opcode = 1
	OpChangeScale           Opcode = 2
	OpChangeReferenceValues Opcode = 3
	OpAddAssociatedField    Opcode = 4
	OpSignifyCharacter      Opcode = 5
	OpSignifyLocalWidth     Opcode = 6
	OpIncreaseScaleRefWidth Opcode = 7
	OpChangeCCITTWidth      Opcode = 8
)

var opcodeNames = map[Opcode]string{
	OpChangeDataWidth:       "change data width",
	OpChangeScale:           "change scale",
	OpChangeReferenceValues: "change reference values",
	OpAddAssociatedField:    "add associated field",
	OpSignifyCharacter:      "signify character",
	OpSignifyLocalWidth:     "signify data width for local descriptor",
	OpIncreaseScaleRefWidth: "increase scale, reference value and data width",
	OpChangeCCITTWidth:      "change width of CCITT IA5 field",
}

// Supported reports whether the opcode has an implementation.
func (o Opcode) Supported() bool {
	_, ok := opcodeNames[o]
	return ok
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "unsupported operator"
}

// Opcodes returns every supported opcode.
func Opcodes() []Opcode {
	out := make([]Opcode, 0, len(opcodeNames))
	for op := OpChangeDataWidth; op <= OpChangeCCITTWidth; op++ {
		if op.Supported() {
			out = append(out, op)
		}
	}
	return out
}

// Operator modifies how subsequent elements are read.
type Operator struct {
	FXY     Code
	Opcode  Opcode
	Operand int
}

func (o *Operator) Code() Code { return o.FXY }
func (o *Operator) Kind() Kind { return KindOperator }
func (*Operator) sealed()      {}

// Sequence is a table D descriptor with its children already resolved.
type Sequence struct {
	FXY      Code
	Name     string
	Children []Descriptor
}

func (s *Sequence) Code() Code { return s.FXY }
func (s *Sequence) Kind() Kind { return KindSequence }
func (*Sequence) sealed()      {}
