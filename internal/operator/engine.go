package operator

import (
	"errors"
	"fmt"

	"bufr_decoder/internal/descriptor"
)

// ErrOperatorConflict is returned when an operator is activated while a
// conflicting one is in force.
var ErrOperatorConflict = errors.New("operator conflict")

// ConflictError names the two operators involved in a conflict.
type ConflictError struct {
	Code   descriptor.Code
	Active descriptor.Opcode
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s while %q is active", ErrOperatorConflict, e.Code, e.Active)
}

func (e *ConflictError) Is(target error) bool { return target == ErrOperatorConflict }

// Effective is the width, scale and reference an element is read with.
type Effective struct {
	Width     int
	Scale     int
	Reference int64
	Text      bool
}

// Engine tracks the operators in force for one message decode. It is not safe
// for concurrent use; each decode owns its own Engine.
type Engine struct {
	active    map[descriptor.Opcode]Operator
	overlay   map[descriptor.Code]int64
	localBits int // Pending 2 06 width for the next element.
}

// NewEngine creates an Engine with no active operators.
func NewEngine() *Engine {
	return &Engine{
		active:  make(map[descriptor.Opcode]Operator),
		overlay: make(map[descriptor.Code]int64),
	}
}

// Reset clears all operator state.
func (e *Engine) Reset() {
	clear(e.active)
	clear(e.overlay)
	e.localBits = 0
}

// Apply processes an operator descriptor. Immediate operators other than 2 06
// are returned to the caller to act on; long-lived ones update the active set.
func (e *Engine) Apply(d *descriptor.Operator) (Operator, error) {
	op, err := New(d)
	if err != nil {
		return nil, err
	}

	if op.Immediate() {
		if op.Opcode() == descriptor.OpSignifyLocalWidth {
			e.localBits = op.Operand()
		}
		return op, nil
	}

	if op.Neutral() {
		delete(e.active, op.Opcode())
		if op.Opcode() == descriptor.OpChangeReferenceValues {
			clear(e.overlay)
		}
		return op, nil
	}

	for opcode := range e.active {
		if op.ConflictsWith(opcode) || e.active[opcode].ConflictsWith(op.Opcode()) {
			return nil, &ConflictError{Code: d.FXY, Active: opcode}
		}
	}
	e.active[op.Opcode()] = op
	return op, nil
}

// IsActive reports whether an operator with the given opcode is in force.
func (e *Engine) IsActive(opcode descriptor.Opcode) bool {
	_, ok := e.active[opcode]
	return ok
}

// LocalWidthPending reports whether a 2 06 width awaits its element.
func (e *Engine) LocalWidthPending() bool { return e.localBits > 0 }

// AssociatedWidth returns the width of the associated field that precedes el,
// or zero when none is read.
func (e *Engine) AssociatedWidth(el *descriptor.Element) int {
	op, ok := e.active[descriptor.OpAddAssociatedField]
	if !ok || el.FXY == descriptor.AssociatedFieldSignificance {
		return 0
	}
	return op.Operand()
}

// DefinesReference reports whether reading el defines a new reference value
// under 2 03 YYY instead of producing data, and the width of that definition.
func (e *Engine) DefinesReference(el *descriptor.Element) (int, bool) {
	op, ok := e.active[descriptor.OpChangeReferenceValues]
	if !ok || el.IsText() || el.IsCodeOrFlag() {
		return 0, false
	}
	if _, defined := e.overlay[el.FXY]; defined {
		return 0, false
	}
	return op.Operand(), true
}

// SetReference stores a new reference value for code from its raw field.
func (e *Engine) SetReference(code descriptor.Code, raw uint64, width int) int64 {
	ref := NewReferenceValue(raw, width)
	e.overlay[code] = ref
	return ref
}

// Effective computes how el is read under the active operators and consumes
// any pending 2 06 width.
func (e *Engine) Effective(el *descriptor.Element) Effective {
	eff := Effective{Width: el.Width, Scale: el.Scale, Reference: el.Reference}

	if e.localBits > 0 {
		eff.Width = e.localBits
		e.localBits = 0
		return eff
	}

	if el.IsText() {
		eff.Text = true
		eff.Scale, eff.Reference = 0, 0
		if op, ok := e.active[descriptor.OpChangeCCITTWidth]; ok {
			eff.Width = op.(changeCCITTWidth).Bits()
		}
		return eff
	}
	if el.IsCodeOrFlag() {
		return eff
	}

	srwWidth, srwScale, srwMult := 0, 0, int64(1)
	if op, ok := e.active[descriptor.OpIncreaseScaleRefWidth]; ok {
		srwWidth, srwScale, srwMult = IncreaseSRW(op.Operand())
	}

	if op, ok := e.active[descriptor.OpChangeDataWidth]; ok {
		eff.Width += op.(changeDataWidth).Bits()
	} else {
		eff.Width += srwWidth
	}

	if op, ok := e.active[descriptor.OpChangeScale]; ok {
		eff.Scale += op.(changeScale).Delta()
	} else {
		eff.Scale += srwScale
	}

	if ref, ok := e.overlay[el.FXY]; ok && e.IsActive(descriptor.OpChangeReferenceValues) {
		eff.Reference = ref
	} else {
		eff.Reference *= srwMult
	}
	return eff
}
