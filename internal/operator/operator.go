// Package operator implements the BUFR operator engine: the set of long-lived
// operators in force while a message is decoded and the effective width, scale
// and reference they impose on element descriptors.
package operator

import (
	"bufr_decoder/internal/descriptor"
)

// Operator is one F=2 operator instance.
type Operator interface {
	Opcode() descriptor.Opcode
	Operand() int
	// Neutral reports whether the operand cancels the operator.
	Neutral() bool
	// Immediate operators apply in place and are never kept in the active set.
	Immediate() bool
	// ConflictsWith reports whether the operator may not be activated while
	// another operator with the given opcode is in force.
	ConflictsWith(descriptor.Opcode) bool
}

type base struct {
	operand int
}

func (b base) Operand() int    { return b.operand }
func (b base) Immediate() bool { return false }

type changeDataWidth struct{ base }

func (changeDataWidth) Opcode() descriptor.Opcode { return descriptor.OpChangeDataWidth }
func (o changeDataWidth) Neutral() bool           { return o.operand == 0 }
func (changeDataWidth) ConflictsWith(op descriptor.Opcode) bool {
	return op == descriptor.OpIncreaseScaleRefWidth
}

// Bits returns the width delta.
func (o changeDataWidth) Bits() int { return o.operand - 128 }

type changeScale struct{ base }

func (changeScale) Opcode() descriptor.Opcode { return descriptor.OpChangeScale }
func (o changeScale) Neutral() bool           { return o.operand == 0 }
func (changeScale) ConflictsWith(op descriptor.Opcode) bool {
	return op == descriptor.OpIncreaseScaleRefWidth
}

// Delta returns the scale delta.
func (o changeScale) Delta() int { return o.operand - 128 }

type changeReferenceValues struct{ base }

func (changeReferenceValues) Opcode() descriptor.Opcode { return descriptor.OpChangeReferenceValues }

// Neutral covers both 2 03 255 (end of definitions) and 2 03 000 (cancel).
func (o changeReferenceValues) Neutral() bool { return o.operand == 255 || o.operand == 0 }
func (changeReferenceValues) ConflictsWith(op descriptor.Opcode) bool {
	return op == descriptor.OpIncreaseScaleRefWidth
}

type addAssociatedField struct{ base }

func (addAssociatedField) Opcode() descriptor.Opcode { return descriptor.OpAddAssociatedField }
func (o addAssociatedField) Neutral() bool           { return o.operand == 0 }
func (addAssociatedField) ConflictsWith(op descriptor.Opcode) bool {
	return op == descriptor.OpAddAssociatedField
}

type increaseScaleRefWidth struct{ base }

func (increaseScaleRefWidth) Opcode() descriptor.Opcode { return descriptor.OpIncreaseScaleRefWidth }
func (o increaseScaleRefWidth) Neutral() bool           { return o.operand == 0 }
func (increaseScaleRefWidth) ConflictsWith(op descriptor.Opcode) bool {
	switch op {
	case descriptor.OpChangeDataWidth, descriptor.OpChangeScale,
		descriptor.OpChangeReferenceValues, descriptor.OpIncreaseScaleRefWidth:
		return true
	}
	return false
}

type changeCCITTWidth struct{ base }

func (changeCCITTWidth) Opcode() descriptor.Opcode            { return descriptor.OpChangeCCITTWidth }
func (o changeCCITTWidth) Neutral() bool                      { return o.operand == 0 }
func (changeCCITTWidth) ConflictsWith(descriptor.Opcode) bool { return false }

// Bits returns the CCITT IA5 field width.
func (o changeCCITTWidth) Bits() int { return o.operand * 8 }

type signifyCharacter struct{ base }

func (signifyCharacter) Opcode() descriptor.Opcode            { return descriptor.OpSignifyCharacter }
func (signifyCharacter) Neutral() bool                        { return false }
func (signifyCharacter) Immediate() bool                      { return true }
func (signifyCharacter) ConflictsWith(descriptor.Opcode) bool { return false }

type signifyLocalWidth struct{ base }

func (signifyLocalWidth) Opcode() descriptor.Opcode            { return descriptor.OpSignifyLocalWidth }
func (o signifyLocalWidth) Neutral() bool                      { return o.operand == 0 }
func (signifyLocalWidth) Immediate() bool                      { return true }
func (signifyLocalWidth) ConflictsWith(descriptor.Opcode) bool { return false }

// Constructor builds an operator from its operand.
type Constructor func(operand int) Operator

// registry is built once; it is never mutated after package initialisation.
var registry = map[descriptor.Opcode]Constructor{
	descriptor.OpChangeDataWidth:       func(y int) Operator { return changeDataWidth{base{y}} },
	descriptor.OpChangeScale:           func(y int) Operator { return changeScale{base{y}} },
	descriptor.OpChangeReferenceValues: func(y int) Operator { return changeReferenceValues{base{y}} },
	descriptor.OpAddAssociatedField:    func(y int) Operator { return addAssociatedField{base{y}} },
	descriptor.OpSignifyCharacter:      func(y int) Operator { return signifyCharacter{base{y}} },
	descriptor.OpSignifyLocalWidth:     func(y int) Operator { return signifyLocalWidth{base{y}} },
	descriptor.OpIncreaseScaleRefWidth: func(y int) Operator { return increaseScaleRefWidth{base{y}} },
	descriptor.OpChangeCCITTWidth:      func(y int) Operator { return changeCCITTWidth{base{y}} },
}

// New builds the operator for an operator descriptor.
func New(d *descriptor.Operator) (Operator, error) {
	ctor, ok := registry[d.Opcode]
	if !ok {
		return nil, &descriptor.UnsupportedOperatorError{Code: d.FXY}
	}
	return ctor(d.Operand), nil
}

// IncreaseSRW returns the width delta, scale delta and reference multiplier that
// 2 07 YYY imposes for operand n.
func IncreaseSRW(n int) (width, scale int, multiplier int64) {
	multiplier = 1
	for i := 0; i < n; i++ {
		multiplier *= 10
	}
	return (10*n + 2) / 3, n, multiplier
}

// NewReferenceValue decodes a 2 03 YYY reference field of the given width: the
// top bit is the sign, the remaining bits the magnitude.
func NewReferenceValue(raw uint64, width int) int64 {
	if width <= 0 {
		return 0
	}
	sign := uint64(1) << (width - 1)
	if raw&sign != 0 {
		return -int64(raw &^ sign)
	}
	return int64(raw)
}
