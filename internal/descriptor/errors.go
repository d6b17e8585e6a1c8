package descriptor

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownDescriptor      = errors.New("unknown descriptor")
	ErrUnsupportedOperator    = errors.New("unsupported operator")
	ErrTemplateMismatch       = errors.New("template mismatch")
	ErrTemplateLengthMismatch = errors.New("template length mismatch")
)

// UnknownDescriptorError reports a code missing from the descriptor table.
type UnknownDescriptorError struct {
	Code Code
}

func (e *UnknownDescriptorError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnknownDescriptor, e.Code)
}

func (e *UnknownDescriptorError) Is(target error) bool { return target == ErrUnknownDescriptor }

// UnsupportedOperatorError reports an operator descriptor with no implementation.
type UnsupportedOperatorError struct {
	Code Code
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnsupportedOperator, e.Code)
}

func (e *UnsupportedOperatorError) Is(target error) bool { return target == ErrUnsupportedOperator }

// TemplateMismatchError reports a Section 3 code that differs from the template.
type TemplateMismatchError struct {
	Index    int
	Expected Code
	Actual   Code
}

func (e *TemplateMismatchError) Error() string {
	return fmt.Sprintf("%s at %d: expected %s, got %s", ErrTemplateMismatch, e.Index, e.Expected, e.Actual)
}

func (e *TemplateMismatchError) Is(target error) bool { return target == ErrTemplateMismatch }

// TemplateLengthMismatchError reports a descriptor count that differs from the template.
type TemplateLengthMismatchError struct {
	Expected int
	Actual   int
}

func (e *TemplateLengthMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %d descriptors, got %d", ErrTemplateLengthMismatch, e.Expected, e.Actual)
}

func (e *TemplateLengthMismatchError) Is(target error) bool {
	return target == ErrTemplateLengthMismatch
}
