package bufr

import (
	"errors"
	"fmt"

	"bufr_decoder/internal/bitio"
	"bufr_decoder/internal/descriptor"
	"bufr_decoder/internal/operator"
)

// Decode errors. Typed errors from the descriptor and operator packages match
// these sentinels with errors.Is.
var (
	ErrFormat                      = errors.New("bufr: format error")
	ErrIncompleteData              = bitio.ErrIncompleteData
	ErrUnknownDescriptor           = descriptor.ErrUnknownDescriptor
	ErrUnsupportedOperator         = descriptor.ErrUnsupportedOperator
	ErrOperatorConflict            = operator.ErrOperatorConflict
	ErrTemplateMismatch            = descriptor.ErrTemplateMismatch
	ErrTemplateLengthMismatch      = descriptor.ErrTemplateLengthMismatch
	ErrUnexpectedDelayedDescriptor = errors.New("bufr: unexpected delayed replication descriptor")
)

func formatError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFormat, fmt.Sprintf(format, args...))
}

// DelayedDescriptorError reports a delayed replication whose factor descriptor
// is not a class 31 replication factor.
type DelayedDescriptorError struct {
	Replication descriptor.Code
	Factor      descriptor.Code
}

func (e *DelayedDescriptorError) Error() string {
	return fmt.Sprintf("%s: %s follows %s", ErrUnexpectedDelayedDescriptor, e.Factor, e.Replication)
}

func (e *DelayedDescriptorError) Is(target error) bool {
	return target == ErrUnexpectedDelayedDescriptor
}

// MessageError wraps a failure of one message inside a multi-message stream.
type MessageError struct {
	Index  int   // Position of the message among the "BUFR" markers found.
	Offset int64 // Byte offset of the "BUFR" marker.
	Err    error
}

func (e *MessageError) Error() string {
	return fmt.Sprintf("message %d at offset %d: %v", e.Index, e.Offset, e.Err)
}

func (e *MessageError) Unwrap() error { return e.Err }
