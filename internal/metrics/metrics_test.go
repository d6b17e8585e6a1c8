package metrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"bufr_decoder/internal/bufr"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("section 0: %w", bufr.ErrFormat), "format"},
		{&bufr.MessageError{Err: bufr.ErrIncompleteData}, "incomplete"},
		{bufr.ErrUnknownDescriptor, "unknown_descriptor"},
		{bufr.ErrUnsupportedOperator, "unsupported_operator"},
		{bufr.ErrOperatorConflict, "operator_conflict"},
		{bufr.ErrTemplateLengthMismatch, "template"},
		{&bufr.DelayedDescriptorError{}, "delayed_descriptor"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ErrorKind(tt.err), "%v", tt.err)
	}
}

func TestRecordDecode(t *testing.T) {
	msg := &bufr.Message{
		Section0: bufr.Section0{Edition: 4},
		Section1: bufr.Section1{DataCategory: 2},
		Section4: bufr.Section4{Subsets: make([]bufr.Subset, 3)},
	}

	RecordDecode("metrics_test", []*bufr.Message{msg, msg}, []error{bufr.ErrFormat})

	require.InDelta(t, 2.0, testutil.ToFloat64(messagesDecoded.WithLabelValues("metrics_test", "4", "2")), 0)
	require.InDelta(t, 6.0, testutil.ToFloat64(subsetsDecoded.WithLabelValues("metrics_test")), 0)
	require.InDelta(t, 1.0, testutil.ToFloat64(decodeErrors.WithLabelValues("metrics_test", "format")), 0)
}
