package bufr

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"bufr_decoder/internal/descriptor"
	"bufr_decoder/internal/testutil"
)

func decodeOne(t *testing.T, m testutil.Message) (*Message, error) {
	t.Helper()
	return Decode(bytes.NewReader(testutil.Encode(m)), testutil.Table(t))
}

func numbers(t *testing.T, s Subset) []any {
	t.Helper()
	var out []any
	for _, v := range s.Values() {
		switch {
		case v.Missing:
			out = append(out, nil)
		case v.Descriptor.IsText():
			out = append(out, v.Text)
		default:
			out = append(out, v.Number)
		}
	}
	return out
}

func requireNumbers(t *testing.T, want []float64, s Subset) {
	t.Helper()
	vals := s.Values()
	require.Len(t, vals, len(want))
	for i, v := range vals {
		require.False(t, v.Missing, "value %d missing", i)
		require.InDelta(t, want[i], v.Number, 1e-9, "value %d (%s)", i, v.Descriptor.FXY)
	}
}

func TestDecodeRejectsBadStart(t *testing.T) {
	tbl := testutil.Table(t)

	_, err := Decode(bytes.NewReader([]byte("GRIB\x00\x00\x10\x04")), tbl)
	require.ErrorIs(t, err, ErrFormat)

	// Streams too short to hold the marker are not BUFR either.
	for _, prefix := range []string{"", "BU", "BUF"} {
		_, err = Decode(bytes.NewReader([]byte(prefix)), tbl)
		require.ErrorIs(t, err, ErrFormat, "stream %q", prefix)
	}
}

func TestDecodeRejectsUnsupportedEdition(t *testing.T) {
	for _, edition := range []int{1, 2, 5} {
		_, err := decodeOne(t, testutil.Message{
			Edition: edition,
			Codes:   testutil.Codes("001001"),
			Data:    []byte{0},
		})
		require.ErrorIs(t, err, ErrFormat, "edition %d", edition)
	}
}

func TestDecodeUncompressedSubsets(t *testing.T) {
	w := &testutil.BitWriter{}
	w.Write(3, 7).Write(774, 10).Write(28315, 16)
	w.Write(3, 7).Write(775, 10).Missing(16)

	msg, err := decodeOne(t, testutil.Message{
		Subsets: 2,
		Codes:   testutil.Codes("301001", "012101"),
		Data:    w.Bytes(),
	})
	require.NoError(t, err)

	require.Equal(t, 4, msg.Section0.Edition)
	require.Equal(t, 2, msg.Section3.Subsets)
	require.False(t, msg.Section3.Compressed)
	require.Len(t, msg.Subsets(), 2)

	requireNumbers(t, []float64{3, 774, 283.15}, msg.Subsets()[0])

	second := msg.Subsets()[1].Values()
	require.InDelta(t, 775.0, second[1].Number, 1e-9)
	require.True(t, second[2].Missing)
	_, ok := second[2].Float()
	require.False(t, ok)
	require.Equal(t, "MISSING", second[2].String())
}

func TestDecodeEdition3WithLocalData(t *testing.T) {
	w := &testutil.BitWriter{}
	w.Write(28315, 16)

	msg, err := decodeOne(t, testutil.Message{
		Edition:     3,
		Centre:      98,
		Category:    2,
		Section1Pad: 1,
		Section2:    []byte{0xDE, 0xAD, 0xBE},
		Codes:       testutil.Codes("012101"),
		Data:        w.Bytes(),
	})
	require.NoError(t, err)

	require.Equal(t, 3, msg.Section0.Edition)
	require.Equal(t, 18, msg.Section1.Length)
	require.Equal(t, 98, msg.Section1.Centre)
	require.Equal(t, 2, msg.Section1.DataCategory)
	require.True(t, msg.Section1.HasSection2)
	require.Equal(t, []byte{0}, msg.Section1.Local)
	require.Equal(t, 2024, msg.Section1.Time().Year())
	require.NotNil(t, msg.Section2)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE}, msg.Section2.Data)
	require.Equal(t, "7777", msg.Section5.Marker)
}

func TestDecodeEdition4Header(t *testing.T) {
	msg, err := decodeOne(t, testutil.Message{
		Centre: 0x0102,
		Codes:  testutil.Codes("012101"),
		Data:   []byte{0x6E, 0x9B},
	})
	require.NoError(t, err)
	require.Equal(t, 0x0102, msg.Section1.Centre)
	require.Equal(t, 38, msg.Section1.MasterTableVersion)
	require.Equal(t, 2024, msg.Section1.Year)
	require.Equal(t, 45, msg.Section1.Second)
	require.Nil(t, msg.Section2)
}

func TestDecodeStructuralErrors(t *testing.T) {
	good := testutil.Encode(testutil.Message{Codes: testutil.Codes("012101"), Data: []byte{0, 0}})

	badEnd := append([]byte(nil), good...)
	badEnd[len(badEnd)-1] = '8'
	_, err := Decode(bytes.NewReader(badEnd), testutil.Table(t))
	require.ErrorIs(t, err, ErrFormat)

	_, err = Decode(bytes.NewReader(good[:len(good)/2]), testutil.Table(t))
	require.ErrorIs(t, err, ErrIncompleteData)

	_, err = decodeOne(t, testutil.Message{MasterTable: 10, Codes: testutil.Codes("012101"), Data: []byte{0, 0}})
	require.ErrorIs(t, err, ErrFormat)

	_, err = decodeOne(t, testutil.Message{Codes: testutil.Codes("012999"), Data: []byte{0, 0}})
	require.ErrorIs(t, err, ErrUnknownDescriptor)

	_, err = decodeOne(t, testutil.Message{Codes: testutil.Codes("222000", "012101"), Data: []byte{0, 0}})
	require.ErrorIs(t, err, ErrUnsupportedOperator)

	// Section 4 shorter than its descriptors need.
	_, err = decodeOne(t, testutil.Message{Codes: testutil.Codes("012101", "012101"), Data: []byte{0, 0}})
	require.ErrorIs(t, err, ErrIncompleteData)
}

func TestFixedReplication(t *testing.T) {
	w := &testutil.BitWriter{}
	for i := 0; i < 3; i++ {
		w.Write(uint64(27000+i*100), 16).Write(uint64(90*i), 9)
	}
	w.Write(42, 7)
	require.Equal(t, 3*(16+9)+7, w.Len())

	msg, err := decodeOne(t, testutil.Message{
		Codes: testutil.Codes("102003", "012101", "011001", "001001"),
		Data:  w.Bytes(),
	})
	require.NoError(t, err)

	subset := msg.Subsets()[0]
	require.Len(t, subset, 2)
	rep, ok := subset[0].(*Replicated)
	require.True(t, ok)
	require.Nil(t, rep.Factor)
	require.Len(t, rep.Repetitions, 3)
	for _, group := range rep.Repetitions {
		require.Len(t, group, 2)
	}
	requireNumbers(t, []float64{270, 0, 271, 90, 272, 180, 42}, subset)
}

func TestDelayedReplication(t *testing.T) {
	w := &testutil.BitWriter{}
	w.Write(5, 8)
	for i := 0; i < 5; i++ {
		w.Write(uint64(25000+i), 16)
	}

	msg, err := decodeOne(t, testutil.Message{
		Codes: testutil.Codes("101000", "031001", "012101"),
		Data:  w.Bytes(),
	})
	require.NoError(t, err)

	rep := msg.Subsets()[0][0].(*Replicated)
	require.False(t, rep.Repeated)
	require.InDelta(t, 5.0, rep.Factor.Number, 0)
	require.Len(t, rep.Repetitions, 5)
	requireNumbers(t, []float64{5, 250, 250.01, 250.02, 250.03, 250.04}, msg.Subsets()[0])
}

func TestShortDelayedReplicationFactorCountsOne(t *testing.T) {
	w := &testutil.BitWriter{}
	w.Write(1, 1).Write(28000, 16)

	msg, err := decodeOne(t, testutil.Message{
		Codes: testutil.Codes("101000", "031000", "012101"),
		Data:  w.Bytes(),
	})
	require.NoError(t, err)
	rep := msg.Subsets()[0][0].(*Replicated)
	require.False(t, rep.Factor.Missing)
	require.Len(t, rep.Repetitions, 1)
}

func TestAllOnesDelayedFactorIsFormatError(t *testing.T) {
	tests := []struct {
		name   string
		factor string
		width  int
	}{
		{name: "delayed replication", factor: "031001", width: 8},
		{name: "extended delayed replication", factor: "031002", width: 16},
		{name: "delayed repetition", factor: "031011", width: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &testutil.BitWriter{}
			w.Missing(tt.width).Write(28000, 16)

			_, err := decodeOne(t, testutil.Message{
				Codes: testutil.Codes("101000", tt.factor, "012101"),
				Data:  w.Bytes(),
			})
			require.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestDelayedRepetitionReadsGroupOnce(t *testing.T) {
	w := &testutil.BitWriter{}
	w.Write(4, 8).Write(27315, 16).Write(9, 7)

	msg, err := decodeOne(t, testutil.Message{
		Codes: testutil.Codes("101000", "031011", "012101", "001001"),
		Data:  w.Bytes(),
	})
	require.NoError(t, err)

	rep := msg.Subsets()[0][0].(*Replicated)
	require.True(t, rep.Repeated)
	require.Len(t, rep.Repetitions, 4)
	requireNumbers(t, []float64{4, 273.15, 273.15, 273.15, 273.15, 9}, msg.Subsets()[0])
}

func TestUnexpectedDelayedDescriptor(t *testing.T) {
	_, err := decodeOne(t, testutil.Message{
		Codes: testutil.Codes("101000", "012101", "012103"),
		Data:  []byte{0, 0, 0, 0},
	})
	require.ErrorIs(t, err, ErrUnexpectedDelayedDescriptor)

	var delayed *DelayedDescriptorError
	require.True(t, errors.As(err, &delayed))
	require.Equal(t, descriptor.MustParseCode("012101"), delayed.Factor)
}

func TestReplicationInsideSequence(t *testing.T) {
	w := &testutil.BitWriter{}
	w.Write(2024, 12).Write(6, 4).Write(15, 6)
	w.Write(2, 8)
	for i := 0; i < 2; i++ {
		w.Write(uint64(8500+i*500), 14).Write(0, 7).Write(29000, 16).Write(28000, 16)
	}

	msg, err := decodeOne(t, testutil.Message{
		Codes: testutil.Codes("301011", "101000", "031001", "303051"),
		Data:  w.Bytes(),
	})
	require.NoError(t, err)
	requireNumbers(t, []float64{2024, 6, 15, 2, 85000, 0, 290, 280, 90000, 0, 290, 280}, msg.Subsets()[0])
}

func TestOperatorsChangeWidthAndScale(t *testing.T) {
	w := &testutil.BitWriter{}
	w.Write(200000, 18) // 2 01 130: two extra bits.
	w.Write(28000, 16)
	w.Write(1013250, 21) // 2 07 002: 7 extra bits, scale -1+2.

	msg, err := decodeOne(t, testutil.Message{
		Codes: testutil.Codes("201130", "012101", "201000", "012101", "207002", "007004", "207000"),
		Data:  w.Bytes(),
	})
	require.NoError(t, err)
	requireNumbers(t, []float64{2000, 280, 101325}, msg.Subsets()[0])
}

func TestChangeReferenceValues(t *testing.T) {
	w := &testutil.BitWriter{}
	w.Write(0b11000000, 8) // New reference -64 for 012101.
	w.Write(30000, 16)     // Read with reference -64.
	w.Write(30000, 16)     // 2 03 255 cleared the override.

	msg, err := decodeOne(t, testutil.Message{
		Codes: testutil.Codes("203008", "012101", "012101", "203255", "012101"),
		Data:  w.Bytes(),
	})
	require.NoError(t, err)
	requireNumbers(t, []float64{299.36, 300}, msg.Subsets()[0])
}

func TestAssociatedField(t *testing.T) {
	w := &testutil.BitWriter{}
	w.Write(2, 6)      // 0 31 021 carries no associated field.
	w.Write(5, 3)      // Associated field.
	w.Write(28000, 16) // Temperature.
	w.Missing(3)       // Associated field missing.
	w.Write(27000, 16) // Temperature.
	w.Write(26000, 16) // After 2 04 000.

	msg, err := decodeOne(t, testutil.Message{
		Codes: testutil.Codes("204003", "031021", "012101", "012101", "204000", "012101"),
		Data:  w.Bytes(),
	})
	require.NoError(t, err)

	vals := msg.Subsets()[0].Values()
	require.Len(t, vals, 6)
	require.Equal(t, descriptor.AssociatedFieldCode, vals[1].Descriptor.FXY)
	require.InDelta(t, 5.0, vals[1].Number, 0)
	require.True(t, vals[3].Missing)
	require.Equal(t, []any{2.0, 5.0, 280.0, nil, 270.0, 260.0}, numbers(t, msg.Subsets()[0]))
}

func TestTextOperators(t *testing.T) {
	w := &testutil.BitWriter{}
	w.WriteString("ABC", 3)  // 2 05 003.
	w.WriteString("OSLO", 4) // 0 01 015 under 2 08 004.
	w.Write(0xABC, 12)       // Local descriptor announced by 2 06 012.
	w.WriteString("BERGEN", 20)

	msg, err := decodeOne(t, testutil.Message{
		Codes: testutil.Codes("205003", "208004", "001015", "208000", "206012", "063200", "001015"),
		Data:  w.Bytes(),
	})
	require.NoError(t, err)

	vals := msg.Subsets()[0].Values()
	require.Len(t, vals, 4)
	require.Equal(t, "ABC", vals[0].Text)
	require.Equal(t, "OSLO", vals[1].Text)
	require.InDelta(t, float64(0xABC), vals[2].Number, 0)
	require.Equal(t, "BERGEN              ", vals[3].Text)
}

func TestOperatorConflict(t *testing.T) {
	_, err := decodeOne(t, testutil.Message{
		Codes: testutil.Codes("201130", "207001", "012101"),
		Data:  []byte{0, 0, 0},
	})
	require.ErrorIs(t, err, ErrOperatorConflict)
}

func TestOperatorWidthOutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		codes []string
	}{
		{name: "reference definition wider than 64 bits", codes: []string{"203200", "012101", "203255"}},
		{name: "data width shrunk below one bit", codes: []string{"201100", "012101"}},
		{name: "data width grown past 64 bits", codes: []string{"201255", "012101"}},
		{name: "local width wider than 64 bits", codes: []string{"206070", "063200"}},
		{name: "associated field wider than 64 bits", codes: []string{"204065", "012101"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeOne(t, testutil.Message{
				Codes: testutil.Codes(tt.codes...),
				Data:  bytes.Repeat([]byte{0}, 64),
			})
			require.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestLocalWidthMustPrecedeElement(t *testing.T) {
	for _, codes := range [][]string{
		{"206008", "301011"},
		{"206008", "101002", "012101"},
		{"206008", "201130", "012101"},
	} {
		_, err := decodeOne(t, testutil.Message{
			Codes: testutil.Codes(codes...),
			Data:  bytes.Repeat([]byte{0}, 16),
		})
		require.ErrorIs(t, err, ErrFormat, "codes %v", codes)
	}
}

func TestOperatorStateRestartsEachSubset(t *testing.T) {
	w := &testutil.BitWriter{}
	for i := 0; i < 2; i++ {
		w.Write(1, 4).Write(uint64(28000+i), 16)
	}

	msg, err := decodeOne(t, testutil.Message{
		Subsets: 2,
		Codes:   testutil.Codes("204004", "012101"),
		Data:    w.Bytes(),
	})
	require.NoError(t, err)
	require.Len(t, msg.Subsets(), 2)
	require.Equal(t, []any{1.0, 280.01}, numbers(t, msg.Subsets()[1]))
}

func TestTemplateMode(t *testing.T) {
	tbl := testutil.Table(t)
	tmpl, err := descriptor.NewTemplate("temp", testutil.Codes("301001", "012101"), tbl)
	require.NoError(t, err)
	dec := NewDecoder(nil, WithTemplate(tmpl))

	w := &testutil.BitWriter{}
	w.Write(1, 7).Write(2, 10).Write(27315, 16)
	msg, err := dec.Decode(bytes.NewReader(testutil.Encode(testutil.Message{
		Codes: testutil.Codes("301001", "012101"),
		Data:  w.Bytes(),
	})))
	require.NoError(t, err)
	requireNumbers(t, []float64{1, 2, 273.15}, msg.Subsets()[0])

	_, err = dec.Decode(bytes.NewReader(testutil.Encode(testutil.Message{
		Codes: testutil.Codes("301001", "012103"),
		Data:  w.Bytes(),
	})))
	require.ErrorIs(t, err, ErrTemplateMismatch)

	_, err = dec.Decode(bytes.NewReader(testutil.Encode(testutil.Message{
		Codes: testutil.Codes("301001"),
		Data:  w.Bytes(),
	})))
	require.ErrorIs(t, err, ErrTemplateLengthMismatch)
}

func TestDecodeAllIsolatesFailures(t *testing.T) {
	valid := func(temp uint64) []byte {
		w := &testutil.BitWriter{}
		w.Write(temp, 16)
		return testutil.Encode(testutil.Message{Codes: testutil.Codes("012101"), Data: w.Bytes()})
	}
	corrupt := testutil.Encode(testutil.Message{Edition: 9, Codes: testutil.Codes("012101"), Data: []byte{0, 0}})

	var stream bytes.Buffer
	stream.WriteString("GTS header\r\r\n")
	stream.Write(valid(28000))
	stream.WriteString("\r\r\n")
	stream.Write(corrupt)
	stream.Write(valid(27000))
	stream.WriteString("NNNN")

	msgs, errs := DecodeAll(&stream, testutil.Table(t))
	require.Len(t, msgs, 2)
	require.Len(t, errs, 1)

	requireNumbers(t, []float64{280}, msgs[0].Subsets()[0])
	requireNumbers(t, []float64{270}, msgs[1].Subsets()[0])

	require.ErrorIs(t, errs[0], ErrFormat)
	var merr *MessageError
	require.ErrorAs(t, errs[0], &merr)
	require.Equal(t, 1, merr.Index)
	require.Equal(t, int64(len("GTS header\r\r\n")+len(valid(0))+3), merr.Offset)
}

func TestDecodeAllTruncatedTail(t *testing.T) {
	good := testutil.Encode(testutil.Message{Codes: testutil.Codes("012101"), Data: []byte{0x6E, 0x9B}})
	stream := append(append([]byte(nil), good...), good[:20]...)

	msgs, errs := DecodeAll(bytes.NewReader(stream), testutil.Table(t))
	require.Len(t, msgs, 1)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrIncompleteData)
}

func TestDecodeAllStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	good := testutil.Encode(testutil.Message{Codes: testutil.Codes("012101"), Data: []byte{0, 0}})
	msgs, errs := NewDecoder(testutil.Table(t)).DecodeAll(ctx, bytes.NewReader(good))
	require.Empty(t, msgs)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], context.Canceled)
}

func TestDecodeAllEmptyStream(t *testing.T) {
	msgs, errs := DecodeAll(bytes.NewReader(nil), testutil.Table(t))
	require.Empty(t, msgs)
	require.Empty(t, errs)
}
