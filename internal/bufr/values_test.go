package bufr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"bufr_decoder/internal/descriptor"
)

func TestNumericValue(t *testing.T) {
	lat := &descriptor.Element{FXY: descriptor.MustParseCode("005001"), Unit: "deg", Scale: 5, Reference: -9000000, Width: 25}

	v := numericValue(lat, 14000000, lat.Scale, lat.Reference, false)
	require.InDelta(t, 50.0, v.Number, 1e-9)
	f, ok := v.Float()
	require.True(t, ok)
	require.InDelta(t, 50.0, f, 1e-9)

	missing := numericValue(lat, 1<<25-1, lat.Scale, lat.Reference, true)
	require.True(t, missing.Missing)
	require.Zero(t, missing.Number)
}

func TestTextValue(t *testing.T) {
	name := &descriptor.Element{FXY: descriptor.MustParseCode("001015"), Unit: "CCITT IA5", Width: 32}

	v := textValue(name, "4F534C4F", false)
	require.Equal(t, "OSLO", v.Text)
	require.Equal(t, "OSLO", v.String())

	require.True(t, allOnesHex("FFFFFFFF", 32))
	require.True(t, allOnesHex("FFF0", 12))
	require.False(t, allOnesHex("FFE0", 12))
	require.False(t, allOnesHex("", 0))
}

func TestSubsetFindAndJSON(t *testing.T) {
	temp := &descriptor.Element{FXY: descriptor.MustParseCode("012101"), Name: "TEMPERATURE", Unit: "K", Scale: 2, Width: 16}
	factor := &descriptor.Element{FXY: descriptor.DelayedReplication, Unit: "Numeric", Width: 8}
	rep := &descriptor.Replication{FXY: descriptor.MustParseCode("101000"), Fields: 1}

	s := Subset{&Replicated{
		Descriptor: rep,
		Factor:     numericValue(factor, 2, 0, 0, false),
		Repetitions: [][]Item{
			{numericValue(temp, 28000, 2, 0, false)},
			{numericValue(temp, 0xFFFF, 2, 0, true)},
		},
	}}

	require.Len(t, s.Values(), 3)
	v, ok := s.Find(temp.FXY)
	require.True(t, ok)
	require.InDelta(t, 280.0, v.Number, 1e-9)
	_, ok = s.Find(descriptor.MustParseCode("001001"))
	require.False(t, ok)

	out, err := json.Marshal(s)
	require.NoError(t, err)
	require.JSONEq(t, `[{
		"replication": "101000",
		"factor": {"code": "031001", "unit": "Numeric", "raw": 2, "value": 2},
		"repetitions": [
			[{"code": "012101", "name": "TEMPERATURE", "unit": "K", "raw": 28000, "value": 280}],
			[{"code": "012101", "name": "TEMPERATURE", "unit": "K", "value": null}]
		]
	}]`, string(out))
}
