// Package testutil builds BUFR messages and descriptor tables for tests.
package testutil

import (
	"testing"

	"bufr_decoder/internal/descriptor"
)

// BitWriter appends values of arbitrary width, MSB first.
type BitWriter struct {
	buf   []byte
	nbits int
}

// Write appends the low nbits of v.
func (w *BitWriter) Write(v uint64, nbits int) *BitWriter {
	for i := nbits - 1; i >= 0; i-- {
		if w.nbits%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v>>uint(i)&1 == 1 {
			w.buf[len(w.buf)-1] |= 1 << (7 - uint(w.nbits%8))
		}
		w.nbits++
	}
	return w
}

// WriteString appends s as nbytes octets, space padded.
func (w *BitWriter) WriteString(s string, nbytes int) *BitWriter {
	for i := 0; i < nbytes; i++ {
		c := byte(' ')
		if i < len(s) {
			c = s[i]
		}
		w.Write(uint64(c), 8)
	}
	return w
}

// Missing appends an all-ones field of nbits.
func (w *BitWriter) Missing(nbits int) *BitWriter {
	for i := 0; i < nbits; i++ {
		w.Write(1, 1)
	}
	return w
}

// Len returns the number of bits written.
func (w *BitWriter) Len() int { return w.nbits }

// Bytes returns the written bits, zero padded to a whole byte.
func (w *BitWriter) Bytes() []byte { return append([]byte(nil), w.buf...) }

// Message describes a BUFR message to encode.
type Message struct {
	Edition     int // 3 or 4; 4 when zero.
	MasterTable int
	Centre      int
	Category    int
	Section1Pad int // Extra local bytes after the fixed Section 1 fields.
	Section2    []byte
	Subsets     int
	Compressed  bool
	Codes       []descriptor.Code
	Data        []byte
}

// Encode lays out sections 0 to 5.
func Encode(m Message) []byte {
	edition := m.Edition
	if edition == 0 {
		edition = 4
	}
	subsets := m.Subsets
	if subsets == 0 {
		subsets = 1
	}

	var s1 []byte
	flags := byte(0)
	if m.Section2 != nil {
		flags = 0x80
	}
	if edition == 3 {
		s1 = []byte{0, 0, 0, byte(m.MasterTable), 0, byte(m.Centre), 0, flags, byte(m.Category), 0, 13, 0, 24, 6, 15, 12, 30}
	} else {
		s1 = []byte{0, 0, 0, byte(m.MasterTable), byte(m.Centre >> 8), byte(m.Centre), 0, 0, 0, flags,
			byte(m.Category), 0, 0, 38, 0, 0x07, 0xE8, 6, 15, 12, 30, 45}
	}
	s1 = append(s1, make([]byte, m.Section1Pad)...)
	putLength(s1, len(s1))

	var s2 []byte
	if m.Section2 != nil {
		s2 = append([]byte{0, 0, 0, 0}, m.Section2...)
		putLength(s2, len(s2))
	}

	s3Flags := byte(0x80)
	if m.Compressed {
		s3Flags |= 0x40
	}
	s3 := []byte{0, 0, 0, 0, byte(subsets >> 8), byte(subsets), s3Flags}
	for _, c := range m.Codes {
		s3 = append(s3, byte(c>>8), byte(c))
	}
	if len(s3)%2 != 0 {
		s3 = append(s3, 0)
	}
	putLength(s3, len(s3))

	s4 := append([]byte{0, 0, 0, 0}, m.Data...)
	putLength(s4, len(s4))

	total := 8 + len(s1) + len(s2) + len(s3) + len(s4) + 4
	out := []byte{'B', 'U', 'F', 'R', 0, 0, 0, byte(edition)}
	putLength(out[4:], total)
	out = append(out, s1...)
	out = append(out, s2...)
	out = append(out, s3...)
	out = append(out, s4...)
	return append(out, '7', '7', '7', '7')
}

func putLength(b []byte, n int) {
	b[0] = byte(n >> 16)
	b[1] = byte(n >> 8)
	b[2] = byte(n)
}

// Codes parses FXXYYY strings.
func Codes(codes ...string) []descriptor.Code {
	out := make([]descriptor.Code, len(codes))
	for i, c := range codes {
		out[i] = descriptor.MustParseCode(c)
	}
	return out
}

// Table returns a small table B/D subset covering station, time, position,
// temperature profile and replication factor entries.
func Table(t testing.TB) *descriptor.Table {
	t.Helper()
	b := descriptor.NewBuilder("testutil")
	elements := []descriptor.Element{
		{FXY: descriptor.MustParseCode("001001"), Name: "WMO BLOCK NUMBER", Unit: "Numeric", Width: 7},
		{FXY: descriptor.MustParseCode("001002"), Name: "WMO STATION NUMBER", Unit: "Numeric", Width: 10},
		{FXY: descriptor.MustParseCode("001015"), Name: "STATION OR SITE NAME", Unit: "CCITT IA5", Width: 160},
		{FXY: descriptor.MustParseCode("004001"), Name: "YEAR", Unit: "a", Width: 12},
		{FXY: descriptor.MustParseCode("004002"), Name: "MONTH", Unit: "mon", Width: 4},
		{FXY: descriptor.MustParseCode("004003"), Name: "DAY", Unit: "d", Width: 6},
		{FXY: descriptor.MustParseCode("005001"), Name: "LATITUDE (HIGH ACCURACY)", Unit: "deg", Scale: 5, Reference: -9000000, Width: 25},
		{FXY: descriptor.MustParseCode("006001"), Name: "LONGITUDE (HIGH ACCURACY)", Unit: "deg", Scale: 5, Reference: -18000000, Width: 26},
		{FXY: descriptor.MustParseCode("007004"), Name: "PRESSURE", Unit: "Pa", Scale: -1, Width: 14},
		{FXY: descriptor.MustParseCode("008001"), Name: "VERTICAL SOUNDING SIGNIFICANCE", Unit: "Flag table", Width: 7},
		{FXY: descriptor.MustParseCode("011001"), Name: "WIND DIRECTION", Unit: "deg", Width: 9},
		{FXY: descriptor.MustParseCode("011002"), Name: "WIND SPEED", Unit: "m s-1", Scale: 1, Width: 12},
		{FXY: descriptor.MustParseCode("012101"), Name: "TEMPERATURE/AIR TEMPERATURE", Unit: "K", Scale: 2, Width: 16},
		{FXY: descriptor.MustParseCode("012103"), Name: "DEWPOINT TEMPERATURE", Unit: "K", Scale: 2, Width: 16},
		{FXY: descriptor.MustParseCode("031000"), Name: "SHORT DELAYED DESCRIPTOR REPLICATION FACTOR", Unit: "Numeric", Width: 1},
		{FXY: descriptor.MustParseCode("031001"), Name: "DELAYED DESCRIPTOR REPLICATION FACTOR", Unit: "Numeric", Width: 8},
		{FXY: descriptor.MustParseCode("031002"), Name: "EXTENDED DELAYED DESCRIPTOR REPLICATION FACTOR", Unit: "Numeric", Width: 16},
		{FXY: descriptor.MustParseCode("031011"), Name: "DELAYED DESCRIPTOR AND DATA REPETITION FACTOR", Unit: "Numeric", Width: 8},
		{FXY: descriptor.MustParseCode("031012"), Name: "EXTENDED DELAYED DESCRIPTOR AND DATA REPETITION FACTOR", Unit: "Numeric", Width: 16},
		{FXY: descriptor.MustParseCode("031021"), Name: "ASSOCIATED FIELD SIGNIFICANCE", Unit: "Code table", Width: 6},
	}
	for _, e := range elements {
		if err := b.AddElement(e); err != nil {
			t.Fatalf("add element %s: %v", e.FXY, err)
		}
	}
	sequences := map[string][]descriptor.Code{
		"301001": Codes("001001", "001002"),
		"301011": Codes("004001", "004002", "004003"),
		"303051": Codes("007004", "008001", "012101", "012103"),
	}
	for code, children := range sequences {
		if err := b.AddSequence(descriptor.MustParseCode(code), "SEQUENCE "+code, children); err != nil {
			t.Fatalf("add sequence %s: %v", code, err)
		}
	}
	tbl, err := b.Build()
	if err != nil {
		t.Fatalf("build table: %v", err)
	}
	return tbl
}
