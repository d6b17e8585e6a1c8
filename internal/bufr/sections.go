package bufr

import (
	"bufr_decoder/internal/bitio"
	"bufr_decoder/internal/descriptor"
)

const (
	startMarker = "BUFR"
	endMarker   = "7777"

	section1PrefixV3   = 17
	section1PrefixV4   = 22
	section3HeaderSize = 7
	section4HeaderSize = 4

	flagSection2   = 0x80
	flagObserved   = 0x80
	flagCompressed = 0x40
)

// fieldReader reads consecutive big-endian fields and keeps the first error.
type fieldReader struct {
	br  *bitio.Reader
	err error
}

func (f *fieldReader) uint(nbytes int) int {
	if f.err != nil {
		return 0
	}
	v, err := f.br.ReadUintBE(nbytes)
	if err != nil {
		f.err = err
		return 0
	}
	return int(v)
}

// readSection0 reads the length and edition that follow the "BUFR" marker.
func readSection0(br *bitio.Reader) (Section0, error) {
	f := &fieldReader{br: br}
	s := Section0{
		Length:  f.uint(3),
		Edition: f.uint(1),
	}
	if f.err != nil {
		return Section0{}, f.err
	}
	if s.Edition != 3 && s.Edition != 4 {
		return Section0{}, formatError("unsupported edition %d", s.Edition)
	}
	return s, nil
}

func readSection1(br *bitio.Reader, edition int) (Section1, error) {
	f := &fieldReader{br: br}
	var s Section1
	prefix := section1PrefixV4

	s.Length = f.uint(3)
	s.MasterTable = f.uint(1)
	if edition == 3 {
		prefix = section1PrefixV3
		s.SubCentre = f.uint(1)
		s.Centre = f.uint(1)
		s.UpdateSequence = f.uint(1)
		s.HasSection2 = f.uint(1)&flagSection2 != 0
		s.DataCategory = f.uint(1)
		s.LocalSubCategory = f.uint(1)
		s.MasterTableVersion = f.uint(1)
		s.LocalTableVersion = f.uint(1)
		s.Year = f.uint(1)
	} else {
		s.Centre = f.uint(2)
		s.SubCentre = f.uint(2)
		s.UpdateSequence = f.uint(1)
		s.HasSection2 = f.uint(1)&flagSection2 != 0
		s.DataCategory = f.uint(1)
		s.DataSubCategory = f.uint(1)
		s.LocalSubCategory = f.uint(1)
		s.MasterTableVersion = f.uint(1)
		s.LocalTableVersion = f.uint(1)
		s.Year = f.uint(2)
	}
	s.Month = f.uint(1)
	s.Day = f.uint(1)
	s.Hour = f.uint(1)
	s.Minute = f.uint(1)
	if edition == 4 {
		s.Second = f.uint(1)
	}
	if f.err != nil {
		return Section1{}, f.err
	}

	if s.Length < prefix {
		return Section1{}, formatError("section 1 length %d shorter than %d", s.Length, prefix)
	}
	if s.MasterTable != 0 {
		return Section1{}, formatError("master table %d is not 0", s.MasterTable)
	}
	if s.Length > prefix {
		local, err := br.ReadBytes(s.Length - prefix)
		if err != nil {
			return Section1{}, err
		}
		s.Local = local
	}
	return s, nil
}

func readSection2(br *bitio.Reader) (*Section2, error) {
	f := &fieldReader{br: br}
	length := f.uint(3)
	f.uint(1) // Reserved.
	if f.err != nil {
		return nil, f.err
	}
	if length < 4 {
		return nil, formatError("section 2 length %d", length)
	}
	data, err := br.ReadBytes(length - 4)
	if err != nil {
		return nil, err
	}
	return &Section2{Length: length, Data: data}, nil
}

// readSection3 reads the header and descriptor codes. Resolution happens later.
func readSection3(br *bitio.Reader) (Section3, error) {
	f := &fieldReader{br: br}
	var s Section3
	s.Length = f.uint(3)
	f.uint(1) // Reserved.
	s.Subsets = f.uint(2)
	flags := f.uint(1)
	if f.err != nil {
		return Section3{}, f.err
	}
	if s.Length < section3HeaderSize {
		return Section3{}, formatError("section 3 length %d", s.Length)
	}
	s.Observed = flags&flagObserved != 0
	s.Compressed = flags&flagCompressed != 0

	n := (s.Length - section3HeaderSize) / 2
	s.Codes = make([]descriptor.Code, n)
	for i := range s.Codes {
		s.Codes[i] = descriptor.Code(f.uint(2))
	}
	if f.err != nil {
		return Section3{}, f.err
	}
	if pad := s.Length - section3HeaderSize - 2*n; pad > 0 {
		if err := br.Skip(pad); err != nil {
			return Section3{}, err
		}
	}
	if len(s.Codes) == 0 {
		return Section3{}, formatError("section 3 has no descriptors")
	}
	return s, nil
}

// readSection4 returns the section length and its bitstream.
func readSection4(br *bitio.Reader) (int, []byte, error) {
	f := &fieldReader{br: br}
	length := f.uint(3)
	f.uint(1) // Reserved.
	if f.err != nil {
		return 0, nil, f.err
	}
	if length < section4HeaderSize {
		return 0, nil, formatError("section 4 length %d", length)
	}
	data, err := br.ReadBytes(length - section4HeaderSize)
	if err != nil {
		return 0, nil, err
	}
	return length, data, nil
}

func readSection5(br *bitio.Reader) (Section5, error) {
	marker, err := br.ReadFixedString(len(endMarker))
	if err != nil {
		return Section5{}, err
	}
	if marker != endMarker {
		return Section5{}, formatError("end marker %q", marker)
	}
	return Section5{Marker: marker}, nil
}
