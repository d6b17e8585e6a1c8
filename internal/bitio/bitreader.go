// Package bitio provides a forward-only bit cursor over a byte stream.
package bitio

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrIncompleteData is returned when the stream ends before a read completes.
var ErrIncompleteData = errors.New("incomplete data")

// Reader reads whole bytes or arbitrary bit widths from a stream, MSB first.
// Reads never seek backwards, so any io.Reader works as a source.
type Reader struct {
	src    io.ByteReader
	cur    byte // Partially consumed byte.
	left   int  // Unread bits remaining in cur.
	offset int64
}

// NewReader creates a new Reader over r.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{src: br}
}

// NewBytesReader creates a new Reader over a byte slice.
func NewBytesReader(data []byte) *Reader {
	return &Reader{src: bytes.NewReader(data)}
}

// Offset returns the number of bits consumed so far.
func (br *Reader) Offset() int64 {
	return br.offset
}

// Aligned reports whether the cursor sits on a byte boundary.
func (br *Reader) Aligned() bool {
	return br.left == 0
}

// Align drops the unread bits of a partially consumed byte.
func (br *Reader) Align() {
	br.offset += int64(br.left)
	br.left = 0
}

func (br *Reader) nextByte() (byte, error) {
	b, err := br.src.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, ErrIncompleteData
		}
		return 0, err
	}
	return b, nil
}

// ReadByte reads 8 bits, byte-aligned or not.
func (br *Reader) ReadByte() (byte, error) {
	if br.left == 0 {
		b, err := br.nextByte()
		if err != nil {
			return 0, err
		}
		br.offset += 8
		return b, nil
	}
	v, err := br.ReadBits(8)
	return byte(v), err
}

// ReadBits reads up to 64 bits from the stream.
func (br *Reader) ReadBits(nbits int) (uint64, error) {
	if nbits < 0 || nbits > 64 {
		return 0, fmt.Errorf("invalid bit count %d (must be 0-64)", nbits)
	}

	var accum uint64
	need := nbits
	for need > 0 {
		if br.left == 0 {
			b, err := br.nextByte()
			if err != nil {
				return 0, err
			}
			br.cur = b
			br.left = 8
		}

		take := need
		if take > br.left {
			take = br.left
		}
		// Bits still unread in cur are its low `left` bits.
		shift := br.left - take
		chunk := (uint64(br.cur) >> shift) & ((1 << take) - 1)
		accum = accum<<take | chunk

		br.left -= take
		need -= take
	}

	br.offset += int64(nbits)
	return accum, nil
}

// ReadBytes reads n raw bytes.
func (br *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid byte count %d", n)
	}
	result := make([]byte, n)
	for i := 0; i < n; i++ {
		b, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		result[i] = b
	}
	return result, nil
}

// ReadFixedString reads n bytes as a single-byte-per-character string.
func (br *Reader) ReadFixedString(n int) (string, error) {
	data, err := br.ReadBytes(n)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadUintBE reads a big-endian unsigned integer spanning nbytes whole bytes.
func (br *Reader) ReadUintBE(nbytes int) (uint64, error) {
	if nbytes < 1 || nbytes > 8 {
		return 0, fmt.Errorf("invalid byte count %d (must be 1-8)", nbytes)
	}
	var v uint64
	for i := 0; i < nbytes; i++ {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		v = v<<8 | uint64(b)
	}
	return v, nil
}

// ReadHex reads nbits and returns them hex encoded. A trailing partial byte is
// left-aligned in the final octet.
func (br *Reader) ReadHex(nbits int) (string, error) {
	if nbits < 0 {
		return "", fmt.Errorf("invalid bit count %d", nbits)
	}
	out := make([]byte, 0, (nbits+7)/8)
	for nbits >= 8 {
		b, err := br.ReadByte()
		if err != nil {
			return "", err
		}
		out = append(out, b)
		nbits -= 8
	}
	if nbits > 0 {
		v, err := br.ReadBits(nbits)
		if err != nil {
			return "", err
		}
		out = append(out, byte(v<<(8-nbits)))
	}
	return hex.EncodeToString(out), nil
}

// Skip discards n bytes.
func (br *Reader) Skip(n int) error {
	for i := 0; i < n; i++ {
		if _, err := br.ReadByte(); err != nil {
			return err
		}
	}
	return nil
}

// AllOnes reports whether v has every one of its low nbits set.
func AllOnes(v uint64, nbits int) bool {
	if nbits <= 0 {
		return false
	}
	if nbits >= 64 {
		return v == ^uint64(0)
	}
	return v == (1<<nbits)-1
}
