package bufr

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"bufr_decoder/internal/bitio"
	"bufr_decoder/internal/descriptor"
)

// Decoder decodes BUFR messages against one descriptor table or template. A
// Decoder holds no per-message state and may be shared between goroutines as
// long as each call gets its own stream.
type Decoder struct {
	table    *descriptor.Table
	template *descriptor.Template
	log      logrus.FieldLogger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithTemplate verifies Section 3 against tmpl instead of resolving codes.
func WithTemplate(tmpl *descriptor.Template) Option {
	return func(d *Decoder) { d.template = tmpl }
}

// WithLogger sets the logger used to report skipped messages.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Decoder) { d.log = l }
}

// NewDecoder creates a Decoder for table.
func NewDecoder(table *descriptor.Table, opts ...Option) *Decoder {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	d := &Decoder{table: table, log: quiet}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode decodes exactly one message from the start of r. It stops at the first
// error and never returns a partial message. r may be read past the end of the
// message when it does not implement io.ByteReader.
func (d *Decoder) Decode(r io.Reader) (*Message, error) {
	br := bitio.NewReader(r)
	for i := 0; i < len(startMarker); i++ {
		b, err := br.ReadByte()
		if err != nil || b != startMarker[i] {
			return nil, fmt.Errorf("section 0: %w", formatError("stream does not start with %q", startMarker))
		}
	}
	return d.decodeMessage(br)
}

// DecodeAll decodes every message found in r. Bytes between messages are
// skipped; a message that fails is reported in errs and scanning resumes where
// the failure left the stream. ctx is checked between messages only.
func (d *Decoder) DecodeAll(ctx context.Context, r io.Reader) (msgs []*Message, errs []error) {
	br := bitio.NewReader(r)
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			return msgs, errs
		}

		offset, err := scanMarker(br)
		if err != nil {
			if !errors.Is(err, ErrIncompleteData) {
				errs = append(errs, err)
			}
			return msgs, errs
		}

		msg, err := d.decodeMessage(br)
		if err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{
				"index":  index,
				"offset": offset,
			}).Warn("skipping undecodable BUFR message")
			errs = append(errs, &MessageError{Index: index, Offset: offset, Err: err})
			continue
		}
		d.log.WithFields(logrus.Fields{
			"index":    index,
			"offset":   offset,
			"edition":  msg.Section0.Edition,
			"subsets":  len(msg.Section4.Subsets),
			"category": msg.Section1.DataCategory,
		}).Debug("decoded BUFR message")
		msgs = append(msgs, msg)
	}
}

// scanMarker consumes the stream up to and including the next "BUFR" marker and
// returns the marker's byte offset. Only a four byte window is buffered.
func scanMarker(br *bitio.Reader) (int64, error) {
	var window [4]byte
	filled := 0
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if filled < len(window) {
			window[filled] = b
			filled++
		} else {
			copy(window[:], window[1:])
			window[len(window)-1] = b
		}
		if filled == len(window) && string(window[:]) == startMarker {
			return br.Offset()/8 - int64(len(window)), nil
		}
	}
}

// decodeMessage decodes sections 0 to 5 after the start marker.
func (d *Decoder) decodeMessage(br *bitio.Reader) (*Message, error) {
	var msg Message
	var err error

	if msg.Section0, err = readSection0(br); err != nil {
		return nil, fmt.Errorf("section 0: %w", err)
	}
	if msg.Section1, err = readSection1(br, msg.Section0.Edition); err != nil {
		return nil, fmt.Errorf("section 1: %w", err)
	}
	if msg.Section1.HasSection2 {
		if msg.Section2, err = readSection2(br); err != nil {
			return nil, fmt.Errorf("section 2: %w", err)
		}
	}

	if msg.Section3, err = readSection3(br); err != nil {
		return nil, fmt.Errorf("section 3: %w", err)
	}
	if msg.Section3.Descriptors, err = d.describe(msg.Section3.Codes); err != nil {
		return nil, fmt.Errorf("section 3: %w", err)
	}

	length, data, err := readSection4(br)
	if err != nil {
		return nil, fmt.Errorf("section 4: %w", err)
	}
	msg.Section4.Length = length
	if msg.Section3.Compressed {
		msg.Section4.Subsets, err = decodeCompressed(data, msg.Section3.Descriptors, msg.Section3.Subsets)
	} else {
		msg.Section4.Subsets, err = decodeUncompressed(data, msg.Section3.Descriptors, msg.Section3.Subsets)
	}
	if err != nil {
		return nil, fmt.Errorf("section 4: %w", err)
	}

	if msg.Section5, err = readSection5(br); err != nil {
		return nil, fmt.Errorf("section 5: %w", err)
	}
	return &msg, nil
}

func (d *Decoder) describe(codes []descriptor.Code) ([]descriptor.Descriptor, error) {
	if d.template != nil {
		if err := d.template.Verify(codes); err != nil {
			return nil, err
		}
		return d.template.Descriptors, nil
	}
	return descriptor.Resolve(codes, d.table)
}

// Decode decodes one message from r against table.
func Decode(r io.Reader, table *descriptor.Table) (*Message, error) {
	return NewDecoder(table).Decode(r)
}

// DecodeAll decodes every message in r against table.
func DecodeAll(r io.Reader, table *descriptor.Table) ([]*Message, []error) {
	return NewDecoder(table).DecodeAll(context.Background(), r)
}
