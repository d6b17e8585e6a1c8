package bufr

import (
	"fmt"

	"bufr_decoder/internal/bitio"
	"bufr_decoder/internal/descriptor"
	"bufr_decoder/internal/operator"
)

// compressedDecoder walks the descriptor list once for all subsets. Operator
// state is shared by every subset of the message.
type compressedDecoder struct {
	br  *bitio.Reader
	ops *operator.Engine
	n   int
}

// compressedRaw holds one element's raw value per subset.
type compressedRaw struct {
	raws    []uint64
	missing []bool
}

func decodeCompressed(data []byte, descs []descriptor.Descriptor, n int) ([]Subset, error) {
	if n < 1 {
		return nil, formatError("compressed data with %d subsets", n)
	}
	c := &compressedDecoder{
		br:  bitio.NewBytesReader(data),
		ops: operator.NewEngine(),
		n:   n,
	}
	cols, err := c.walk(descs)
	if err != nil {
		return nil, err
	}
	subsets := make([]Subset, n)
	for i := range subsets {
		subsets[i] = Subset(cols[i])
	}
	return subsets, nil
}

func (c *compressedDecoder) walk(list []descriptor.Descriptor) ([][]Item, error) {
	out := make([][]Item, c.n)
	for i := 0; i < len(list); i++ {
		if err := checkLocalWidth(c.ops, list[i]); err != nil {
			return nil, err
		}
		switch desc := list[i].(type) {
		case *descriptor.Element:
			cols, err := c.element(desc)
			if err != nil {
				return nil, err
			}
			merge(out, cols)

		case *descriptor.Sequence:
			cols, err := c.walk(desc.Children)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", desc.FXY, err)
			}
			merge(out, cols)

		case *descriptor.Operator:
			op, err := c.ops.Apply(desc)
			if err != nil {
				return nil, err
			}
			if op.Opcode() == descriptor.OpSignifyCharacter {
				el := characterElement(desc)
				vals, err := c.text(el, el.Width)
				if err != nil {
					return nil, err
				}
				appendValues(out, vals)
			}

		case *descriptor.Replication:
			factor, group, next, err := splitReplication(list, i, desc)
			if err != nil {
				return nil, err
			}
			reps, err := c.replicate(desc, factor, group)
			if err != nil {
				return nil, err
			}
			for s := range out {
				out[s] = append(out[s], reps[s])
			}
			i = next - 1
		}
	}
	return out, nil
}

func (c *compressedDecoder) element(el *descriptor.Element) ([][]Item, error) {
	out := make([][]Item, c.n)

	if width, ok := c.ops.DefinesReference(el); ok {
		if err := checkWidth(el.FXY, width); err != nil {
			return nil, err
		}
		raw, err := c.raw(width)
		if err != nil {
			return nil, err
		}
		c.ops.SetReference(el.FXY, raw.raws[0], width)
		return out, nil
	}

	if width := c.ops.AssociatedWidth(el); width > 0 {
		if err := checkWidth(descriptor.AssociatedFieldCode, width); err != nil {
			return nil, err
		}
		raw, err := c.raw(width)
		if err != nil {
			return nil, err
		}
		assoc := associatedElement(width)
		for s := range out {
			out[s] = append(out[s], numericValue(assoc, raw.raws[s], 0, 0, raw.missing[s]))
		}
	}

	eff := c.ops.Effective(el)
	if eff.Text {
		if eff.Width < 1 {
			return nil, formatError("%s: effective width %d out of range", el.FXY, eff.Width)
		}
		vals, err := c.text(el, eff.Width)
		if err != nil {
			return nil, err
		}
		appendValues(out, vals)
		return out, nil
	}
	if err := checkWidth(el.FXY, eff.Width); err != nil {
		return nil, err
	}
	raw, err := c.raw(eff.Width)
	if err != nil {
		return nil, err
	}
	for s := range out {
		out[s] = append(out[s], numericValue(el, raw.raws[s], eff.Scale, eff.Reference, raw.missing[s]))
	}
	return out, nil
}

// raw reads a reference value of width bits, a 6-bit increment width and, when
// that width is non-zero, one increment per subset.
func (c *compressedDecoder) raw(width int) (compressedRaw, error) {
	ref, err := c.br.ReadBits(width)
	if err != nil {
		return compressedRaw{}, err
	}
	incWidth, err := c.br.ReadBits(6)
	if err != nil {
		return compressedRaw{}, err
	}

	out := compressedRaw{
		raws:    make([]uint64, c.n),
		missing: make([]bool, c.n),
	}
	if incWidth == 0 {
		missing := bitio.AllOnes(ref, width)
		for s := range out.raws {
			out.raws[s] = ref
			out.missing[s] = missing
		}
		return out, nil
	}
	for s := range out.raws {
		inc, err := c.br.ReadBits(int(incWidth))
		if err != nil {
			return compressedRaw{}, err
		}
		out.raws[s] = ref + inc
		out.missing[s] = bitio.AllOnes(inc, int(incWidth))
	}
	return out, nil
}

// text reads a reference string of width bits and a 6-bit character count;
// a non-zero count is followed by one string of that many octets per subset.
func (c *compressedDecoder) text(el *descriptor.Element, width int) ([]*Value, error) {
	ref, err := c.br.ReadHex(width)
	if err != nil {
		return nil, err
	}
	chars, err := c.br.ReadBits(6)
	if err != nil {
		return nil, err
	}

	vals := make([]*Value, c.n)
	if chars == 0 {
		v := textValue(el, ref, allOnesHex(ref, width))
		for s := range vals {
			vals[s] = v
		}
		return vals, nil
	}
	bits := int(chars) * 8
	for s := range vals {
		h, err := c.br.ReadHex(bits)
		if err != nil {
			return nil, err
		}
		vals[s] = textValue(el, h, allOnesHex(h, bits))
	}
	return vals, nil
}

func (c *compressedDecoder) replicate(rep *descriptor.Replication, factor *descriptor.Element, group []descriptor.Descriptor) ([]*Replicated, error) {
	reps := make([]*Replicated, c.n)
	for s := range reps {
		reps[s] = &Replicated{Descriptor: rep}
	}

	count := rep.Count
	if factor != nil {
		raw, err := c.raw(factor.Width)
		if err != nil {
			return nil, fmt.Errorf("%s factor: %w", rep.FXY, err)
		}
		if factorMissing(factor, raw.raws[0]) {
			return nil, formatError("%s: delayed replication factor %s is missing", rep.FXY, factor.FXY)
		}
		// The factor is shared: every subset repeats the group equally often.
		count = int(raw.raws[0])
		for s := range reps {
			reps[s].Factor = numericValue(factor, raw.raws[0], factor.Scale, factor.Reference, false)
		}
	}

	if factor != nil && descriptor.IsRepeatedFactor(factor.FXY) {
		var cols [][]Item
		if count > 0 {
			var err error
			if cols, err = c.walk(group); err != nil {
				return nil, err
			}
		}
		for s := range reps {
			reps[s].Repeated = true
			for r := 0; r < count; r++ {
				reps[s].Repetitions = append(reps[s].Repetitions, cols[s])
			}
		}
		return reps, nil
	}

	for r := 0; r < count; r++ {
		cols, err := c.walk(group)
		if err != nil {
			return nil, fmt.Errorf("%s repetition %d: %w", rep.FXY, r, err)
		}
		for s := range reps {
			reps[s].Repetitions = append(reps[s].Repetitions, cols[s])
		}
	}
	return reps, nil
}

func merge(out, cols [][]Item) {
	for s := range out {
		out[s] = append(out[s], cols[s]...)
	}
}

func appendValues(out [][]Item, vals []*Value) {
	for s := range out {
		out[s] = append(out[s], vals[s])
	}
}
