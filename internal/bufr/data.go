package bufr

import (
	"fmt"

	"bufr_decoder/internal/bitio"
	"bufr_decoder/internal/descriptor"
	"bufr_decoder/internal/operator"
)

// dataDecoder reads uncompressed subsets, one descriptor walk per subset.
type dataDecoder struct {
	br  *bitio.Reader
	ops *operator.Engine
}

func decodeUncompressed(data []byte, descs []descriptor.Descriptor, n int) ([]Subset, error) {
	d := &dataDecoder{
		br:  bitio.NewBytesReader(data),
		ops: operator.NewEngine(),
	}
	subsets := make([]Subset, 0, n)
	for i := 0; i < n; i++ {
		// Every subset restates the full descriptor list, operators included.
		d.ops.Reset()
		items, err := d.walk(descs)
		if err != nil {
			return nil, fmt.Errorf("subset %d: %w", i, err)
		}
		subsets = append(subsets, Subset(items))
	}
	return subsets, nil
}

func (d *dataDecoder) walk(list []descriptor.Descriptor) ([]Item, error) {
	var items []Item
	for i := 0; i < len(list); i++ {
		if err := checkLocalWidth(d.ops, list[i]); err != nil {
			return nil, err
		}
		switch desc := list[i].(type) {
		case *descriptor.Element:
			vals, err := d.element(desc)
			if err != nil {
				return nil, err
			}
			items = append(items, vals...)

		case *descriptor.Sequence:
			sub, err := d.walk(desc.Children)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", desc.FXY, err)
			}
			items = append(items, sub...)

		case *descriptor.Operator:
			it, err := d.operator(desc)
			if err != nil {
				return nil, err
			}
			if it != nil {
				items = append(items, it)
			}

		case *descriptor.Replication:
			factor, group, next, err := splitReplication(list, i, desc)
			if err != nil {
				return nil, err
			}
			rep, err := d.replicate(desc, factor, group)
			if err != nil {
				return nil, err
			}
			items = append(items, rep)
			i = next - 1
		}
	}
	return items, nil
}

func (d *dataDecoder) element(el *descriptor.Element) ([]Item, error) {
	if width, ok := d.ops.DefinesReference(el); ok {
		if err := checkWidth(el.FXY, width); err != nil {
			return nil, err
		}
		raw, err := d.br.ReadBits(width)
		if err != nil {
			return nil, err
		}
		d.ops.SetReference(el.FXY, raw, width)
		return nil, nil
	}

	var items []Item
	if width := d.ops.AssociatedWidth(el); width > 0 {
		if err := checkWidth(descriptor.AssociatedFieldCode, width); err != nil {
			return nil, err
		}
		raw, err := d.br.ReadBits(width)
		if err != nil {
			return nil, err
		}
		items = append(items, numericValue(associatedElement(width), raw, 0, 0, bitio.AllOnes(raw, width)))
	}

	v, err := d.value(el, d.ops.Effective(el))
	if err != nil {
		return nil, err
	}
	return append(items, v), nil
}

func (d *dataDecoder) value(el *descriptor.Element, eff operator.Effective) (*Value, error) {
	if eff.Text {
		if eff.Width < 1 {
			return nil, formatError("%s: effective width %d out of range", el.FXY, eff.Width)
		}
		h, err := d.br.ReadHex(eff.Width)
		if err != nil {
			return nil, err
		}
		return textValue(el, h, allOnesHex(h, eff.Width)), nil
	}
	if err := checkWidth(el.FXY, eff.Width); err != nil {
		return nil, err
	}
	raw, err := d.br.ReadBits(eff.Width)
	if err != nil {
		return nil, err
	}
	return numericValue(el, raw, eff.Scale, eff.Reference, bitio.AllOnes(raw, eff.Width)), nil
}

func (d *dataDecoder) operator(desc *descriptor.Operator) (Item, error) {
	op, err := d.ops.Apply(desc)
	if err != nil {
		return nil, err
	}
	if op.Opcode() != descriptor.OpSignifyCharacter {
		return nil, nil
	}
	el := characterElement(desc)
	h, err := d.br.ReadHex(el.Width)
	if err != nil {
		return nil, err
	}
	return textValue(el, h, allOnesHex(h, el.Width)), nil
}

func (d *dataDecoder) replicate(rep *descriptor.Replication, factor *descriptor.Element, group []descriptor.Descriptor) (*Replicated, error) {
	out := &Replicated{Descriptor: rep}
	count := rep.Count
	if factor != nil {
		raw, err := d.br.ReadBits(factor.Width)
		if err != nil {
			return nil, fmt.Errorf("%s factor: %w", rep.FXY, err)
		}
		if factorMissing(factor, raw) {
			return nil, formatError("%s: delayed replication factor %s is missing", rep.FXY, factor.FXY)
		}
		out.Factor = numericValue(factor, raw, factor.Scale, factor.Reference, false)
		count = int(raw)
	}

	if factor != nil && descriptor.IsRepeatedFactor(factor.FXY) {
		out.Repeated = true
		if count == 0 {
			return out, nil
		}
		items, err := d.walk(group)
		if err != nil {
			return nil, err
		}
		for r := 0; r < count; r++ {
			out.Repetitions = append(out.Repetitions, items)
		}
		return out, nil
	}

	for r := 0; r < count; r++ {
		items, err := d.walk(group)
		if err != nil {
			return nil, fmt.Errorf("%s repetition %d: %w", rep.FXY, r, err)
		}
		out.Repetitions = append(out.Repetitions, items)
	}
	return out, nil
}

// splitReplication returns the factor descriptor (nil for fixed replication)
// and the group governed by the replication at list[i], plus the index that
// follows the group.
func splitReplication(list []descriptor.Descriptor, i int, rep *descriptor.Replication) (*descriptor.Element, []descriptor.Descriptor, int, error) {
	start := i + 1
	var factor *descriptor.Element
	if rep.Delayed() {
		if start >= len(list) {
			return nil, nil, 0, formatError("delayed replication %s has no factor descriptor", rep.FXY)
		}
		el, ok := list[start].(*descriptor.Element)
		if !ok || !(descriptor.IsRegularFactor(el.FXY) || descriptor.IsRepeatedFactor(el.FXY)) {
			return nil, nil, 0, &DelayedDescriptorError{Replication: rep.FXY, Factor: list[start].Code()}
		}
		factor = el
		start++
	}
	end := start + rep.Fields
	if end > len(list) {
		return nil, nil, 0, formatError("replication %s needs %d descriptors, %d remain", rep.FXY, rep.Fields, len(list)-start)
	}
	return factor, list[start:end], end, nil
}

// factorMissing reports an all-ones delayed replication factor. The one-bit
// 0 31 000 factor is exempt: its all-ones value is a count of one.
func factorMissing(factor *descriptor.Element, raw uint64) bool {
	return factor.Width > 1 && bitio.AllOnes(raw, factor.Width)
}

// checkWidth rejects a numeric read width that operators pushed outside 1..64.
func checkWidth(code descriptor.Code, width int) error {
	if width < 1 || width > 64 {
		return formatError("%s: effective width %d out of range", code, width)
	}
	return nil
}

// checkLocalWidth fails when a pending 2 06 width is followed by anything but
// an element.
func checkLocalWidth(ops *operator.Engine, next descriptor.Descriptor) error {
	if !ops.LocalWidthPending() {
		return nil
	}
	if _, ok := next.(*descriptor.Element); ok {
		return nil
	}
	return formatError("%s follows 2 06 but is not an element", next.Code())
}

func associatedElement(width int) *descriptor.Element {
	return &descriptor.Element{
		FXY:   descriptor.AssociatedFieldCode,
		Name:  "ASSOCIATED FIELD",
		Unit:  "NUMERIC",
		Width: width,
	}
}

func characterElement(op *descriptor.Operator) *descriptor.Element {
	return &descriptor.Element{
		FXY:   op.FXY,
		Name:  "CHARACTER DATA",
		Unit:  "CCITT IA5",
		Width: op.Operand * 8,
	}
}
