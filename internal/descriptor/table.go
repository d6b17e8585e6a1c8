package descriptor

import (
	"fmt"
	"sort"
)

// Table maps element and sequence codes to their descriptors. A Table is
// immutable once built and safe for concurrent use by many decoders.
type Table struct {
	name    string
	entries map[Code]Descriptor
}

// Name returns the table's label, e.g. the master table version it came from.
func (t *Table) Name() string { return t.name }

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// Lookup returns the descriptor for an element or sequence code.
func (t *Table) Lookup(c Code) (Descriptor, bool) {
	if t == nil {
		return nil, false
	}
	d, ok := t.entries[c]
	return d, ok
}

// Codes returns all table codes in ascending order.
func (t *Table) Codes() []Code {
	out := make([]Code, 0, len(t.entries))
	for c := range t.entries {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Builder collects table entries. Build closes it and returns the Table.
type Builder struct {
	name      string
	elements  map[Code]Element
	sequences map[Code]sequenceDef
}

type sequenceDef struct {
	name     string
	children []Code
}

// NewBuilder creates an empty Builder.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:      name,
		elements:  make(map[Code]Element),
		sequences: make(map[Code]sequenceDef),
	}
}

// AddElement registers a table B entry. Later entries replace earlier ones.
func (b *Builder) AddElement(e Element) error {
	if e.FXY.F() != 0 {
		return fmt.Errorf("element %s: F must be 0", e.FXY)
	}
	if e.Width <= 0 {
		return fmt.Errorf("element %s: width must be positive", e.FXY)
	}
	b.elements[e.FXY] = e
	return nil
}

// AddSequence registers a table D entry by its child codes.
func (b *Builder) AddSequence(code Code, name string, children []Code) error {
	if code.F() != 3 {
		return fmt.Errorf("sequence %s: F must be 3", code)
	}
	if len(children) == 0 {
		return fmt.Errorf("sequence %s: no children", code)
	}
	b.sequences[code] = sequenceDef{name: name, children: append([]Code(nil), children...)}
	return nil
}

// Build resolves every sequence into owned children and returns the Table.
func (b *Builder) Build() (*Table, error) {
	t := &Table{
		name:    b.name,
		entries: make(map[Code]Descriptor, len(b.elements)+len(b.sequences)),
	}
	for code, e := range b.elements {
		el := e
		t.entries[code] = &el
	}

	// Strengthen in code order so errors are deterministic.
	codes := make([]Code, 0, len(b.sequences))
	for code := range b.sequences {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	visiting := make(map[Code]bool)
	for _, code := range codes {
		if _, err := b.strengthen(t, code, visiting); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (b *Builder) strengthen(t *Table, code Code, visiting map[Code]bool) (Descriptor, error) {
	if d, ok := t.entries[code]; ok {
		return d, nil
	}
	def, ok := b.sequences[code]
	if !ok {
		return nil, &UnknownDescriptorError{Code: code}
	}
	if visiting[code] {
		return nil, fmt.Errorf("sequence %s: cyclic definition", code)
	}
	visiting[code] = true
	defer delete(visiting, code)

	children, err := resolve(def.children, func(c Code) (Descriptor, error) {
		if c.F() == 3 {
			return b.strengthen(t, c, visiting)
		}
		if d, ok := t.entries[c]; ok {
			return d, nil
		}
		return nil, &UnknownDescriptorError{Code: c}
	})
	if err != nil {
		return nil, fmt.Errorf("sequence %s: %w", code, err)
	}

	seq := &Sequence{FXY: code, Name: def.name, Children: children}
	t.entries[code] = seq
	return seq, nil
}

// Resolve turns Section 3 codes into descriptors. Replication and operator
// descriptors are synthesized from the code itself; everything else comes from
// the table.
func Resolve(codes []Code, t *Table) ([]Descriptor, error) {
	return resolve(codes, func(c Code) (Descriptor, error) {
		if d, ok := t.Lookup(c); ok {
			return d, nil
		}
		return nil, &UnknownDescriptorError{Code: c}
	})
}

func resolve(codes []Code, lookup func(Code) (Descriptor, error)) ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(codes))
	for i, c := range codes {
		switch c.F() {
		case 1:
			out = append(out, &Replication{FXY: c, Fields: c.X(), Count: c.Y()})
		case 2:
			op := Opcode(c.X())
			if !op.Supported() {
				return nil, &UnsupportedOperatorError{Code: c}
			}
			out = append(out, &Operator{FXY: c, Opcode: op, Operand: c.Y()})
		default:
			d, err := lookup(c)
			if err != nil {
				// A local element announced by 2 06 YYY may be absent from the table.
				if local, ok := localElement(out, i, c); ok {
					out = append(out, local)
					continue
				}
				return nil, err
			}
			out = append(out, d)
		}
	}
	return out, nil
}

func localElement(resolved []Descriptor, i int, c Code) (*Element, bool) {
	if i == 0 || c.F() != 0 {
		return nil, false
	}
	prev, ok := resolved[i-1].(*Operator)
	if !ok || prev.Opcode != OpSignifyLocalWidth || prev.Operand == 0 {
		return nil, false
	}
	return &Element{FXY: c, Name: "LOCAL DESCRIPTOR", Unit: "LOCAL", Width: prev.Operand}, true
}
