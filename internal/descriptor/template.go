package descriptor

// Template is a pre-verified descriptor list. Decoding against a template checks
// that Section 3 names exactly these descriptors instead of resolving them again.
type Template struct {
	Name        string
	Descriptors []Descriptor
}

// NewTemplate resolves codes against t once so the result can be reused.
func NewTemplate(name string, codes []Code, t *Table) (*Template, error) {
	resolved, err := Resolve(codes, t)
	if err != nil {
		return nil, err
	}
	return &Template{Name: name, Descriptors: resolved}, nil
}

// Verify checks codes against the template position by position.
func (tp *Template) Verify(codes []Code) error {
	if len(codes) != len(tp.Descriptors) {
		return &TemplateLengthMismatchError{Expected: len(tp.Descriptors), Actual: len(codes)}
	}
	for i, d := range tp.Descriptors {
		if d.Code() != codes[i] {
			return &TemplateMismatchError{Index: i, Expected: d.Code(), Actual: codes[i]}
		}
	}
	return nil
}
