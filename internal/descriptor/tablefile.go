package descriptor

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed tables/common.yaml
var commonTable []byte

// tableFile is the on-disk layout accepted by LoadTable:
//
//	name: wmo-v38
//	elements:
//	  - {code: "012101", name: TEMPERATURE, unit: K, scale: 2, reference: 0, width: 16}
//	sequences:
//	  - {code: "301011", name: DATE, children: ["004001", "004002", "004003"]}
type tableFile struct {
	Name     string `yaml:"name"`
	Elements []struct {
		Code      string `yaml:"code"`
		Name      string `yaml:"name"`
		Unit      string `yaml:"unit"`
		Scale     int    `yaml:"scale"`
		Reference int64  `yaml:"reference"`
		Width     int    `yaml:"width"`
	} `yaml:"elements"`
	Sequences []struct {
		Code     string   `yaml:"code"`
		Name     string   `yaml:"name"`
		Children []string `yaml:"children"`
	} `yaml:"sequences"`
}

// LoadTable builds a Table from a YAML code to descriptor mapping.
func LoadTable(r io.Reader) (*Table, error) {
	var tf tableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&tf); err != nil {
		return nil, fmt.Errorf("decode table: %w", err)
	}

	b := NewBuilder(tf.Name)
	for _, e := range tf.Elements {
		code, err := ParseCode(e.Code)
		if err != nil {
			return nil, err
		}
		if err := b.AddElement(Element{
			FXY:       code,
			Name:      e.Name,
			Unit:      e.Unit,
			Scale:     e.Scale,
			Reference: e.Reference,
			Width:     e.Width,
		}); err != nil {
			return nil, err
		}
	}
	for _, s := range tf.Sequences {
		code, err := ParseCode(s.Code)
		if err != nil {
			return nil, err
		}
		children := make([]Code, 0, len(s.Children))
		for _, child := range s.Children {
			c, err := ParseCode(child)
			if err != nil {
				return nil, fmt.Errorf("sequence %s: %w", code, err)
			}
			children = append(children, c)
		}
		if err := b.AddSequence(code, s.Name, children); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// LoadTableFile is LoadTable over a file path.
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()
	return LoadTable(f)
}

// DefaultTable returns the built-in table of frequently used entries. Messages
// that use other descriptors need a table file.
func DefaultTable() (*Table, error) {
	return LoadTable(bytes.NewReader(commonTable))
}
