// Package bufr decodes WMO FM-94 BUFR edition 3 and 4 messages into observation
// values.
package bufr

import (
	"time"

	"bufr_decoder/internal/descriptor"
)

// Message is one decoded BUFR message.
type Message struct {
	Section0 Section0  `json:"section0"`
	Section1 Section1  `json:"section1"`
	Section2 *Section2 `json:"section2,omitempty"`
	Section3 Section3  `json:"section3"`
	Section4 Section4  `json:"section4"`
	Section5 Section5  `json:"section5"`
}

// Subsets returns the decoded subsets.
func (m *Message) Subsets() []Subset { return m.Section4.Subsets }

// Section0 is the indicator section.
type Section0 struct {
	Length  int `json:"length"` // Total message length in bytes.
	Edition int `json:"edition"`
}

// Section1 is the identification section.
type Section1 struct {
	Length             int    `json:"length"`
	MasterTable        int    `json:"master_table"`
	Centre             int    `json:"centre"`
	SubCentre          int    `json:"sub_centre"`
	UpdateSequence     int    `json:"update_sequence"`
	HasSection2        bool   `json:"has_section2"`
	DataCategory       int    `json:"data_category"`
	DataSubCategory    int    `json:"data_sub_category"` // International subcategory (edition 4).
	LocalSubCategory   int    `json:"local_sub_category"`
	MasterTableVersion int    `json:"master_table_version"`
	LocalTableVersion  int    `json:"local_table_version"`
	Year               int    `json:"year"` // Year of century in edition 3.
	Month              int    `json:"month"`
	Day                int    `json:"day"`
	Hour               int    `json:"hour"`
	Minute             int    `json:"minute"`
	Second             int    `json:"second"`
	Local              []byte `json:"local,omitempty"` // Bytes past the fixed fields.
}

// Time returns the typical time of the message content.
func (s Section1) Time() time.Time {
	year := s.Year
	if year < 100 {
		// Edition 3 year of century.
		if year > 50 {
			year += 1900
		} else {
			year += 2000
		}
	}
	return time.Date(year, time.Month(s.Month), s.Day, s.Hour, s.Minute, s.Second, 0, time.UTC)
}

// Section2 is the optional local use section. Its content is opaque.
type Section2 struct {
	Length int    `json:"length"`
	Data   []byte `json:"data"`
}

// Section3 is the data description section.
type Section3 struct {
	Length      int                     `json:"length"`
	Subsets     int                     `json:"subsets"`
	Observed    bool                    `json:"observed"`
	Compressed  bool                    `json:"compressed"`
	Codes       []descriptor.Code       `json:"codes"`
	Descriptors []descriptor.Descriptor `json:"-"`
}

// Section4 is the data section.
type Section4 struct {
	Length  int      `json:"length"`
	Subsets []Subset `json:"subsets"`
}

// Section5 is the end section.
type Section5 struct {
	Marker string `json:"marker"`
}
