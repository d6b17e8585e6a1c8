package storage

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"bufr_decoder/internal/bufr"
)

// MessageRecord is the stored header of one decoded message.
type MessageRecord struct {
	ID                 string
	Source             string
	Edition            int
	Centre             int
	SubCentre          int
	DataCategory       int
	DataSubCategory    int
	LocalSubCategory   int
	MasterTableVersion int
	LocalTableVersion  int
	ObservedAt         time.Time
	Subsets            int
	Compressed         bool
	Descriptors        string // Section 3 codes, space separated.
	ReceivedAt         time.Time
}

// Observation is one data value of one subset.
type Observation struct {
	MessageID string
	Subset    int
	Position  int // Index among the flattened values of the subset.
	Code      string
	Name      string
	Unit      string
	Value     *float64 // Nil for text and missing values.
	Text      string
	Missing   bool
}

// Flatten assigns msg a new id and turns it into rows.
func Flatten(msg *bufr.Message, source string) (MessageRecord, []Observation) {
	codes := make([]string, len(msg.Section3.Codes))
	for i, c := range msg.Section3.Codes {
		codes[i] = c.String()
	}

	rec := MessageRecord{
		ID:                 uuid.NewString(),
		Source:             source,
		Edition:            msg.Section0.Edition,
		Centre:             msg.Section1.Centre,
		SubCentre:          msg.Section1.SubCentre,
		DataCategory:       msg.Section1.DataCategory,
		DataSubCategory:    msg.Section1.DataSubCategory,
		LocalSubCategory:   msg.Section1.LocalSubCategory,
		MasterTableVersion: msg.Section1.MasterTableVersion,
		LocalTableVersion:  msg.Section1.LocalTableVersion,
		ObservedAt:         msg.Section1.Time(),
		Subsets:            msg.Section3.Subsets,
		Compressed:         msg.Section3.Compressed,
		Descriptors:        strings.Join(codes, " "),
		ReceivedAt:         time.Now().UTC(),
	}

	var obs []Observation
	for s, subset := range msg.Subsets() {
		for i, v := range subset.Values() {
			o := Observation{
				MessageID: rec.ID,
				Subset:    s,
				Position:  i,
				Code:      v.Descriptor.FXY.String(),
				Name:      v.Descriptor.Name,
				Unit:      v.Descriptor.Unit,
				Missing:   v.Missing,
			}
			if f, ok := v.Float(); ok {
				o.Value = &f
			} else if !v.Missing {
				o.Text = v.Text
			}
			obs = append(obs, o)
		}
	}
	return rec, obs
}
