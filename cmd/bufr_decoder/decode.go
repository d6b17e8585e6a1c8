package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bufr_decoder/internal/bufr"
	"bufr_decoder/internal/metrics"
)

var (
	decodeCmd = &cobra.Command{
		Use:   "decode [file...]",
		Short: "Decode BUFR files (or stdin) to JSON",
		Long: "decode reads every BUFR message from the given files, or stdin when none are " +
			"given, and writes one JSON document per input.",
		RunE: runDecode,
	}

	decodeOutput string
	decodePretty bool
	decodeStats  bool
)

func init() {
	decodeCmd.Flags().StringVarP(&decodeOutput, "output", "o", "", "output file (default stdout)")
	decodeCmd.Flags().BoolVar(&decodePretty, "pretty", false, "indent JSON output")
	decodeCmd.Flags().BoolVar(&decodeStats, "stats", false, "print decode statistics to stderr")
}

// DecodeOut is the JSON document written for one input.
type DecodeOut struct {
	Source   string          `json:"source"`
	Messages []*bufr.Message `json:"messages"`
	Errors   []string        `json:"errors,omitempty"`
}

// Stats counts decode outcomes across all inputs.
type Stats struct {
	Inputs   int
	Messages int
	Subsets  int
	Errors   map[string]int
}

func (s *Stats) add(msgs []*bufr.Message, errs []error) {
	s.Inputs++
	s.Messages += len(msgs)
	for _, m := range msgs {
		s.Subsets += len(m.Subsets())
	}
	for _, err := range errs {
		s.Errors[metrics.ErrorKind(err)]++
	}
}

func runDecode(cmd *cobra.Command, args []string) error {
	dec, err := newDecoder(cfg, log)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if decodeOutput != "" {
		f, err := os.Create(decodeOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	stats := &Stats{Errors: make(map[string]int)}
	err = eachInput(cmd, args, func(source string, r io.Reader) error {
		msgs, errs := dec.DecodeAll(cmd.Context(), r)
		stats.add(msgs, errs)

		doc := DecodeOut{Source: source, Messages: msgs}
		for _, e := range errs {
			doc.Errors = append(doc.Errors, e.Error())
		}
		b, err := marshalJSON(doc, decodePretty)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(b))
		return err
	})
	if err != nil {
		return err
	}

	if decodeStats {
		fmt.Fprintf(cmd.ErrOrStderr(), "stats: inputs=%d messages=%d subsets=%d errors=%v\n",
			stats.Inputs, stats.Messages, stats.Subsets, stats.Errors)
	}
	return nil
}

// eachInput calls fn for every named file, or for stdin when args is empty
// or "-".
func eachInput(cmd *cobra.Command, args []string, fn func(source string, r io.Reader) error) error {
	if len(args) == 0 {
		args = []string{"-"}
	}
	for _, name := range args {
		if name == "-" {
			if err := fn("stdin", cmd.InOrStdin()); err != nil {
				return err
			}
			continue
		}

		f, err := os.Open(name)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		log.WithField("file", name).Debug("decoding")
		err = fn(name, f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func marshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

func logDecodeErrors(source string, errs []error) {
	for _, err := range errs {
		log.WithError(err).WithFields(logrus.Fields{
			"source": source,
			"kind":   metrics.ErrorKind(err),
		}).Warn("undecodable BUFR message")
	}
}
