package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bufr_decoder/internal/storage"
)

var storeCmd = &cobra.Command{
	Use:   "store [file...]",
	Short: "Decode BUFR files (or stdin) and store them",
	Long:  "store decodes every message of the inputs and writes it to the configured storage backend.",
	RunE:  runStore,
}

func runStore(cmd *cobra.Command, args []string) error {
	dec, err := newDecoder(cfg, log)
	if err != nil {
		return err
	}

	st, err := storage.Open(cmd.Context(), cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer st.Close()

	stored, failed := 0, 0
	err = eachInput(cmd, args, func(source string, r io.Reader) error {
		msgs, errs := dec.DecodeAll(cmd.Context(), r)
		logDecodeErrors(source, errs)
		failed += len(errs)

		for _, m := range msgs {
			id, err := st.Store(cmd.Context(), m, source)
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			log.WithFields(logrus.Fields{
				"id":       id,
				"source":   source,
				"subsets":  len(m.Subsets()),
				"category": m.Section1.DataCategory,
			}).Debug("stored message")
			stored++
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"driver": cfg.Storage.Driver,
		"stored": stored,
		"failed": failed,
	}).Info("store finished")
	return nil
}
