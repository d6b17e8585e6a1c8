package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bufr_decoder/internal/feed"
	"bufr_decoder/internal/storage"
)

var (
	subscribeCmd = &cobra.Command{
		Use:   "subscribe",
		Short: "Decode bulletins from a NATS subject",
		Long: "subscribe consumes raw BUFR bulletins from nats.subject, stores the decoded " +
			"messages when --store is set and republishes them as JSON on nats.publish.",
		RunE: runSubscribe,
	}

	subscribeStore bool
)

func init() {
	subscribeCmd.Flags().BoolVar(&subscribeStore, "store", false, "store decoded messages in the configured backend")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	dec, err := newDecoder(cfg, log)
	if err != nil {
		return err
	}

	var st storage.Store
	if subscribeStore {
		if st, err = storage.Open(cmd.Context(), cfg.Storage); err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer st.Close()
	}

	h := feed.NewHandler(dec, st, nil, cfg.NATS.Publish, log)
	return feed.Run(cmd.Context(), cfg.NATS, h, log)
}
