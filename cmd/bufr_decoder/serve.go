package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bufr_decoder/internal/api"
	"bufr_decoder/internal/storage"
)

var (
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the decode API and Prometheus metrics",
		RunE:  runServe,
	}

	serveStore bool
	servePort  int
)

func init() {
	serveCmd.Flags().BoolVar(&serveStore, "store", false, "open the storage backend so clients may request ?store=true")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides api.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	dec, err := newDecoder(cfg, log)
	if err != nil {
		return err
	}

	var st storage.Store
	if serveStore {
		if st, err = storage.Open(cmd.Context(), cfg.Storage); err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer st.Close()
	}

	apiCfg := cfg.API
	if servePort != 0 {
		apiCfg.Port = servePort
	}
	return api.NewServer(dec, st, apiCfg, log).Run(cmd.Context())
}
