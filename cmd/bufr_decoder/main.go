// Command bufr_decoder decodes WMO BUFR bulletins to JSON and optionally stores,
// serves or subscribes to them.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "bufr_decoder",
		Short: "Decode WMO BUFR bulletins",
		Long: "bufr_decoder decodes WMO FM-94 BUFR edition 3 and 4 messages into JSON, " +
			"stores them in SQLite, PostgreSQL or ClickHouse, serves a decode API and " +
			"consumes bulletins from NATS.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = loadConfig(configPath, cmd.Flags()); err != nil {
				return err
			}
			log, err = newLogger(cfg.Log)
			return err
		},
	}

	configPath string
	cfg        *Config
	log        *logrus.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().String("tables", "", "descriptor table file (YAML); built-in table when empty")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(decodeCmd, storeCmd, serveCmd, subscribeCmd)
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		logrus.Fatal(err)
	}
}
