// Command roundctl audits rounds from the outside: it recomputes commitments
// and draws and tails the live round feed.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"round-settlement/internal/config"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	cfg, err := config.LoadCLI()
	if err != nil {
		log.Fatal().Err(err).Msg("load cli config failed")
	}
	if err := RootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func RootCmd(cfg config.CLIConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "roundctl",
		Short:         "Verify round commitments and draws",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().String("server", cfg.ServerURL, "settlement server base URL")
	cmd.PersistentFlags().String("ws", cfg.WSURL, "round feed websocket URL")

	cmd.AddCommand(
		CommitCmd(),
		VerifyCmd(),
		DrawCmd(),
		WatchCmd(),
	)
	return cmd
}
