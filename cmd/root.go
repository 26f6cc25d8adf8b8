package cmd

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Prefix:          "agent",
})

func RootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "moos-agent",
		Short:         "Learning agent for MOOS-IvP missions run by pEpisodeManager",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := UpdateFlags(cmd.Flags()); err != nil {
				return err
			}
			if flags.Debug {
				logger.SetLevel(log.DebugLevel)
			}
			return nil
		},
	}
	AddFlags(cmd)

	cmd.AddCommand(
		TrainCommand(),
		RunCommand(),
		SchemaCommand(),
		FieldCommand(),
	)

	return cmd
}

// Execute runs the root command and reports a failure on stderr.
func Execute() error {
	if err := RootCommand().Execute(); err != nil {
		logger.Error("exiting", "err", err)
		return err
	}
	return nil
}
