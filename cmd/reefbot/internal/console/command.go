package console

import (
	"github.com/spf13/cobra"
)

func NewConsoleCommand() *cobra.Command {
	var debug bool
	var sender string

	cmd := &cobra.Command{
		Use:     "console",
		Aliases: []string{"c"},
		Short:   "Run the pipeline against an interactive local console",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return consoleCmd(sender, debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().StringVar(&sender, "sender", "console|operator", "Sender identity for injected messages")

	return cmd
}
