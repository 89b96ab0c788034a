// reefbot - multi-channel chat assistant gateway
// License: MIT
//
// Copyright (c) 2026 reefbot contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/reefbot/cmd/reefbot/internal"
	"github.com/tinyland-inc/reefbot/cmd/reefbot/internal/console"
	"github.com/tinyland-inc/reefbot/cmd/reefbot/internal/gateway"
	"github.com/tinyland-inc/reefbot/cmd/reefbot/internal/onboard"
	"github.com/tinyland-inc/reefbot/cmd/reefbot/internal/version"
)

func NewReefbotCommand() *cobra.Command {
	short := fmt.Sprintf("%s reefbot - Multi-channel chat assistant v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "reefbot",
		Short:   short,
		Example: "reefbot gateway",
	}

	cmd.AddCommand(
		onboard.NewOnboardCommand(),
		gateway.NewGatewayCommand(),
		console.NewConsoleCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewReefbotCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
