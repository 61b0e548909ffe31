package app

import (
	"fmt"
	"io"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/flightrelay/internal/relay/dispatcher"
)

func newCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the commands accepted by the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printCommands(cmd.OutOrStdout(), dispatcher.NewRegistry(dispatcher.DefaultEntries()...))
		},
	}
}

func printCommands(w io.Writer, reg *dispatcher.Registry) error {
	table := uitable.New()
	table.MaxColWidth = 72
	table.Wrap = true
	table.AddRow("TOKEN", "DESCRIPTION")
	for _, e := range reg.Entries() {
		table.AddRow(e.Token, e.Description)
	}
	table.AddRow("WAYPOINTS <json>", "Upload a mission, replacing the one on the vehicle")

	_, err := fmt.Fprintln(w, table)
	return err
}
