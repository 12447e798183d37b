package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newFireCmd(root *rootOpts) *cobra.Command {
	opts := &formOpts{}
	var node, event string
	cmd := &cobra.Command{
		Use:   "fire <form>",
		Short: "Fire an event on a component and print the resulting data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.open(args[0], root)
			if err != nil {
				return err
			}
			if err := f.FirePath(context.Background(), node, event); err != nil {
				_ = writeResult(cmd.OutOrStdout(), f)
				return fmt.Errorf("fire %s on %s: %w", event, node, err)
			}
			return writeResult(cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&opts.dataFile, "data", "", "JSON or YAML file with the form data")
	cmd.Flags().StringVar(&node, "node", "", "path of the sender, e.g. items[0].remove")
	cmd.Flags().StringVar(&event, "event", "onClick", "event name")
	_ = cmd.MarkFlagRequired("node")
	return cmd
}
