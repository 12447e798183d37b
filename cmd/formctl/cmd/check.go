package cmd

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"form-engine/internal/engine"
	"form-engine/internal/metadata"
)

// errCheckFailed is returned after the problems were printed.
var errCheckFailed = errors.New("form definition has problems")

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <form.json|form.yaml>",
		Short: "Validate a form definition's shape, keys and component types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, raw, err := metadata.LoadFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			models := metadata.NewDefaultRegistry()
			if err := metadata.Check(raw, models); err != nil {
				var merr *multierror.Error
				if errors.As(multierror.Flatten(err), &merr) {
					for _, e := range merr.Errors {
						fmt.Fprintf(out, "- %v\n", e)
					}
				} else {
					fmt.Fprintf(out, "- %v\n", err)
				}
				return errCheckFailed
			}

			pf, err := metadata.ParseForm(raw)
			if err != nil {
				return err
			}
			tree := engine.NewTree(pf.Form, models)
			byKind := engine.ReduceScreen(tree, func(acc map[metadata.Kind]int, n *engine.ComponentData) map[metadata.Kind]int {
				acc[n.Model.Kind]++
				return acc
			}, map[metadata.Kind]int{})
			total := 0
			for _, n := range byKind {
				total += n
			}
			fmt.Fprintf(out, "ok: %d components (%d containers, %d repeaters)\n",
				total, byKind[metadata.KindContainer], byKind[metadata.KindRepeater])
			return nil
		},
	}
}
