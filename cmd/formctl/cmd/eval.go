package cmd

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"form-engine/internal/engine"
	"form-engine/internal/metadata"
)

type formOpts struct {
	dataFile string
}

func (o *formOpts) open(path string, root *rootOpts) (*engine.Form, error) {
	pf, _, err := metadata.LoadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if o.dataFile != "" {
		if data, err = metadata.LoadData(o.dataFile); err != nil {
			return nil, err
		}
	}
	return engine.New(pf, data, engine.Options{
		Key:                 path,
		Language:            root.language,
		DisableAutoValidate: true,
	}), nil
}

func writeResult(w io.Writer, f *engine.Form) error {
	snap := f.Snapshot()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"data":   snap.Data,
		"errors": snap.Errors,
		"state":  f.States(),
	})
}

func newEvalCmd(root *rootOpts) *cobra.Command {
	opts := &formOpts{}
	var validate bool
	cmd := &cobra.Command{
		Use:   "eval <form>",
		Short: "Compute every property and optionally validate against data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.open(args[0], root)
			if err != nil {
				return err
			}
			if validate {
				if _, err := f.Validate(context.Background()); err != nil {
					return err
				}
			}
			return writeResult(cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&opts.dataFile, "data", "", "JSON or YAML file with the form data")
	cmd.Flags().BoolVar(&validate, "validate", true, "run validation rules")
	return cmd
}
