package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/valuedcustomer/internal/core"
)

type exportOptions struct {
	ids  []string
	mode string
	out  string
}

func newExportCmd(a *app) *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render stored customers as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExport(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.ids, "ids", nil, "Comma-separated customer identifiers (required)")
	cmd.Flags().StringVar(&opts.mode, "mode", string(core.ModeRegister), "Render mode: register or status")
	cmd.Flags().StringVar(&opts.out, "out", "", "Write the CSV to this file instead of stdout")
	_ = cmd.MarkFlagRequired("ids")

	return cmd
}

func (a *app) runExport(cmd *cobra.Command, opts exportOptions) error {
	mode, err := core.ParseRenderMode(opts.mode)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(opts.ids))
	for _, id := range opts.ids {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	ctx := cmd.Context()
	return a.withService(ctx, func(svc *core.Service) error {
		result, err := svc.Export(ctx, ids, mode)
		if err != nil {
			return err
		}

		if opts.out == "" {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), result.CSV)
			return err
		}
		return writeFile(opts.out, func(w io.Writer) error {
			_, err := io.WriteString(w, result.CSV)
			return err
		})
	})
}
