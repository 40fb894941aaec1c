package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/valuedcustomer/internal/core"
)

type importOptions struct {
	file string
	out  string
}

func newImportCmd(a *app) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a customer CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runImport(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "CSV file to import (required)")
	cmd.Flags().StringVar(&opts.out, "out", "", "Write the confirmation CSV to this file")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func (a *app) runImport(cmd *cobra.Command, opts importOptions) error {
	data, err := os.ReadFile(opts.file)
	if err != nil {
		return fmt.Errorf("read %s: %w", opts.file, err)
	}
	if int64(len(data)) > a.cfg.Import.MaxBodySize {
		return fmt.Errorf("%w: %s is %d bytes", core.ErrFileTooLarge, opts.file, len(data))
	}
	payload := string(data)
	if !strings.Contains(payload, ",") {
		return fmt.Errorf("%w: no comma in %s", core.ErrNotCSV, opts.file)
	}

	ctx := core.ContextWithSource(cmd.Context(), cliSource)

	return a.withService(ctx, func(svc *core.Service) error {
		result, err := svc.ImportCSV(ctx, filepath.Base(opts.file), payload)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Imported %d customers (batch %s), skipped %d rows without a name\n",
			len(result.Accepted), result.BatchID, result.Discarded)
		for _, row := range result.Accepted {
			fmt.Fprintf(out, "%s\t%s\n", row.CustomerID, row.CustomerName)
		}

		if opts.out == "" {
			return nil
		}
		return writeFile(opts.out, func(w io.Writer) error {
			_, err := core.NewExporter(core.ModeRegister).WriteTo(w, result.Customers)
			return err
		})
	})
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return write(f)
}
