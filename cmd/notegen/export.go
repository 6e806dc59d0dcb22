package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/csheth/notegen/internal/config"
	"github.com/csheth/notegen/internal/pipeline"
)

func newExportCmd(v *viper.Viper, configPath *string) *cobra.Command {
	var outline bool
	cmd := &cobra.Command{
		Use:   "export <notes.html>",
		Short: "Render a saved notes document to PDF",
		Long: `Export loads an HTML notes document from disk into the isolated renderer
and writes a PDF to the export directory. Code fences around the document
are removed the same way as for live responses.

Examples:
  notegen export notes.html
  notegen export notes.html --outline --export-dir ./out`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, *configPath)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}

			a := newApp(cfg)
			a.renderer.Load(pipeline.NormalizeHTML(string(data)), nil)
			if outline {
				res, err := a.renderer.ExportOutline()
				if err != nil {
					return fmt.Errorf("outline export: %w", err)
				}
				reportExport(cmd.OutOrStdout(), "Outline", res)
				return nil
			}
			res, err := a.renderer.Export(cmd.Context())
			if err != nil {
				return fmt.Errorf("pdf export: %w", err)
			}
			reportExport(cmd.OutOrStdout(), "PDF", res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&outline, "outline", false, "write a text-only outline PDF without a browser")
	return cmd
}
