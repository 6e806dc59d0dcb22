package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/csheth/notegen/internal/config"
	"github.com/csheth/notegen/internal/pipeline"
	"github.com/csheth/notegen/internal/preview"
)

type askOptions struct {
	html    bool
	pdf     bool
	outline bool
	quiet   bool
}

func newAskCmd(v *viper.Viper, configPath *string) *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Generate notes without the TUI and print them as Markdown",
		Long: `Ask submits one question, narrates progress on stderr, and prints the
notes as Markdown followed by the extracted references.

Examples:
  notegen ask "Explain photosynthesis"
  notegen ask "The French Revolution" --pdf
  notegen ask "Binary search" --html > notes.html`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.html && (opts.pdf || opts.outline) {
				return errors.New("--html cannot be combined with --pdf or --outline")
			}
			cfg, err := config.Load(v, *configPath)
			if err != nil {
				return err
			}
			return runAsk(cmd, newApp(cfg), strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.html, "html", false, "print the raw HTML document instead of Markdown")
	cmd.Flags().BoolVar(&opts.pdf, "pdf", false, "also export the rendered document to PDF")
	cmd.Flags().BoolVar(&opts.outline, "outline", false, "also export a text-only outline PDF")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress progress messages")
	return cmd
}

func runAsk(cmd *cobra.Command, a *app, question string, opts askOptions) error {
	ctx := cmd.Context()
	stderr := cmd.ErrOrStderr()

	settled := make(chan pipeline.Snapshot, 1)
	last := ""
	p, err := a.newPipeline(func(s pipeline.Snapshot) {
		if s.Status.Terminal() {
			select {
			case settled <- s:
			default:
			}
			return
		}
		if !opts.quiet && s.Progress != "" && s.Progress != last {
			last = s.Progress
			fmt.Fprintln(stderr, s.Progress)
		}
	})
	if err != nil {
		return err
	}
	defer p.Close()

	if !p.Submit(question) {
		return errors.New("question must not be blank")
	}

	var snap pipeline.Snapshot
	select {
	case snap = <-settled:
	case <-ctx.Done():
		return fmt.Errorf("ask cancelled: %w", ctx.Err())
	}
	if snap.Status == pipeline.StatusErrored {
		return fmt.Errorf("generate notes: %s", snap.ErrorMessage)
	}

	out := cmd.OutOrStdout()
	if err := writeNotes(out, snap, opts.html); err != nil {
		return err
	}

	if !opts.pdf && !opts.outline {
		return nil
	}
	a.renderer.Load(snap.HTML, snap.References)
	if opts.outline {
		res, err := a.renderer.ExportOutline()
		if err != nil {
			return fmt.Errorf("outline export: %w", err)
		}
		reportExport(stderr, "Outline", res)
	}
	if opts.pdf {
		res, err := a.renderer.Export(ctx)
		if err != nil {
			return fmt.Errorf("pdf export: %w", err)
		}
		reportExport(stderr, "PDF", res)
	}
	return nil
}

func writeNotes(w io.Writer, snap pipeline.Snapshot, raw bool) error {
	if raw {
		_, err := fmt.Fprintln(w, snap.HTML)
		return err
	}
	md, err := preview.ToMarkdown(snap.HTML)
	if err != nil {
		return fmt.Errorf("convert notes: %w", err)
	}
	var b strings.Builder
	b.WriteString(strings.TrimSpace(md))
	b.WriteString("\n")
	if refs := preview.DisplayReferences(snap.References); len(refs) > 0 {
		b.WriteString("\n## References\n\n")
		for i, ref := range refs {
			fmt.Fprintf(&b, "%d. %s", i+1, ref.Title)
			if ref.Href != "" {
				fmt.Fprintf(&b, " <%s>", ref.Href)
			}
			b.WriteString("\n")
		}
	}
	_, err = io.WriteString(w, b.String())
	return err
}

func reportExport(w io.Writer, kind string, res preview.ExportResult) {
	fmt.Fprintf(w, "%s saved to %s (%d pages)\n", kind, res.Path, res.Pages)
}
