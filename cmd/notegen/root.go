package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/csheth/notegen/internal/config"
	"github.com/csheth/notegen/internal/preview"
	"github.com/csheth/notegen/internal/tui"
)

const shutdownGrace = 2 * time.Second

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"api-url":           "api_url",
	"request-timeout":   "request_timeout",
	"progress-duration": "progress_duration",
	"preview-addr":      "preview_addr",
	"export-dir":        "export_dir",
	"chrome-path":       "chrome_path",
	"print-command":     "print_command",
	"log-file":          "log_file",
	"no-alt-screen":     "no_alt_screen",
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var configPath string

	root := &cobra.Command{
		Use:   "notegen",
		Short: "Generate study notes from a question and read them in the terminal",
		Long: `notegen sends a study question to a note-generation service, narrates
progress while the service works, and shows the returned notes with their
web references. The document can be printed or exported to PDF from an
isolated renderer.

Examples:
  notegen --api-url http://localhost:8000
  notegen ask "How do tides work?" --pdf
  notegen export saved-notes.html --outline`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			return runTUI(cmd.Context(), cfg)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/notegen/notegen.yaml)")
	flags.String("api-url", "", "base URL of the note service")
	flags.Duration("request-timeout", 5*time.Minute, "timeout for one /generate call (0 disables)")
	flags.Duration("progress-duration", 2*time.Minute, "time the progress narration is spread over")
	flags.String("preview-addr", "127.0.0.1:0", "listen address of the sandboxed browser preview")
	flags.String("export-dir", "", "directory for exported PDFs (default: ~/Documents/notegen)")
	flags.String("chrome-path", "", "Chrome or Chromium binary used for print and export")
	flags.String("print-command", "lp", "spooler command that receives the PDF")
	flags.String("log-file", "", "append logs to this file")
	flags.Bool("no-alt-screen", false, "disable the alternate screen buffer")
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}

	root.AddCommand(newAskCmd(v, &configPath), newExportCmd(v, &configPath))
	return root
}

func runTUI(ctx context.Context, cfg *config.Config) error {
	if cfg.LogFile != "" {
		f, err := tea.LogToFile(cfg.LogFile, "notegen")
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
	} else {
		log.SetOutput(io.Discard)
	}

	a := newApp(cfg)
	box := tui.NewMailbox()
	p, err := a.newPipeline(box.Publish)
	if err != nil {
		return err
	}
	defer p.Close()

	srv := preview.NewServer(a.renderer, preview.ServerOptions{Addr: cfg.PreviewAddr, Gatherer: a.registry})
	previewURL, err := srv.Start()
	if err != nil {
		log.Printf("[preview] browser preview disabled: %v", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("[preview] shutdown: %v", err)
			}
		}()
	}

	opts := []tea.ProgramOption{tea.WithMouseCellMotion()}
	if !cfg.NoAltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	program := tea.NewProgram(tui.New(tui.Config{
		Pipeline:   p,
		Snapshots:  box,
		Renderer:   a.renderer,
		PreviewURL: previewURL,
	}), opts...)

	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("program error: %w", err)
	}
	return nil
}
