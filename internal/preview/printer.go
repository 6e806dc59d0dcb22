package preview

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const defaultPrintCommand = "lp"

// Printer hands a rendered PDF to the system print queue.
type Printer interface {
	Print(ctx context.Context, pdf []byte, title string) error
}

// SpoolPrinter writes the PDF to a temp file and submits it with a CUPS style
// command such as lp or lpr.
type SpoolPrinter struct {
	Command string
	Args    []string
}

func (p SpoolPrinter) Print(ctx context.Context, pdf []byte, title string) error {
	command := strings.TrimSpace(p.Command)
	if command == "" {
		command = defaultPrintCommand
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return fmt.Errorf("print command %q not found: %w", command, err)
	}

	tmp, err := os.CreateTemp("", "notegen-print-*.pdf")
	if err != nil {
		return fmt.Errorf("spool file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(pdf); err != nil {
		tmp.Close()
		return fmt.Errorf("spool file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("spool file: %w", err)
	}

	args := append([]string{}, p.Args...)
	if title != "" && command == defaultPrintCommand {
		args = append(args, "-t", title)
	}
	args = append(args, tmp.Name())

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", command, err, msg)
		}
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}
