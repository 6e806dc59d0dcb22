package main

import (
	"context"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/csheth/notegen/internal/tuitest"
)

func TestNotegenRendersNotesInTerminal(t *testing.T) {
	backend := newNotesBackend(t, 200, tidesResponse)
	cmdDir := moduleDir(t)
	binary := buildBinary(t, cmdDir)

	rec, err := tuitest.Run(context.Background(), tuitest.Config{
		Command: []string{
			binary,
			"--no-alt-screen",
			"--progress-duration", "1s",
			"--export-dir", t.TempDir(),
		},
		Dir:    t.TempDir(),
		Env:    []string{"NOTEGEN_API_URL=" + backend.URL},
		Width:  100,
		Height: 40,
		Steps: []tuitest.Step{
			tuitest.WaitFor("rendered in a sandbox"),
			tuitest.Type("How do tides work?"),
			tuitest.Press(tuitest.KeyEnter),
			tuitest.WaitFor("The moon pulls the sea."),
			{Delay: 200 * time.Millisecond, Input: tuitest.KeyCtrlC},
		},
		Timeout:        20 * time.Second,
		AllowInterrupt: true,
	})
	if err != nil {
		t.Fatalf("run CLI: %v", err)
	}

	if !rec.Contains("The moon pulls the sea.") {
		t.Fatalf("notes never rendered:\n%s", rec.Text())
	}
	if !rec.Contains("NOAA tides") {
		t.Fatalf("references missing from the session:\n%s", rec.Text())
	}
}

func moduleDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime caller unavailable")
	}
	return filepath.Dir(file)
}

func buildBinary(t *testing.T, cmdDir string) string {
	t.Helper()
	name := "notegen-integration"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	binPath := filepath.Join(t.TempDir(), name)
	cmd := exec.Command("go", "build", "-o", binPath, ".")
	cmd.Dir = cmdDir
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build CLI: %v\n%s", err, output)
	}
	return binPath
}
