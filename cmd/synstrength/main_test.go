package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SYNSTRENGTH_STORAGE_DRIVER", "sqlite")
	t.Setenv("SYNSTRENGTH_SQLITE_PATH", filepath.Join(dir, "strength.db"))
	t.Setenv("SYNSTRENGTH_BLOB_DRIVER", "fs")
	t.Setenv("SYNSTRENGTH_BLOB_FS_ROOT", filepath.Join(dir, "artifacts"))
	t.Setenv("SYNSTRENGTH_LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := cli(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestSeedRebuildAndInspect(t *testing.T) {
	dir := setupEnv(t)
	code, out, errOut := run(t, "seed")
	if code != exitOK {
		if strings.Contains(errOut, "sqlite") {
			t.Skipf("sqlite unavailable: %s", errOut)
		}
		t.Fatalf("seed exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "72 pulse responses") {
		t.Fatalf("seed output %q", out)
	}

	code, out, errOut = run(t, "--rebuild", "--workers", "3")
	if code != exitOK {
		t.Fatalf("rebuild exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "status succeeded") || !strings.Contains(out, "responses 72/72, summaries 12") {
		t.Fatalf("rebuild output %q", out)
	}
	if !strings.Contains(out, "summaries.csv") || !strings.Contains(out, "report.json") {
		t.Fatalf("missing artifacts in %q", out)
	}
	reports, err := filepath.Glob(filepath.Join(dir, "artifacts", "reports", "*", "report.json"))
	if err != nil || len(reports) != 1 {
		t.Fatalf("archived reports %v %v", reports, err)
	}

	code, out, _ = run(t)
	if code != exitOK {
		t.Fatalf("list exit %d", code)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 13 || !strings.HasPrefix(lines[0], "EXPERIMENT") {
		t.Fatalf("summary listing %q", out)
	}
	if fields := strings.Fields(lines[1]); fields[0] != "1" || fields[1] != "1" || fields[2] != "2" || fields[3] != "in" || fields[4] != "6" {
		t.Fatalf("first summary row %q", lines[1])
	}

	code, out, _ = run(t, "pair", "--experiment", "1", "--pre", "1", "--post", "3")
	if code != exitOK {
		t.Fatalf("pair exit %d", code)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 7 {
		t.Fatalf("pair rows %q", out)
	}

	code, out, _ = run(t, "reports")
	if code != exitOK || !strings.Contains(out, "succeeded") {
		t.Fatalf("reports exit %d output %q", code, out)
	}
}

func TestUsageErrors(t *testing.T) {
	setupEnv(t)
	if code, _, errOut := run(t, "--bogus"); code != exitError || !strings.Contains(errOut, "unknown flag") {
		t.Fatalf("bogus flag: exit %d %q", code, errOut)
	}
	if code, _, errOut := run(t, "pair", "--pre", "1"); code != exitError || !strings.Contains(errOut, "required") {
		t.Fatalf("missing flags: exit %d %q", code, errOut)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	setupEnv(t)
	t.Setenv("SYNSTRENGTH_STORAGE_DRIVER", "mysql")
	code, _, errOut := run(t, "--rebuild")
	if code != exitError || !strings.Contains(errOut, "unknown storage driver") {
		t.Fatalf("exit %d %q", code, errOut)
	}
}

func TestConfigFileFlag(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "synstrength.yaml")
	if err := os.WriteFile(path, []byte("workers: 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	code, _, errOut := run(t, "--config", path, "--rebuild")
	if code != exitError || !strings.Contains(errOut, "workers must be positive") {
		t.Fatalf("exit %d %q", code, errOut)
	}
}

func TestMainUsesExitFunc(t *testing.T) {
	setupEnv(t)
	var got = -1
	exitFunc = func(code int) { got = code }
	defer func() { exitFunc = os.Exit }()
	oldArgs := os.Args
	os.Args = []string{"synstrength", "--bogus"}
	defer func() { os.Args = oldArgs }()
	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open devnull: %v", err)
	}
	oldStderr := os.Stderr
	os.Stderr = devnull
	main()
	os.Stderr = oldStderr
	_ = devnull.Close()
	if got != exitError {
		t.Fatalf("exit code %d", got)
	}
}
