package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/michalhajok/trackerB-sub000/internal/core"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestImportCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cash.csv")
	data := "Type;Amount;Time;Comment;Currency\n" +
		"deposit;1000;2024-01-02 10:00:00;Top up;PLN\n" +
		"withdrawal;-200;2024-01-05 12:30:00;ATM;PLN\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := runCmd(t, "import", path, "--store", "memory", "--user", "u1")
	if err != nil {
		t.Fatalf("import error = %v\n%s", err, out)
	}

	var job core.ImportJob
	if err := json.Unmarshal([]byte(out), &job); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if job.Status != core.StatusCompleted {
		t.Errorf("Status = %q, want %q", job.Status, core.StatusCompleted)
	}
	if job.RecordsCount.CashOperations != 2 {
		t.Errorf("RecordsCount.CashOperations = %d, want 2", job.RecordsCount.CashOperations)
	}
	if job.UserID != "u1" {
		t.Errorf("UserID = %q, want %q", job.UserID, "u1")
	}
}

func TestImportCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{"import", filepath.Join(t.TempDir(), "nope.csv"), "--store", "memory"}},
		{"no args", []string{"import", "--store", "memory"}},
		{"bad type", []string{"import", "x.csv", "--store", "memory", "--type", "bonds"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCmd(t, tt.args...); err == nil {
				t.Error("Execute() error = nil, want error")
			}
		})
	}
}

func TestRollbackCommand_RejectsBadID(t *testing.T) {
	if _, err := runCmd(t, "rollback", "not-a-uuid"); err == nil {
		t.Error("Execute() error = nil, want error")
	}
}
