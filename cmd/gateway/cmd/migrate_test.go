package cmd

import (
	"context"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	return rootCmd.ExecuteContext(context.Background())
}

func TestMigrateRejectsUnknownDirection(t *testing.T) {
	if err := execute(t, "migrate", "sideways"); err == nil {
		t.Fatalf("expected an error for an unknown direction")
	}
}

func TestMigrateNeedsPostgresSink(t *testing.T) {
	err := execute(t, "migrate", "up", "--sink", "log")
	if err == nil || !strings.Contains(err.Error(), "postgres") {
		t.Fatalf("err = %v, want a postgres sink error", err)
	}
}
