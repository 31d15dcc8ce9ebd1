package migration

import (
	"strings"
	"testing"
)

func TestStatementsAreIdempotent(t *testing.T) {
	r := NewRunner()
	stmts := r.Statements()
	if len(stmts) == 0 {
		t.Fatal("Expected migration statements")
	}
	for i, stmt := range stmts {
		if !strings.Contains(stmt, "IF NOT EXISTS") {
			t.Errorf("Statement %d is not idempotent: %s", i, strings.TrimSpace(stmt))
		}
	}
	if r.Version() == "" {
		t.Error("Expected a migration version")
	}
}

func TestRunsTableCreatedBeforeRows(t *testing.T) {
	stmts := NewRunner().Statements()
	runs, rows := -1, -1
	for i, stmt := range stmts {
		if strings.Contains(stmt, "TABLE IF NOT EXISTS randomisation_runs") {
			runs = i
		}
		if strings.Contains(stmt, "TABLE IF NOT EXISTS randomisation_rows") {
			rows = i
		}
	}
	if runs < 0 || rows < 0 || runs > rows {
		t.Errorf("Expected runs table before rows table, got %d and %d", runs, rows)
	}
}
