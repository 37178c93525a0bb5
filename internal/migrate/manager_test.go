package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSplitSQLRespectsQuotedSemicolons(t *testing.T) {
	input := `insert into roles(name) values ('ROLE_A;B');
create table t (id text);`
	stmts := splitSQL(input)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.Contains(stmts[0], "ROLE_A;B") {
		t.Fatalf("quoted semicolon split the statement: %q", stmts[0])
	}
}

func TestSplitSQLKeepsTrailingStatement(t *testing.T) {
	stmts := splitSQL(`select 1`)
	if len(stmts) != 1 || strings.TrimSpace(stmts[0]) != "select 1" {
		t.Fatalf("unexpected statements: %q", stmts)
	}
}

func TestLoadScriptsSortsAndFilters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.up.sql", "0001_a.up.sql", "0001_a.down.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("select 1;"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	scripts, err := loadScripts(dir, upSuffix)
	if err != nil {
		t.Fatalf("loadScripts: %v", err)
	}
	if len(scripts) != 2 {
		t.Fatalf("expected 2 up scripts, got %d", len(scripts))
	}
	if scripts[0].name != "0001_a.up.sql" || scripts[1].name != "0002_b.up.sql" {
		t.Fatalf("wrong order: %q %q", scripts[0].name, scripts[1].name)
	}
}

func TestLoadScriptsMissingDirIsEmpty(t *testing.T) {
	scripts, err := loadScripts(filepath.Join(t.TempDir(), "absent"), upSuffix)
	if err != nil {
		t.Fatalf("loadScripts: %v", err)
	}
	if len(scripts) != 0 {
		t.Fatalf("expected no scripts, got %d", len(scripts))
	}
}
