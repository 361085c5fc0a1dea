package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestFS_PairsUpAndDown(t *testing.T) {
	names, err := fs.Glob(FS, "*.sql")
	if err != nil {
		t.Fatalf("Glob() error: %v", err)
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %q", name)
		}
	}

	if len(ups) == 0 {
		t.Fatal("expected at least one up migration")
	}
	for v := range ups {
		if !downs[v] {
			t.Errorf("migration %s has no down file", v)
		}
	}
}

func TestFS_CreatesCoreTables(t *testing.T) {
	data, err := fs.ReadFile(FS, "000001_init.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	for _, table := range []string{"entries", "entry_relations", "media", "audit_log"} {
		if !strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS "+table+" ") {
			t.Errorf("init migration does not create %s", table)
		}
	}
}
