package store

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

var migrationName = regexp.MustCompile(`^(\d+)_.+\.(up|down)\.sql$`)

func TestEveryMigrationIsReversible(t *testing.T) {
	dir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}

	ups := map[string]string{}
	downs := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil {
			t.Fatalf("file %s does not follow NNNN_name.up|down.sql", entry.Name())
		}
		version, direction := match[1], match[2]
		set := ups
		if direction == "down" {
			set = downs
		}
		if previous, ok := set[version]; ok {
			t.Fatalf("version %s has both %s and %s", version, previous, entry.Name())
		}
		set[version] = entry.Name()
	}

	if len(ups) == 0 {
		t.Fatal("no up migrations found")
	}
	for version, name := range ups {
		if _, ok := downs[version]; !ok {
			t.Fatalf("%s has no matching down migration", name)
		}
	}
	for version, name := range downs {
		if _, ok := ups[version]; !ok {
			t.Fatalf("%s has no matching up migration", name)
		}
	}
}
