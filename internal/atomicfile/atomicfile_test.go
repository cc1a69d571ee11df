package atomicfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "nested", "energy.json")

	if err := Write(path, []byte(`{"days":{}}`), 0o644); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != `{"days":{}}` {
		t.Errorf("contents: got %q", got)
	}
}

func TestWriteReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.json")

	if err := Write(path, []byte("old contents that are longer"), 0o644); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	if err := Write(path, []byte("new"), 0o600); err != nil {
		t.Fatalf("second Write: %v", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "new" {
		t.Errorf("contents: got %q, want %q", got, "new")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("perm: got %v, want 0600", info.Mode().Perm())
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	for i := 0; i < 3; i++ {
		if err := Write(path, []byte("fan: {}\n"), 0o644); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "settings.yaml" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir entries: got %v, want [settings.yaml]", names)
	}
}

func TestWriteFailsWhenParentIsFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "state")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Write(filepath.Join(blocker, "energy.json"), []byte("{}"), 0o644); err == nil {
		t.Error("expected error when parent is a regular file")
	}
}
