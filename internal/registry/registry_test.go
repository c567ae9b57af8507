package registry

import (
	"path/filepath"
	"testing"

	"zgrid/internal/mdb"
)

func openTestRegistry(t *testing.T) *Local {
	t.Helper()
	tmp := t.TempDir()
	reg, err := Open(filepath.Join(tmp, "registry.db"), filepath.Join(tmp, "data"))
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestAddVersionAssignsMonotonicNumbers(t *testing.T) {
	t.Parallel()
	reg := openTestRegistry(t)

	v0, err := reg.AddVersion("prod", "t", "", "list0.json")
	if err != nil {
		t.Fatalf("add version: %v", err)
	}
	if v0.VersionNumber != 0 {
		t.Fatalf("first version = %d, want 0", v0.VersionNumber)
	}

	// Version numbers are shared per table across userspaces so layered
	// reads can compare them.
	v1, err := reg.AddVersion("dev", "t", "", "list1.json")
	if err != nil {
		t.Fatalf("add dev version: %v", err)
	}
	if v1.VersionNumber != 1 {
		t.Fatalf("dev version = %d, want 1", v1.VersionNumber)
	}

	// A different table starts over.
	other, err := reg.AddVersion("prod", "u", "", "list2.json")
	if err != nil {
		t.Fatalf("add other table: %v", err)
	}
	if other.VersionNumber != 0 {
		t.Fatalf("other table version = %d, want 0", other.VersionNumber)
	}
}

func TestGetCurrentRespectsMaxVersion(t *testing.T) {
	t.Parallel()
	reg := openTestRegistry(t)

	for i := 0; i < 3; i++ {
		if _, err := reg.AddVersion("prod", "t", "", "list.json"); err != nil {
			t.Fatalf("add version %d: %v", i, err)
		}
	}

	tv, err := reg.GetCurrent("prod", "t", mdb.LatestVersion)
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	if tv == nil || tv.VersionNumber != 2 {
		t.Fatalf("latest = %+v, want version 2", tv)
	}

	tv, err = reg.GetCurrent("prod", "t", 1)
	if err != nil {
		t.Fatalf("get current at 1: %v", err)
	}
	if tv == nil || tv.VersionNumber != 1 {
		t.Fatalf("at max 1 = %+v, want version 1", tv)
	}
}

func TestGetCurrentMissingReturnsNil(t *testing.T) {
	t.Parallel()
	reg := openTestRegistry(t)

	tv, err := reg.GetCurrent("prod", "missing", mdb.LatestVersion)
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	if tv != nil {
		t.Fatalf("expected nil for missing table, got %+v", tv)
	}
}

func TestAddVersionRejectsEscapingFilenames(t *testing.T) {
	t.Parallel()
	reg := openTestRegistry(t)

	if _, err := reg.AddVersion("prod", "t", "", "../outside.json"); err == nil {
		t.Fatalf("expected parent-reference filename to be rejected")
	}
	if _, err := reg.AddVersion("prod", "t", "/etc/passwd", "list.json"); err == nil {
		t.Fatalf("expected absolute schema filename to be rejected")
	}
}

func TestPrependDataDir(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	reg, err := Open(filepath.Join(tmp, "registry.db"), "/data/zgrid")
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	defer reg.Close()

	if got := reg.PrependDataDir("shard/file.parquet"); got != "/data/zgrid/shard/file.parquet" {
		t.Fatalf("prepend = %q", got)
	}
}
