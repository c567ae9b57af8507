package safepath

import (
	"testing"
)

func TestValidName(t *testing.T) {
	t.Parallel()

	valid := []string{"file.parquet", "shard/file.parquet", "a.b.c.json", "deep/nested/path.json"}
	for _, name := range valid {
		if err := ValidName(name); err != nil {
			t.Fatalf("%q should be valid: %v", name, err)
		}
	}

	invalid := []string{"", "   ", "/etc/passwd", "../escape.json", "a/../../b", "shard/../../etc"}
	for _, name := range invalid {
		if err := ValidName(name); err == nil {
			t.Fatalf("%q should be rejected", name)
		}
	}
}

func TestJoinUnder(t *testing.T) {
	t.Parallel()

	got, err := JoinUnder("/data", "shard/file.parquet")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if got != "/data/shard/file.parquet" {
		t.Fatalf("join = %q", got)
	}

	if _, err := JoinUnder("/data", "../file"); err == nil {
		t.Fatalf("expected escaping name to be rejected")
	}
}
