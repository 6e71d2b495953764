package classify

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeCategoryFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "categories.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing category file: %v", err)
	}
	return path
}

func TestCategoryLookup(t *testing.T) {
	path := writeCategoryFile(t, `
categories:
  Compute:
    - scheduler
    - executor
  Resilience:
    - backup
`)
	m := NewCategoryMap(path, time.Minute)

	if got := m.Category("scheduler"); got != "Compute" {
		t.Errorf("Category(scheduler) = %q, want Compute", got)
	}
	if got := m.Category("backup"); got != "Resilience" {
		t.Errorf("Category(backup) = %q, want Resilience", got)
	}
	if got := m.Category("unknown"); got != OtherCategory {
		t.Errorf("Category(unknown) = %q, want %q", got, OtherCategory)
	}
}

func TestCategoryOrderPreserved(t *testing.T) {
	path := writeCategoryFile(t, `
categories:
  Zeta:
    - z
  Alpha:
    - a
  Middle:
    - m
`)
	m := NewCategoryMap(path, time.Minute)

	got := m.Categories()
	want := []string{"Zeta", "Alpha", "Middle"}
	if len(got) != len(want) {
		t.Fatalf("Categories() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Categories() = %v, want declaration order %v", got, want)
		}
	}
}

func TestServerlessIsFixedCategory(t *testing.T) {
	m := NewCategoryMap(filepath.Join(t.TempDir(), "missing.yaml"), time.Minute)
	if got := m.Category("Serverless"); got != "Serverless" {
		t.Errorf("Category(Serverless) = %q, want Serverless", got)
	}
}

func TestMissingFileDegradesToOther(t *testing.T) {
	m := NewCategoryMap(filepath.Join(t.TempDir(), "missing.yaml"), time.Minute)
	if got := m.Category("anything"); got != OtherCategory {
		t.Errorf("Category = %q, want %q", got, OtherCategory)
	}
	if cats := m.Categories(); len(cats) != 0 {
		t.Errorf("expected no categories, got %v", cats)
	}
}
