package store

import (
	"strings"
	"testing"
)

func TestEmptyFilterMatchesEverything(t *testing.T) {
	clause, args := NewFilter().Clause()
	if clause != "1=1" || len(args) != 0 {
		t.Errorf("unexpected empty clause %q args %v", clause, args)
	}
}

func TestPredicatesCompose(t *testing.T) {
	f := NewFilter().AlertsOnly().Env("prod").Tenant("42")
	clause, args := f.Clause()

	for _, want := range []string{"is_alert = 1", "[PROD]", "tenant_id = ?"} {
		if !strings.Contains(clause, want) {
			t.Errorf("clause %q missing %q", clause, want)
		}
	}
	if len(args) != 1 || args[0] != "42" {
		t.Errorf("unexpected args %v", args)
	}
}

func TestUserInputIsBound(t *testing.T) {
	hostile := `storage"; DROP TABLE issues; --`
	f := NewFilter().Component(hostile).Signature(hostile).Tenant(hostile)
	clause, args := f.Clause()

	if strings.Contains(clause, "DROP TABLE") {
		t.Errorf("user input leaked into SQL text: %q", clause)
	}
	if len(args) != 3 {
		t.Errorf("expected 3 bound args, got %d", len(args))
	}
}

func TestLegacyExclusionComplement(t *testing.T) {
	only, _ := NewFilter().LegacyOnly().Clause()
	excl, _ := NewFilter().ExcludeLegacy().Clause()
	if "NOT "+only != excl {
		t.Errorf("exclusion %q is not the complement of %q", excl, only)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	base := NewFilter().AlertsOnly()
	extended := base.Clone().Tenant("42")

	baseClause, baseArgs := base.Clause()
	if strings.Contains(baseClause, "tenant_id") || len(baseArgs) != 0 {
		t.Errorf("extension leaked into base: %q %v", baseClause, baseArgs)
	}

	extClause, extArgs := extended.Clause()
	if !strings.Contains(extClause, "tenant_id") || len(extArgs) != 1 {
		t.Errorf("extension missing: %q %v", extClause, extArgs)
	}
}

func TestUnknownEnvAndTierAreNoOps(t *testing.T) {
	clause, _ := NewFilter().Env("all").Tier("platinum").Clause()
	if clause != "1=1" {
		t.Errorf("expected no restriction, got %q", clause)
	}
}

func TestPrioritiesPlaceholders(t *testing.T) {
	clause, args := NewFilter().Priorities([]string{"Critical", " Major "}).Clause()
	if !strings.Contains(clause, "priority IN (?,?)") {
		t.Errorf("unexpected clause %q", clause)
	}
	if len(args) != 2 || args[1] != "Major" {
		t.Errorf("expected trimmed args, got %v", args)
	}
}
