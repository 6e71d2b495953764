package classify

import "strings"

// Business tiers derived from the free-form biz_type marker.
const (
	TierPremium   = "premium"
	TierDedicated = "dedicated"
	TierEssential = "essential"
)

// serverlessComponent is the one component name that forces a tier
// regardless of biz_type.
const serverlessComponent = "Serverless"

// Tier classifies an issue into a business tier. Pure function:
// an exact Serverless component always classifies as essential; a
// nextgen marker in biz_type means premium; a devtier or serverless
// marker means essential; everything else is dedicated. Best-effort
// heuristic over free-form input, not exact classification.
func Tier(bizType, component string) string {
	if component == serverlessComponent {
		return TierEssential
	}
	b := strings.ToLower(bizType)
	switch {
	case strings.Contains(b, "nextgen"):
		return TierPremium
	case strings.Contains(b, "devtier"), strings.Contains(b, "serverless"):
		return TierEssential
	default:
		return TierDedicated
	}
}

// IsLegacy reports whether an issue belongs to the legacy/ungoverned
// bucket: no stability-governance metadata and not premium tier. The
// bucket is surfaced as the old-rules pseudo-component and excluded
// from every properly-governed component's totals.
func IsLegacy(stabilityGovernance, bizType string) bool {
	if stabilityGovernance != "" {
		return false
	}
	return !strings.Contains(strings.ToLower(bizType), "nextgen")
}

// LegacyComponent is the pseudo-component name under which the
// legacy/ungoverned bucket is listed.
const LegacyComponent = "old-rules"
