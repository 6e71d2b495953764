package analytics

// countChange compares two window counts and returns the percentage
// change plus a trend direction. A zero previous count with a non-zero
// current count reports a fixed +100% rather than dividing by zero;
// zero against zero is flat.
func countChange(current, previous int) (float64, string) {
	if previous == 0 {
		if current == 0 {
			return 0, "neutral"
		}
		return 100, "up"
	}
	change := float64(current-previous) / float64(previous) * 100
	return change, trendOf(change)
}

// pointChange compares two rates that are already percentages. The
// change is a percentage-point delta, not a ratio of ratios.
func pointChange(current, previous float64) (float64, string) {
	change := current - previous
	return change, trendOf(change)
}

func trendOf(change float64) string {
	switch {
	case change > 0:
		return "up"
	case change < 0:
		return "down"
	default:
		return "neutral"
	}
}

// rate returns part/total as a percentage, zero when total is zero.
func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
