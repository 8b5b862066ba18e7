package domain

// BuildQualityDistribution counts records per confidence tier, in fixed tier
// order. Percentages are of the total record count, rounded to one decimal.
// The routing column comes from Route.
func BuildQualityDistribution(records []ClassifiedRecord) []QualityRow {
	counts := make(map[Confidence]int, len(ConfidenceTiers))
	for _, r := range records {
		counts[r.Confidence]++
	}

	rows := make([]QualityRow, len(ConfidenceTiers))
	for i, tier := range ConfidenceTiers {
		rows[i] = QualityRow{
			Confidence:     tier,
			Count:          counts[tier],
			Percentage:     percentage(counts[tier], len(records)),
			RoutingChannel: Route(tier),
		}
	}
	return rows
}

func percentage(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return roundTo(float64(n)*100/float64(total), 1)
}
