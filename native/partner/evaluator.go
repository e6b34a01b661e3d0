package partner

import "partnerledger/native/rates"

// Evaluate maps partner statistics onto the level ladder. Levels are scanned
// from the top down and the first level whose thresholds are both met wins.
// When nothing matches the lowest configured level is returned.
func Evaluate(tables *rates.Tables, stats Stats) LevelStatus {
	levels := tables.Levels()
	if len(levels) == 0 {
		return LevelStatus{}
	}
	current := 0
	for i := len(levels) - 1; i >= 0; i-- {
		level := levels[i]
		if stats.ActiveReferrals >= level.MinReferrals && stats.TeamVolume >= level.MinTeamVolume {
			current = i
			break
		}
	}
	status := LevelStatus{Current: levels[current]}
	if current+1 < len(levels) {
		next := levels[current+1]
		status.Progress = progressTowards(levels[current], next, stats)
	}
	return status
}

func progressTowards(cur, next rates.PartnerLevel, stats Stats) *Progress {
	p := &Progress{
		Next:               next,
		RemainingReferrals: maxInt64(0, next.MinReferrals-stats.ActiveReferrals),
		RemainingVolume:    maxInt64(0, next.MinTeamVolume-stats.TeamVolume),
	}
	// Display percentage: the weaker of the two dimensions measured from the
	// current level's thresholds.
	refPct := ratioPercent(stats.ActiveReferrals-cur.MinReferrals, next.MinReferrals-cur.MinReferrals)
	volPct := ratioPercent(stats.TeamVolume-cur.MinTeamVolume, next.MinTeamVolume-cur.MinTeamVolume)
	p.Percent = refPct
	if volPct < p.Percent {
		p.Percent = volPct
	}
	return p
}

func ratioPercent(done, span int64) int {
	if span <= 0 {
		return 100
	}
	if done <= 0 {
		return 0
	}
	if done >= span {
		return 100
	}
	return int(done * 100 / span)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
