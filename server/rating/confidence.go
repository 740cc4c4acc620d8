package rating

import (
	"math"

	"llm-arena/server/models"
)

// WilsonCI95 bounds a win rate where a tie counts as half a win.
func WilsonCI95(wins, ties, total int) (low, hi float64) {
	if total <= 0 {
		return 0, 1
	}
	z := 1.96
	n := float64(total)
	p := (float64(wins) + 0.5*float64(ties)) / n
	den := 1 + (z*z)/n
	center := p + (z*z)/(2*n)
	half := z * math.Sqrt((p*(1-p))/n+(z*z)/(4*n*n))
	return math.Max(0, (center-half)/den), math.Min(1, (center+half)/den)
}

// Row decorates a model record for leaderboard output. Invalid votes are
// excluded from the win rate.
func Row(m models.Model) models.LeaderboardRow {
	rated := m.Wins + m.Losses + m.Draws
	row := models.LeaderboardRow{
		ModelID: m.ModelID,
		Name:    m.Name,
		Wins:    m.Wins,
		Losses:  m.Losses,
		Draws:   m.Draws,
		Invalid: m.Invalid,
		Elo:     OrDefault(m.Elo),
	}
	if rated > 0 {
		row.WinRate = (float64(m.Wins) + 0.5*float64(m.Draws)) / float64(rated)
	}
	row.WinRateLow, row.WinRateHigh = WilsonCI95(m.Wins, m.Draws, rated)
	return row
}

func Rows(ms []models.Model) []models.LeaderboardRow {
	out := make([]models.LeaderboardRow, 0, len(ms))
	for _, m := range ms {
		out = append(out, Row(m))
	}
	return out
}
