package rating

import (
	"math"

	"github.com/pkg/errors"

	"llm-arena/server/models"
)

const (
	DefaultK      = 32.0
	DefaultRating = models.DefaultElo
)

// Elo applies pairwise rating updates with a fixed K.
type Elo struct {
	K float64
}

func New() Elo { return Elo{K: DefaultK} }

func (e Elo) k() float64 {
	if e.K <= 0 || math.IsNaN(e.K) {
		return DefaultK
	}
	return e.K
}

// Expect returns the expected scores of a and b.
func Expect(a, b float64) (ea, eb float64) {
	ea = 1.0 / (1.0 + math.Pow(10, (b-a)/400.0))
	return ea, 1.0 - ea
}

// OrDefault maps a missing rating to the starting rating.
func OrDefault(r float64) float64 {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return DefaultRating
	}
	return r
}

// Update returns the new ratings after a decisive game. firstWon is true
// when a beat b. The sum of the two ratings is preserved.
func (e Elo) Update(a, b float64, firstWon bool) (na, nb float64) {
	a, b = OrDefault(a), OrDefault(b)
	ea, eb := Expect(a, b)
	sa, sb := 0.0, 1.0
	if firstWon {
		sa, sb = 1.0, 0.0
	}
	k := e.k()
	return a + k*(sa-ea), b + k*(sb-eb)
}

// Calculate is Update over model records. Records must be distinct and
// carry an identifier.
func (e Elo) Calculate(first, second models.Model, firstWon bool) (float64, float64, error) {
	if first.ModelID == "" || second.ModelID == "" {
		return 0, 0, errors.Wrap(models.ErrInvalidModel, "missing model id")
	}
	if first.ModelID == second.ModelID && first.Owner() == second.Owner() {
		return 0, 0, errors.Wrapf(models.ErrInvalidModel, "%s rated against itself", first.ModelID)
	}
	na, nb := e.Update(first.Elo, second.Elo, firstWon)
	return na, nb, nil
}
