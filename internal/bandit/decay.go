package bandit

import (
	"math"
	"time"

	"github.com/shaiso/Promotor/internal/domain"
)

// DecayFactor возвращает множитель exp(-ln2 · elapsed / halfLife).
// За один half-life счётчик теряет ровно половину веса.
func DecayFactor(elapsed, halfLife time.Duration) float64 {
	if elapsed <= 0 || halfLife <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * elapsed.Minutes() / halfLife.Minutes())
}

// ApplyDecay затухает счётчики строки за время с LastDecayAt и сдвигает
// LastDecayAt в now. Вызывается перед каждым чтением или записью
// затухающих счётчиков, иначе их смысл "вес недавней активности" ломается.
func ApplyDecay(row *domain.VariantStatsRow, now time.Time, halfLife time.Duration) {
	factor := DecayFactor(now.Sub(row.LastDecayAt), halfLife)
	row.DecayedClicks *= factor
	row.DecayedPosts *= factor
	row.LastDecayAt = now
}

// medianCTR возвращает медиану decayed CTR по строкам с ненулевой
// историей. Ноль, если истории нет ни у кого.
func medianCTR(rows []*domain.VariantStatsRow) float64 {
	var ctrs []float64
	for _, r := range rows {
		if r.DecayedPosts > 0 {
			ctrs = append(ctrs, r.DecayedCTR())
		}
	}
	if len(ctrs) == 0 {
		return 0
	}
	for i := 1; i < len(ctrs); i++ {
		for j := i; j > 0 && ctrs[j] < ctrs[j-1]; j-- {
			ctrs[j], ctrs[j-1] = ctrs[j-1], ctrs[j]
		}
	}
	mid := len(ctrs) / 2
	if len(ctrs)%2 == 1 {
		return ctrs[mid]
	}
	return (ctrs[mid-1] + ctrs[mid]) / 2
}
