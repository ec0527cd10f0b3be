package plan

import (
	"gopkg.in/dnaeon/go-priorityqueue.v1"

	"github.com/cwbudde/arotnep/internal/grid"
)

// roundToBudget turns indicator scores into a realization: per class, the
// highest scores above threshold switch on, at most Γ of them.
func roundToBudget(u *grid.Uncertainty, year int, scores []float64, threshold float64) grid.Realization {
	r := u.Forecast(year)
	for _, c := range grid.Classes {
		budget := u.Budget(c)
		if budget == 0 {
			continue
		}
		pq := priorityqueue.New[int, float64](priorityqueue.MaxHeap)
		for _, q := range u.Members(c) {
			if q < len(scores) && scores[q] > threshold {
				pq.Put(q, scores[q])
			}
		}
		for n := 0; n < budget && pq.Len() > 0; n++ {
			item := pq.Get()
			r.At[item.Value] = true
		}
	}
	return r
}
