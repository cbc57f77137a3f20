package reconcile

import "math"

// ComputeStats counts rows by status. Rate is the rounded percentage of
// PRESENT rows and is 0 for an empty input.
func ComputeStats(rows []Row) Stats {
	st := Stats{Total: len(rows)}
	for _, r := range rows {
		if r.Status == Present {
			st.Present++
		}
	}
	st.Absent = st.Total - st.Present
	if st.Total > 0 {
		st.Rate = int(math.Round(float64(st.Present) / float64(st.Total) * 100))
	}
	return st
}
