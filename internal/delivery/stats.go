package delivery

// Stats accumulates outcomes for one community run.
//
// Invariants once a recipient is finished: Success+Failed counts finished
// recipients and DMClosed <= Failed. RateLimited counts attempts, not
// recipients.
type Stats struct {
	Total       int `json:"total"`
	Success     int `json:"success"`
	Failed      int `json:"failed"`
	RateLimited int `json:"rate_limited"`
	DMClosed    int `json:"dm_closed"`
}

// Record applies one classified attempt to the counters.
func (s *Stats) Record(o Outcome) {
	switch o {
	case Success:
		s.Success++
	case DMsDisabled:
		s.DMClosed++
		s.Failed++
	case RateLimited:
		s.RateLimited++
	default:
		s.Failed++
	}
}

// Processed is the number of recipients with a terminal result.
func (s Stats) Processed() int { return s.Success + s.Failed }

// RecordExhausted marks a rate-limited recipient whose retry budget is spent
// as a terminal failure.
func (s *Stats) RecordExhausted() { s.Failed++ }
