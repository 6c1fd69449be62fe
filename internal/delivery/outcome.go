package delivery

// Outcome is the classified result of one delivery attempt.
type Outcome int

const (
	Success Outcome = iota
	DMsDisabled
	RecipientUnavailable
	RateLimited
	OtherFailure
)

// Outcomes lists every Outcome in declaration order.
var Outcomes = []Outcome{Success, DMsDisabled, RecipientUnavailable, RateLimited, OtherFailure}

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case DMsDisabled:
		return "dms_disabled"
	case RecipientUnavailable:
		return "recipient_unavailable"
	case RateLimited:
		return "rate_limited"
	default:
		return "other_failure"
	}
}

// Terminal reports whether the recipient is done after this outcome.
// Only RateLimited may lead to another attempt.
func (o Outcome) Terminal() bool { return o != RateLimited }
