package shuttle

import "net/http"

// Outcome is the terminal result of one flush attempt. Retry timing belongs
// to the caller.
type Outcome int

// Possible outcomes
const (
	Success Outcome = iota
	Retry
	PermanentFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retry:
		return "retry"
	case PermanentFailure:
		return "permanent_failure"
	}
	return "unknown"
}

// OutcomeForStatus maps an HTTP status from the event collector to an
// Outcome. The collector documents 4xx responses as never succeeding on
// resubmission (bad request, bad token, unknown endpoint), so those are
// permanent. Everything else that isn't a 200 is worth retrying.
func OutcomeForStatus(status int) Outcome {
	switch {
	case status == http.StatusOK:
		return Success
	case status >= 400 && status < 500:
		return PermanentFailure
	default:
		return Retry
	}
}
