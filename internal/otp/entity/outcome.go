package entity

// Reason explains a failed verification.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonNotFound
	ReasonExpired
	ReasonMismatch
)

func (r Reason) String() string {
	switch r {
	case ReasonNotFound:
		return "not_found"
	case ReasonExpired:
		return "expired"
	case ReasonMismatch:
		return "mismatch"
	default:
		return ""
	}
}

// Outcome is the result of a verification. Failures are values, not errors.
type Outcome struct {
	Verified bool
	Reason   Reason
}

// Verified is the successful outcome.
func Verified() Outcome {
	return Outcome{Verified: true}
}

// Failed builds a failed outcome with reason.
func Failed(reason Reason) Outcome {
	return Outcome{Reason: reason}
}

// String is "verified" or the failure reason.
func (o Outcome) String() string {
	if o.Verified {
		return "verified"
	}
	return o.Reason.String()
}
