package model

// OutcomeKind tags the terminal result of one payout attempt.
// OutcomeBroken has no gateway wire value; only the engine produces it.
type OutcomeKind string

const (
	OutcomeSucceeded OutcomeKind = "succeeded"
	OutcomeRefused   OutcomeKind = "refused"
	OutcomeBroken    OutcomeKind = "broken"
)

// PaymentOutcome is what a payout attempt ends with. Response is set for
// Succeeded and Refused and always nil for Broken.
type PaymentOutcome struct {
	Kind     OutcomeKind
	Response *TransferResponse

	// diagnostics; RequestID is empty when the submission never produced one
	RequestID string
	Attempts  int
}

func Succeeded(resp TransferResponse, requestID string, attempts int) PaymentOutcome {
	return PaymentOutcome{Kind: OutcomeSucceeded, Response: &resp, RequestID: requestID, Attempts: attempts}
}

func Refused(resp TransferResponse, requestID string, attempts int) PaymentOutcome {
	return PaymentOutcome{Kind: OutcomeRefused, Response: &resp, RequestID: requestID, Attempts: attempts}
}

func Broken(requestID string, attempts int) PaymentOutcome {
	return PaymentOutcome{Kind: OutcomeBroken, RequestID: requestID, Attempts: attempts}
}

func (o PaymentOutcome) IsSucceeded() bool { return o.Kind == OutcomeSucceeded }
