package model

import "net/http"

// TransferStatus is the gateway-reported status of a request-payment or process-payment call.
type TransferStatus string

const (
	TransferStatusSuccess    TransferStatus = "success"
	TransferStatusRefused    TransferStatus = "refused"
	TransferStatusInProgress TransferStatus = "in_progress"
)

// TransferResponse is what the gateway answered to one call. Produced fresh per call.
type TransferResponse struct {
	// raw transport result
	StatusCode int
	Header     http.Header

	// structured payload
	Status           TransferStatus
	RequestID        string
	PaymentID        string
	Error            string
	ErrorDescription string
	Balance          string
	Fields           map[string]any

	// raw body, for diagnostics only
	Text string
}
