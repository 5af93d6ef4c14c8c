package order

import "strings"

// FailureMarker is the literal text that makes PredictOutcome report FAILED.
const FailureMarker = "ERROR"

// PredictOutcome guesses how the backend will route an order from the
// customer name the client itself sent. The demo backend diverts orders
// whose customer name contains FailureMarker to its dead-letter queue, so
// the guess matches it by convention only. It is not a processing status
// and must not be presented as one.
func PredictOutcome(customerName string) Outcome {
	if strings.Contains(customerName, FailureMarker) {
		return OutcomeFailed
	}
	return OutcomeQueued
}

// NewCreateRequest builds the fixed single-item payload.
func NewCreateRequest(customerName string) CreateRequest {
	return CreateRequest{
		CustomerName: customerName,
		Items: []Item{{
			ProductID: DemoProductID,
			Quantity:  DemoQuantity,
			Price:     DemoUnitPrice,
		}},
	}
}
