// Defines DeliveryRequest, the hand-off value between the request generator and
// the orchestrator.

package sim

import "fmt"

// RequestStatus represents the lifecycle state of a delivery request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "Pending"
	StatusActive    RequestStatus = "Active"
	StatusCompleted RequestStatus = "Completed"
)

// RequestSource records where a request came from.
type RequestSource string

const (
	SourceManual    RequestSource = "manual"
	SourceAuto      RequestSource = "auto"
	SourceGenerator RequestSource = "generator"
	SourceLedger    RequestSource = "ledger"
)

// DeliveryRequest is a pending origin/destination/supply triple awaiting admission.
// Ownership moves from the generator to the orchestrator when it is sent on the
// request channel; the generator must not touch it afterwards.
type DeliveryRequest struct {
	ID            string
	OriginID      string
	DestinationID string
	Supply        SupplyType
	Status        RequestStatus
	Source        RequestSource
}

// NewDeliveryRequest creates a Pending request from a dispatch choice.
func NewDeliveryRequest(id string, choice DispatchChoice, source RequestSource) *DeliveryRequest {
	return &DeliveryRequest{
		ID:            id,
		OriginID:      choice.OriginID,
		DestinationID: choice.DestinationID,
		Supply:        choice.Supply,
		Status:        StatusPending,
		Source:        source,
	}
}

func (r DeliveryRequest) String() string {
	return fmt.Sprintf("DeliveryRequest: (ID: %s, %s -> %s, Supply: %s, Status: %s, Source: %s)",
		r.ID, r.OriginID, r.DestinationID, r.Supply, r.Status, r.Source)
}

// RequestOutcomeKind classifies orchestrator feedback to the generator.
type RequestOutcomeKind int

const (
	OutcomeAdmitted RequestOutcomeKind = iota
	OutcomeRejected
	OutcomeCompleted
)

func (k RequestOutcomeKind) String() string {
	switch k {
	case OutcomeAdmitted:
		return "admitted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// RequestOutcome tells the generator what happened to a request it emitted.
type RequestOutcome struct {
	Kind    RequestOutcomeKind
	Request DeliveryRequest
	Tick    int64
	// Reason is the admission policy's explanation for OutcomeRejected.
	Reason string
}
