package sim

import (
	"fmt"
	"math/rand"
)

// HospitalView is a read-only copy of the dispatch-relevant hospital fields.
type HospitalView struct {
	ID           string
	Pos          Position
	Needs        []SupplyType // catalog order
	ActiveDrones int
}

// RegistryView is an immutable registry copy published by the orchestrator once
// per tick. It is safe to read from any goroutine.
type RegistryView struct {
	Tick      int64
	Hospitals []HospitalView
}

// Find returns the view of hospital id, or nil.
func (v *RegistryView) Find(id string) *HospitalView {
	if v == nil {
		return nil
	}
	for i := range v.Hospitals {
		if v.Hospitals[i].ID == id {
			return &v.Hospitals[i]
		}
	}
	return nil
}

// DispatchChoice is an origin/destination/supply triple picked by SelectDispatch.
type DispatchChoice struct {
	OriginID      string
	DestinationID string
	Supply        SupplyType
}

// SelectDispatch applies the dispatch policy shared by manual deploy, auto-deploy
// and the request generator:
//   - eligible origins: ActiveDrones < MaxActiveDrones
//   - eligible destinations: hospitals other than the origin with a pending need
//   - supply: uniform over the destination's needs
//
// Each stage picks uniformly at random. Returns false when no origin has spare
// capacity or the chosen origin has no eligible destination.
func SelectDispatch(view *RegistryView, rng *rand.Rand) (DispatchChoice, bool) {
	if view == nil || len(view.Hospitals) < 2 {
		return DispatchChoice{}, false
	}

	var origins []int
	for i, h := range view.Hospitals {
		if h.ActiveDrones < MaxActiveDrones {
			origins = append(origins, i)
		}
	}
	if len(origins) == 0 {
		return DispatchChoice{}, false
	}
	origin := view.Hospitals[origins[rng.Intn(len(origins))]]

	var dests []int
	for i, h := range view.Hospitals {
		if h.ID != origin.ID && len(h.Needs) > 0 {
			dests = append(dests, i)
		}
	}
	if len(dests) == 0 {
		return DispatchChoice{}, false
	}
	dest := view.Hospitals[dests[rng.Intn(len(dests))]]
	supply := dest.Needs[rng.Intn(len(dest.Needs))]

	return DispatchChoice{OriginID: origin.ID, DestinationID: dest.ID, Supply: supply}, true
}

// AdmissionPolicy decides whether a delivery request may become a drone.
// Called by the orchestrator during request ingestion with live registry state.
type AdmissionPolicy interface {
	Admit(req *DeliveryRequest, registry *HospitalRegistry) (admitted bool, reason string)
}

// Rejection reasons reported by CapacityAdmission.
const (
	ReasonUnknownOrigin      = "unknown origin"
	ReasonUnknownDestination = "unknown destination"
	ReasonSameEndpoints      = "origin equals destination"
	ReasonUnknownSupply      = "unknown supply type"
	ReasonOriginAtCapacity   = "origin at capacity"
	ReasonNeedFulfilled      = "need already fulfilled"
)

// CapacityAdmission enforces the per-hospital outbound cap and validates that
// both endpoints still exist and the destination still wants the supply.
type CapacityAdmission struct {
	// RequireNeed rejects requests whose supply is no longer needed at the
	// destination. Ledger-injected requests are admitted regardless.
	RequireNeed bool
}

// Admit implements AdmissionPolicy.
func (a *CapacityAdmission) Admit(req *DeliveryRequest, registry *HospitalRegistry) (bool, string) {
	origin := registry.Get(req.OriginID)
	if origin == nil {
		return false, ReasonUnknownOrigin
	}
	dest := registry.Get(req.DestinationID)
	if dest == nil {
		return false, ReasonUnknownDestination
	}
	if origin.ID == dest.ID {
		return false, ReasonSameEndpoints
	}
	if catalogIndex(req.Supply) < 0 {
		return false, ReasonUnknownSupply
	}
	if origin.ActiveDrones >= MaxActiveDrones {
		return false, ReasonOriginAtCapacity
	}
	if a.RequireNeed && req.Source != SourceLedger {
		if _, ok := dest.Needs[req.Supply]; !ok {
			return false, ReasonNeedFulfilled
		}
	}
	return true, ""
}

// ValidAdmissionPolicies lists the names accepted by NewAdmissionPolicy.
var ValidAdmissionPolicies = map[string]bool{"": true, "need-aware": true, "capacity": true}

// NewAdmissionPolicy creates an admission policy by name.
// Valid names: "need-aware" (default; capacity plus destination need) and
// "capacity" (capacity only). Panics on an unrecognized name.
func NewAdmissionPolicy(name string) AdmissionPolicy {
	if !ValidAdmissionPolicies[name] {
		panic(fmt.Sprintf("unknown admission policy %q", name))
	}
	switch name {
	case "", "need-aware":
		return &CapacityAdmission{RequireNeed: true}
	case "capacity":
		return &CapacityAdmission{}
	default:
		panic(fmt.Sprintf("unhandled admission policy %q", name))
	}
}
