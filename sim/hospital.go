package sim

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/sirupsen/logrus"
)

// MaxActiveDrones is the per-hospital cap on concurrently outbound drones.
const MaxActiveDrones = 3

// SupplyType names one entry of the supply catalog.
type SupplyType string

const (
	SupplyMedical   SupplyType = "Medical"
	SupplyBlood     SupplyType = "Blood"
	SupplyEquipment SupplyType = "Equipment"
	SupplySupplies  SupplyType = "Supplies"
)

// SupplySpec holds the catalog rates of a supply type.
type SupplySpec struct {
	Type        SupplyType
	Production  int
	Consumption int
}

// Catalog is the fixed 4-type supply catalog, in canonical order.
// Hospitals store production rates; consumption is informational.
var Catalog = []SupplySpec{
	{Type: SupplyMedical, Production: 10, Consumption: 5},
	{Type: SupplyBlood, Production: 8, Consumption: 4},
	{Type: SupplyEquipment, Production: 5, Consumption: 3},
	{Type: SupplySupplies, Production: 7, Consumption: 4},
}

// IsValidSupplyType reports whether s names a catalog entry.
func IsValidSupplyType(s string) bool {
	return catalogIndex(SupplyType(s)) >= 0
}

func catalogIndex(t SupplyType) int {
	return slices.IndexFunc(Catalog, func(s SupplySpec) bool { return s.Type == t })
}

// Hospital is a supply-producing and supply-consuming facility.
type Hospital struct {
	ID  string
	Pos Position
	// Specialties maps supply type → production rate.
	Specialties map[SupplyType]int
	// Needs is the set of unfulfilled supply types (presence-only).
	Needs        map[SupplyType]struct{}
	ActiveDrones int
}

// HasNeeds reports whether the hospital has at least one pending need.
func (h *Hospital) HasNeeds() bool {
	return len(h.Needs) > 0
}

// SortedNeeds returns the pending needs in catalog order.
func (h *Hospital) SortedNeeds() []SupplyType {
	return sortedSupplies(h.Needs)
}

// SortedSpecialties returns the specialties in catalog order.
func (h *Hospital) SortedSpecialties() []SupplyType {
	out := make([]SupplyType, 0, len(h.Specialties))
	for _, spec := range Catalog {
		if _, ok := h.Specialties[spec.Type]; ok {
			out = append(out, spec.Type)
		}
	}
	return out
}

func sortedSupplies(set map[SupplyType]struct{}) []SupplyType {
	out := make([]SupplyType, 0, len(set))
	for _, spec := range Catalog {
		if _, ok := set[spec.Type]; ok {
			out = append(out, spec.Type)
		}
	}
	return out
}

// HospitalRegistry owns hospital placement, need bookkeeping and churn.
// Hospitals are kept in placement order so random draws over them are reproducible.
type HospitalRegistry struct {
	grid      *Grid
	placeRNG  *rand.Rand
	churnRNG  *rand.Rand
	churnProb float64
	hospitals []*Hospital
	byID      map[string]*Hospital
	byPos     map[Position]*Hospital
	nextID    int
}

// NewHospitalRegistry creates an empty registry. placeRNG drives specialty/need
// draws at placement; churnRNG drives need churn.
func NewHospitalRegistry(grid *Grid, placeRNG, churnRNG *rand.Rand, churnProb float64) *HospitalRegistry {
	return &HospitalRegistry{
		grid:      grid,
		placeRNG:  placeRNG,
		churnRNG:  churnRNG,
		churnProb: churnProb,
		byID:      make(map[string]*Hospital),
		byPos:     make(map[Position]*Hospital),
		nextID:    1,
	}
}

// Len returns the number of hospitals.
func (r *HospitalRegistry) Len() int {
	return len(r.hospitals)
}

// All returns hospitals in placement order. Callers must not mutate the slice.
func (r *HospitalRegistry) All() []*Hospital {
	return r.hospitals
}

// Get returns the hospital with the given id, or nil.
func (r *HospitalRegistry) Get(id string) *Hospital {
	return r.byID[id]
}

// At returns the hospital occupying p, or nil.
func (r *HospitalRegistry) At(p Position) *Hospital {
	return r.byPos[p]
}

// Place creates a hospital at pos and marks the grid cell. The caller checks that
// the cell is in bounds and empty.
func (r *HospitalRegistry) Place(pos Position) *Hospital {
	types := make([]SupplyType, len(Catalog))
	for i, spec := range Catalog {
		types[i] = spec.Type
	}
	r.placeRNG.Shuffle(len(types), func(i, j int) { types[i], types[j] = types[j], types[i] })

	specialties := make(map[SupplyType]int, 2)
	for _, t := range types[:2] {
		specialties[t] = Catalog[catalogIndex(t)].Production
	}
	remaining := slices.Clone(types[2:])
	r.placeRNG.Shuffle(len(remaining), func(i, j int) { remaining[i], remaining[j] = remaining[j], remaining[i] })
	needs := make(map[SupplyType]struct{}, 2)
	for _, t := range remaining[:min(2, len(remaining))] {
		needs[t] = struct{}{}
	}

	h := &Hospital{
		ID:          fmt.Sprintf("H%d", r.nextID),
		Pos:         pos,
		Specialties: specialties,
		Needs:       needs,
	}
	r.nextID++
	r.hospitals = append(r.hospitals, h)
	r.byID[h.ID] = h
	r.byPos[pos] = h
	r.grid.SetKind(pos, CellHospital)
	logrus.Debugf("hospital %s placed at %v specialties=%v needs=%v", h.ID, pos, h.SortedSpecialties(), h.SortedNeeds())
	return h
}

// Churn gives each hospital a churnProb chance of gaining one new pending need,
// drawn uniformly from catalog types it does not already need. Returns the ids
// of hospitals whose needs now cover the full catalog.
func (r *HospitalRegistry) Churn() (saturated []string) {
	for _, h := range r.hospitals {
		if r.churnRNG.Float64() >= r.churnProb {
			continue
		}
		var candidates []SupplyType
		for _, spec := range Catalog {
			if _, needed := h.Needs[spec.Type]; !needed {
				candidates = append(candidates, spec.Type)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		added := candidates[r.churnRNG.Intn(len(candidates))]
		h.Needs[added] = struct{}{}
		logrus.Debugf("hospital %s now needs %s", h.ID, added)
		if len(h.Needs) == len(Catalog) {
			saturated = append(saturated, h.ID)
		}
	}
	return saturated
}

// Fulfill removes supply from the needs of hospital id. Missing hospitals or
// needs are a no-op. Reports whether a need was removed.
func (r *HospitalRegistry) Fulfill(id string, supply SupplyType) bool {
	h := r.byID[id]
	if h == nil {
		return false
	}
	if _, ok := h.Needs[supply]; !ok {
		return false
	}
	delete(h.Needs, supply)
	return true
}

// ResetDrones zeroes every hospital's active drone count.
func (r *HospitalRegistry) ResetDrones() {
	for _, h := range r.hospitals {
		h.ActiveDrones = 0
	}
}

// Clear removes every hospital. Grid cells are left to the caller.
func (r *HospitalRegistry) Clear() {
	r.hospitals = nil
	clear(r.byID)
	clear(r.byPos)
	r.nextID = 1
}

// View returns an immutable copy of the registry for readers outside the
// orchestrator goroutine.
func (r *HospitalRegistry) View() *RegistryView {
	v := &RegistryView{Hospitals: make([]HospitalView, len(r.hospitals))}
	for i, h := range r.hospitals {
		v.Hospitals[i] = HospitalView{
			ID:           h.ID,
			Pos:          h.Pos,
			Needs:        h.SortedNeeds(),
			ActiveDrones: h.ActiveDrones,
		}
	}
	return v
}
