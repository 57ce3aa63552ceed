// Implements RequestGenerator, the wall-clock driven producer of delivery
// requests. It runs on its own goroutine and talks to the orchestrator only
// through the request channel, the outcome mailbox and the published
// RegistryView; it never touches hospitals, drones or obstacles.

package sim

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dronesim/dronesim/sim/ledger"
)

// RequestGenerator emits DeliveryRequests from two sources: random dispatch
// choices over the latest registry view, and Active ledger rows that are not
// yet represented by a pending request, a live drone or a finished delivery.
type RequestGenerator struct {
	cfg      GeneratorConfig
	rng      *rand.Rand // owned by the generator goroutine while it runs
	view     *atomic.Pointer[RegistryView]
	out      chan<- *DeliveryRequest
	outcomes *Mailbox[RequestOutcome]
	store    ledger.Store // nil disables the ledger
	now      func() time.Time

	pending   map[string]struct{} // sent, awaiting an admission outcome
	inflight  map[string]struct{} // admitted, drone alive
	completed map[string]struct{}
	retired   map[string]struct{} // rejected for a reason retrying cannot fix

	emitted int
}

// NewRequestGenerator creates a generator. store may be nil.
func NewRequestGenerator(cfg GeneratorConfig, rng *rand.Rand, view *atomic.Pointer[RegistryView],
	out chan<- *DeliveryRequest, outcomes *Mailbox[RequestOutcome], store ledger.Store) *RequestGenerator {
	return &RequestGenerator{
		cfg:       cfg,
		rng:       rng,
		view:      view,
		out:       out,
		outcomes:  outcomes,
		store:     store,
		now:       time.Now,
		pending:   make(map[string]struct{}),
		inflight:  make(map[string]struct{}),
		completed: make(map[string]struct{}),
		retired:   make(map[string]struct{}),
	}
}

// Emitted returns the number of requests sent to the orchestrator.
func (g *RequestGenerator) Emitted() int {
	return g.emitted
}

// Run loops until ctx is cancelled: wait a random delay, then run one cycle.
// Outcomes still queued at exit are applied so Completed rows are not lost.
func (g *RequestGenerator) Run(ctx context.Context) {
	logrus.Debugf("request generator started (delay %v..%v)", g.cfg.MinDelay, g.cfg.MaxDelay)
	defer func() {
		g.handleOutcomes()
		logrus.Debugf("request generator stopped after %d requests", g.emitted)
	}()
	for {
		timer := time.NewTimer(g.nextDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if !g.cycle(ctx) {
			return
		}
	}
}

// nextDelay draws uniformly from [MinDelay, MaxDelay].
func (g *RequestGenerator) nextDelay() time.Duration {
	span := int64(g.cfg.MaxDelay - g.cfg.MinDelay)
	if span <= 0 {
		return g.cfg.MinDelay
	}
	return g.cfg.MinDelay + time.Duration(g.rng.Int63n(span+1))
}

// cycle runs one generator pass. Returns false once ctx is cancelled.
func (g *RequestGenerator) cycle(ctx context.Context) bool {
	g.handleOutcomes()
	if !g.ingestLedger(ctx) {
		return false
	}
	return g.generate(ctx)
}

// generate emits one request chosen by the dispatch policy, when possible.
func (g *RequestGenerator) generate(ctx context.Context) bool {
	view := g.view.Load()
	if view == nil || len(view.Hospitals) < 2 {
		return true
	}
	choice, ok := SelectDispatch(view, g.rng)
	if !ok {
		return true
	}
	id, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		logrus.Warnf("request generator: %v", err)
		return true
	}
	req := NewDeliveryRequest(id.String(), choice, SourceGenerator)
	if g.store != nil {
		rec := ledger.Record{
			ID:          req.ID,
			Timestamp:   g.now(),
			Type:        string(req.Supply),
			Origin:      req.OriginID,
			Destination: req.DestinationID,
			Status:      ledger.StatusActive,
		}
		if err := g.store.Append(rec); err != nil {
			logrus.Warnf("request generator: ledger append failed, dropping %s: %v", req.ID, err)
			return true
		}
	}
	return g.send(ctx, req)
}

// ingestLedger re-reads the ledger and emits every Active record that is not
// already accounted for.
func (g *RequestGenerator) ingestLedger(ctx context.Context) bool {
	if g.store == nil {
		return true
	}
	records, problems, err := g.store.Load()
	if err != nil {
		logrus.Warnf("request generator: reading ledger: %v", err)
		return true
	}
	for _, p := range problems {
		logrus.Warnf("request generator: skipping %v", p)
	}
	for _, rec := range ledger.Fold(records) {
		if rec.Status != ledger.StatusActive || g.known(rec.ID) {
			continue
		}
		if !IsValidSupplyType(rec.Type) {
			logrus.Warnf("request generator: ledger record %s has unknown type %q", rec.ID, rec.Type)
			g.retired[rec.ID] = struct{}{}
			continue
		}
		req := &DeliveryRequest{
			ID:            rec.ID,
			OriginID:      rec.Origin,
			DestinationID: rec.Destination,
			Supply:        SupplyType(rec.Type),
			Status:        StatusPending,
			Source:        SourceLedger,
		}
		if !g.send(ctx, req) {
			return false
		}
	}
	return true
}

func (g *RequestGenerator) known(id string) bool {
	for _, set := range []map[string]struct{}{g.pending, g.inflight, g.completed, g.retired} {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// send hands req to the orchestrator, blocking until there is room or ctx ends.
func (g *RequestGenerator) send(ctx context.Context, req *DeliveryRequest) bool {
	g.pending[req.ID] = struct{}{}
	select {
	case g.out <- req:
		g.emitted++
		logrus.Debugf("request generator: emitted %v", req)
		return true
	case <-ctx.Done():
		delete(g.pending, req.ID)
		return false
	}
}

// handleOutcomes applies orchestrator feedback. A request rejected only for
// capacity stays eligible and is re-emitted from the ledger on a later cycle.
func (g *RequestGenerator) handleOutcomes() {
	for _, o := range g.outcomes.Drain() {
		id := o.Request.ID
		switch o.Kind {
		case OutcomeAdmitted:
			delete(g.pending, id)
			g.inflight[id] = struct{}{}
		case OutcomeRejected:
			delete(g.pending, id)
			if o.Reason != ReasonOriginAtCapacity {
				g.retired[id] = struct{}{}
			}
		case OutcomeCompleted:
			delete(g.pending, id)
			delete(g.inflight, id)
			g.completed[id] = struct{}{}
			g.appendCompleted(o.Request)
		}
	}
}

func (g *RequestGenerator) appendCompleted(req DeliveryRequest) {
	if g.store == nil {
		return
	}
	rec := ledger.Record{
		ID:          req.ID,
		Timestamp:   g.now(),
		Type:        string(req.Supply),
		Origin:      req.OriginID,
		Destination: req.DestinationID,
		Status:      ledger.StatusCompleted,
	}
	if err := g.store.Append(rec); err != nil {
		logrus.Warnf("request generator: ledger append failed for completed %s: %v", req.ID, err)
	}
}
