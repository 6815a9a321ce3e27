package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/asierbarrena/oficios/internal/core/domain"
	"github.com/asierbarrena/oficios/internal/core/ports"
)

// ViewerRole says which side of the marketplace a feed subscriber is on.
type ViewerRole string

const (
	RoleProvider  ViewerRole = "provider"
	RoleRequester ViewerRole = "requester"
)

// subscriptionBuffer is the per-viewer delta channel depth. A viewer that
// falls this far behind is resynced instead of blocking the feed.
const subscriptionBuffer = 64

// Subscription is a live feed of deltas for one viewer. Receive from C;
// Close when done.
type Subscription struct {
	ViewerID string
	Role     ViewerRole
	C        chan domain.Delta

	projector *FeedProjector
}

// Close detaches the subscription from the projector.
func (s *Subscription) Close() {
	s.projector.unsubscribe(s)
}

// viewerState is what the projector holds per subscriber: the versions of
// the entities the viewer currently sees. Deltas are derived by comparing
// an incoming event against this state, which is what makes delivery
// idempotent and order-tolerant.
type viewerState struct {
	sub *Subscription

	// requests maps request id -> last seen version, for requests the
	// viewer currently holds.
	requests map[string]int64
	// applications maps application id -> last seen version.
	applications map[string]int64
}

// FeedProjector consumes the entity-change feed and re-derives each
// subscribed viewer's visible state, emitting added/updated/removed
// deltas. Application details only ever reach the request owner and the
// applying provider.
type FeedProjector struct {
	requests  ports.RequestRepository
	apps      ports.ApplicationRepository
	zones     ports.ZoneRepository
	providers ports.ProviderRepository
	deltas    ports.DeltaPublisher // optional fan-out to the WS bus

	mu      sync.RWMutex
	viewers map[string]*viewerState
}

// NewFeedProjector creates a new FeedProjector. deltas may be nil when no
// external fan-out is wanted (tests, embedded use).
func NewFeedProjector(
	requests ports.RequestRepository,
	apps ports.ApplicationRepository,
	zones ports.ZoneRepository,
	providers ports.ProviderRepository,
	deltas ports.DeltaPublisher,
) *FeedProjector {
	return &FeedProjector{
		requests:  requests,
		apps:      apps,
		zones:     zones,
		providers: providers,
		deltas:    deltas,
		viewers:   make(map[string]*viewerState),
	}
}

// Subscribe attaches a viewer and returns its delta feed. A provider
// subscription starts empty; call Resync to seed it with the current
// visible set.
func (p *FeedProjector) Subscribe(viewerID string, role ViewerRole) *Subscription {
	sub := &Subscription{
		ViewerID:  viewerID,
		Role:      role,
		C:         make(chan domain.Delta, subscriptionBuffer),
		projector: p,
	}

	p.mu.Lock()
	p.viewers[key(viewerID, role)] = &viewerState{
		sub:          sub,
		requests:     make(map[string]int64),
		applications: make(map[string]int64),
	}
	p.mu.Unlock()

	return sub
}

func (p *FeedProjector) unsubscribe(sub *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := key(sub.ViewerID, sub.Role)
	if st, ok := p.viewers[k]; ok && st.sub == sub {
		delete(p.viewers, k)
		close(sub.C)
	}
}

func key(viewerID string, role ViewerRole) string {
	return string(role) + ":" + viewerID
}

// HandleEvent processes one change-feed event and emits the resulting
// deltas to every affected viewer. Duplicate events are no-ops; an event
// whose version jumps past the held one surfaces ErrFeedGap for that
// viewer and triggers a resync.
func (p *FeedProjector) HandleEvent(ctx context.Context, event *domain.ChangeEvent) error {
	switch event.Entity {
	case domain.EntityRequest:
		return p.handleRequest(ctx, event)
	case domain.EntityApplication:
		return p.handleApplication(ctx, event)
	case domain.EntityZone:
		return p.handleZone(ctx, event)
	default:
		return fmt.Errorf("unknown entity type %q", event.Entity)
	}
}

func (p *FeedProjector) handleRequest(ctx context.Context, event *domain.ChangeEvent) error {
	if event.Op == domain.OpDelete {
		p.removeEverywhere(ctx, domain.EntityRequest, event.EntityID, event.Version)
		return nil
	}
	if event.Request == nil {
		return fmt.Errorf("request event %s has no payload", event.EntityID)
	}
	req := *event.Request

	for _, st := range p.snapshot() {
		switch st.sub.Role {
		case RoleRequester:
			if req.RequesterID != st.sub.ViewerID {
				continue
			}
			p.applyRequestDelta(ctx, st, req, true)
		case RoleProvider:
			visible, err := p.visibleToProvider(ctx, st.sub.ViewerID, req)
			if err != nil {
				slog.Warn("visibility check failed", "provider", st.sub.ViewerID, "request", req.ID, "error", err)
				continue
			}
			p.applyRequestDelta(ctx, st, req, visible)
		}
	}
	return nil
}

// visibleToProvider decides whether the provider keeps seeing the request.
// A closed request stays visible to the provider whose application was
// accepted; everyone else loses it.
func (p *FeedProjector) visibleToProvider(ctx context.Context, providerID string, req domain.ServiceRequest) (bool, error) {
	if req.Status != domain.RequestOpen {
		apps, err := p.apps.ListByRequest(ctx, req.ID)
		if err != nil {
			return false, err
		}
		for _, a := range apps {
			if a.ProviderID == providerID && a.Status == domain.ApplicationAccepted {
				return true, nil
			}
		}
		return false, nil
	}

	profile, err := p.providers.GetProfile(ctx, providerID)
	if err != nil {
		return false, err
	}
	zones, err := p.zones.ListByProvider(ctx, providerID)
	if err != nil {
		return false, err
	}
	return AppliesTo(zones, req, *profile), nil
}

// applyRequestDelta reconciles one request against one viewer's held state.
func (p *FeedProjector) applyRequestDelta(ctx context.Context, st *viewerState, req domain.ServiceRequest, visible bool) {
	p.mu.Lock()
	held, holds := st.requests[req.ID]
	if holds && req.Version <= held {
		p.mu.Unlock()
		return // duplicate or stale, already applied
	}
	gap := holds && req.Version > held+1

	var kind domain.DeltaKind
	switch {
	case visible && !holds:
		st.requests[req.ID] = req.Version
		kind = domain.DeltaAdded
	case visible && holds:
		st.requests[req.ID] = req.Version
		kind = domain.DeltaUpdated
	case !visible && holds:
		delete(st.requests, req.ID)
		kind = domain.DeltaRemoved
	default:
		p.mu.Unlock()
		return // never visible, nothing to say
	}
	p.mu.Unlock()

	// The derived delta is always delivered: the payload is authoritative,
	// and the held version was already advanced, so a later Resync would
	// consider this entry current and skip it.
	p.emit(ctx, st, domain.Delta{
		Kind:     kind,
		Entity:   domain.EntityRequest,
		EntityID: req.ID,
		Version:  req.Version,
		Request:  &req,
	})

	if gap {
		// Versions skipped: an event went missing. The viewer may hold
		// other stale entries, so re-project the rest from the store.
		slog.Warn("feed gap detected", "viewer", st.sub.ViewerID, "request", req.ID,
			"held", held, "got", req.Version, "error", domain.ErrFeedGap)
		if err := p.Resync(ctx, st.sub.ViewerID, st.sub.Role); err != nil {
			slog.Error("resync failed", "viewer", st.sub.ViewerID, "error", err)
		}
	}
}

func (p *FeedProjector) handleApplication(ctx context.Context, event *domain.ChangeEvent) error {
	if event.Op == domain.OpDelete {
		p.removeEverywhere(ctx, domain.EntityApplication, event.EntityID, event.Version)
		return nil
	}
	if event.Application == nil {
		return fmt.Errorf("application event %s has no payload", event.EntityID)
	}
	app := *event.Application

	req, err := p.requests.GetByID(ctx, app.RequestID)
	if err != nil {
		return fmt.Errorf("get request %s: %w", app.RequestID, err)
	}

	// Privacy boundary: only the request owner and the applying provider
	// ever see application details.
	for _, st := range p.snapshot() {
		interested := (st.sub.Role == RoleRequester && st.sub.ViewerID == req.RequesterID) ||
			(st.sub.Role == RoleProvider && st.sub.ViewerID == app.ProviderID)
		if !interested {
			continue
		}
		p.applyApplicationDelta(ctx, st, app)
	}
	return nil
}

func (p *FeedProjector) applyApplicationDelta(ctx context.Context, st *viewerState, app domain.Application) {
	p.mu.Lock()
	held, holds := st.applications[app.ID]
	if holds && app.Version <= held {
		p.mu.Unlock()
		return
	}
	gap := holds && app.Version > held+1
	st.applications[app.ID] = app.Version
	p.mu.Unlock()

	kind := domain.DeltaUpdated
	if !holds {
		kind = domain.DeltaAdded
	}
	p.emit(ctx, st, domain.Delta{
		Kind:        kind,
		Entity:      domain.EntityApplication,
		EntityID:    app.ID,
		Version:     app.Version,
		Application: &app,
	})

	if gap {
		// Intermediate application states were missed. The emitted payload
		// already carries the final state, but the skipped events may have
		// shifted request visibility (an acceptance elsewhere), so
		// re-project the viewer's request set.
		slog.Warn("feed gap detected", "viewer", st.sub.ViewerID, "application", app.ID,
			"held", held, "got", app.Version, "error", domain.ErrFeedGap)
		if err := p.Resync(ctx, st.sub.ViewerID, st.sub.Role); err != nil {
			slog.Error("resync failed", "viewer", st.sub.ViewerID, "error", err)
		}
	}
}

// handleZone only invalidates: a zone change shifts the provider's whole
// visible set, so re-project that provider from the store.
func (p *FeedProjector) handleZone(ctx context.Context, event *domain.ChangeEvent) error {
	var providerID string
	if event.Zone != nil {
		providerID = event.Zone.ProviderID
	}
	if providerID == "" {
		return nil
	}
	p.mu.RLock()
	_, subscribed := p.viewers[key(providerID, RoleProvider)]
	p.mu.RUnlock()
	if !subscribed {
		return nil
	}
	return p.Resync(ctx, providerID, RoleProvider)
}

// removeEverywhere emits a removed delta to every viewer holding the entity.
func (p *FeedProjector) removeEverywhere(ctx context.Context, entity domain.EntityType, id string, version int64) {
	for _, st := range p.snapshot() {
		p.mu.Lock()
		var holds bool
		switch entity {
		case domain.EntityRequest:
			_, holds = st.requests[id]
			delete(st.requests, id)
		case domain.EntityApplication:
			_, holds = st.applications[id]
			delete(st.applications, id)
		}
		p.mu.Unlock()
		if !holds {
			continue
		}
		p.emit(ctx, st, domain.Delta{
			Kind:     domain.DeltaRemoved,
			Entity:   entity,
			EntityID: id,
			Version:  version,
		})
	}
}

// Resync rebuilds a viewer's projection from the store, emitting removed
// for entries that vanished and added for new ones. This is the recovery
// path for feed delivery gaps and for seeding a fresh subscription.
func (p *FeedProjector) Resync(ctx context.Context, viewerID string, role ViewerRole) error {
	p.mu.RLock()
	st, ok := p.viewers[key(viewerID, role)]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("viewer %s/%s: %w", role, viewerID, domain.ErrNotFound)
	}

	var current []domain.ServiceRequest
	var err error
	switch role {
	case RoleProvider:
		current, err = p.currentProviderSet(ctx, viewerID)
	case RoleRequester:
		current, err = p.requests.ListByRequester(ctx, viewerID)
	}
	if err != nil {
		return fmt.Errorf("re-project %s: %w", viewerID, err)
	}

	fresh := make(map[string]domain.ServiceRequest, len(current))
	for _, r := range current {
		fresh[r.ID] = r
	}

	p.mu.Lock()
	var removed []string
	for id := range st.requests {
		if _, still := fresh[id]; !still {
			removed = append(removed, id)
			delete(st.requests, id)
		}
	}
	var added []domain.ServiceRequest
	for id, r := range fresh {
		if held, holds := st.requests[id]; !holds || r.Version > held {
			st.requests[id] = r.Version
			added = append(added, r)
		}
	}
	p.mu.Unlock()

	for _, id := range removed {
		p.emit(ctx, st, domain.Delta{Kind: domain.DeltaRemoved, Entity: domain.EntityRequest, EntityID: id})
	}
	for i := range added {
		r := added[i]
		p.emit(ctx, st, domain.Delta{
			Kind: domain.DeltaAdded, Entity: domain.EntityRequest,
			EntityID: r.ID, Version: r.Version, Request: &r,
		})
	}
	return nil
}

func (p *FeedProjector) currentProviderSet(ctx context.Context, providerID string) ([]domain.ServiceRequest, error) {
	profile, err := p.providers.GetProfile(ctx, providerID)
	if err != nil {
		return nil, err
	}
	zones, err := p.zones.ListByProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	open, err := p.requests.ListOpenByCategories(ctx, profile.CategoryIDs)
	if err != nil {
		return nil, err
	}
	return FilterVisible(zones, open, *profile), nil
}

// emit delivers a delta to the viewer's channel and, when configured, to
// the external delta bus. A full channel drops the in-process delta rather
// than blocking the feed; the delta bus still carries it, and a reconnect
// through the feed control subject re-seeds the viewer via Resync.
func (p *FeedProjector) emit(ctx context.Context, st *viewerState, delta domain.Delta) {
	select {
	case st.sub.C <- delta:
	default:
		slog.Warn("viewer channel full, delta dropped", "viewer", st.sub.ViewerID, "entity", delta.EntityID)
	}

	if p.deltas != nil {
		if err := p.deltas.PublishDelta(ctx, st.sub.ViewerID, &delta); err != nil {
			slog.Warn("delta publish failed", "viewer", st.sub.ViewerID, "error", err)
		}
	}
}

func (p *FeedProjector) snapshot() []*viewerState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*viewerState, 0, len(p.viewers))
	for _, st := range p.viewers {
		out = append(out, st)
	}
	return out
}
