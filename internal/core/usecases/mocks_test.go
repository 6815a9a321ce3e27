package usecases_test

import (
	"context"
	"sync"

	"github.com/asierbarrena/oficios/internal/core/domain"
	"github.com/asierbarrena/oficios/internal/core/ports"
)

// --- Mock ZoneRepository ---

type mockZoneRepo struct {
	createFn         func(ctx context.Context, zone *domain.CoverageZone) error
	deleteFn         func(ctx context.Context, id, providerID string) error
	getByIDFn        func(ctx context.Context, id string) (*domain.CoverageZone, error)
	listByProviderFn func(ctx context.Context, providerID string) ([]domain.CoverageZone, error)
}

func (m *mockZoneRepo) Create(ctx context.Context, zone *domain.CoverageZone) error {
	if m.createFn != nil {
		return m.createFn(ctx, zone)
	}
	return nil
}

func (m *mockZoneRepo) Delete(ctx context.Context, id, providerID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id, providerID)
	}
	return nil
}

func (m *mockZoneRepo) GetByID(ctx context.Context, id string) (*domain.CoverageZone, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockZoneRepo) ListByProvider(ctx context.Context, providerID string) ([]domain.CoverageZone, error) {
	if m.listByProviderFn != nil {
		return m.listByProviderFn(ctx, providerID)
	}
	return nil, nil
}

// --- Mock RequestRepository ---

type mockRequestRepo struct {
	createFn               func(ctx context.Context, req *domain.ServiceRequest) error
	getByIDFn              func(ctx context.Context, id string) (*domain.ServiceRequest, error)
	updateFn               func(ctx context.Context, req *domain.ServiceRequest) error
	closeFn                func(ctx context.Context, id string) error
	deleteFn               func(ctx context.Context, id string) error
	listOpenFn             func(ctx context.Context) ([]domain.ServiceRequest, error)
	listOpenByCategoriesFn func(ctx context.Context, categoryIDs []string) ([]domain.ServiceRequest, error)
	listByRequesterFn      func(ctx context.Context, requesterID string) ([]domain.ServiceRequest, error)
}

func (m *mockRequestRepo) Create(ctx context.Context, req *domain.ServiceRequest) error {
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return nil
}

func (m *mockRequestRepo) GetByID(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockRequestRepo) Update(ctx context.Context, req *domain.ServiceRequest) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, req)
	}
	return nil
}

func (m *mockRequestRepo) Close(ctx context.Context, id string) error {
	if m.closeFn != nil {
		return m.closeFn(ctx, id)
	}
	return nil
}

func (m *mockRequestRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockRequestRepo) ListOpen(ctx context.Context) ([]domain.ServiceRequest, error) {
	if m.listOpenFn != nil {
		return m.listOpenFn(ctx)
	}
	return nil, nil
}

func (m *mockRequestRepo) ListOpenByCategories(ctx context.Context, categoryIDs []string) ([]domain.ServiceRequest, error) {
	if m.listOpenByCategoriesFn != nil {
		return m.listOpenByCategoriesFn(ctx, categoryIDs)
	}
	return nil, nil
}

func (m *mockRequestRepo) ListByRequester(ctx context.Context, requesterID string) ([]domain.ServiceRequest, error) {
	if m.listByRequesterFn != nil {
		return m.listByRequesterFn(ctx, requesterID)
	}
	return nil, nil
}

// --- Mock ProviderRepository ---

type mockProviderRepo struct {
	getProfileFn    func(ctx context.Context, providerID string) (*domain.ProviderProfile, error)
	upsertProfileFn func(ctx context.Context, profile *domain.ProviderProfile) error
}

func (m *mockProviderRepo) GetProfile(ctx context.Context, providerID string) (*domain.ProviderProfile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, providerID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockProviderRepo) UpsertProfile(ctx context.Context, profile *domain.ProviderProfile) error {
	if m.upsertProfileFn != nil {
		return m.upsertProfileFn(ctx, profile)
	}
	return nil
}

// --- Recording EventPublisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (r *recordingPublisher) PublishChange(ctx context.Context, event *domain.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *recordingPublisher) all() []domain.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ChangeEvent, len(r.events))
	copy(out, r.events)
	return out
}

// --- In-memory ApplicationRepository + RequestRepository pair ---

// fakeStore backs the application lifecycle tests with real state and the
// same guard semantics as the Postgres adapter: the acceptance cascade is
// atomic under a store-wide lock and fails with ErrConcurrencyConflict once
// a request has a winner.
type fakeStore struct {
	mu       sync.Mutex
	requests map[string]*domain.ServiceRequest
	apps     map[string]*domain.Application
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		requests: make(map[string]*domain.ServiceRequest),
		apps:     make(map[string]*domain.Application),
	}
}

func (f *fakeStore) addRequest(req domain.ServiceRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := req
	f.requests[r.ID] = &r
}

func (f *fakeStore) request(id string) domain.ServiceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.requests[id]
}

func (f *fakeStore) application(id string) domain.Application {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.apps[id]
}

// RequestRepository

func (f *fakeStore) Create(ctx context.Context, req *domain.ServiceRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := *req
	f.requests[r.ID] = &r
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) Update(ctx context.Context, req *domain.ServiceRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.requests[req.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != req.Version {
		return domain.ErrConcurrencyConflict
	}
	for _, a := range f.apps {
		if a.RequestID == req.ID && a.Status == domain.ApplicationAccepted {
			return domain.ErrConcurrencyConflict
		}
	}
	cp := *req
	cp.Version++
	f.requests[cp.ID] = &cp
	req.Version = cp.Version
	return nil
}

func (f *fakeStore) Close(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return domain.ErrNotFound
	}
	if r.Status != domain.RequestOpen {
		return domain.ErrRequestClosed
	}
	r.Status = domain.RequestClosed
	r.Version++
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.requests[id]; !ok {
		return domain.ErrNotFound
	}
	for _, a := range f.apps {
		if a.RequestID == id && a.Status == domain.ApplicationAccepted {
			return domain.ErrConcurrencyConflict
		}
	}
	delete(f.requests, id)
	return nil
}

func (f *fakeStore) ListOpen(ctx context.Context) ([]domain.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ServiceRequest
	for _, r := range f.requests {
		if r.Status == domain.RequestOpen {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListOpenByCategories(ctx context.Context, categoryIDs []string) ([]domain.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ServiceRequest
	for _, r := range f.requests {
		if r.Status != domain.RequestOpen {
			continue
		}
		for _, c := range categoryIDs {
			if r.CategoryID == c {
				out = append(out, *r)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListByRequester(ctx context.Context, requesterID string) ([]domain.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ServiceRequest
	for _, r := range f.requests {
		if r.RequesterID == requesterID {
			out = append(out, *r)
		}
	}
	return out, nil
}

// ApplicationRepository

func (f *fakeStore) CreateApplication(ctx context.Context, app *domain.Application) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.apps {
		if a.RequestID == app.RequestID && a.ProviderID == app.ProviderID {
			return domain.ErrDuplicateApplication
		}
	}
	cp := *app
	f.apps[cp.ID] = &cp
	return nil
}

func (f *fakeStore) GetApplicationByID(ctx context.Context, id string) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.apps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) ListByRequest(ctx context.Context, requestID string) ([]domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Application
	for _, a := range f.apps {
		if a.RequestID == requestID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByProvider(ctx context.Context, providerID string) ([]domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Application
	for _, a := range f.apps {
		if a.ProviderID == providerID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id string, status domain.ApplicationStatus, expectedVersion int64) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.apps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if a.Version != expectedVersion {
		return nil, domain.ErrConcurrencyConflict
	}
	a.Status = status
	a.Version++
	cp := *a
	return &cp, nil
}

func (f *fakeStore) AcceptAndDiscard(ctx context.Context, requestID, applicationID string) (*ports.AcceptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.requests[requestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if req.Status != domain.RequestOpen {
		return nil, domain.ErrConcurrencyConflict
	}
	for _, a := range f.apps {
		if a.RequestID == requestID && a.Status == domain.ApplicationAccepted {
			return nil, domain.ErrConcurrencyConflict
		}
	}

	target, ok := f.apps[applicationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if target.Status != domain.ApplicationPending && target.Status != domain.ApplicationShortlisted {
		return nil, domain.ErrIllegalTransition
	}

	req.Status = domain.RequestClosed
	req.Version++
	target.Status = domain.ApplicationAccepted
	target.Version++

	var discarded []domain.Application
	for _, a := range f.apps {
		if a.RequestID != requestID || a.ID == applicationID {
			continue
		}
		if a.Status == domain.ApplicationPending || a.Status == domain.ApplicationShortlisted {
			a.Status = domain.ApplicationDiscarded
			a.Version++
			discarded = append(discarded, *a)
		}
	}

	accepted := *target
	closedReq := *req
	return &ports.AcceptResult{Accepted: &accepted, Discarded: discarded, Request: &closedReq}, nil
}

func (f *fakeStore) HasAccepted(ctx context.Context, requestID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.apps {
		if a.RequestID == requestID && a.Status == domain.ApplicationAccepted {
			return true, nil
		}
	}
	return false, nil
}

// appRepoView adapts fakeStore to ports.ApplicationRepository: Create and
// GetByID clash with the request-side methods, so the application side goes
// through this thin view.
type appRepoView struct{ *fakeStore }

func (v appRepoView) Create(ctx context.Context, app *domain.Application) error {
	return v.fakeStore.CreateApplication(ctx, app)
}

func (v appRepoView) GetByID(ctx context.Context, id string) (*domain.Application, error) {
	return v.fakeStore.GetApplicationByID(ctx, id)
}
