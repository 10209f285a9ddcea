package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"incidentpulse/config"
	"incidentpulse/core/apperr"
	"incidentpulse/core/domain"
	"incidentpulse/core/focus"
	"incidentpulse/core/hub"
	"incidentpulse/core/incidents"
	"incidentpulse/core/presence"
	"incidentpulse/core/rbac"
	"incidentpulse/core/store"
)

// fakeIncidentsStore and fakeUpdatesStore mirror the doubles in
// core/incidents/service_test.go, reimplemented here since they are
// unexported to that package. Unlike those, Mutate here also records
// each Update into the updates fake, as the real store does in one
// transaction, so commands that read the audit log back can find it.
type fakeIncidentsStore struct {
	mu      sync.Mutex
	rows    map[string]domain.Incident
	updates *fakeUpdatesStore
}

func newFakeIncidentsStore(seed domain.Incident, updates *fakeUpdatesStore) *fakeIncidentsStore {
	return &fakeIncidentsStore{rows: map[string]domain.Incident{seed.ID: seed}, updates: updates}
}

func (f *fakeIncidentsStore) Create(ctx context.Context, inc domain.Incident) (domain.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inc.ID == "" {
		inc.ID = uuid.Must(uuid.NewV4()).String()
	}
	inc.Version = 1
	f.rows[inc.ID] = inc
	return inc, nil
}

func (f *fakeIncidentsStore) Get(ctx context.Context, id string) (domain.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.rows[id]
	if !ok {
		return domain.Incident{}, apperr.NotFound("incident.not_found", "incident not found")
	}
	return inc, nil
}

func (f *fakeIncidentsStore) List(ctx context.Context, status domain.Status) ([]domain.Incident, error) {
	return nil, nil
}

func (f *fakeIncidentsStore) Mutate(ctx context.Context, id string, fn store.MutateFunc) (domain.Incident, domain.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.rows[id]
	if !ok {
		return domain.Incident{}, domain.Update{}, apperr.NotFound("incident.not_found", "incident not found")
	}
	next, upd, err := fn(current)
	if err != nil {
		return domain.Incident{}, domain.Update{}, err
	}
	next.Version = current.Version + 1
	if upd.ID == "" {
		upd.ID = uuid.Must(uuid.NewV4()).String()
	}
	upd.IncidentID = id
	upd.CreatedAt = time.Now().UTC()
	f.rows[id] = next
	f.updates.append(upd)
	return next, upd, nil
}

type fakeUpdatesStore struct {
	mu      sync.Mutex
	history []domain.Update
}

func (f *fakeUpdatesStore) append(u domain.Update) {
	f.mu.Lock()
	f.history = append(f.history, u)
	f.mu.Unlock()
}

func (f *fakeUpdatesStore) Timeline(ctx context.Context, incidentID string) ([]domain.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Update
	for _, u := range f.history {
		if u.IncidentID == incidentID {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakePresenceStore struct {
	mu   sync.Mutex
	rows map[[2]string]domain.PresenceEntry
}

func newFakePresenceStore() *fakePresenceStore {
	return &fakePresenceStore{rows: make(map[[2]string]domain.PresenceEntry)}
}

func (f *fakePresenceStore) Upsert(ctx context.Context, e domain.PresenceEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[[2]string{e.PrincipalID, e.IncidentID}] = e
	return nil
}

func (f *fakePresenceStore) Touch(ctx context.Context, principalID, incidentID string) error {
	return nil
}

func (f *fakePresenceStore) Remove(ctx context.Context, principalID, incidentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, [2]string{principalID, incidentID})
	return nil
}

func (f *fakePresenceStore) RemoveBySession(ctx context.Context, sessionID string) ([]domain.PresenceEntry, error) {
	return nil, nil
}

func (f *fakePresenceStore) ListForIncident(ctx context.Context, incidentID string) ([]domain.PresenceEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PresenceEntry
	for _, e := range f.rows {
		if e.IncidentID == incidentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakePresenceStore) SweepExpired(ctx context.Context, olderThan time.Duration) ([]domain.PresenceEntry, error) {
	return nil, nil
}

// newTestSession builds a Session with a nil websocket connection,
// valid for any path that doesn't touch the transport (everything
// dispatched through Handle/dispatch never calls conn directly).
func newTestSession(principal domain.Principal) *Session {
	return &Session{
		id:        uuid.Must(uuid.NewV4()).String(),
		principal: principal,
		send:      make(chan envelope, 8),
		closed:    make(chan struct{}),
	}
}

func newTestDispatcher(seed domain.Incident) (*Dispatcher, *hub.Hub) {
	h := hub.New(nil)
	updStore := &fakeUpdatesStore{}
	incSvc := incidents.NewService(newFakeIncidentsStore(seed, updStore), updStore)
	presenceReg := presence.NewRegistry(newFakePresenceStore(), &config.AppConfig{}, nil, h)
	focusReg := focus.NewRegistry(&config.AppConfig{})
	policy, err := rbac.NewPolicy()
	if err != nil {
		panic(err)
	}
	cfg := &config.AppConfig{}
	d := NewDispatcher(h, incSvc, presenceReg, focusReg, policy, cfg, nil)
	return d, h
}

func TestDispatchUnknownEventIsValidationError(t *testing.T) {
	d, _ := newTestDispatcher(domain.Incident{ID: "inc-1"})
	s := newTestSession(domain.Principal{ID: "u1", Role: domain.RoleResponder})
	err := d.dispatch(context.Background(), s, "nonsense", nil)
	if err == nil || apperr.As(err).Kind != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHandleJoinSubscribesAndDeliversSnapshots(t *testing.T) {
	d, h := newTestDispatcher(domain.Incident{ID: "inc-1"})
	s := newTestSession(domain.Principal{ID: "u1", Role: domain.RoleResponder, DisplayName: "Alice"})

	payload, _ := json.Marshal("inc-1")
	if err := d.dispatch(context.Background(), s, "incident:join", payload); err != nil {
		t.Fatalf("join: %v", err)
	}
	if s.JoinedIncident() != "inc-1" {
		t.Fatalf("expected session to have joined inc-1, got %q", s.JoinedIncident())
	}

	// two deliveries queued: presence:list then focus:list
	if len(s.send) != 2 {
		t.Fatalf("expected 2 queued deliveries, got %d", len(s.send))
	}

	h.Broadcast("inc-1", "probe", "x", "")
	if len(s.send) != 3 {
		t.Fatalf("expected the joined session to receive a room broadcast, got %d queued deliveries", len(s.send))
	}
}

func TestHandleJoinRejectsUnknownIncident(t *testing.T) {
	d, _ := newTestDispatcher(domain.Incident{ID: "inc-1"})
	s := newTestSession(domain.Principal{ID: "u1", Role: domain.RoleResponder})
	payload, _ := json.Marshal("does-not-exist")
	err := d.dispatch(context.Background(), s, "incident:join", payload)
	if err == nil || apperr.As(err).Kind != apperr.KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestHandleUpdateStatusRequiresJoinedRoom(t *testing.T) {
	d, _ := newTestDispatcher(domain.Incident{ID: "inc-1"})
	s := newTestSession(domain.Principal{ID: "u1", Role: domain.RoleResponder})
	payload, _ := json.Marshal(updateStatusRequest{Status: domain.StatusIdentified})
	err := d.dispatch(context.Background(), s, "incident:updateStatus", payload)
	if err == nil || apperr.As(err).Kind != apperr.KindValidation {
		t.Fatalf("expected validation error for unjoined session, got %v", err)
	}
}

func TestHandleUpdateStatusDeniesReadOnlyRole(t *testing.T) {
	d, _ := newTestDispatcher(domain.Incident{ID: "inc-1", Status: domain.StatusInvestigating})
	s := newTestSession(domain.Principal{ID: "u1", Role: domain.RoleViewer})
	s.SetJoinedIncident("inc-1")
	payload, _ := json.Marshal(updateStatusRequest{Status: domain.StatusIdentified})
	err := d.dispatch(context.Background(), s, "incident:updateStatus", payload)
	if err == nil || apperr.As(err).Kind != apperr.KindForbidden {
		t.Fatalf("expected forbidden for viewer role, got %v", err)
	}
}

func TestHandleUpdateStatusBroadcastsOnSuccess(t *testing.T) {
	d, h := newTestDispatcher(domain.Incident{ID: "inc-1", Status: domain.StatusInvestigating})
	actor := newTestSession(domain.Principal{ID: "u1", Role: domain.RoleResponder})
	actor.SetJoinedIncident("inc-1")
	observer := newTestSession(domain.Principal{ID: "u2", Role: domain.RoleViewer})
	h.Subscribe("inc-1", observer)

	payload, _ := json.Marshal(updateStatusRequest{Status: domain.StatusIdentified})
	if err := d.dispatch(context.Background(), actor, "incident:updateStatus", payload); err != nil {
		t.Fatalf("update_status: %v", err)
	}
	select {
	case env := <-observer.send:
		if env.Event != "incident:updated" {
			t.Fatalf("expected incident:updated broadcast, got %q", env.Event)
		}
	default:
		t.Fatal("expected observer to receive the mutation broadcast")
	}
}

func TestHandleAssignFoldsUnassignActionIntoOnePayload(t *testing.T) {
	d, h := newTestDispatcher(domain.Incident{ID: "inc-1", Assignees: []string{"carol"}})
	actor := newTestSession(domain.Principal{ID: "u1", Role: domain.RoleResponder})
	actor.SetJoinedIncident("inc-1")
	observer := newTestSession(domain.Principal{ID: "u2", Role: domain.RoleViewer})
	h.Subscribe("inc-1", observer)

	payload, _ := json.Marshal(assignRequest{TargetUserID: "carol", Action: domain.AssignmentUnassigned})
	if err := d.dispatch(context.Background(), actor, "incident:assign", payload); err != nil {
		t.Fatalf("unassign via incident:assign: %v", err)
	}
	select {
	case env := <-observer.send:
		if env.Event != "incident:assigned" {
			t.Fatalf("expected incident:assigned broadcast, got %q", env.Event)
		}
	default:
		t.Fatal("expected observer to receive the mutation broadcast")
	}
}

func TestHandleToggleActionItemBroadcastsDistinctEvent(t *testing.T) {
	d, h := newTestDispatcher(domain.Incident{ID: "inc-1"})
	actor := newTestSession(domain.Principal{ID: "u1", Role: domain.RoleResponder})
	actor.SetJoinedIncident("inc-1")
	observer := newTestSession(domain.Principal{ID: "u2", Role: domain.RoleViewer})
	h.Subscribe("inc-1", observer)

	addPayload, _ := json.Marshal(actionItemRequest{Text: "page on-call"})
	if err := d.dispatch(context.Background(), actor, "incident:addActionItem", addPayload); err != nil {
		t.Fatalf("addActionItem: %v", err)
	}
	var added envelope
	select {
	case added = <-observer.send:
		if added.Event != "incident:actionItemAdded" {
			t.Fatalf("expected incident:actionItemAdded broadcast, got %q", added.Event)
		}
	default:
		t.Fatal("expected observer to receive the add-action-item broadcast")
	}

	var decoded struct {
		Update domain.Update `json:"update"`
	}
	if err := json.Unmarshal(added.Data, &decoded); err != nil {
		t.Fatalf("decode broadcast payload: %v", err)
	}

	togglePayload, _ := json.Marshal(toggleActionItemRequest{UpdateID: decoded.Update.ID, Completed: true})
	if err := d.dispatch(context.Background(), actor, "incident:toggleActionItem", togglePayload); err != nil {
		t.Fatalf("toggleActionItem: %v", err)
	}
	select {
	case env := <-observer.send:
		if env.Event != "incident:actionItemToggled" {
			t.Fatalf("expected incident:actionItemToggled broadcast, got %q", env.Event)
		}
	default:
		t.Fatal("expected observer to receive the toggle broadcast")
	}
}

func TestHandlePanicConvertsToErrorEvent(t *testing.T) {
	d, _ := newTestDispatcher(domain.Incident{ID: "inc-1"})
	s := newTestSession(domain.Principal{ID: "u1", Role: domain.RoleResponder})
	s.SetJoinedIncident("inc-1")

	// With no policy wired in, handleAssign's permission check
	// dereferences a nil *rbac.Policy and panics; Handle must recover
	// and turn that into an error event instead of crashing the test.
	d.policy = nil
	d.Handle(s, "incident:assign", json.RawMessage(`{"targetUserId":"carol"}`))
	select {
	case env := <-s.send:
		if env.Event != "error" {
			t.Fatalf("expected an error event, got %q", env.Event)
		}
	default:
		t.Fatal("expected an error event to be queued")
	}
}
