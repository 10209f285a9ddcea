package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"incidentpulse/config"
	"incidentpulse/core/apperr"
	"incidentpulse/core/domain"
	"incidentpulse/core/focus"
	"incidentpulse/core/hub"
	"incidentpulse/core/incidents"
	"incidentpulse/core/logging"
	"incidentpulse/core/presence"
	"incidentpulse/core/rbac"
)

// Dispatcher wires every inbound command to its service call and the
// resulting broadcast, per spec §4.8. One Dispatcher is shared by all
// sessions; per-session ordering comes from ReadPump calling Handle
// synchronously for each frame before reading the next.
type Dispatcher struct {
	hub       *hub.Hub
	incidents *incidents.Service
	presence  *presence.Registry
	focus     *focus.Registry
	policy    *rbac.Policy
	cfg       *config.AppConfig
	logger    *logging.Logger
}

func NewDispatcher(
	h *hub.Hub,
	incidentSvc *incidents.Service,
	presenceReg *presence.Registry,
	focusReg *focus.Registry,
	policy *rbac.Policy,
	cfg *config.AppConfig,
	logger *logging.Logger,
) *Dispatcher {
	return &Dispatcher{
		hub:       h,
		incidents: incidentSvc,
		presence:  presenceReg,
		focus:     focusReg,
		policy:    policy,
		cfg:       cfg,
		logger:    logger,
	}
}

// Handle is the fixed per-command pipeline: authorize -> decode ->
// invoke -> broadcast, with panics and errors both converging on a
// single "error" event back to the sender (spec §9's "errors never
// crash a session" rule).
func (d *Dispatcher) Handle(s *Session, event string, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			if d.logger != nil {
				d.logger.Errorf("realtime: panic handling %s for session %s: %v", event, s.id, r)
			}
			s.SendError(apperr.Internal(fmt.Sprintf("internal error handling %s", event), nil), d.cfg.IsDevelopment())
		}
	}()

	ctx := context.Background()
	if err := d.dispatch(ctx, s, event, data); err != nil {
		s.SendError(err, d.cfg.IsDevelopment())
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, s *Session, event string, data json.RawMessage) error {
	switch event {
	case "incident:join":
		return d.handleJoin(ctx, s, data)
	case "incident:leave":
		return d.handleLeave(ctx, s)
	case "presence:heartbeat":
		return d.handleHeartbeat(ctx, s)
	case "focus:update":
		return d.handleFocusUpdate(s, data)
	case "focus:clear":
		return d.handleFocusClear(s)
	case "incident:updateStatus":
		return d.handleUpdateStatus(ctx, s, data)
	case "incident:assign":
		return d.handleAssign(ctx, s, data)
	case "incident:addNote":
		return d.handleAddNote(ctx, s, data)
	case "incident:addActionItem":
		return d.handleAddActionItem(ctx, s, data)
	case "incident:toggleActionItem":
		return d.handleToggleActionItem(ctx, s, data)
	default:
		return apperr.Validation("event.unknown", fmt.Sprintf("unknown event %q", event))
	}
}

func (d *Dispatcher) requirePermission(s *Session, perm rbac.Permission) error {
	if !d.policy.Allowed(string(s.principal.Role), perm) {
		return apperr.Forbidden(fmt.Sprintf("role %s may not perform this action", s.principal.Role))
	}
	return nil
}

// handleJoin implements spec §4.8's join protocol: subscribe the
// session to the room, upsert presence, broadcast presence:joined to
// everyone else in the room, then unicast the current presence and
// focus snapshots back to the joining session only. Per spec §6, the
// incident:join payload is a bare string (the incident id), not an
// object.
func (d *Dispatcher) handleJoin(ctx context.Context, s *Session, data json.RawMessage) error {
	var incidentID string
	if err := json.Unmarshal(data, &incidentID); err != nil || incidentID == "" {
		return apperr.Validation("join.incident_id_required", "incidentId is required")
	}
	if _, err := d.incidents.Get(ctx, incidentID); err != nil {
		return err
	}

	if prev := s.JoinedIncident(); prev != "" && prev != incidentID {
		d.leaveRoom(ctx, s, prev)
	}

	d.hub.Subscribe(incidentID, s)
	s.SetJoinedIncident(incidentID)

	if _, err := d.presence.Join(ctx, s.principal.ID, incidentID, s.id, s.principal.DisplayName); err != nil {
		return err
	}

	d.hub.Broadcast(incidentID, "presence:joined", map[string]any{
		"incidentId":  incidentID,
		"principalId": s.principal.ID,
		"displayName": s.principal.DisplayName,
	}, s.id)

	presenceList, err := d.presence.ListForIncident(ctx, incidentID)
	if err != nil {
		return err
	}
	s.Deliver("presence:list", map[string]any{
		"incidentId": incidentID,
		"entries":    presenceList,
	})
	s.Deliver("focus:list", map[string]any{
		"incidentId": incidentID,
		"entries":    d.focus.ListForIncident(incidentID),
	})
	return nil
}

func (d *Dispatcher) handleLeave(ctx context.Context, s *Session) error {
	room := s.JoinedIncident()
	if room == "" {
		return nil
	}
	d.leaveRoom(ctx, s, room)
	s.SetJoinedIncident("")
	return nil
}

func (d *Dispatcher) leaveRoom(ctx context.Context, s *Session, room string) {
	d.hub.Unsubscribe(room, s.id)
	_ = d.presence.Leave(ctx, s.principal.ID, room, s.id)
	d.focus.Clear(s.principal.ID, room)
	d.hub.Broadcast(room, "focus:cleared", map[string]any{
		"incidentId":  room,
		"principalId": s.principal.ID,
	}, "")
	d.hub.Broadcast(room, "presence:left", map[string]any{
		"incidentId":  room,
		"principalId": s.principal.ID,
	}, "")
}

func (d *Dispatcher) handleHeartbeat(ctx context.Context, s *Session) error {
	room := s.JoinedIncident()
	if room == "" {
		return apperr.Validation("heartbeat.not_joined", "session has not joined a room")
	}
	return d.presence.Heartbeat(ctx, s.principal.ID, room)
}

type focusUpdateRequest struct {
	Section domain.FocusSection `json:"section"`
	FieldID string               `json:"fieldId"`
}

func (d *Dispatcher) handleFocusUpdate(s *Session, data json.RawMessage) error {
	room := s.JoinedIncident()
	if room == "" {
		return apperr.Validation("focus.not_joined", "session has not joined a room")
	}
	var req focusUpdateRequest
	if err := json.Unmarshal(data, &req); err != nil || !req.Section.Valid() {
		return apperr.Validation("focus.section_invalid", "unknown focus section")
	}
	entry, ok, staleIncidentID := d.focus.Update(s.principal.ID, room, s.id, req.Section, req.FieldID)
	if !ok {
		return nil // throttled; silently dropped per spec §4.6
	}
	if staleIncidentID != "" {
		d.hub.Broadcast(staleIncidentID, "focus:cleared", map[string]any{
			"incidentId":  staleIncidentID,
			"principalId": s.principal.ID,
		}, "")
	}
	d.hub.Broadcast(room, "focus:updated", entry, s.id)
	return nil
}

func (d *Dispatcher) handleFocusClear(s *Session) error {
	room := s.JoinedIncident()
	if room == "" {
		return nil
	}
	d.focus.Clear(s.principal.ID, room)
	d.hub.Broadcast(room, "focus:cleared", map[string]any{
		"incidentId":  room,
		"principalId": s.principal.ID,
	}, s.id)
	return nil
}

type updateStatusRequest struct {
	Status domain.Status `json:"status"`
}

func (d *Dispatcher) handleUpdateStatus(ctx context.Context, s *Session, data json.RawMessage) error {
	room, err := d.requireRoom(s)
	if err != nil {
		return err
	}
	if err := d.requirePermission(s, rbac.PermIncidentUpdate); err != nil {
		return err
	}
	var req updateStatusRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return apperr.Validation("status.invalid", "malformed status payload")
	}
	inc, upd, err := d.incidents.UpdateStatus(ctx, room, s.principal.ID, req.Status)
	if err != nil {
		return err
	}
	d.broadcastMutation(room, "incident:updated", inc, upd)
	return nil
}

// assignRequest is incident:assign's payload. The spec's event list
// names only "incident:assign" — there is no separate wire event for
// unassigning, so the action is carried as an explicit field on the
// same payload, mirroring domain.AssignmentAction's two variants.
type assignRequest struct {
	TargetUserID string                  `json:"targetUserId"`
	Action       domain.AssignmentAction `json:"action"`
}

func (d *Dispatcher) handleAssign(ctx context.Context, s *Session, data json.RawMessage) error {
	room, err := d.requireRoom(s)
	if err != nil {
		return err
	}
	if err := d.requirePermission(s, rbac.PermIncidentAssign); err != nil {
		return err
	}
	var req assignRequest
	if err := json.Unmarshal(data, &req); err != nil || req.TargetUserID == "" {
		return apperr.Validation("assign.target_required", "targetUserId is required")
	}
	var inc domain.Incident
	var upd domain.Update
	if req.Action == domain.AssignmentUnassigned {
		inc, upd, err = d.incidents.UnassignUser(ctx, room, s.principal.ID, req.TargetUserID)
	} else {
		inc, upd, err = d.incidents.AssignUser(ctx, room, s.principal.ID, req.TargetUserID)
	}
	if err != nil {
		return err
	}
	d.broadcastMutation(room, "incident:assigned", inc, upd)
	return nil
}

type noteRequest struct {
	Text string `json:"text"`
}

func (d *Dispatcher) handleAddNote(ctx context.Context, s *Session, data json.RawMessage) error {
	room, err := d.requireRoom(s)
	if err != nil {
		return err
	}
	if err := d.requirePermission(s, rbac.PermIncidentNote); err != nil {
		return err
	}
	var req noteRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return apperr.Validation("note.invalid", "malformed note payload")
	}
	inc, upd, err := d.incidents.AddNote(ctx, room, s.principal.ID, req.Text)
	if err != nil {
		return err
	}
	d.broadcastMutation(room, "incident:noteAdded", inc, upd)
	return nil
}

type actionItemRequest struct {
	Text string `json:"text"`
}

func (d *Dispatcher) handleAddActionItem(ctx context.Context, s *Session, data json.RawMessage) error {
	room, err := d.requireRoom(s)
	if err != nil {
		return err
	}
	if err := d.requirePermission(s, rbac.PermIncidentActionItem); err != nil {
		return err
	}
	var req actionItemRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return apperr.Validation("action_item.invalid", "malformed action item payload")
	}
	inc, upd, err := d.incidents.AddActionItem(ctx, room, s.principal.ID, req.Text)
	if err != nil {
		return err
	}
	d.broadcastMutation(room, "incident:actionItemAdded", inc, upd)
	return nil
}

type toggleActionItemRequest struct {
	UpdateID  string `json:"updateId"`
	Completed bool   `json:"completed"`
}

func (d *Dispatcher) handleToggleActionItem(ctx context.Context, s *Session, data json.RawMessage) error {
	room, err := d.requireRoom(s)
	if err != nil {
		return err
	}
	if err := d.requirePermission(s, rbac.PermIncidentActionItem); err != nil {
		return err
	}
	var req toggleActionItemRequest
	if err := json.Unmarshal(data, &req); err != nil || req.UpdateID == "" {
		return apperr.Validation("action_item.update_id_required", "updateId is required")
	}
	inc, upd, err := d.incidents.ToggleActionItem(ctx, room, s.principal.ID, req.UpdateID, req.Completed)
	if err != nil {
		return err
	}
	d.broadcastMutation(room, "incident:actionItemToggled", inc, upd)
	return nil
}

func (d *Dispatcher) requireRoom(s *Session) (string, error) {
	room := s.JoinedIncident()
	if room == "" {
		return "", apperr.Validation("command.not_joined", "session has not joined a room")
	}
	return room, nil
}

// broadcastMutation fans a mutation out to the room under event, one
// of the five outbound event names spec §4.8 assigns per mutation kind
// (incident:updated, incident:noteAdded, incident:assigned,
// incident:actionItemAdded, incident:actionItemToggled).
func (d *Dispatcher) broadcastMutation(room, event string, inc domain.Incident, upd domain.Update) {
	d.hub.Broadcast(room, event, map[string]any{
		"incident": inc,
		"update":   upd,
	}, "")
}
