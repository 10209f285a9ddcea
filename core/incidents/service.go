// Package incidents implements spec §4.4's command contracts: every
// mutation goes through Service, which loads current state, runs the
// state machine / invariant checks, and hands the store a MutateFunc
// that computes the next incident and its audit Update atomically.
// Grounded on the teacher's core/appbootstrap service-struct shape
// (a thin layer over a store, constructed once in the composition
// root and handed to handlers by reference).
package incidents

import (
	"context"
	"strings"
	"time"

	"incidentpulse/core/apperr"
	"incidentpulse/core/domain"
	"incidentpulse/core/statemachine"
	"incidentpulse/core/store"
)

type Service struct {
	incidents store.IncidentsStore
	updates   store.UpdatesStore
}

func NewService(incidents store.IncidentsStore, updates store.UpdatesStore) *Service {
	return &Service{incidents: incidents, updates: updates}
}

type CreateInput struct {
	Title       string
	Description string
	Severity    domain.Severity
	Commander   string
	CreatedBy   string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Incident, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Incident{}, apperr.Validation("incident.title_required", "title is required")
	}
	if !in.Severity.Valid() {
		return domain.Incident{}, apperr.Validation("incident.severity_invalid", "unknown severity")
	}
	commander := in.Commander
	if commander == "" {
		commander = in.CreatedBy
	}
	inc := domain.Incident{
		Title:       title,
		Description: in.Description,
		Severity:    in.Severity,
		Status:      domain.StatusInvestigating,
		CreatedBy:   in.CreatedBy,
		Commander:   commander,
		Assignees:   []string{},
	}
	return s.incidents.Create(ctx, inc)
}

func (s *Service) Get(ctx context.Context, id string) (domain.Incident, error) {
	return s.incidents.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, status domain.Status) ([]domain.Incident, error) {
	return s.incidents.List(ctx, status)
}

func (s *Service) Timeline(ctx context.Context, incidentID string) ([]domain.Update, error) {
	if _, err := s.incidents.Get(ctx, incidentID); err != nil {
		return nil, err
	}
	return s.updates.Timeline(ctx, incidentID)
}

// UpdateStatus applies a state-machine-checked transition, shared by
// both the REST PATCH handler and the streaming command dispatcher
// (spec §9 Open Question #1).
func (s *Service) UpdateStatus(ctx context.Context, incidentID, actorID string, to domain.Status) (domain.Incident, domain.Update, error) {
	if !to.Valid() {
		return domain.Incident{}, domain.Update{}, apperr.Validation("incident.status_invalid", "unknown status")
	}
	return s.incidents.Mutate(ctx, incidentID, func(current domain.Incident) (domain.Incident, domain.Update, error) {
		if !statemachine.CanTransition(current.Status, to) {
			return domain.Incident{}, domain.Update{}, apperr.Validation(
				"incident.transition_invalid",
				"cannot transition from "+string(current.Status)+" to "+string(to))
		}
		next := current
		prev := current.Status
		next.Status = to
		if statemachine.ResolvedAtShouldSet(to, current.ResolvedAt != nil) {
			now := time.Now().UTC()
			next.ResolvedAt = &now
		}
		upd := domain.Update{
			AuthorID: actorID,
			Kind:     domain.UpdateStatusChange,
			Content: domain.UpdateContent{
				StatusChange: &domain.StatusChangeContent{
					PreviousStatus: &prev,
					NewStatus:      to,
				},
			},
		}
		return next, upd, nil
	})
}

func (s *Service) AssignUser(ctx context.Context, incidentID, actorID, targetUserID string) (domain.Incident, domain.Update, error) {
	return s.incidents.Mutate(ctx, incidentID, func(current domain.Incident) (domain.Incident, domain.Update, error) {
		if current.HasAssignee(targetUserID) {
			return domain.Incident{}, domain.Update{}, apperr.Conflict("incident.already_assigned", "user is already assigned")
		}
		next := current
		next.Assignees = append(append([]string{}, current.Assignees...), targetUserID)
		upd := domain.Update{
			AuthorID: actorID,
			Kind:     domain.UpdateAssignment,
			Content: domain.UpdateContent{
				Assignment: &domain.AssignmentContent{
					Action:       domain.AssignmentAssigned,
					TargetUserID: targetUserID,
				},
			},
		}
		return next, upd, nil
	})
}

func (s *Service) UnassignUser(ctx context.Context, incidentID, actorID, targetUserID string) (domain.Incident, domain.Update, error) {
	return s.incidents.Mutate(ctx, incidentID, func(current domain.Incident) (domain.Incident, domain.Update, error) {
		if !current.HasAssignee(targetUserID) {
			return domain.Incident{}, domain.Update{}, apperr.NotFound("incident.not_assigned", "user is not assigned")
		}
		next := current
		remaining := make([]string, 0, len(current.Assignees))
		for _, id := range current.Assignees {
			if id != targetUserID {
				remaining = append(remaining, id)
			}
		}
		next.Assignees = remaining
		upd := domain.Update{
			AuthorID: actorID,
			Kind:     domain.UpdateAssignment,
			Content: domain.UpdateContent{
				Assignment: &domain.AssignmentContent{
					Action:       domain.AssignmentUnassigned,
					TargetUserID: targetUserID,
				},
			},
		}
		return next, upd, nil
	})
}

func (s *Service) AddNote(ctx context.Context, incidentID, actorID, text string) (domain.Incident, domain.Update, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Incident{}, domain.Update{}, apperr.Validation("note.text_required", "note text is required")
	}
	return s.incidents.Mutate(ctx, incidentID, func(current domain.Incident) (domain.Incident, domain.Update, error) {
		upd := domain.Update{
			AuthorID: actorID,
			Kind:     domain.UpdateNote,
			Content: domain.UpdateContent{
				Note: &domain.NoteContent{Text: text},
			},
		}
		return current, upd, nil
	})
}

func (s *Service) AddActionItem(ctx context.Context, incidentID, actorID, text string) (domain.Incident, domain.Update, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Incident{}, domain.Update{}, apperr.Validation("action_item.text_required", "action item text is required")
	}
	return s.incidents.Mutate(ctx, incidentID, func(current domain.Incident) (domain.Incident, domain.Update, error) {
		upd := domain.Update{
			AuthorID: actorID,
			Kind:     domain.UpdateActionItem,
			Content: domain.UpdateContent{
				ActionItem: &domain.ActionItemContent{Text: text, Completed: false},
			},
		}
		return current, upd, nil
	})
}

// ToggleActionItem sets the Completed flag of the action item recorded
// by updateID to the explicit completed value and appends a fresh
// action_item update reflecting it, keeping the audit log append-only
// rather than mutating history in place. The explicit boolean (rather
// than an unconditional flip) makes the operation idempotent under
// reconnect retries: calling it again with the value it already holds
// is a no-op that returns the existing audit record instead of
// appending a duplicate.
func (s *Service) ToggleActionItem(ctx context.Context, incidentID, actorID, updateID string, completed bool) (domain.Incident, domain.Update, error) {
	original, err := s.findActionItem(ctx, incidentID, updateID)
	if err != nil {
		return domain.Incident{}, domain.Update{}, err
	}
	if original.Content.ActionItem.Completed == completed {
		inc, err := s.incidents.Get(ctx, incidentID)
		if err != nil {
			return domain.Incident{}, domain.Update{}, err
		}
		return inc, original, nil
	}
	return s.incidents.Mutate(ctx, incidentID, func(current domain.Incident) (domain.Incident, domain.Update, error) {
		upd := domain.Update{
			AuthorID: actorID,
			Kind:     domain.UpdateActionItem,
			Content: domain.UpdateContent{
				ActionItem: &domain.ActionItemContent{
					Text:      original.Content.ActionItem.Text,
					Completed: completed,
				},
			},
		}
		return current, upd, nil
	})
}

// findActionItem locates the action_item update record identified by
// updateID, returning the full record so a no-op toggle can echo back
// the audit entry that is already current.
func (s *Service) findActionItem(ctx context.Context, incidentID, updateID string) (domain.Update, error) {
	timeline, err := s.updates.Timeline(ctx, incidentID)
	if err != nil {
		return domain.Update{}, err
	}
	for _, u := range timeline {
		if u.ID == updateID && u.Kind == domain.UpdateActionItem && u.Content.ActionItem != nil {
			return u, nil
		}
	}
	return domain.Update{}, apperr.NotFound("action_item.not_found", "action item not found")
}
