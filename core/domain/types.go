// Package domain holds the entities of spec §3, shared by the store,
// service, and realtime layers.
package domain

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleResponder Role = "responder"
	RoleViewer    Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleResponder, RoleViewer:
		return true
	default:
		return false
	}
}

type Principal struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusInvestigating Status = "investigating"
	StatusIdentified    Status = "identified"
	StatusMonitoring    Status = "monitoring"
	StatusResolved      Status = "resolved"
)

func (s Status) Valid() bool {
	switch s {
	case StatusInvestigating, StatusIdentified, StatusMonitoring, StatusResolved:
		return true
	default:
		return false
	}
}

type Incident struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Severity    Severity   `json:"severity"`
	Status      Status     `json:"status"`
	CreatedBy   string     `json:"createdBy"`
	Commander   string     `json:"commander"`
	Assignees   []string   `json:"assignees"`
	CreatedAt   time.Time  `json:"createdAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	Version     int        `json:"-"`
}

// HasAssignee reports whether targetUserID is already in Assignees.
func (inc *Incident) HasAssignee(targetUserID string) bool {
	for _, id := range inc.Assignees {
		if id == targetUserID {
			return true
		}
	}
	return false
}

type UpdateKind string

const (
	UpdateStatusChange UpdateKind = "status_change"
	UpdateAssignment   UpdateKind = "assignment"
	UpdateNote         UpdateKind = "note"
	UpdateActionItem   UpdateKind = "action_item"
)

// Update is the audit-log entity of spec §3/§9: kind-tagged with a
// polymorphic content, serialized with a "type" discriminator instead
// of a bag of optional fields.
type Update struct {
	ID         string          `json:"id"`
	IncidentID string          `json:"incidentId"`
	AuthorID   string          `json:"authorId"`
	CreatedAt  time.Time       `json:"createdAt"`
	Kind       UpdateKind      `json:"kind"`
	Content    UpdateContent   `json:"content"`
}

// UpdateContent is the sum type for Update.Content. Exactly one of the
// typed fields is populated, selected by Kind.
type UpdateContent struct {
	StatusChange *StatusChangeContent `json:"-"`
	Assignment   *AssignmentContent   `json:"-"`
	Note         *NoteContent         `json:"-"`
	ActionItem   *ActionItemContent   `json:"-"`
}

type StatusChangeContent struct {
	PreviousStatus *Status `json:"previousStatus"`
	NewStatus      Status  `json:"newStatus"`
}

type AssignmentAction string

const (
	AssignmentAssigned   AssignmentAction = "assigned"
	AssignmentUnassigned AssignmentAction = "unassigned"
)

type AssignmentContent struct {
	Action       AssignmentAction `json:"action"`
	TargetUserID string           `json:"targetUserId"`
}

type NoteContent struct {
	Text string `json:"text"`
}

type ActionItemContent struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// MarshalJSON flattens whichever variant is set, with a "type" tag
// matching Kind, per spec §9's tagged-variant instruction.
func (c UpdateContent) MarshalJSON() ([]byte, error) {
	var kind UpdateKind
	var variant any
	switch {
	case c.StatusChange != nil:
		kind, variant = UpdateStatusChange, c.StatusChange
	case c.Assignment != nil:
		kind, variant = UpdateAssignment, c.Assignment
	case c.Note != nil:
		kind, variant = UpdateNote, c.Note
	case c.ActionItem != nil:
		kind, variant = UpdateActionItem, c.ActionItem
	default:
		return []byte("{}"), nil
	}
	body, err := json.Marshal(variant)
	if err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(kind)
	// body is a non-empty JSON object; splice the tag in as its first key.
	out := append(append([]byte(`{"type":`), tag...), ',')
	return append(out, body[1:]...), nil
}

// DecodeInto parses raw JSON content according to kind, populating the
// matching variant field. Used when reading rows back from storage.
func (c *UpdateContent) DecodeInto(kind UpdateKind, raw []byte) error {
	switch kind {
	case UpdateStatusChange:
		var v StatusChangeContent
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		c.StatusChange = &v
	case UpdateAssignment:
		var v AssignmentContent
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		c.Assignment = &v
	case UpdateNote:
		var v NoteContent
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		c.Note = &v
	case UpdateActionItem:
		var v ActionItemContent
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		c.ActionItem = &v
	}
	return nil
}

type PresenceEntry struct {
	PrincipalID  string    `json:"principalId"`
	IncidentID   string    `json:"incidentId"`
	SessionID    string    `json:"sessionId"`
	DisplayName  string    `json:"displayName"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

type FocusSection string

const (
	FocusStatus       FocusSection = "status"
	FocusSeverity     FocusSection = "severity"
	FocusDescription  FocusSection = "description"
	FocusNotes        FocusSection = "notes"
	FocusAssignees    FocusSection = "assignees"
	FocusActionItems  FocusSection = "action_items"
	FocusCommander    FocusSection = "commander"
)

func (s FocusSection) Valid() bool {
	switch s {
	case FocusStatus, FocusSeverity, FocusDescription, FocusNotes, FocusAssignees, FocusActionItems, FocusCommander:
		return true
	default:
		return false
	}
}

type FocusEntry struct {
	PrincipalID string       `json:"principalId"`
	IncidentID  string       `json:"incidentId"`
	Section     FocusSection `json:"section"`
	FieldID     string       `json:"fieldId,omitempty"`
	Color       string       `json:"color"`
	LastUpdate  time.Time    `json:"lastUpdate"`
}
