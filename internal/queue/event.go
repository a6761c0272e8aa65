// Package queue defines the audit event exchanged over the message broker
// and the consumer that persists it.
package queue

import (
	"time"

	"github.com/iliyamo/radiology-portal/internal/model"
)

// AuditQueueName is the default queue carrying audit events.
const AuditQueueName = "audit.recorded"

// AuditEvent is published for every audited action.  It carries the full
// entry, id included, so a redelivered message is stored only once.
type AuditEvent struct {
	ID         string  `json:"id"`
	UserID     *string `json:"user_id,omitempty"`
	UnitID     *string `json:"unit_id,omitempty"`
	Action     string  `json:"action"`
	TargetType string  `json:"target_type"`
	TargetID   *string `json:"target_id,omitempty"`
	IPAddress  *string `json:"ip_address,omitempty"`
	OccurredAt string  `json:"occurred_at"` // RFC3339Nano, UTC
}

// NewAuditEvent converts an entry into its wire form.
func NewAuditEvent(e model.AuditEntry) AuditEvent {
	return AuditEvent{
		ID:         e.ID,
		UserID:     e.UserID,
		UnitID:     e.UnitID,
		Action:     string(e.Action),
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		IPAddress:  e.IPAddress,
		OccurredAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Entry converts the event back into a storable entry.
func (ev AuditEvent) Entry() (model.AuditEntry, error) {
	at, err := time.Parse(time.RFC3339Nano, ev.OccurredAt)
	if err != nil {
		return model.AuditEntry{}, err
	}
	return model.AuditEntry{
		ID:         ev.ID,
		UserID:     ev.UserID,
		UnitID:     ev.UnitID,
		Action:     model.AuditAction(ev.Action),
		TargetType: ev.TargetType,
		TargetID:   ev.TargetID,
		IPAddress:  ev.IPAddress,
		CreatedAt:  at,
	}, nil
}
