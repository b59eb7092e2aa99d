package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SubscriptionPlan is the billing plan of a school.
type SubscriptionPlan string

const (
	PlanTrial   SubscriptionPlan = "trial"
	PlanBasic   SubscriptionPlan = "basic"
	PlanPremium SubscriptionPlan = "premium"
)

// SubscriptionStatus tracks whether a subscription is in force.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// Subscription is a school's billing period on a plan.
type Subscription struct {
	ID          uuid.UUID          `json:"id"`
	TenantID    string             `json:"tenant_id"`
	Plan        SubscriptionPlan   `json:"plan"`
	Status      SubscriptionStatus `json:"status"`
	StartsAt    time.Time          `json:"starts_at"`
	EndsAt      time.Time          `json:"ends_at"`
	AmountCents int64              `json:"amount_cents"`
	CreatedAt   time.Time          `json:"created_at"`
}

// TicketStatus is the workflow state of a support ticket.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
	TicketClosed     TicketStatus = "closed"
)

// Valid reports whether s is a known ticket status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketInProgress, TicketResolved, TicketClosed:
		return true
	}
	return false
}

// SupportTicket is raised by a school user and handled by platform support.
type SupportTicket struct {
	ID         uuid.UUID    `json:"id"`
	TenantID   string       `json:"tenant_id"`
	OpenedBy   uuid.UUID    `json:"opened_by"`
	Subject    string       `json:"subject"`
	Body       string       `json:"body"`
	Priority   string       `json:"priority"`
	Status     TicketStatus `json:"status"`
	AssignedTo *uuid.UUID   `json:"assigned_to,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// AuditEntry records a platform action for later review.
type AuditEntry struct {
	ID        uuid.UUID       `json:"id"`
	ActorID   *uuid.UUID      `json:"actor_id,omitempty"`
	Action    string          `json:"action"`
	TenantID  *string         `json:"tenant_id,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Audit actions
const (
	AuditTenantCreated         = "tenant.created"
	AuditTenantSuspended       = "tenant.suspended"
	AuditTenantActivated       = "tenant.activated"
	AuditTenantMarkedDeletion  = "tenant.marked_for_deletion"
	AuditTenantPurged          = "tenant.purged"
	AuditPlatformUserCreated   = "platform_user.created"
	AuditSubscriptionCreated   = "subscription.created"
	AuditSubscriptionCancelled = "subscription.cancelled"
)
