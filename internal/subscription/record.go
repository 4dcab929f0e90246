package subscription

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// ErrNotFound means no subscription record exists for the organization.
var ErrNotFound = errors.New("subscription not found")

// Status is the billing lifecycle state of an organization's subscription.
type Status string

const (
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusCanceled Status = "canceled"
	StatusPastDue  Status = "past_due"
	StatusExpired  Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusInactive, StatusCanceled, StatusPastDue, StatusExpired:
		return true
	default:
		return false
	}
}

func ParseStatus(raw string) Status {
	status := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return ""
	}
	return status
}

// Record is the subscription row for an organization. At most one record
// exists per organization.
type Record struct {
	ID                  string
	OrgID               string
	PlanID              string
	Status              Status
	IsLifetime          bool
	TrialExpiresAt      sql.NullTime
	CurrentPeriodEndsAt sql.NullTime
	ExpiredAt           sql.NullTime
	CanceledAt          sql.NullTime
	ExternalID          sql.NullString
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Cadence is a plan's billing interval.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
	CadenceYearly  Cadence = "yearly"
)

func (c Cadence) Valid() bool {
	switch c {
	case CadenceDaily, CadenceWeekly, CadenceMonthly, CadenceYearly:
		return true
	default:
		return false
	}
}

func ParseCadence(raw string) Cadence {
	cadence := Cadence(strings.ToLower(strings.TrimSpace(raw)))
	if !cadence.Valid() {
		return ""
	}
	return cadence
}

// NextBoundary computes the period end one billing interval after now.
func (c Cadence) NextBoundary(now time.Time) time.Time {
	switch c {
	case CadenceDaily:
		return now.AddDate(0, 0, 1)
	case CadenceWeekly:
		return now.AddDate(0, 0, 7)
	case CadenceYearly:
		return now.AddDate(1, 0, 0)
	default:
		return now.AddDate(0, 1, 0)
	}
}
