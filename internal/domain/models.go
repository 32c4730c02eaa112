// Package domain defines the persistence models for tax cases, refund checks,
// and status history. These types are mapped with GORM and form the core data
// layer of the refund-monitoring application, together with the canonical
// status taxonomy and the transient Alarm value.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// CanonicalStatus is the internal enumerated refund-progress value that all
// portal-specific raw text is mapped into.
type CanonicalStatus string

const (
	StatusInProcess        CanonicalStatus = "in_process"
	StatusInVerification   CanonicalStatus = "in_verification"
	StatusDepositInTransit CanonicalStatus = "deposit_in_transit"
	StatusCheckInTransit   CanonicalStatus = "check_in_transit"
	StatusIssues           CanonicalStatus = "issues"
)

// Portal identifies one of the two independent monitoring tracks.
type Portal string

const (
	PortalFederal Portal = "federal"
	PortalState   Portal = "state"
)

// Valid reports whether p is one of the known portals.
func (p Portal) Valid() bool { return p == PortalFederal || p == PortalState }

// PaymentMethod is how the client chose to receive the refund. It resolves
// the ambiguous "sent" family of portal phrases into a concrete in-transit
// status.
type PaymentMethod string

const (
	PaymentDirectDeposit PaymentMethod = "direct_deposit"
	PaymentCheck         PaymentMethod = "check"
)

// CheckResult classifies the outcome of one automation attempt.
type CheckResult string

const (
	ResultSuccess  CheckResult = "success"
	ResultNotFound CheckResult = "not_found"
	ResultError    CheckResult = "error"
	ResultTimeout  CheckResult = "timeout"
)

// TriggerSource records what initiated a check.
type TriggerSource string

const (
	TriggerManual   TriggerSource = "manual"
	TriggerSchedule TriggerSource = "schedule"
)

// TaxCase represents a client's filing for a tax year. The case itself is
// owned by the case-management collaborator; this service only reads it and
// mutates the per-track status, changed-at, and last-comment fields.
//
// Refund amounts are stored in whole cents. The actual amount is the figure
// on the filed return; the estimated amount is a pre-filing projection. The
// federal portal accepts either, the state portal only the actual amount.
type TaxCase struct {
	ID          string `json:"id"            gorm:"type:char(36);primaryKey"`
	ClientSlug  string `json:"client_slug"   gorm:"type:varchar(64);not null;index"`
	OwnerUserID string `json:"owner_user_id" gorm:"type:varchar(64);not null;index"`
	TaxYear     int    `json:"tax_year"      gorm:"not null"`

	FilingStatus  string        `json:"filing_status"  gorm:"type:varchar(32);not null"`
	WorkState     string        `json:"work_state"     gorm:"type:varchar(2);not null"`
	PaymentMethod PaymentMethod `json:"payment_method" gorm:"type:varchar(16);not null;check:payment_method IN ('direct_deposit','check')"`

	// EncryptedSSN is the AES-GCM ciphertext of the lookup identifier.
	// The plaintext exists only inside a running check and is never logged.
	EncryptedSSN string `json:"-" gorm:"type:text;not null"`

	FederalStatus          *CanonicalStatus `json:"federal_status"            gorm:"type:varchar(32)"`
	FederalStatusChangedAt *time.Time       `json:"federal_status_changed_at"`
	FederalLastComment     string           `json:"federal_last_comment"      gorm:"type:text"`
	StateStatus            *CanonicalStatus `json:"state_status"              gorm:"type:varchar(32)"`
	StateStatusChangedAt   *time.Time       `json:"state_status_changed_at"`
	StateLastComment       string           `json:"state_last_comment"        gorm:"type:text"`

	FederalRefundCents    *int64 `json:"federal_refund_cents"`
	FederalEstimatedCents *int64 `json:"federal_estimated_cents"`
	StateRefundCents      *int64 `json:"state_refund_cents"`
	StateEstimatedCents   *int64 `json:"state_estimated_cents"`

	// MonitoringEnabled marks the case eligible for scheduled batch runs.
	MonitoringEnabled bool `json:"monitoring_enabled" gorm:"not null;default:true;index"`

	// Per-track alarm switches and per-case threshold overrides (days).
	// A nil override means the configured default applies.
	FederalAlarmsEnabled      bool `json:"federal_alarms_enabled" gorm:"not null;default:true"`
	StateAlarmsEnabled        bool `json:"state_alarms_enabled"   gorm:"not null;default:true"`
	FederalInProcessAlarmDays *int `json:"federal_in_process_alarm_days"`
	StateInProcessAlarmDays   *int `json:"state_in_process_alarm_days"`
	VerificationAlarmDays     *int `json:"verification_alarm_days"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for TaxCase.
func (TaxCase) TableName() string { return "tax_cases" }

// TrackStatus returns the stored canonical status for the given portal track.
func (c *TaxCase) TrackStatus(p Portal) *CanonicalStatus {
	if p == PortalState {
		return c.StateStatus
	}
	return c.FederalStatus
}

// RefundCheck is one immutable record per automation attempt. Exactly one row
// is written per orchestrated check invocation: when an attempt is retried,
// only the final attempt's outcome is persisted.
//
// Invariant: StatusChanged == true implies MappedStatus is non-nil and differs
// from PreviousStatus. The only post-insert mutation allowed is the state
// portal's approve/dismiss action on the StatusChanged flag.
type RefundCheck struct {
	ID     string `json:"id"      gorm:"type:char(36);primaryKey"`
	CaseID string `json:"case_id" gorm:"type:char(36);not null;index:idx_case_checks,priority:1"`
	Portal Portal `json:"portal"  gorm:"type:varchar(16);not null;check:portal IN ('federal','state')"`

	RawStatus      string           `json:"raw_status"      gorm:"type:text"`
	Details        string           `json:"details"         gorm:"type:text"`
	ScreenshotPath *string          `json:"screenshot_path" gorm:"type:varchar(255)"`
	MappedStatus   *CanonicalStatus `json:"mapped_status"   gorm:"type:varchar(32)"`
	PreviousStatus *CanonicalStatus `json:"previous_status" gorm:"type:varchar(32)"`
	StatusChanged  bool             `json:"status_changed"  gorm:"not null;default:false;index"`

	Result            CheckResult   `json:"result"               gorm:"type:varchar(16);not null;check:result IN ('success','not_found','error','timeout')"`
	TriggeredBy       TriggerSource `json:"triggered_by"         gorm:"type:varchar(16);not null"`
	TriggeredByUserID string        `json:"triggered_by_user_id" gorm:"type:varchar(64)"`
	ErrorMessage      *string       `json:"error_message"        gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"index:idx_case_checks,priority:2"`

	// Case is the parent filing. Checks are cascade-deleted with their case.
	Case TaxCase `json:"-" gorm:"foreignKey:CaseID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for RefundCheck.
func (RefundCheck) TableName() string { return "refund_checks" }

// StatusHistory is an append-only audit entry. Rows are created exclusively
// inside the same transaction as the paired TaxCase status-field mutation, so
// every history row corresponds to exactly one applied change.
type StatusHistory struct {
	ID     string `json:"id"      gorm:"type:char(36);primaryKey"`
	CaseID string `json:"case_id" gorm:"type:char(36);not null;index"`
	Track  Portal `json:"track"   gorm:"type:varchar(16);not null"`

	PreviousStatus *CanonicalStatus `json:"previous_status" gorm:"type:varchar(32)"`
	NewStatus      CanonicalStatus  `json:"new_status"      gorm:"type:varchar(32);not null"`
	Actor          string           `json:"actor"           gorm:"type:varchar(64);not null"`
	Comment        string           `json:"comment"         gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`

	Case TaxCase `json:"-" gorm:"foreignKey:CaseID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for StatusHistory.
func (StatusHistory) TableName() string { return "status_history" }

// AlarmLevel is the severity of a derived staleness alarm.
type AlarmLevel string

const (
	AlarmNone     AlarmLevel = "none"
	AlarmWarning  AlarmLevel = "warning"
	AlarmCritical AlarmLevel = "critical"
)

// Alarm is a transient staleness signal recomputed on demand from the current
// TaxCase state. Alarms are never persisted.
type Alarm struct {
	Type                  string     `json:"type"`
	Level                 AlarmLevel `json:"level"`
	Track                 Portal     `json:"track"`
	Message               string     `json:"message"`
	DaysSinceStatusChange int        `json:"days_since_status_change"`
	Threshold             int        `json:"threshold"`
}
