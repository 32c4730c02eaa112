// Package alarm derives staleness alarms from current case status and elapsed
// time. Evaluation is pure: alarms are recomputed on demand and never stored.
package alarm

import (
	"fmt"
	"time"

	"github.com/cotte4/portal-jai1-backend-sub001/internal/domain"
)

// Default thresholds, in days. Overridable per case.
const (
	DefaultFederalInProcessDays = 25
	DefaultStateInProcessDays   = 50
	DefaultVerificationDays     = 63
)

// Alarm type identifiers.
const (
	TypePossibleVerificationFederal = "possible_verification_federal"
	TypePossibleVerificationState   = "possible_verification_state"
	TypeVerificationOverdueFederal  = "verification_overdue_federal"
	TypeVerificationOverdueState    = "verification_overdue_state"
)

// Thresholds carries the effective day limits and per-track enable flags for
// one evaluation. Disabling a track suppresses that track's alarms only; the
// other track is evaluated independently.
type Thresholds struct {
	FederalInProcessDays int
	StateInProcessDays   int
	VerificationDays     int
	FederalEnabled       bool
	StateEnabled         bool
}

// DefaultThresholds returns the built-in limits with both tracks enabled.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FederalInProcessDays: DefaultFederalInProcessDays,
		StateInProcessDays:   DefaultStateInProcessDays,
		VerificationDays:     DefaultVerificationDays,
		FederalEnabled:       true,
		StateEnabled:         true,
	}
}

// ForCase resolves the effective thresholds for a case: the configured
// defaults overlaid with the case's per-track overrides and enable flags.
func ForCase(c *domain.TaxCase, defaults Thresholds) Thresholds {
	th := defaults
	th.FederalEnabled = c.FederalAlarmsEnabled
	th.StateEnabled = c.StateAlarmsEnabled
	if c.FederalInProcessAlarmDays != nil {
		th.FederalInProcessDays = *c.FederalInProcessAlarmDays
	}
	if c.StateInProcessAlarmDays != nil {
		th.StateInProcessDays = *c.StateInProcessAlarmDays
	}
	if c.VerificationAlarmDays != nil {
		th.VerificationDays = *c.VerificationAlarmDays
	}
	return th
}

// Input is the status snapshot an evaluation runs against.
type Input struct {
	FederalStatus    *domain.CanonicalStatus
	FederalChangedAt *time.Time
	StateStatus      *domain.CanonicalStatus
	StateChangedAt   *time.Time
	Now              time.Time
}

// InputForCase builds an evaluation Input from a case snapshot.
func InputForCase(c *domain.TaxCase, now time.Time) Input {
	return Input{
		FederalStatus:    c.FederalStatus,
		FederalChangedAt: c.FederalStatusChangedAt,
		StateStatus:      c.StateStatus,
		StateChangedAt:   c.StateStatusChangedAt,
		Now:              now,
	}
}

// Evaluate computes the active alarms for one case snapshot.
//
// Semantics are strictly greater-than: a status unchanged for exactly the
// threshold number of days raises nothing; one more day raises the alarm.
// A changed-at timestamp in the future (clock skew) counts as zero days.
func Evaluate(in Input, th Thresholds) []domain.Alarm {
	var out []domain.Alarm

	if th.FederalEnabled {
		out = append(out, evalTrack(
			domain.PortalFederal, in.FederalStatus, in.FederalChangedAt, in.Now,
			th.FederalInProcessDays, th.VerificationDays,
			TypePossibleVerificationFederal, TypeVerificationOverdueFederal,
		)...)
	}
	if th.StateEnabled {
		out = append(out, evalTrack(
			domain.PortalState, in.StateStatus, in.StateChangedAt, in.Now,
			th.StateInProcessDays, th.VerificationDays,
			TypePossibleVerificationState, TypeVerificationOverdueState,
		)...)
	}
	return out
}

// AggregateLevel reduces a set of alarms to a single case severity:
// critical if any alarm is critical, warning if any alarm exists, else none.
func AggregateLevel(alarms []domain.Alarm) domain.AlarmLevel {
	level := domain.AlarmNone
	for _, a := range alarms {
		if a.Level == domain.AlarmCritical {
			return domain.AlarmCritical
		}
		level = domain.AlarmWarning
	}
	return level
}

func evalTrack(track domain.Portal, st *domain.CanonicalStatus, changedAt *time.Time, now time.Time, inProcessDays, verificationDays int, inProcessType, verificationType string) []domain.Alarm {
	if st == nil || changedAt == nil {
		return nil
	}
	days := daysSince(*changedAt, now)

	switch *st {
	case domain.StatusInProcess:
		if days > inProcessDays {
			return []domain.Alarm{{
				Type:                  inProcessType,
				Level:                 domain.AlarmWarning,
				Track:                 track,
				Message:               fmt.Sprintf("%s refund in process for %d days (threshold %d); portal may have routed the return to verification", track, days, inProcessDays),
				DaysSinceStatusChange: days,
				Threshold:             inProcessDays,
			}}
		}
	case domain.StatusInVerification:
		if days > verificationDays {
			return []domain.Alarm{{
				Type:                  verificationType,
				Level:                 domain.AlarmCritical,
				Track:                 track,
				Message:               fmt.Sprintf("%s refund stuck in verification for %d days (threshold %d)", track, days, verificationDays),
				DaysSinceStatusChange: days,
				Threshold:             verificationDays,
			}}
		}
	}
	return nil
}

// daysSince returns whole elapsed days, clamped at zero for timestamps in
// the future.
func daysSince(t, now time.Time) int {
	d := int(now.Sub(t).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
