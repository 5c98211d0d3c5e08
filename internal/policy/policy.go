// Package policy holds the time-to-departure rules for refunds and modification
// fees. Everything here is pure: the same booking, departure and clock reading
// always produce the same decision, which is what lets previews match commits.
package policy

import (
	"time"

	"github.com/Domenick1991/tripbooking/internal/domain"
)

// CancellationTier applies when at least MinHoursBefore hours remain before departure.
type CancellationTier struct {
	Name             string  `yaml:"name"`
	MinHoursBefore   float64 `yaml:"min_hours_before"`
	RefundPercentage int     `yaml:"refund_percentage"`
	ProcessingFee    int64   `yaml:"processing_fee"`
}

type ModificationTier struct {
	Name                 string  `yaml:"name"`
	MinHoursBefore       float64 `yaml:"min_hours_before"`
	BaseFee              int64   `yaml:"base_fee"`
	SeatChangeFee        int64   `yaml:"seat_change_fee"`
	AllowSeatChange      bool    `yaml:"allow_seat_change"`
	AllowPassengerUpdate bool    `yaml:"allow_passenger_update"`
}

type Engine struct {
	// Tiers are evaluated top-down; order them by MinHoursBefore, largest first.
	Cancellation      []CancellationTier
	Modification      []ModificationTier
	ServiceFeePercent int64
}

const TierNotAllowed = "not-allowed"

func DefaultCancellationTiers() []CancellationTier {
	return []CancellationTier{
		{Name: "full", MinHoursBefore: 24, RefundPercentage: 100, ProcessingFee: 5000},
		{Name: "partial-80", MinHoursBefore: 12, RefundPercentage: 80, ProcessingFee: 5000},
		{Name: "partial-50", MinHoursBefore: 6, RefundPercentage: 50, ProcessingFee: 5000},
		{Name: "partial-20", MinHoursBefore: 0, RefundPercentage: 20, ProcessingFee: 5000},
	}
}

func DefaultModificationTiers() []ModificationTier {
	return []ModificationTier{
		{Name: "flexible", MinHoursBefore: 24, BaseFee: 10000, SeatChangeFee: 5000, AllowSeatChange: true, AllowPassengerUpdate: true},
		{Name: "standard", MinHoursBefore: 6, BaseFee: 20000, SeatChangeFee: 10000, AllowSeatChange: true, AllowPassengerUpdate: true},
		{Name: "restricted", MinHoursBefore: 2, BaseFee: 20000, AllowPassengerUpdate: true},
	}
}

func Default() Engine {
	return Engine{
		Cancellation:      DefaultCancellationTiers(),
		Modification:      DefaultModificationTiers(),
		ServiceFeePercent: 5,
	}
}

type CancellationDecision struct {
	Allowed          bool    `json:"allowed"`
	Tier             string  `json:"tier"`
	HoursBefore      float64 `json:"hours_before"`
	RefundPercentage int     `json:"refund_percentage"`
	RefundAmount     int64   `json:"refund_amount"`
	ProcessingFee    int64   `json:"processing_fee"`
	TotalRefund      int64   `json:"total_refund"`
}

type ModificationDecision struct {
	Allowed              bool    `json:"allowed"`
	Tier                 string  `json:"tier"`
	HoursBefore          float64 `json:"hours_before"`
	BaseFee              int64   `json:"base_fee"`
	SeatChangeFee        int64   `json:"seat_change_fee"`
	AllowSeatChange      bool    `json:"allow_seat_change"`
	AllowPassengerUpdate bool    `json:"allow_passenger_update"`
}

// TotalFee is BaseFee plus SeatChangeFee for every changed seat.
func (d ModificationDecision) TotalFee(seatChanges int) int64 {
	return d.BaseFee + d.SeatChangeFee*int64(seatChanges)
}

func hoursUntil(departure, now time.Time) float64 {
	return departure.Sub(now).Hours()
}

// EvaluateCancellation picks the first tier the remaining time qualifies for.
// Money is only returned for paid bookings.
func (e Engine) EvaluateCancellation(b *domain.Booking, departure, now time.Time) CancellationDecision {
	hours := hoursUntil(departure, now)
	decision := CancellationDecision{Tier: TierNotAllowed, HoursBefore: hours}
	if hours < 0 {
		return decision
	}

	for _, tier := range e.Cancellation {
		if hours < tier.MinHoursBefore {
			continue
		}
		decision.Allowed = true
		decision.Tier = tier.Name
		decision.RefundPercentage = tier.RefundPercentage
		if b.IsPaid() {
			decision.RefundAmount = b.Pricing.Total * int64(tier.RefundPercentage) / 100
			decision.ProcessingFee = tier.ProcessingFee
			decision.TotalRefund = max(decision.RefundAmount-decision.ProcessingFee, 0)
		}
		return decision
	}
	return decision
}

func (e Engine) EvaluateModification(departure, now time.Time) ModificationDecision {
	hours := hoursUntil(departure, now)
	decision := ModificationDecision{Tier: TierNotAllowed, HoursBefore: hours}
	if hours < 0 {
		return decision
	}

	for _, tier := range e.Modification {
		if hours < tier.MinHoursBefore {
			continue
		}
		decision.Allowed = tier.AllowSeatChange || tier.AllowPassengerUpdate
		decision.Tier = tier.Name
		decision.BaseFee = tier.BaseFee
		decision.SeatChangeFee = tier.SeatChangeFee
		decision.AllowSeatChange = tier.AllowSeatChange
		decision.AllowPassengerUpdate = tier.AllowPassengerUpdate
		return decision
	}
	return decision
}

func (e Engine) ServiceFee(subtotal int64) int64 {
	return subtotal * e.ServiceFeePercent / 100
}
