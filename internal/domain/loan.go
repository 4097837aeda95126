package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Persisted loan files store every money field as a JSON number.
	decimal.MarshalJSONWithoutQuotes = true
}

var (
	ErrLoanTermsInvalid     = errors.New("invalid loan terms")
	ErrLoanPrincipalInvalid = fmt.Errorf("%w: principal must be positive", ErrLoanTermsInvalid)
	ErrLoanPeriodsInvalid   = fmt.Errorf("%w: number of periods must be at least 1", ErrLoanTermsInvalid)
	ErrLoanRateInvalid      = fmt.Errorf("%w: annual rate must be positive", ErrLoanTermsInvalid)
	ErrRepaymentTypeInvalid = fmt.Errorf("%w: unknown repayment type", ErrLoanTermsInvalid)

	ErrNoPaymentDue    = errors.New("all periods are already paid")
	ErrNoPaymentToUndo = errors.New("no payment to undo")
	ErrLoanCompleted   = errors.New("loan is already paid off")
)

// RepaymentType selects the amortization method
type RepaymentType string

const (
	RepaymentEqualPrincipalInterest RepaymentType = "EQUAL_PRINCIPAL_INTEREST"
	RepaymentEqualPrincipal         RepaymentType = "EQUAL_PRINCIPAL"
)

// IsValid reports whether t is one of the supported repayment methods
func (t RepaymentType) IsValid() bool {
	return t == RepaymentEqualPrincipalInterest || t == RepaymentEqualPrincipal
}

// LoanTerms are the user supplied inputs a plan is generated from
type LoanTerms struct {
	Principal     decimal.Decimal `json:"principal"`
	Periods       int             `json:"periods"`
	AnnualRate    decimal.Decimal `json:"annualRate"`
	RepaymentType RepaymentType   `json:"repaymentType"`
}

// Normalize fills the repayment type default used by the calculator form
func (t LoanTerms) Normalize() LoanTerms {
	if t.RepaymentType == "" {
		t.RepaymentType = RepaymentEqualPrincipalInterest
	}
	return t
}

// Validate checks the terms. Zero values count as absent.
func (t LoanTerms) Validate() error {
	if !t.Principal.IsPositive() {
		return ErrLoanPrincipalInvalid
	}
	if t.Periods <= 0 {
		return ErrLoanPeriodsInvalid
	}
	if !t.AnnualRate.IsPositive() {
		return ErrLoanRateInvalid
	}
	if !t.Normalize().RepaymentType.IsValid() {
		return ErrRepaymentTypeInvalid
	}
	return nil
}

// PlanEntry is one period of an amortization plan.
// Payment is always a whole currency unit.
type PlanEntry struct {
	Period    int             `json:"period"`
	Payment   decimal.Decimal `json:"payment"`
	Principal decimal.Decimal `json:"principal"`
	Interest  decimal.Decimal `json:"interest"`
	Remaining decimal.Decimal `json:"remaining"`
}

// PaymentRecord is a plan entry that has been paid
type PaymentRecord struct {
	Date time.Time `json:"date"`
	PlanEntry
}

// SyncStatus is derived from the record timestamps, never stored
type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusPending SyncStatus = "pending-local-changes"
)

// LoanState is the lifecycle position of a record
type LoanState string

const (
	LoanStateDraft     LoanState = "draft"
	LoanStateActive    LoanState = "active"
	LoanStateCompleted LoanState = "completed"
	LoanStateEditing   LoanState = "editing"
)

// LoanRecord is the full state of one loan as stored in its drive file.
// CurrentPeriod always equals len(PaymentHistory).
type LoanRecord struct {
	LoanTerms
	Plan           []PlanEntry     `json:"plan"`
	CurrentPeriod  int             `json:"currentPeriod"`
	PaymentHistory []PaymentRecord `json:"paymentHistory"`
	LastModifiedAt int64           `json:"lastModifiedAt"`
	LastSyncedAt   int64           `json:"lastSyncedAt"`
	PrevFileID     string          `json:"prev_file_id,omitempty"`
}

// Millis converts t to the Unix millisecond timestamps used in loan files
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// Terms returns the loan terms of the record
func (r *LoanRecord) Terms() LoanTerms {
	return r.LoanTerms
}

// Clone returns a deep copy of the record
func (r *LoanRecord) Clone() *LoanRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Plan != nil {
		c.Plan = append([]PlanEntry(nil), r.Plan...)
	}
	if r.PaymentHistory != nil {
		c.PaymentHistory = append([]PaymentRecord(nil), r.PaymentHistory...)
	}
	return &c
}

// MakePayment pays the next planned period
func (r *LoanRecord) MakePayment(now time.Time) error {
	if r.CurrentPeriod >= len(r.Plan) {
		return ErrNoPaymentDue
	}
	entry := r.Plan[r.CurrentPeriod]
	history := make([]PaymentRecord, len(r.PaymentHistory), len(r.PaymentHistory)+1)
	copy(history, r.PaymentHistory)
	r.PaymentHistory = append(history, PaymentRecord{Date: now.UTC(), PlanEntry: entry})
	r.CurrentPeriod = len(r.PaymentHistory)
	r.touch(now)
	return nil
}

// UndoPayment drops the most recent payment
func (r *LoanRecord) UndoPayment(now time.Time) error {
	if len(r.PaymentHistory) == 0 {
		return ErrNoPaymentToUndo
	}
	r.PaymentHistory = append([]PaymentRecord(nil), r.PaymentHistory[:len(r.PaymentHistory)-1]...)
	// derived from the history length, not decremented, so a skewed file heals
	r.CurrentPeriod = len(r.PaymentHistory)
	r.touch(now)
	return nil
}

// touch stamps a local change. The stamp stays ahead of LastSyncedAt so a
// change made in the same millisecond as the last upload still reads dirty.
func (r *LoanRecord) touch(now time.Time) {
	stamp := Millis(now)
	if stamp <= r.LastSyncedAt {
		stamp = r.LastSyncedAt + 1
	}
	r.LastModifiedAt = stamp
}

// Repair checks a record read from storage. CurrentPeriod must lie within
// the plan and is then re-derived from the payment history.
func (r *LoanRecord) Repair() error {
	if r.CurrentPeriod < 0 || r.CurrentPeriod > len(r.Plan) {
		return fmt.Errorf("%w: current period %d outside plan of %d", ErrInvalidInput, r.CurrentPeriod, len(r.Plan))
	}
	if len(r.PaymentHistory) > len(r.Plan) {
		return fmt.Errorf("%w: %d payments for a plan of %d", ErrInvalidInput, len(r.PaymentHistory), len(r.Plan))
	}
	if r.PaymentHistory == nil {
		r.PaymentHistory = []PaymentRecord{}
	}
	r.CurrentPeriod = len(r.PaymentHistory)
	return nil
}

// IsDirty reports whether the record has local changes not yet uploaded
func (r *LoanRecord) IsDirty() bool {
	return r.LastModifiedAt > r.LastSyncedAt
}

// SyncStatus derives the sync status from the timestamps
func (r *LoanRecord) SyncStatus() SyncStatus {
	if r.IsDirty() {
		return SyncStatusPending
	}
	return SyncStatusSynced
}

// State returns Draft for records never uploaded, then Active or Completed
func (r *LoanRecord) State() LoanState {
	switch {
	case r.LastSyncedAt == 0:
		return LoanStateDraft
	case r.CurrentPeriod >= len(r.Plan):
		return LoanStateCompleted
	default:
		return LoanStateActive
	}
}

// LoanSummary is the at-a-glance view of a record
type LoanSummary struct {
	NextPayment        decimal.Decimal `json:"nextPayment"`
	RemainingPrincipal decimal.Decimal `json:"remainingPrincipal"`
	TotalPayment       decimal.Decimal `json:"totalPayment"`
	TotalInterest      decimal.Decimal `json:"totalInterest"`
	PaidAmount         decimal.Decimal `json:"paidAmount"`
	PaidPeriods        int             `json:"paidPeriods"`
	RemainingPeriods   int             `json:"remainingPeriods"`
}

// Summary computes the figures shown above the plan table
func (r *LoanRecord) Summary() LoanSummary {
	s := LoanSummary{
		NextPayment:        decimal.Zero,
		RemainingPrincipal: decimal.Zero,
		TotalPayment:       decimal.Zero,
		TotalInterest:      decimal.Zero,
		PaidAmount:         decimal.Zero,
		PaidPeriods:        r.CurrentPeriod,
	}

	current := r.CurrentPeriod
	switch {
	case current == 0:
		s.RemainingPrincipal = r.Principal
	case current <= len(r.Plan):
		s.RemainingPrincipal = r.Plan[current-1].Remaining
	}
	if current < len(r.Plan) {
		s.NextPayment = r.Plan[current].Payment
		s.RemainingPeriods = len(r.Plan) - current
	}

	for _, e := range r.Plan {
		s.TotalPayment = s.TotalPayment.Add(e.Payment)
		s.TotalInterest = s.TotalInterest.Add(e.Interest)
	}
	for _, p := range r.PaymentHistory {
		s.PaidAmount = s.PaidAmount.Add(p.Payment)
	}
	return s
}
