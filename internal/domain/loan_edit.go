package domain

import "errors"

var ErrNotEditing = errors.New("loan is not being edited")

// LoanEdit holds a record aside while its terms are revised.
// Terms is the provisional form; the snapshot is only ever handed back
// whole by Cancel.
type LoanEdit struct {
	Terms    LoanTerms
	previous *LoanRecord
}

// BeginEdit snapshots r and seeds the form with the periods still to pay and
// the plan balance at the current period.
func BeginEdit(r *LoanRecord) (*LoanEdit, error) {
	if r == nil {
		return nil, ErrNotEditing
	}
	if r.CurrentPeriod >= len(r.Plan) {
		return nil, ErrLoanCompleted
	}
	return &LoanEdit{
		Terms: LoanTerms{
			Principal:     r.Plan[r.CurrentPeriod].Remaining,
			Periods:       r.Periods - r.CurrentPeriod,
			AnnualRate:    r.AnnualRate,
			RepaymentType: r.Normalize().RepaymentType,
		},
		previous: r.Clone(),
	}, nil
}

// Previous returns a copy of the record held aside
func (e *LoanEdit) Previous() *LoanRecord {
	return e.previous.Clone()
}

// Cancel returns the exact pre-edit record, timestamps and history included
func (e *LoanEdit) Cancel() *LoanRecord {
	return e.previous
}

// Commit turns a freshly computed plan into the Draft that replaces the
// record being edited. prevFileID links the draft to the file it supersedes.
func (e *LoanEdit) Commit(next *LoanRecord, prevFileID string) *LoanRecord {
	draft := next.Clone()
	draft.PrevFileID = prevFileID
	draft.LastSyncedAt = 0
	return draft
}
