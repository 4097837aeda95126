package domain

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestBeginEdit_SeedsRemainingTerms(t *testing.T) {
	r := threePeriodRecord()
	_ = r.MakePayment(time.UnixMilli(2000))

	edit, err := BeginEdit(r)
	if err != nil {
		t.Fatalf("BeginEdit() error = %v", err)
	}
	// the form starts from the balance of the period about to be paid
	if !edit.Terms.Principal.Equal(dec("1010.1")) {
		t.Errorf("Principal = %s, want 1010.1", edit.Terms.Principal)
	}
	if edit.Terms.Periods != 2 {
		t.Errorf("Periods = %d, want 2", edit.Terms.Periods)
	}
	if !edit.Terms.AnnualRate.Equal(dec("12")) || edit.Terms.RepaymentType != RepaymentEqualPrincipalInterest {
		t.Errorf("unexpected terms %+v", edit.Terms)
	}
}

func TestBeginEdit_Rejections(t *testing.T) {
	if _, err := BeginEdit(nil); !errors.Is(err, ErrNotEditing) {
		t.Errorf("BeginEdit(nil) = %v, want ErrNotEditing", err)
	}

	r := threePeriodRecord()
	for i := 0; i < 3; i++ {
		_ = r.MakePayment(time.UnixMilli(int64(2000 + i)))
	}
	if _, err := BeginEdit(r); !errors.Is(err, ErrLoanCompleted) {
		t.Errorf("BeginEdit(completed) = %v, want ErrLoanCompleted", err)
	}
}

func TestLoanEdit_CancelRestoresSnapshot(t *testing.T) {
	r := threePeriodRecord()
	_ = r.MakePayment(time.UnixMilli(2000))
	want := r.Clone()

	edit, err := BeginEdit(r)
	if err != nil {
		t.Fatalf("BeginEdit() error = %v", err)
	}
	// mutating the live record must not leak into the snapshot
	_ = r.MakePayment(time.UnixMilli(3000))
	edit.Terms.Periods = 99

	got := edit.Cancel()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Cancel() = %+v, want %+v", got, want)
	}
	if !reflect.DeepEqual(edit.Previous(), want) {
		t.Error("Previous() differs from the snapshot")
	}
}

func TestLoanEdit_CommitMakesLinkedDraft(t *testing.T) {
	r := threePeriodRecord()
	edit, err := BeginEdit(r)
	if err != nil {
		t.Fatalf("BeginEdit() error = %v", err)
	}

	next := threePeriodRecord()
	next.LastModifiedAt = 4000
	draft := edit.Commit(next, "file-1")

	if draft.PrevFileID != "file-1" {
		t.Errorf("PrevFileID = %q, want file-1", draft.PrevFileID)
	}
	if draft.State() != LoanStateDraft || draft.LastSyncedAt != 0 {
		t.Errorf("State() = %s, LastSyncedAt = %d", draft.State(), draft.LastSyncedAt)
	}
	if draft.LastModifiedAt != 4000 {
		t.Errorf("LastModifiedAt = %d, want 4000", draft.LastModifiedAt)
	}
	if next.PrevFileID != "" || next.LastSyncedAt != 1000 {
		t.Error("Commit must not modify the computed record")
	}
}
