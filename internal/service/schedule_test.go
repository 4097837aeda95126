package service

import (
	"fmt"
	"testing"

	"github.com/dafibh/loansync/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sumPrincipal(plan []domain.PlanEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range plan {
		total = total.Add(e.Principal)
	}
	return total
}

func TestComputeSchedule_Properties(t *testing.T) {
	principals := []string{"1000", "10000", "12345.67", "250000", "99.99"}
	periods := []int{1, 2, 3, 12, 36, 120}
	rates := []string{"0.0001", "3.2", "5.5", "18", "36"}
	methods := []domain.RepaymentType{domain.RepaymentEqualPrincipalInterest, domain.RepaymentEqualPrincipal}

	for _, method := range methods {
		for _, p := range principals {
			for _, n := range periods {
				for _, r := range rates {
					name := fmt.Sprintf("%s/%s/%d/%s", method, p, n, r)
					t.Run(name, func(t *testing.T) {
						record, err := ComputeSchedule(domain.LoanTerms{
							Principal:     d(p),
							Periods:       n,
							AnnualRate:    d(r),
							RepaymentType: method,
						})
						require.NoError(t, err)
						plan := record.Plan
						require.NotEmpty(t, plan)
						assert.LessOrEqual(t, len(plan), n)

						// conservation
						assert.True(t, sumPrincipal(plan).Equal(d(p)), "principal sum %s", sumPrincipal(plan))

						previous := d(p)
						for i, e := range plan {
							assert.Equal(t, i+1, e.Period)
							assert.True(t, e.Payment.IsInteger(), "payment %s not integer", e.Payment)
							assert.True(t, e.Remaining.LessThanOrEqual(previous), "remaining increased at period %d", e.Period)
							assert.False(t, e.Remaining.IsNegative())
							previous = e.Remaining
						}
						assert.True(t, plan[len(plan)-1].Remaining.IsZero())
					})
				}
			}
		}
	}
}

func TestComputeSchedule_AnnuityLevelPayment(t *testing.T) {
	record, err := ComputeSchedule(domain.LoanTerms{
		Principal:     d("10000"),
		Periods:       12,
		AnnualRate:    d("5.5"),
		RepaymentType: domain.RepaymentEqualPrincipalInterest,
	})
	require.NoError(t, err)
	require.Len(t, record.Plan, 12)

	for _, e := range record.Plan[:11] {
		assert.True(t, e.Payment.Equal(d("858")), "period %d payment %s", e.Period, e.Payment)
	}

	last := record.Plan[11]
	assert.True(t, last.Remaining.IsZero())
	assert.True(t, last.Principal.Equal(record.Plan[10].Remaining))
	assert.True(t, last.Payment.Sub(last.Principal).Equal(last.Interest))

	// interest shrinks as the balance is repaid
	assert.True(t, record.Plan[0].Interest.GreaterThan(record.Plan[10].Interest))
	assert.True(t, record.Plan[0].Interest.Equal(d("45.83")))
}

func TestComputeSchedule_EqualPrincipalResidual(t *testing.T) {
	record, err := ComputeSchedule(domain.LoanTerms{
		Principal:     d("10000"),
		Periods:       3,
		AnnualRate:    d("0.0001"),
		RepaymentType: domain.RepaymentEqualPrincipal,
	})
	require.NoError(t, err)
	require.Len(t, record.Plan, 3)

	assert.True(t, record.Plan[0].Principal.Equal(d("3333.33")))
	assert.True(t, record.Plan[1].Principal.Equal(d("3333.33")))
	assert.True(t, record.Plan[2].Principal.Equal(d("3333.34")))
	assert.True(t, sumPrincipal(record.Plan).Equal(d("10000")))
	assert.True(t, record.Plan[2].Remaining.IsZero())
}

func TestComputeSchedule_EqualPrincipalDecliningPayments(t *testing.T) {
	record, err := ComputeSchedule(domain.LoanTerms{
		Principal:     d("120000"),
		Periods:       12,
		AnnualRate:    d("6"),
		RepaymentType: domain.RepaymentEqualPrincipal,
	})
	require.NoError(t, err)

	assert.True(t, record.Plan[0].Payment.Equal(d("10600")))
	for i := 1; i < len(record.Plan); i++ {
		assert.True(t, record.Plan[i].Payment.LessThanOrEqual(record.Plan[i-1].Payment))
	}
}

func TestComputeSchedule_OvershootCollapsesPlan(t *testing.T) {
	// the integer level payment repays the loan before the last period
	record, err := ComputeSchedule(domain.LoanTerms{
		Principal:     d("100"),
		Periods:       60,
		AnnualRate:    d("0.0001"),
		RepaymentType: domain.RepaymentEqualPrincipalInterest,
	})
	require.NoError(t, err)

	assert.Less(t, len(record.Plan), 60)
	assert.True(t, sumPrincipal(record.Plan).Equal(d("100")))
	assert.True(t, record.Plan[len(record.Plan)-1].Remaining.IsZero())
}

func TestComputeSchedule_SinglePeriod(t *testing.T) {
	record, err := ComputeSchedule(domain.LoanTerms{
		Principal:     d("5000"),
		Periods:       1,
		AnnualRate:    d("12"),
		RepaymentType: domain.RepaymentEqualPrincipalInterest,
	})
	require.NoError(t, err)
	require.Len(t, record.Plan, 1)

	assert.True(t, record.Plan[0].Principal.Equal(d("5000")))
	assert.True(t, record.Plan[0].Payment.Equal(d("5050")))
	assert.True(t, record.Plan[0].Interest.Equal(d("50")))
}

func TestComputeSchedule_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		terms    domain.LoanTerms
		expected error
	}{
		{"zero principal", domain.LoanTerms{Principal: d("0"), Periods: 12, AnnualRate: d("5.5")}, domain.ErrLoanPrincipalInvalid},
		{"negative principal", domain.LoanTerms{Principal: d("-1"), Periods: 12, AnnualRate: d("5.5")}, domain.ErrLoanPrincipalInvalid},
		{"zero periods", domain.LoanTerms{Principal: d("1000"), Periods: 0, AnnualRate: d("5.5")}, domain.ErrLoanPeriodsInvalid},
		{"zero rate", domain.LoanTerms{Principal: d("1000"), Periods: 12, AnnualRate: d("0")}, domain.ErrLoanRateInvalid},
		{"unknown method", domain.LoanTerms{Principal: d("1000"), Periods: 12, AnnualRate: d("5"), RepaymentType: "BALLOON"}, domain.ErrRepaymentTypeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := ComputeSchedule(tt.terms)
			assert.Nil(t, record)
			assert.ErrorIs(t, err, tt.expected)
			assert.ErrorIs(t, err, domain.ErrLoanTermsInvalid)
		})
	}
}

func TestComputeSchedule_DefaultsRepaymentType(t *testing.T) {
	record, err := ComputeSchedule(domain.LoanTerms{Principal: d("1000"), Periods: 10, AnnualRate: d("5")})
	require.NoError(t, err)

	assert.Equal(t, domain.RepaymentEqualPrincipalInterest, record.RepaymentType)
	assert.Zero(t, record.CurrentPeriod)
	assert.Empty(t, record.PaymentHistory)
	assert.Zero(t, record.LastModifiedAt)
	assert.Zero(t, record.LastSyncedAt)
}

func TestMonthlyRate(t *testing.T) {
	assert.True(t, MonthlyRate(d("12")).Equal(d("0.01")))
}
