package service

import (
	"github.com/dafibh/loansync/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	one             = decimal.NewFromInt(1)
	hundred         = decimal.NewFromInt(100)
	monthsPerYear   = decimal.NewFromInt(12)
	payoffTolerance = decimal.New(1, -2)
)

// growthPrecision bounds the digits kept while compounding (1+r)^n
const growthPrecision = 20

// ComputeSchedule builds the amortization plan for terms. Invalid terms are
// rejected with an error wrapping domain.ErrLoanTermsInvalid.
// The returned record has no payments and zero timestamps; callers stamp them.
func ComputeSchedule(terms domain.LoanTerms) (*domain.LoanRecord, error) {
	terms = terms.Normalize()
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	rate := MonthlyRate(terms.AnnualRate)

	var plan []domain.PlanEntry
	if terms.RepaymentType == domain.RepaymentEqualPrincipalInterest {
		plan = equalPrincipalInterestPlan(terms.Principal, terms.Periods, rate)
	} else {
		plan = equalPrincipalPlan(terms.Principal, terms.Periods, rate)
	}

	for i := range plan {
		if !plan[i].Payment.IsInteger() {
			plan[i].Payment = plan[i].Payment.Round(0)
		}
	}

	return &domain.LoanRecord{
		LoanTerms:      terms,
		Plan:           plan,
		CurrentPeriod:  0,
		PaymentHistory: []domain.PaymentRecord{},
	}, nil
}

// MonthlyRate converts an annual percentage rate to a monthly fraction
func MonthlyRate(annualRatePercent decimal.Decimal) decimal.Decimal {
	return annualRatePercent.Div(hundred).Div(monthsPerYear)
}

// LevelPayment is the annuity payment for principal over periods at the
// monthly rate, rounded to a whole currency unit
func LevelPayment(principal decimal.Decimal, periods int, rate decimal.Decimal) decimal.Decimal {
	growth := compound(one.Add(rate), periods)
	return principal.Mul(rate).Mul(growth).Div(growth.Sub(one)).Round(0)
}

func compound(base decimal.Decimal, n int) decimal.Decimal {
	result := one
	for i := 0; i < n; i++ {
		result = result.Mul(base).Round(growthPrecision)
	}
	return result
}

// equalPrincipalInterestPlan keeps the payment fixed and sweeps the rounding
// drift into the last entry, or into the previous entry when the level
// payment would overshoot the balance early.
func equalPrincipalInterestPlan(principal decimal.Decimal, periods int, rate decimal.Decimal) []domain.PlanEntry {
	payment := LevelPayment(principal, periods, rate)
	plan := make([]domain.PlanEntry, 0, periods)
	remaining := principal

	for i := 1; i <= periods; i++ {
		interest := remaining.Mul(rate)

		if i == periods {
			plan = append(plan, payoffEntry(i, remaining, interest))
			break
		}

		principalPart := payment.Sub(interest).Round(2)
		next := remaining.Sub(principalPart)
		if next.IsNegative() {
			if len(plan) == 0 {
				plan = append(plan, payoffEntry(i, remaining, interest))
				break
			}
			last := &plan[len(plan)-1]
			last.Principal = last.Principal.Add(last.Remaining)
			last.Remaining = decimal.Zero
			last.Payment = last.Principal.Add(last.Interest).Round(0)
			break
		}

		remaining = next
		plan = append(plan, domain.PlanEntry{
			Period:    i,
			Payment:   payment,
			Principal: principalPart,
			Interest:  interest.Round(2),
			Remaining: remaining.Round(2),
		})
	}

	return plan
}

// payoffEntry settles the whole outstanding balance in one period
func payoffEntry(period int, remaining, interest decimal.Decimal) domain.PlanEntry {
	principalPart := remaining.Round(2)
	payment := remaining.Add(interest).Round(0)
	return domain.PlanEntry{
		Period:    period,
		Payment:   payment,
		Principal: principalPart,
		Interest:  payment.Sub(principalPart).Round(2),
		Remaining: decimal.Zero,
	}
}

// equalPrincipalPlan repays a fixed share each period; the last share is the
// residual so the shares add up to principal exactly.
func equalPrincipalPlan(principal decimal.Decimal, periods int, rate decimal.Decimal) []domain.PlanEntry {
	base := principal.Div(decimal.NewFromInt(int64(periods))).Round(2)
	plan := make([]domain.PlanEntry, 0, periods)
	allocated := decimal.Zero

	for i := 1; i <= periods; i++ {
		share := base
		if i == periods {
			share = principal.Sub(allocated).Round(2)
		}
		before := principal.Sub(allocated)
		allocated = allocated.Add(share)

		interest := before.Mul(rate)
		payment := share.Add(interest).Round(0)
		// rounding of the payment is absorbed by the recorded interest
		recorded := payment.Sub(share).Round(2)

		plan = append(plan, domain.PlanEntry{
			Period:    i,
			Payment:   payment,
			Principal: share,
			Interest:  recorded,
			Remaining: decimal.Max(decimal.Zero, before.Sub(share)).Round(2),
		})
	}

	last := &plan[len(plan)-1]
	if last.Remaining.GreaterThan(payoffTolerance) {
		last.Principal = last.Principal.Add(last.Remaining)
		last.Remaining = decimal.Zero
		last.Payment = last.Principal.Add(last.Interest).Round(0)
		last.Interest = last.Payment.Sub(last.Principal)
	}

	return plan
}
