package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/dafibh/loansync/internal/domain"
	"github.com/dafibh/loansync/internal/service"
)

type termsFlags struct {
	principal string
	periods   int
	rate      string
	method    string
}

func (f *termsFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.principal, "principal", "", "loan principal (required)")
	cmd.Flags().IntVar(&f.periods, "periods", 0, "number of monthly periods (required)")
	cmd.Flags().StringVar(&f.rate, "rate", "", "annual interest rate in percent (required)")
	cmd.Flags().StringVar(&f.method, "type", string(domain.RepaymentEqualPrincipalInterest),
		"repayment type: EQUAL_PRINCIPAL_INTEREST or EQUAL_PRINCIPAL")
	_ = cmd.MarkFlagRequired("principal")
	_ = cmd.MarkFlagRequired("periods")
	_ = cmd.MarkFlagRequired("rate")
}

func (f *termsFlags) terms() (domain.LoanTerms, error) {
	principal, err := decimal.NewFromString(f.principal)
	if err != nil {
		return domain.LoanTerms{}, fmt.Errorf("invalid principal %q: %w", f.principal, err)
	}
	rate, err := decimal.NewFromString(f.rate)
	if err != nil {
		return domain.LoanTerms{}, fmt.Errorf("invalid rate %q: %w", f.rate, err)
	}
	return domain.LoanTerms{
		Principal:     principal,
		Periods:       f.periods,
		AnnualRate:    rate,
		RepaymentType: domain.RepaymentType(f.method),
	}, nil
}

func newScheduleCommand() *cobra.Command {
	var flags termsFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print a repayment plan without saving it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			terms, err := flags.terms()
			if err != nil {
				return err
			}
			record, err := service.ComputeSchedule(terms)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(record)
			}
			writeSummary(cmd.OutOrStdout(), record)
			return writePlan(cmd.OutOrStdout(), record)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the record as JSON")

	return cmd
}

func writeSummary(w io.Writer, record *domain.LoanRecord) {
	s := record.Summary()
	fmt.Fprintf(w, "Principal:       %s\n", record.Principal.StringFixed(2))
	fmt.Fprintf(w, "Annual rate:     %s%%\n", record.AnnualRate.String())
	fmt.Fprintf(w, "Repayment:       %s\n", record.Normalize().RepaymentType)
	fmt.Fprintf(w, "Status:          %s, %s\n", record.State(), record.SyncStatus())
	fmt.Fprintf(w, "Paid:            %d of %d periods (%s)\n", s.PaidPeriods, len(record.Plan), s.PaidAmount.StringFixed(2))
	fmt.Fprintf(w, "Next payment:    %s\n", s.NextPayment.StringFixed(2))
	fmt.Fprintf(w, "Remaining:       %s\n", s.RemainingPrincipal.StringFixed(2))
	fmt.Fprintf(w, "Total interest:  %s\n", s.TotalInterest.StringFixed(2))
	fmt.Fprintf(w, "Total payment:   %s\n\n", s.TotalPayment.StringFixed(2))
}

func writePlan(w io.Writer, record *domain.LoanRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "PERIOD\tPAYMENT\tPRINCIPAL\tINTEREST\tREMAINING\tPAID\t")
	for i, e := range record.Plan {
		paid := ""
		if i < record.CurrentPeriod {
			paid = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t\n",
			e.Period,
			e.Payment.StringFixed(2),
			e.Principal.StringFixed(2),
			e.Interest.StringFixed(2),
			e.Remaining.StringFixed(2),
			paid,
		)
	}
	return tw.Flush()
}
