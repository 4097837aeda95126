package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dafibh/loansync/internal/service"
)

func newListCommand(app *App) *cobra.Command {
	var cursor string
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the loan files in the drive folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd.Context(), func(s *service.LoginSession) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tMODIFIED")

				next := cursor
				for {
					page, err := s.ListRecords(cmd.Context(), next)
					if err != nil {
						return err
					}
					for _, item := range page.Items {
						fmt.Fprintf(tw, "%s\t%s\t%s\n", item.ID, item.Name, item.ModifiedAt.Local().Format("2006-01-02 15:04"))
					}
					next = page.NextCursor
					if !all || next == "" {
						break
					}
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				if next != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "\nMore files: --cursor %q\n", next)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&cursor, "cursor", "", "continue a previous listing")
	cmd.Flags().BoolVar(&all, "all", false, "fetch every page")

	return cmd
}

func newShowCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <file-id>",
		Short: "Print a loan file and its plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd.Context(), func(s *service.LoginSession) error {
				c, err := s.Open(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printView(cmd, c.View())
			})
		},
	}
}

func newNewCommand(app *App) *cobra.Command {
	var flags termsFlags
	var name string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Calculate a plan and save it as a new loan file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			terms, err := flags.terms()
			if err != nil {
				return err
			}
			return app.withSession(cmd.Context(), func(s *service.LoginSession) error {
				ctx := cmd.Context()
				key, c, err := s.Create(ctx)
				if err != nil {
					return err
				}
				if _, err := c.Calculate(terms); err != nil {
					return err
				}
				if _, err := s.Save(ctx, key, name); err != nil {
					return err
				}
				view := c.View()
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n\n", view.FileName, view.FileID)
				return printView(cmd, view)
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "file name, generated when empty")

	return cmd
}

func newPayCommand(app *App) *cobra.Command {
	return mutateCommand(app, "pay <file-id>", "Record the next due payment", (*service.SyncController).MakePayment)
}

func newUndoCommand(app *App) *cobra.Command {
	return mutateCommand(app, "undo <file-id>", "Remove the latest payment", (*service.SyncController).UndoPayment)
}

func mutateCommand(app *App, use, short string, fn func(*service.SyncController) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd.Context(), func(s *service.LoginSession) error {
				ctx := cmd.Context()
				c, err := s.Open(ctx, args[0])
				if err != nil {
					return err
				}
				if err := fn(c); err != nil {
					return err
				}
				if err := c.Flush(ctx); err != nil {
					return err
				}
				return printView(cmd, c.View())
			})
		},
	}
}

func newRenameCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <file-id> <name>",
		Short: "Rename a loan file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd.Context(), func(s *service.LoginSession) error {
				c, err := s.Open(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := c.Rename(cmd.Context(), args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func printView(cmd *cobra.Command, view service.LoanView) error {
	if view.Record == nil {
		return fmt.Errorf("loan file %s has no record", view.FileID)
	}
	out := cmd.OutOrStdout()
	if view.FileName != "" {
		fmt.Fprintf(out, "File:            %s\n", view.FileName)
	}
	writeSummary(out, view.Record)
	return writePlan(out, view.Record)
}
