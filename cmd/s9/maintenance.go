package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dusktreader/site-nine/internal/engine"
)

func resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all tasks, epics, reviews, handoffs and missions",
		Long: `Deletes every workflow record and zeroes persona usage. Personas, ADR
records and the event log are kept. There is no undo.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				confirmation := engine.ResetConfirmation
				if !yes {
					s, err := e.Status(ctx)
					if err != nil {
						return err
					}
					total := 0
					for _, n := range s.Tasks {
						total += n
					}
					warnf("this deletes %d task(s), %d open epic(s) and every mission", total, s.OpenEpics)
					fmt.Printf("Type %q to continue: ", engine.ResetConfirmation)
					line, err := bufio.NewReader(os.Stdin).ReadString('\n')
					if err != nil && line == "" {
						return errors.New("reset cancelled")
					}
					confirmation = strings.TrimSpace(line)
					if confirmation != engine.ResetConfirmation {
						return errors.New("reset cancelled")
					}
				}
				counts, err := e.Reset(ctx, confirmation)
				if err != nil {
					return err
				}
				okf("reset: %d task(s), %d epic(s), %d mission(s) deleted", counts.Tasks, counts.Epics, counts.Missions)
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the typed confirmation")
	return cmd
}

func doctorCmd() *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the store for inconsistencies",
		Long:  "Reports orphaned references, drifted persona counters, stale epic statuses and suspicious task assignments. --fix repairs what it can in one transaction.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.Doctor(ctx, fix)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if err := printJSON(report); err != nil {
						return err
					}
				} else if len(report.Issues) == 0 {
					okf("no issues found")
				} else {
					tw := newTable(table.Row{"Check", "Severity", "Subject", "Issue", "State"})
					for _, is := range report.Issues {
						tw.AppendRow(table.Row{is.Check, severityColor(is.Severity), is.Subject, is.Message, issueState(is)})
					}
					tw.Render()
				}
				if !report.Healthy() {
					if fix {
						return errors.New("some issues need manual repair")
					}
					return errors.New("issues found; rerun with --fix to repair")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "repair fixable issues")
	return cmd
}

func severityColor(s engine.Severity) string {
	if s == engine.SeverityError {
		return color.New(color.FgRed).Sprint(s)
	}
	return color.New(color.FgYellow).Sprint(s)
}

func issueState(is engine.DoctorIssue) string {
	switch {
	case is.Fixed:
		return color.New(color.FgGreen).Sprint("fixed")
	case is.Fixable:
		return "fixable"
	}
	return ""
}
