package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/engine"
	"github.com/dusktreader/site-nine/internal/repo"
)

func adrCmd() *cobra.Command {
	adr := &cobra.Command{
		Use:   "adr",
		Short: "Manage architecture decision records",
		Long:  "ADRs record architecture decisions. Each has a markdown document under " + engine.ADRDir + " and can be linked to epics and tasks.",
	}
	adr.AddCommand(adrCreateCmd())
	adr.AddCommand(adrListCmd())
	adr.AddCommand(adrShowCmd())
	adr.AddCommand(adrUpdateCmd())
	adr.AddCommand(adrLinkCmd(true))
	adr.AddCommand(adrLinkCmd(false))
	return adr
}

const adrTemplate = `# %s: %s

**Status:** %s
**Date:** %s

## Context

## Decision

## Alternatives Considered

## Consequences
`

// writeADRDocument creates the markdown skeleton unless a file is already there.
func writeADRDocument(a domain.ADR) (bool, error) {
	dir := viper.GetString("workspace")
	if dir == "" {
		dir = "."
	}
	full := filepath.Join(dir, filepath.FromSlash(a.FilePath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return false, err
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, adrTemplate, a.ID, a.Title, a.Status, a.CreatedAt[:10])
	return err == nil, err
}

func adrCreateCmd() *cobra.Command {
	var opts engine.ADRCreateOptions
	var status string
	var noFile bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a new decision and write its document skeleton",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Status = domain.ADRStatus(status)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateADR(ctx, opts)
				if err != nil {
					return err
				}
				okf("created %s", a.ID)
				if !noFile {
					wrote, err := writeADRDocument(a)
					if err != nil {
						return fmt.Errorf("write %s: %w", a.FilePath, err)
					}
					if !wrote {
						warnf("%s already exists, left unchanged", a.FilePath)
					}
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "ADR id such as ADR-004 (allocated when omitted)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&status, "status", "", "PROPOSED, ACCEPTED, REJECTED, SUPERSEDED or DEPRECATED")
	cmd.Flags().StringVar(&opts.FilePath, "file", "", "document path relative to the workspace")
	cmd.Flags().BoolVar(&noFile, "no-file", false, "only record the decision")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func adrListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				adrs, err := e.ListADRs(ctx, domain.ADRStatus(status))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(adrs)
				}
				tw := newTable(table.Row{"ID", "Title", "Status", "File"})
				for _, a := range adrs {
					tw.AppendRow(table.Row{a.ID, a.Title, a.Status, a.FilePath})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func adrShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <adr-id>",
		Short: "Show a decision and what it is linked to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetADR(ctx, strings.ToUpper(args[0]))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("%s  %s  [%s]\n  file: %s\n", a.ID, a.Title, a.Status, a.FilePath)
				if len(a.EpicIDs) > 0 {
					fmt.Printf("  epics: %s\n", strings.Join(a.EpicIDs, ", "))
				}
				if len(a.TaskIDs) > 0 {
					fmt.Printf("  tasks: %s\n", strings.Join(a.TaskIDs, ", "))
				}
				return nil
			})
		},
	}
}

func adrUpdateCmd() *cobra.Command {
	var title, status, file string
	cmd := &cobra.Command{
		Use:   "update <adr-id>",
		Short: "Edit title, status or document path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u repo.ADRUpdate
			if cmd.Flags().Changed("title") {
				u.Title = &title
			}
			if cmd.Flags().Changed("status") {
				st, err := domain.ParseADRStatus(status)
				if err != nil {
					return err
				}
				u.Status = &st
			}
			if cmd.Flags().Changed("file") {
				u.FilePath = &file
			}
			if u.Empty() {
				return fmt.Errorf("nothing to update")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpdateADR(ctx, strings.ToUpper(args[0]), u)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&file, "file", "", "new document path")
	return cmd
}

// adrLinkCmd builds both link and unlink; exactly one of --epic or --task is required.
func adrLinkCmd(link bool) *cobra.Command {
	var epicID, taskID string
	use, short := "link", "Link a decision to an epic or task"
	if !link {
		use, short = "unlink", "Remove a decision's link to an epic or task"
	}
	cmd := &cobra.Command{
		Use:   use + " <adr-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, targetID := repo.ADRTargetEpic, epicID
			if taskID != "" {
				target, targetID = repo.ADRTargetTask, taskID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id := strings.ToUpper(args[0])
				var err error
				if link {
					_, err = e.LinkADR(ctx, id, target, targetID)
				} else {
					_, err = e.UnlinkADR(ctx, id, target, targetID)
				}
				if err != nil {
					return err
				}
				okf("%s %sed %s %s", id, use, target, targetID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&epicID, "epic", "", "epic id")
	cmd.Flags().StringVar(&taskID, "task", "", "task id")
	cmd.MarkFlagsOneRequired("epic", "task")
	cmd.MarkFlagsMutuallyExclusive("epic", "task")
	return cmd
}
