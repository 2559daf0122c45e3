package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dusktreader/site-nine/internal/codename"
	"github.com/dusktreader/site-nine/internal/config"
	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/engine"
	"github.com/dusktreader/site-nine/internal/repo"
)

func missionCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "mission",
		Short: "Start and end agent missions",
	}
	m.AddCommand(missionStartCmd())
	m.AddCommand(missionEndCmd())
	m.AddCommand(missionListCmd())
	m.AddCommand(missionShowCmd())
	m.AddCommand(missionUpdateCmd())
	return m
}

func missionStartCmd() *cobra.Command {
	var persona, role, objective string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a mission (persona suggested when omitted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				name := persona
				if name == "" {
					p, err := e.SuggestPersona(ctx, r, nil)
					if err != nil {
						return err
					}
					name = p.Name
				}
				m, err := e.StartMission(ctx, name, r, objective)
				if err != nil {
					return err
				}
				okf("mission %d started: %s (%s)", m.ID, m.Codename, m.PersonaName)
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&persona, "persona", "", "persona name")
	cmd.Flags().StringVar(&role, "role", "", "mission role")
	cmd.Flags().StringVar(&objective, "objective", "", "what the mission is for")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func missionEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end <mission-id>",
		Short: "End a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "mission")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.EndMission(ctx, id)
				if err != nil {
					return err
				}
				okf("mission %d ended", m.ID)
				return printJSONOrTable(m)
			})
		},
	}
}

func missionListCmd() *cobra.Command {
	var role string
	var f repo.MissionFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if f.Role, err = parseRoleFlag(role); err != nil {
				return err
			}
			f.Persona = strings.ToLower(f.Persona)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListMissions(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Codename", "Persona", "Role", "Started", "Ended"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.ID, m.Codename, m.PersonaName, m.Role, m.StartTime, deref(m.EndTime)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&f.ActiveOnly, "active", false, "only missions that have not ended")
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	cmd.Flags().StringVar(&f.Persona, "persona", "", "persona filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum rows")
	return cmd
}

func missionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <mission-id>",
		Short: "Show a mission and the tasks it holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "mission")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.GetMission(ctx, id)
				if err != nil {
					return err
				}
				tasks, err := e.ListTasks(ctx, repo.TaskFilters{MissionID: &id})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(struct {
						domain.Mission
						Tasks []domain.Task `json:"tasks"`
					}{m, tasks})
				}
				state := "active"
				if !m.Active() {
					state = "ended " + *m.EndTime
				}
				fmt.Printf("%d  %s  %s/%s  %s\n", m.ID, m.Codename, m.PersonaName, m.Role, state)
				if m.Objective != "" {
					fmt.Printf("  objective: %s\n", m.Objective)
				}
				for _, t := range tasks {
					fmt.Printf("  %s  %s  [%s]\n", t.ID, t.Title, statusColor(string(t.Status)))
				}
				return nil
			})
		},
	}
}

func missionUpdateCmd() *cobra.Command {
	var objective, role string
	cmd := &cobra.Command{
		Use:   "update <mission-id>",
		Short: "Edit a mission's objective or role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "mission")
			if err != nil {
				return err
			}
			var u repo.MissionUpdate
			if cmd.Flags().Changed("objective") {
				u.Objective = &objective
			}
			if cmd.Flags().Changed("role") {
				r := domain.Role(role)
				u.Role = &r
			}
			if u.Objective == nil && u.Role == nil {
				return fmt.Errorf("nothing to update")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.UpdateMission(ctx, id, u)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&objective, "objective", "", "new objective")
	cmd.Flags().StringVar(&role, "role", "", "new role")
	return cmd
}

func personaCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "persona",
		Short: "Browse the persona catalog",
	}
	p.AddCommand(personaAddCmd())
	p.AddCommand(personaListCmd())
	p.AddCommand(personaSuggestCmd())
	return p
}

func personaAddCmd() *cobra.Command {
	var seed config.PersonaSeed
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a persona to this workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.AddPersona(ctx, seed)
				if err != nil {
					return err
				}
				okf("added %s (%s)", p.Name, p.Role)
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&seed.Name, "name", "", "lowercase persona name")
	cmd.Flags().StringVar(&seed.Role, "role", "", "role the persona serves")
	cmd.Flags().StringVar(&seed.Mythology, "mythology", "", "source mythology")
	cmd.Flags().StringVar(&seed.Description, "description", "", "short description")
	for _, name := range []string{"name", "role", "mythology"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func personaListCmd() *cobra.Command {
	var role string
	var f repo.PersonaFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List personas",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if f.Role, err = parseRoleFlag(role); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListPersonas(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"Name", "Role", "Mythology", "Missions", "Last mission"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.Name, p.Role, p.Mythology, p.MissionCount, deref(p.LastMissionAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	cmd.Flags().BoolVar(&f.UnusedOnly, "unused", false, "only personas with no missions")
	cmd.Flags().BoolVar(&f.ByUsage, "by-usage", false, "sort by mission count")
	return cmd
}

func personaSuggestCmd() *cobra.Command {
	var role string
	var exclude []string
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest the least used persona for a role",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.SuggestPersona(ctx, r, exclude)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("%s (%s, %d missions)\n", p.Name, p.Mythology, p.MissionCount)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "persona names to skip")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func nameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "name <mission-id>...",
		Short: "Preview the codename for mission ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := make([]map[string]any, 0, len(args))
			for _, a := range args {
				id, err := parseID(a, "mission")
				if err != nil {
					return err
				}
				out = append(out, map[string]any{"mission_id": id, "codename": codename.Generate(id)})
			}
			if viper.GetBool("json") {
				return printJSON(out)
			}
			for _, o := range out {
				fmt.Printf("%d\t%s\n", o["mission_id"], o["codename"])
			}
			return nil
		},
	}
}
