package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/dusktreader/site-nine/internal/app"
	"github.com/dusktreader/site-nine/internal/config"
	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/engine"
	"github.com/dusktreader/site-nine/internal/repo"
	"github.com/dusktreader/site-nine/internal/server"
)

func initCmd() *cobra.Command {
	var name string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the workspace config and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, res, err := app.Init(cmd.Context(), workspaceOptions(), name, force)
			if err != nil {
				return err
			}
			defer ws.Close()
			if viper.GetBool("json") {
				return printJSON(res)
			}
			if res.ConfigCreated {
				okf("wrote %s", res.ConfigPath)
			} else {
				fmt.Printf("kept existing %s\n", res.ConfigPath)
			}
			okf("database ready at %s", res.DatabasePath)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name (defaults to the directory name)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show task counts, active missions and pending reviews",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Status(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(struct {
						Project string `json:"project"`
						engine.Summary
					}{e.Config.Project.Name, s})
				}
				fmt.Printf("Project: %s\n", e.Config.Project.Name)
				tw := newTable(table.Row{"Status", "Tasks"})
				for _, st := range domain.TaskStatuses() {
					tw.AppendRow(table.Row{statusColor(string(st)), s.Tasks[st]})
				}
				tw.Render()
				fmt.Printf("Open epics: %d  Active missions: %d  Pending reviews: %d\n", s.OpenEpics, s.ActiveMissions, s.PendingReviews)
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				// oldest first reads like a log
				sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
				dim := color.New(color.Faint).SprintFunc()
				for _, evt := range events {
					fmt.Printf("%s %-18s %-8s %-12s %s %s\n", dim(evt.TS), evt.Type, evt.EntityKind, evt.EntityID, evt.ActorID, dim(evt.Payload))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Serves the workflow API with its OpenAPI document at /openapi.json. Set S9_JWT_SECRET to require HS256 bearer tokens.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := workspaceOptions()
			ws, err := app.Open(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer ws.Close()
			cfg := ws.Config
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if addr == "" {
				addr = config.DefaultAddr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			if basePath == "" {
				basePath = config.DefaultBasePath
			}
			logger := opts.Logger
			authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt-secret"), Logger: logger}
			if authCfg.JWTSecret == "" {
				warnf("S9_JWT_SECRET is not set; the API accepts unauthenticated requests")
			}
			handler, err := server.New(server.Config{Engine: ws.Engine, BasePath: basePath, Auth: authCfg, Logger: logger})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			if d := server.NewWebhookDispatcher(ws.Engine, logger); d != nil {
				if err := d.Prime(ctx); err != nil {
					logger.Warn("webhook cursor init failed", "error", err)
				}
				g.Go(func() error { return d.Run(ctx) })
			}
			fmt.Printf("Serving site-nine API on http://%s%s (OpenAPI at /openapi.json)\n", addr, basePath)
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, then "+config.DefaultAddr+")")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config, then "+config.DefaultBasePath+")")
	return cmd
}
