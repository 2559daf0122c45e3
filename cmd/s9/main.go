package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dusktreader/site-nine/internal/app"
	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/engine"
)

var rootCmd = &cobra.Command{
	Use:   "s9",
	Short: "site-nine workflow CLI",
	Long: `s9 coordinates work between agent missions in a single workspace.

Tasks carry role and priority in their IDs (ENG-H-0001) and move through
TODO, UNDERWAY, PAUSED, BLOCKED, REVIEW, COMPLETE and ABORTED. Epics group
tasks and derive their status from them. Reviews can gate a task so it
cannot be claimed until a reviewer decides. Handoffs pass a task from one
mission to another role. ADRs record architecture decisions and link to
epics and tasks. Missions are agent sessions run under a persona and get a
stable codename. Every change is written to the event log, viewable with
's9 log tail'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.New(color.FgRed).Sprint("error:"), err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("S9")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "local-user", "actor recorded on events")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(epicCmd())
	rootCmd.AddCommand(adrCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(handoffCmd())
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(personaCmd())
	rootCmd.AddCommand(nameCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- helpers ---

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func workspaceOptions() app.Options {
	return app.Options{
		Dir:    viper.GetString("workspace"),
		Actor:  viper.GetString("actor"),
		Logger: newLogger(),
	}
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	ws, err := app.Open(ctx, workspaceOptions())
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws.Engine)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

func warnf(format string, args ...any) {
	fmt.Fprintln(os.Stderr, color.New(color.FgYellow).Sprintf("warning: "+format, args...))
}

func okf(format string, args ...any) {
	if viper.GetBool("json") {
		return
	}
	fmt.Println(color.New(color.FgGreen).Sprintf(format, args...))
}

// statusColor paints task, epic, review and handoff statuses.
func statusColor(status string) string {
	switch status {
	case string(domain.TaskComplete), string(domain.ReviewApproved), string(domain.HandoffCompleted):
		return color.New(color.FgGreen).Sprint(status)
	case string(domain.TaskUnderway), string(domain.HandoffAccepted):
		return color.New(color.FgCyan).Sprint(status)
	case string(domain.TaskBlocked), string(domain.TaskReview), string(domain.ReviewPending), string(domain.TaskPaused):
		return color.New(color.FgYellow).Sprint(status)
	case string(domain.TaskAborted), string(domain.ReviewRejected), string(domain.HandoffCancelled):
		return color.New(color.FgRed).Sprint(status)
	default:
		return status
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return id, nil
}

func parseRoleFlag(s string) (domain.Role, error) {
	if s == "" {
		return "", nil
	}
	return domain.ParseRole(s)
}

func parsePriorityFlag(s string) (domain.Priority, error) {
	if s == "" {
		return "", nil
	}
	return domain.ParsePriority(s)
}
