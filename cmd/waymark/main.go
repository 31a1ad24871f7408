package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ajmeyer/waymark/internal/config"
	"github.com/ajmeyer/waymark/internal/document"
	"github.com/ajmeyer/waymark/internal/engine"
	"github.com/ajmeyer/waymark/internal/model"
	"github.com/ajmeyer/waymark/internal/store"
)

const version = "1.0.0"

var (
	flagWorkspace string
	flagActor     string
	flagJSON      bool
)

var rootCmd = &cobra.Command{
	Use:           "waymark",
	Short:         "Coordinate epochs and tasks embedded in shared markdown documents",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&flagWorkspace, "workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().StringVar(&flagActor, "actor", os.Getenv("WAYMARK_ACTOR"), "actor identity for claims")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output JSON")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(nextCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(deriveCmd())
	rootCmd.AddCommand(hygieneCmd())
	rootCmd.AddCommand(archiveCmd())
	rootCmd.AddCommand(linkCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(idCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps error classes to stable codes for scripting.
func exitCode(err error) int {
	var pe *document.ParseError
	switch {
	case errors.As(err, &pe):
		return 1
	case errors.Is(err, engine.ErrClaimConflict), errors.Is(err, engine.ErrAlreadyLinked):
		return 2
	case errors.Is(err, engine.ErrNotFound):
		return 3
	case errors.Is(err, engine.ErrNotArchivable):
		return 4
	default:
		return 5
	}
}

func newEngine() (*engine.Engine, error) {
	cfg, err := config.Load(flagWorkspace)
	if err != nil {
		return nil, err
	}
	logger := log.New(os.Stderr, "", 0)
	return engine.FromConfig(cfg, logger), nil
}

func actor() (model.Identity, error) {
	if flagActor == "" {
		return "", fmt.Errorf("no actor identity: pass --actor or set WAYMARK_ACTOR")
	}
	return model.Identity(flagActor), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printWarnings(warns []model.Warning) {
	for _, w := range warns {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Init(flagWorkspace)
			if err != nil {
				return err
			}
			fmt.Printf("initialized workspace at %s\n", cfg.Workspace)
			return nil
		},
	}
}

func nextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Show the epoch at the head of the scheduling order",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			view, ok, warns, err := e.NextEpoch()
			if err != nil {
				return err
			}
			printWarnings(warns)
			if !ok {
				fmt.Println("no eligible epochs")
				return nil
			}
			if flagJSON {
				return printJSON(view)
			}
			fmt.Printf("%s  %s  priority=%s  status=%s\n",
				view.Epoch.EpochID, view.Epoch.Title, view.Epoch.Priority, view.Effective)
			return nil
		},
	}
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Select and manage tasks"}
	cmd.AddCommand(taskNextCmd())
	cmd.AddCommand(taskClaimCmd())
	cmd.AddCommand(taskReleaseCmd())
	cmd.AddCommand(taskCompleteCmd())
	return cmd
}

func taskNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next <epoch-id>",
		Short: "Show the next actionable task in an epoch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := actor()
			if err != nil {
				return err
			}
			e, err := newEngine()
			if err != nil {
				return err
			}
			task, sel, err := e.NextTask(args[0], id)
			if err != nil {
				return err
			}
			if sel == engine.NoActionableTask {
				fmt.Println("epoch has no actionable task")
				return nil
			}
			if flagJSON {
				return printJSON(task)
			}
			fmt.Printf("%s  %s  status=%s\n", task.ID, task.Title, task.Status)
			return nil
		},
	}
}

func taskClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim <task-id>",
		Short: "Claim a task for the acting identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := actor()
			if err != nil {
				return err
			}
			e, err := newEngine()
			if err != nil {
				return err
			}
			if err := e.Claim(args[0], id); err != nil {
				return err
			}
			fmt.Printf("claimed %s as %s\n", args[0], id)
			return nil
		},
	}
}

func taskReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <task-id>",
		Short: "Release a held task back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := actor()
			if err != nil {
				return err
			}
			e, err := newEngine()
			if err != nil {
				return err
			}
			if err := e.Release(args[0], id); err != nil {
				return err
			}
			fmt.Printf("released %s\n", args[0])
			return nil
		},
	}
}

func taskCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Mark an in-flight task complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			if err := e.Complete(args[0]); err != nil {
				return err
			}
			fmt.Printf("completed %s\n", args[0])
			return nil
		},
	}
}

func deriveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "derive",
		Short: "Show derived and effective status for every epoch",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			views, warns, err := e.DeriveAll()
			if err != nil {
				return err
			}
			printWarnings(warns)
			if flagJSON {
				return printJSON(views)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Epoch", "Title", "Priority", "Derived", "Effective", "Drift"})
			for _, v := range views {
				drift := ""
				if v.Drift {
					drift = "yes"
				}
				tw.AppendRow(table.Row{v.Epoch.EpochID, v.Epoch.Title, v.Epoch.Priority, v.Derived, v.Effective, drift})
			}
			tw.Render()
			return nil
		},
	}
}

func hygieneCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "hygiene", Short: "Detect and apply archival work"}
	cmd.AddCommand(hygieneReportCmd())
	cmd.AddCommand(hygieneApplyCmd())
	return cmd
}

func hygieneReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Scan for archivable epochs, stale work logs, and orphans",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			report, err := e.Hygiene(cmd.Context())
			if err != nil {
				return err
			}
			printWarnings(report.Warnings)
			if flagJSON {
				return printJSON(report)
			}

			if len(report.ArchivableEpochs) > 0 {
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle("Archivable epochs")
				tw.AppendHeader(table.Row{"Epoch", "Title", "Tasks"})
				for _, v := range report.ArchivableEpochs {
					tw.AppendRow(table.Row{v.Epoch.EpochID, v.Epoch.Title, len(v.Epoch.Tasks)})
				}
				tw.Render()
			}
			if len(report.StaleWorkLogs) > 0 {
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle("Stale work logs")
				tw.AppendHeader(table.Row{"Path", "Task", "Reason"})
				for _, f := range report.StaleWorkLogs {
					tw.AppendRow(table.Row{f.Log.Path, f.Log.TaskID, f.Reason})
				}
				tw.Render()
			}
			if len(report.OrphanTasks) > 0 {
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle("Orphan tasks")
				tw.AppendHeader(table.Row{"Task", "Title", "Status"})
				for _, t := range report.OrphanTasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status})
				}
				tw.Render()
			}
			if len(report.ArchivableEpochs)+len(report.StaleWorkLogs)+len(report.OrphanTasks) == 0 {
				fmt.Println("nothing to do")
			}
			return nil
		},
	}
}

func hygieneApplyCmd() *cobra.Command {
	var disposition string
	cmd := &cobra.Command{
		Use:   "apply <work-log-path>",
		Short: "Apply a disposition to one stale work log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			d := engine.Disposition(disposition)
			if err := e.ApplyDisposition(args[0], d); err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", d, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&disposition, "disposition", string(engine.DispositionArchive),
		"keep, delete, or archive")
	return cmd
}

func archiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <epoch-id>",
		Short: "Relocate a fully complete epoch to the completed store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			if err := e.Archive(args[0]); err != nil {
				return err
			}
			fmt.Printf("archived %s\n", args[0])
			return nil
		},
	}
}

func linkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <story-id> <epoch-id>",
		Short: "Cross-link a story and the epoch implementing it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			if err := e.Link(args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("linked %s to %s\n", args[0], args[1])
			return nil
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Report stories and epochs with missing or broken links",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			report, err := e.Sync()
			if err != nil {
				return err
			}
			printWarnings(report.Warnings)
			if flagJSON {
				return printJSON(report)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Kind", "ID", "Title"})
			for _, s := range report.OrphanStories {
				tw.AppendRow(table.Row{"story", s.ID, s.Title})
			}
			for _, ep := range report.OrphanEpochs {
				tw.AppendRow(table.Row{"epoch", ep.EpochID, ep.Title})
			}
			if len(report.OrphanStories)+len(report.OrphanEpochs) == 0 {
				fmt.Println("all stories and epochs are linked")
				return nil
			}
			tw.Render()
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-derive statuses whenever the documents change",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagWorkspace)
			if err != nil {
				return err
			}
			e := engine.FromConfig(cfg, log.New(os.Stderr, "", 0))

			w, err := store.NewWatcher(
				[]string{cfg.EpochsPath(), cfg.StoriesPath()},
				time.Duration(cfg.Watch.DebounceMs)*time.Millisecond,
			)
			if err != nil {
				return err
			}
			defer w.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Println("watching for changes, ctrl-c to stop")
			last := map[string]model.Status{}
			for {
				select {
				case <-ctx.Done():
					return nil
				case err := <-w.Errors:
					return err
				case <-w.Changes:
					views, warns, err := e.DeriveAll()
					if err != nil {
						fmt.Fprintln(os.Stderr, "error:", err)
						continue
					}
					printWarnings(warns)
					for _, v := range views {
						if prev, ok := last[v.Epoch.EpochID]; !ok || prev != v.Effective {
							fmt.Printf("%s %s: %s\n", time.Now().Format(time.TimeOnly), v.Epoch.EpochID, v.Effective)
						}
						last[v.Epoch.EpochID] = v.Effective
					}
				}
			}
		},
	}
}

func idCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "id", Short: "Actor identities"}
	cmd.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "Mint a fresh tool-session identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(model.NewSessionIdentity())
			return nil
		},
	})
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("waymark %s\n", version)
		},
	}
}
