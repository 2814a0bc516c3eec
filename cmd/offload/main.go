package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"offload/internal/app"
	"offload/internal/config"
	"offload/internal/db"
	"offload/internal/engine"
	"offload/internal/migrate"
	"offload/internal/proposal"
	"offload/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "offload",
	Short: "Offload CLI",
	Long: `Offload turns tasks people are avoiding into priced done-for-you proposals.
- Submissions: a task description, its stated dollar worth, and contact details, stored with status New.
- Proposals: generated per task by an external model under a strict contract (schema plus pricing bounds); each accepted one is a new idea row and moves the task to Planned.
- Admin feed: every task merged with its latest proposal, behind a shared-secret password.
- Event log: append-only diary of submissions, generations, and status changes; view with 'offload log tail'.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("OFFLOAD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(feedCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := app.ResolveConfig(workspace, overridesFromEnv())
			if err != nil {
				return err
			}
			if cfg.Admin.Password == "" {
				return fmt.Errorf("admin password is required; set admin.password in offload.yml or OFFLOAD_ADMIN_PASSWORD")
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			gen, err := app.NewGenerator(cfg)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg, gen)
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			handler, err := server.New(server.Config{
				Engine:        e,
				BasePath:      basePath,
				AdminPassword: cfg.Admin.Password,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Offload API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

func submitCmd() *cobra.Command {
	var opts engine.SubmitOptions
	var generate bool
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Record a submission against the local database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), generate, func(ctx context.Context, e engine.Engine) error {
				t, err := e.Submit(ctx, opts)
				if err != nil {
					return err
				}
				if generate {
					idea, _, err := e.GenerateProposal(ctx, t.ID, t.Task, t.Worth)
					if err != nil {
						fmt.Printf("submitted task %s; generation failed: %v\n", t.ID, err)
						return nil
					}
					fmt.Printf("generated proposal %s for task %s\n", idea.ID, t.ID)
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Task, "task", "", "task description")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.FirstName, "firstname", "", "first name")
	cmd.Flags().StringVar(&opts.LastName, "lastname", "", "last name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "phone")
	cmd.Flags().StringVar(&opts.Worth, "worth", "", "stated dollar worth")
	cmd.Flags().BoolVar(&generate, "generate", false, "generate a proposal inline after submitting")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func generateCmd() *cobra.Command {
	var taskID string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a proposal for a stored task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskID == "" {
				return fmt.Errorf("--task-id required")
			}
			return withEngine(cmd.Context(), true, func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, taskID)
				if err != nil {
					return err
				}
				idea, env, err := e.GenerateProposal(ctx, t.ID, t.Task, t.Worth)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"proposal_id": idea.ID, "output": env})
				}
				fmt.Printf("proposal %s (%s): %s at $%.2f\n", idea.ID, idea.Model, env.Proposal.Title, env.Proposal.SuggestedPriceUSD)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task-id", "", "task id")
	return cmd
}

func feedCmd() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Tasks merged with their latest proposal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), false, func(ctx context.Context, e engine.Engine) error {
				rows, err := e.AdminFeed(ctx, query)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Task", "Name", "Status", "Worth", "Title", "Price", "Model"})
				for _, row := range rows {
					title, price, model := "", "", ""
					if row.Envelope != nil {
						title = row.Envelope.Proposal.Title
						price = fmt.Sprintf("%.2f", row.Envelope.Proposal.SuggestedPriceUSD)
					}
					if row.Idea != nil {
						model = row.Idea.Model
					}
					tw.AppendRow(table.Row{truncate(row.Task.Task, 40), row.Task.Name, row.Task.Status, fmt.Sprintf("%.2f", row.Task.Worth), title, price, model})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&query, "q", "", "filter over name, email, task, and title")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "tasks", Short: "Inspect submissions"}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	return task
}

func taskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), false, func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.Repo.ListTasks(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Task", "Name", "Email", "Status", "Worth"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, truncate(t.Task, 40), t.Name, t.Email, t.Status, fmt.Sprintf("%.2f", t.Worth)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a submission and its ideas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), false, func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, id)
				if err != nil {
					return err
				}
				ideas, err := e.Repo.ListIdeasForTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"task": t, "ideas": ideas})
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	logs := &cobra.Command{Use: "log", Short: "Event log"}
	logs.AddCommand(logTailCmd())
	return logs
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), false, func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect workspace config"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show resolved config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"), overridesFromEnv())
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default offload.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

// --- helpers ---

func overridesFromEnv() app.Overrides {
	return app.Overrides{
		AdminPassword: viper.GetString("admin-password"),
		Model:         viper.GetString("model"),
		BaseURL:       viper.GetString("base-url"),
	}
}

func withEngine(ctx context.Context, needGenerator bool, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := app.ResolveConfig(workspace, overridesFromEnv())
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	var gen proposal.Generator
	if needGenerator {
		gen, err = app.NewGenerator(cfg)
		if err != nil {
			return err
		}
	}
	e := engine.New(conn, cfg, gen)
	return fn(ctx, e)
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

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
