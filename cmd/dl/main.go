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

	"dealline/internal/app"
	"dealline/internal/config"
	"dealline/internal/domain"
	"dealline/internal/engine"
	"dealline/internal/gate"
	"dealline/internal/notify"
	"dealline/internal/payments"
	"dealline/internal/repo"
	"dealline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "dl",
	Short: "Dealline CLI",
	Long: `Dealline runs the engagement lifecycle for creator campaigns.
- Workspace: your .dealline directory holding the database; dealline.yml next to it holds settings.
- Campaign: a brand's brief that creators apply to.
- Engagement: one creator on one campaign; moves applied -> accepted -> in_progress -> submitted -> approved -> paid.
- Deliverable: the content a creator submits for review.
- Ledger: the append-only diary of every transition; the engagement row is just a replayable projection of it.
- Intent: one attempted release of funds, driven to confirmed or failed by the coordinator.`,
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
	viper.SetEnvPrefix("DEALLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(campaignCmd())
	rootCmd.AddCommand(engagementCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(intentCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default dealline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func campaignCmd() *cobra.Command {
	c := &cobra.Command{Use: "campaign", Short: "Manage campaigns"}
	c.AddCommand(campaignCreateCmd())
	c.AddCommand(campaignListCmd())
	c.AddCommand(campaignShowCmd())
	return c
}

func campaignCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign owned by the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateCampaign(ctx, id, viper.GetString("actor-id"), name)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "campaign id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func campaignListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCampaigns(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Owner", "Name", "Status", "Created"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.OwnerID, c.Name, c.Status, c.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func campaignShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Repo.GetCampaign(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func engagementCmd() *cobra.Command {
	eng := &cobra.Command{
		Use:   "engagement",
		Short: "Manage engagements",
		Long:  "Engagements flow applied -> accepted -> in_progress -> submitted -> approved -> paid, with rejected and cancelled as exits. Every change needs the version you last saw.",
	}
	eng.AddCommand(engagementApplyCmd())
	eng.AddCommand(engagementListCmd())
	eng.AddCommand(engagementShowCmd())
	eng.AddCommand(engagementTransitionCmd())
	eng.AddCommand(engagementDeliverablesCmd())
	return eng
}

func engagementApplyCmd() *cobra.Command {
	var campaignID, creatorID string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a creator to a campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			if creatorID == "" {
				creatorID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				eng, err := e.CreateEngagement(ctx, campaignID, creatorID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(eng)
			})
		},
	}
	cmd.Flags().StringVar(&campaignID, "campaign", "", "campaign id")
	cmd.Flags().StringVar(&creatorID, "creator", "", "creator id (defaults to actor)")
	_ = cmd.MarkFlagRequired("campaign")
	return cmd
}

func engagementListCmd() *cobra.Command {
	var campaignID, creatorID, state string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List engagements",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListEngagements(ctx, repo.EngagementFilters{
					CampaignID: campaignID,
					CreatorID:  creatorID,
					State:      state,
					Limit:      limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Campaign", "Creator", "State", "Version", "Updated"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.CampaignID, it.CreatorID, it.State, it.Version, it.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&campaignID, "campaign", "", "filter by campaign")
	cmd.Flags().StringVar(&creatorID, "creator", "", "filter by creator")
	cmd.Flags().StringVar(&state, "state", "", "filter by state")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func engagementShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an engagement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				eng, err := e.Repo.GetEngagement(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(eng)
			})
		},
	}
	return cmd
}

func engagementTransitionCmd() *cobra.Command {
	var opts engine.ApplyOptions
	cmd := &cobra.Command{
		Use:   "transition <id> <name>",
		Short: "Apply a lifecycle transition",
		Long:  "Names: accept, reject, start, submit, request_changes, approve, pay, cancel. Pass --expected-version from the last read; submit needs --content-ref, approve needs --amount-cents.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.EngagementID = args[0]
			opts.Transition = args[1]
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				eng, err := e.Apply(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(eng)
			})
		},
	}
	cmd.Flags().Int64Var(&opts.ExpectedVersion, "expected-version", 0, "version the change is based on")
	cmd.Flags().StringVar(&opts.ContentRef, "content-ref", "", "deliverable content reference (submit)")
	cmd.Flags().Int64Var(&opts.AmountCents, "amount-cents", 0, "release amount in cents (approve)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "reviewer notes")
	_ = cmd.MarkFlagRequired("expected-version")
	return cmd
}

func engagementDeliverablesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deliverables <id>",
		Short: "List deliverables for an engagement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListDeliverables(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func ledgerCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "ledger",
		Short: "Transition ledger",
		Long:  "The append-only diary of every transition. 'tail' shows recent events, 'verify' replays engagements and checks the projections.",
	}
	l.AddCommand(ledgerTailCmd())
	l.AddCommand(ledgerVerifyCmd())
	return l
}

func ledgerTailCmd() *cobra.Command {
	var n int
	var engagementID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail transition events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Reader.Latest(ctx, n, engagementID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&engagementID, "engagement", "", "filter by engagement")
	return cmd
}

func ledgerVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay every ledger and verify the projections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.VerifyProjections(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Verified %d engagements, projections consistent\n", n)
				return nil
			})
		},
	}
	return cmd
}

func intentCmd() *cobra.Command {
	in := &cobra.Command{Use: "intent", Short: "Payment intents"}
	in.AddCommand(intentListCmd())
	in.AddCommand(intentShowCmd())
	in.AddCommand(intentReleaseCmd())
	in.AddCommand(intentReconcileCmd())
	in.AddCommand(intentSweepCmd())
	return in
}

func intentListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List payment intents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListIntents(ctx, status, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Engagement", "Amount", "Status", "Attempts", "Updated"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.EngagementID, it.AmountCents, it.Status, it.Attempts, it.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func intentShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a payment intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				intent, err := e.Repo.GetIntent(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(intent)
			})
		},
	}
	return cmd
}

func intentReleaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release <id>",
		Short: "Submit a pending intent to the processor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, c *payments.Coordinator) error {
				intent, err := c.Release(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(intent)
			})
		},
	}
	return cmd
}

func intentReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile <id>",
		Short: "Reconcile an intent against the processor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, c *payments.Coordinator) error {
				intent, err := c.Reconcile(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(intent)
			})
		},
	}
	return cmd
}

func intentSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Re-drive all stale open intents once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, c *payments.Coordinator) error {
				c.SweepOnce(ctx)
				return nil
			})
		},
	}
	return cmd
}

func keyCmd() *cobra.Command {
	k := &cobra.Command{Use: "key", Short: "API keys"}
	k.AddCommand(keyCreateCmd())
	k.AddCommand(keyListCmd())
	k.AddCommand(keyDeleteCmd())
	return k
}

func keyCreateCmd() *cobra.Command {
	var id, actorID, name, key string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Store an API key (hashed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				actorID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				now := time.Now().UTC().Format(time.RFC3339)
				if err := e.Repo.EnsureActor(ctx, nil, actorID, now); err != nil {
					return err
				}
				rec := domain.APIKey{ID: id, ActorID: actorID, Name: name, KeyHash: repo.HashAPIKey(key), CreatedAt: now}
				if err := e.Repo.InsertAPIKey(ctx, rec); err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "key id")
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id (defaults to current actor)")
	cmd.Flags().StringVar(&name, "name", "", "label")
	cmd.Flags().StringVar(&key, "key", "", "key material")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func keyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor")
	return cmd
}

func keyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, cfg, err := app.Bootstrap(cmd.Context(), workspace, "")
			if err != nil {
				return err
			}
			defer conn.Close()
			if secret := os.Getenv("DEALLINE_JWT_SECRET"); secret != "" {
				cfg.Auth.JWTSecret = secret
			}
			if cfg.Auth.JWTSecret == "" && !cfg.Auth.AllowLegacyActorHeader {
				return fmt.Errorf("auth.jwt_secret (or DEALLINE_JWT_SECRET) is required for bearer auth")
			}
			e := engine.New(conn, cfg)
			var processor payments.Processor
			if cfg.Payments.ProcessorURL != "" {
				processor = payments.NewHTTPProcessor(cfg.Payments.ProcessorURL,
					time.Duration(cfg.Payments.SubmitTimeoutSeconds)*time.Second)
			}
			var coordinator *payments.Coordinator
			if processor != nil {
				coordinator = payments.NewCoordinator(e, cfg, processor)
				coordinator.StartSweep(cmd.Context())
			}
			g := gate.New(cfg)
			go func() {
				ticker := time.NewTicker(time.Duration(cfg.Gate.LeaseTTLSeconds) * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						g.Prune()
					case <-cmd.Context().Done():
						return
					}
				}
			}()
			notify.Start(cmd.Context(), e.Reader, cfg.Webhooks)
			handler, err := server.New(server.Config{
				Engine:         e,
				Coordinator:    coordinator,
				Gate:           g,
				BasePath:       basePath,
				Auth:           server.AuthConfig{JWTSecret: cfg.Auth.JWTSecret, AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader},
				CallbackSecret: cfg.Payments.CallbackSecret,
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
			fmt.Printf("Serving Dealline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	conn, cfg, err := app.Bootstrap(ctx, viper.GetString("workspace"), viper.GetString("actor-id"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, engine.New(conn, cfg))
}

func withCoordinator(ctx context.Context, fn func(context.Context, *payments.Coordinator) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		if e.Config.Payments.ProcessorURL == "" {
			return fmt.Errorf("payments.processor_url is not configured")
		}
		processor := payments.NewHTTPProcessor(e.Config.Payments.ProcessorURL,
			time.Duration(e.Config.Payments.SubmitTimeoutSeconds)*time.Second)
		return fn(ctx, payments.NewCoordinator(e, e.Config, processor))
	})
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
