package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"capillaire/internal/app"
	"capillaire/internal/config"
	"capillaire/internal/database"
	"capillaire/internal/diagnosis"
	"capillaire/internal/export"
	"capillaire/internal/logging"
	"capillaire/internal/metrics"
	"capillaire/internal/store"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "capillaire",
		Short:        "Capillaire maintenance and generation tools",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_FILE"), "Config file path (YAML)")

	load := func() (*config.Config, logging.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		logger, err := logging.New(cfg.LogLevel, cfg.Env)
		if err != nil {
			return nil, nil, err
		}
		return cfg, logger, nil
	}
	withApp := func(ctx context.Context, fn func(a *app.App) error) error {
		cfg, logger, err := load()
		if err != nil {
			return err
		}
		a, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(a)
	}

	cmd.AddCommand(
		migrateCmd(load),
		generateCmd(withApp),
		tipCmd(withApp),
		metricsCmd(withApp),
		metricsCleanupCmd(withApp),
		subscriptionCmd(withApp),
		tokenCmd(withApp),
		sessionsCleanupCmd(withApp),
	)
	return cmd
}

type appRunner func(ctx context.Context, fn func(a *app.App) error) error

func migrateCmd(load func() (*config.Config, logging.Logger, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if err := database.RunMigrations(cfg.DatabasePath); err != nil {
				return err
			}
			logger.Infof("SQLite migrations applied to %s", cfg.DatabasePath)
			if cfg.StoreBackend == "postgres" {
				if err := database.RunPostgresMigrations(cfg.PostgresDSN); err != nil {
					return err
				}
				logger.Info("Postgres migrations applied")
			}
			return nil
		},
	}
}

func generateCmd(run appRunner) *cobra.Command {
	var (
		d          diagnosis.Diagnosis
		curvature  string
		scalp      string
		porosity   string
		budget     string
		goal       string
		userID     string
		exportPath string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a 30-day plan for a diagnosis and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			d.Curvature = diagnosis.Curvature(curvature)
			d.Scalp = diagnosis.Scalp(scalp)
			d.Porosity = diagnosis.Porosity(porosity)
			d.Budget = diagnosis.Budget(budget)
			d.Goal = diagnosis.Goal(goal)
			if err := d.Validate(); err != nil {
				return err
			}

			return run(cmd.Context(), func(a *app.App) error {
				plan, err := a.Gateway.GeneratePlan(cmd.Context(), d)
				if err != nil {
					return err
				}
				if userID != "" {
					id, err := a.Repos.Plans.UpsertPlan(cmd.Context(), userID, *plan)
					if err != nil {
						return err
					}
					a.Logger.Infof("Plan %s saved for %s", id, userID)
				}
				if exportPath != "" {
					f, err := os.Create(exportPath)
					if err != nil {
						return err
					}
					defer f.Close()
					if err := export.Render(f, *plan, a.Config.ExportTaskCount, plan.CreatedAt); err != nil {
						return err
					}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&curvature, "curvature", string(diagnosis.CurvatureStraight), "straight, wavy, curly or coily")
	f.StringVar(&scalp, "scalp", string(diagnosis.ScalpNormal), "dry, oily, normal or sensitive")
	f.StringVar(&porosity, "porosity", string(diagnosis.PorosityMedium), "low, medium or high")
	f.StringVar(&budget, "budget", string(diagnosis.BudgetLow), "low, medium or premium")
	f.StringVar(&goal, "goal", string(diagnosis.GoalHydration), "growth, strength, hydration, definition or damage-repair")
	f.BoolVar(&d.Chemicals, "chemicals", false, "Hair has chemical treatments")
	f.StringVar(&d.WashFrequency, "wash-frequency", diagnosis.DefaultWashFrequency, "How often the hair is washed")
	f.StringVar(&userID, "user", "", "Save the plan for this user id")
	f.StringVar(&exportPath, "export", "", "Also write the printable HTML schedule to this file")
	return cmd
}

func tipCmd(run appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "tip <problem>",
		Short: "Print a quick natural tip",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(a *app.App) error {
				fmt.Fprintln(cmd.OutOrStdout(), a.Assistant.FastTip(cmd.Context(), strings.Join(args, " "), nil))
				return nil
			})
		},
	}
}

func metricsCmd(run appRunner) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show LLM usage and system health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(a *app.App) error {
				usage, err := a.Metrics.GetDailyUsage(days)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "DATE\tPROMPT\tCOMPLETION\tEXECS\tFAILED")
				for _, u := range usage {
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", u.Date, u.TotalPrompt, u.TotalCompletion, u.TotalExecution, u.Failures)
				}
				if err := w.Flush(); err != nil {
					return err
				}

				h := metrics.GetSysHealth(a.DataDir())
				fmt.Fprintf(cmd.OutOrStdout(), "\nRAM %dMB alloc / %dMB sys, %d goroutines, data %s\n", h.AllocMB, h.SysMB, h.Goroutines, h.DataDiskSize)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to report")
	return cmd
}

func metricsCleanupCmd(run appRunner) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "metrics-cleanup",
		Short: "Remove old metric records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(a *app.App) error {
				affected, err := a.Metrics.Cleanup(days)
				if err != nil {
					return fmt.Errorf("cleanup failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Successfully removed %d old metric records.\n", affected)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Keep records for the last N days")
	return cmd
}

func subscriptionCmd(run appRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscription",
		Short: "Manage user subscriptions",
	}
	set := func(use, short string, status store.SubscriptionStatus) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <user-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd.Context(), func(a *app.App) error {
					if err := a.Repos.Subscriptions.SetSubscriptionStatus(cmd.Context(), args[0], status); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Subscription of %s is now %s.\n", args[0], status)
					return nil
				})
			},
		}
	}
	cmd.AddCommand(
		set("grant", "Activate a subscription", store.SubscriptionActive),
		set("revoke", "Deactivate a subscription", store.SubscriptionInactive),
		&cobra.Command{
			Use:   "status <user-id>",
			Short: "Report whether a user has an active subscription",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd.Context(), func(a *app.App) error {
					active, err := a.Repos.Subscriptions.HasActiveSubscription(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), map[bool]string{true: "active", false: "inactive"}[active])
					return nil
				})
			},
		},
	)
	return cmd
}

func tokenCmd(run appRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage access tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "issue <user-id> <email>",
		Short: "Issue an access token for /login and the HTTP API",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(a *app.App) error {
				tok, exp, err := a.Issuer.Issue(args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), tok)
				fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format("2006-01-02 15:04 MST"))
				return nil
			})
		},
	})
	return cmd
}

func sessionsCleanupCmd(run appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions-cleanup",
		Short: "Delete expired chat sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(a *app.App) error {
				n, err := a.AuthSessions.CleanupExpired(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired sessions.\n", n)
				return nil
			})
		},
	}
}
