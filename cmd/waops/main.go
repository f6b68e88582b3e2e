// Command waops runs the suite and its maintenance jobs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"whatsapp-suite/internal/app"
	"whatsapp-suite/internal/config"
	"whatsapp-suite/internal/database"
	"whatsapp-suite/internal/logging"
	"whatsapp-suite/internal/whatsapp"
)

var application *app.App

var rootCmd = &cobra.Command{
	Use:           "waops",
	Short:         "WhatsApp Business messaging suite",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		db, err := database.Open(cfg, logger)
		if err != nil {
			return err
		}
		application = app.New(cfg, db, whatsapp.NewFactory(cfg.HTTPTimeout), logger)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if application != nil {
			_ = application.Log.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook receiver, the management API and the campaign scheduler",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return application.Serve(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(*cobra.Command, []string) error {
		if err := database.Migrate(application.DB); err != nil {
			return err
		}
		application.Log.Info("Database migration completed")
		return nil
	},
}

var syncSequencesCmd = &cobra.Command{
	Use:   "sync-sequences",
	Short: "Move PostgreSQL id sequences past the current max id",
	RunE: func(*cobra.Command, []string) error {
		return database.SyncSequences(application.DB, application.Log)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Send every queued campaign that is due",
	RunE: func(cmd *cobra.Command, _ []string) error {
		n, err := application.Campaigns.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "processed %d campaigns\n", n)
		return nil
	},
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage the template catalog",
}

var templatesSyncCmd = &cobra.Command{
	Use:   "sync <provider-id>",
	Short: "Import the templates of a provider from Meta",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		n, err := application.Templates.Sync(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "synced %d templates\n", n)
		return nil
	},
}

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Manage WhatsApp configurations",
}

var providerVerifyCmd = &cobra.Command{
	Use:   "verify <provider-id>",
	Short: "Check a configuration against the Graph API",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		p, err := application.Providers.Verify(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\nwebhook: %s\n", p.Name, p.State, application.Providers.WebhookURL(p))
		return nil
	},
}

var chatbotActivateCmd = &cobra.Command{
	Use:   "activate-chatbot <chatbot-id>",
	Short: "Select the chatbot that answers inbound messages (0 disables)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chatbot id %q", args[0])
		}
		return application.Chatbots.SetActive(cmd.Context(), uint(id))
	},
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(id), nil
}

func init() {
	templatesCmd.AddCommand(templatesSyncCmd)
	providerCmd.AddCommand(providerVerifyCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd, syncSequencesCmd, sweepCmd, templatesCmd, providerCmd, chatbotActivateCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if application != nil {
			application.Log.Error("Command failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
