// Command mediacat-apply writes the media_category assignments listed in the
// matches file straight into the WordPress database, in one transaction.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/mediacat/internal/logging"
	"github.com/cognicore/mediacat/pkg/mediacat"
	"github.com/cognicore/mediacat/pkg/mediacat/config"
	"github.com/cognicore/mediacat/pkg/mediacat/store"
	"github.com/cognicore/mediacat/pkg/mediacat/store/wpdb"
	"github.com/cognicore/mediacat/pkg/mediacat/taxonomy"
	"github.com/cognicore/mediacat/pkg/mediacat/wpcli"
)

var (
	configPath string
	dryRun     bool
	exportOnly bool
	backup     bool
	verbose    bool
)

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"})
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"})
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})
)

var rootCmd = &cobra.Command{
	Use:   "mediacat-apply",
	Short: "Apply matched media categories to WordPress",
	Long: `mediacat-apply reads the matches written by mediacat-preprocess, creates any
missing media_category terms and relates every matched attachment to its
terms. All database changes happen in a single transaction.

Modes:
  mediacat-apply --dry-run   # show what would change, write nothing
  mediacat-apply --export    # write the CSV log only
  mediacat-apply --backup    # export the database first (needs backup.enabled)`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", config.DefaultPath, "Path to configuration file")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview changes without modifying the database")
	rootCmd.Flags().BoolVar(&exportOnly, "export", false, "Write the CSV log only, no database changes")
	rootCmd.Flags().BoolVar(&backup, "backup", false, "Run 'wp db export' before modifying the database")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateApply(!dryRun && !exportOnly); err != nil {
		return err
	}

	log, err := logging.New(verbose, cfg.Settings.LogFormat, "apply")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	s := cfg.Settings
	dbCfg := wpdb.MySQLConfig{
		Host:     s.DBHost,
		Port:     s.DBPort,
		Socket:   s.DBSocket,
		User:     s.DBUser,
		Password: s.DBPass,
		Database: s.DBName,
	}
	open := func(ctx context.Context) (store.Backend, error) {
		db, err := wpdb.OpenMySQL(ctx, dbCfg, wpdb.Options{
			Prefix:   s.TablePrefix,
			Taxonomy: taxonomy.Name,
			Logger:   log,
		})
		if err != nil {
			return nil, err
		}
		log.Info("connected to database", zap.String("target", dbCfg.Describe()))
		return db, nil
	}

	cat := mediacat.New(mediacat.Options{
		Config:     cfg,
		Maintainer: wpcli.New(s.WPCLI, s.WPPath, log),
		Open:       open,
		Logger:     log,
	})
	rep, err := cat.Apply(cmd.Context(), mediacat.ApplyRequest{
		DryRun: dryRun,
		Export: exportOnly,
		Backup: backup,
	})
	if err != nil {
		log.Error("apply failed", zap.Error(err))
		return err
	}
	if rep == nil || rep.DryRun {
		return nil
	}

	if n := len(rep.CreatedTerms); n > 0 {
		fmt.Println(passStyle.Render("✓") + fmt.Sprintf(" Created %d new terms", n))
	}
	fmt.Println(passStyle.Render("✓") + fmt.Sprintf(" Applied %d of %d taxonomy assignments", rep.Applied(), rep.Requested()))
	if n := len(rep.Errors); n > 0 {
		fmt.Println(warnStyle.Render("⚠") + fmt.Sprintf(" %d assignments failed, see log", n))
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("Error: "+err.Error()))
		stop()
		os.Exit(1)
	}
}
