// Command mediacat-preprocess lists WordPress attachments through wp-cli,
// matches their filenames against the configured rules and writes the
// matches file consumed by mediacat-apply.
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
	"github.com/cognicore/mediacat/pkg/mediacat/wpcli"
)

var (
	configPath string
	limit      int
	verbose    bool
)

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"})
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})
)

var rootCmd = &cobra.Command{
	Use:   "mediacat-preprocess",
	Short: "Match WordPress media filenames against keyword rules",
	Long: `mediacat-preprocess fetches attachments with wp-cli, tests every filename
against the mappings in the configuration file and writes the matches to
settings.matches_path (tmp/matches.json by default).

Run mediacat-apply afterwards to write the media_category assignments.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", config.DefaultPath, "Path to configuration file")
	rootCmd.Flags().IntVar(&limit, "limit", 0, "Limit number of attachments to process")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidatePreprocess(); err != nil {
		return err
	}

	log, err := logging.New(verbose, cfg.Settings.LogFormat, "preprocess")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cat := mediacat.New(mediacat.Options{
		Config: cfg,
		Lister: wpcli.New(cfg.Settings.WPCLI, cfg.Settings.WPPath, log),
		Logger: log,
	})
	res, err := cat.Preprocess(cmd.Context(), limit)
	if err != nil {
		log.Error("preprocessing failed", zap.Error(err))
		return err
	}

	fmt.Println(passStyle.Render("✓") + fmt.Sprintf(" Total attachments processed: %d", res.Total))
	fmt.Println(passStyle.Render("✓") + fmt.Sprintf(" Attachments with matches: %d", res.Matched))
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
