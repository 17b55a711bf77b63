// Command lda scrapes the Lahore Development Authority's public document
// pages into a searchable local database.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/osmkhan/lda-scraper/pkg/lda/config"
	"github.com/osmkhan/lda-scraper/pkg/lda/extract"
	"github.com/osmkhan/lda-scraper/pkg/lda/ocr"
	"github.com/osmkhan/lda-scraper/pkg/lda/scraper"
	"github.com/osmkhan/lda-scraper/pkg/lda/store"
	"github.com/osmkhan/lda-scraper/pkg/lda/store/sqlite"
	"github.com/osmkhan/lda-scraper/pkg/lda/tagger"
)

// Version is injected at build time.
var Version = "dev"

func main() {
	if err := Execute(Version, os.Args[1:], os.Stdout); err != nil {
		os.Exit(1)
	}
}

// Execute is the CLI entry point, extracted for testing.
func Execute(version string, args []string, out io.Writer) error {
	rootCmd := &cobra.Command{
		Use:           "lda",
		Short:         "LDA document scraper",
		Long:          "Scrapes Lahore Development Authority PDFs into a searchable, topic-tagged database.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.SetVersionTemplate(`{{.Version}}
`)
	rootCmd.SetOut(out)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Config file path")
	flags.Bool("verbose", false, "Debug logging")
	flags.String("base-url", "", "Authority site base URL")
	flags.String("data-dir", "", "Data directory")
	flags.String("database", "", "SQLite database path")
	flags.String("topics", "", "Advocacy topics YAML path")
	flags.Duration("delay", 0, "Politeness delay between requests")
	flags.StringSlice("ocr-languages", nil, "Tesseract languages")
	flags.Int("ocr-workers", 0, "OCR worker count")

	rootCmd.AddCommand(
		newInitCmd(),
		newCheckCmd(),
		newScrapeCmd(),
		newSearchCmd(),
		newStatsCmd(),
	)

	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func loadSettings(cmd *cobra.Command) (*config.Settings, *slog.Logger, error) {
	flags := cmd.Root().PersistentFlags()
	path, _ := flags.GetString("config")
	settings, err := config.LoadSettingsWithFlags(path, flags)
	if err != nil {
		return nil, nil, fmt.Errorf("load settings: %w", err)
	}
	if err := config.ValidateSettings(settings); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := slog.LevelInfo
	if verbose, _ := flags.GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return settings, logger, nil
}

func openStore(ctx context.Context, settings *config.Settings) (store.Store, error) {
	return sqlite.Open(ctx, settings.DatabasePath)
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the data directories, database schema and default topics file",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, logger, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if err := config.EnsureDirs(settings); err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer st.Close()

			if _, err := os.Stat(settings.TopicsPath); os.IsNotExist(err) {
				if err := config.WriteDefaultTopics(settings.TopicsPath); err != nil {
					return err
				}
				logger.Info("wrote default topics", "path", settings.TopicsPath)
			}
			logger.Info("initialized", "database", settings.DatabasePath)
			fmt.Fprintln(cmd.OutOrStdout(), "initialized", settings.DatabasePath)
			return nil
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify configuration, topics and the OCR installation",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, _, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config: ok (base_url %s)\n", settings.BaseURL)

			if _, err := os.Stat(settings.DatabasePath); err != nil {
				fmt.Fprintf(out, "database: missing (%s), run `lda init`\n", settings.DatabasePath)
			} else {
				fmt.Fprintf(out, "database: %s\n", settings.DatabasePath)
			}

			if topics, err := config.LoadTopics(settings.TopicsPath); err != nil {
				fmt.Fprintf(out, "topics: %v\n", err)
			} else {
				fmt.Fprintf(out, "topics: %d advocacy topics\n", len(topics.AdvocacyTopics))
			}

			if err := ocr.CheckInstallation(settings.OCR.Languages); err != nil {
				fmt.Fprintf(out, "ocr: %v\n", err)
				return err
			}
			fmt.Fprintf(out, "ocr: tesseract ok (%s)\n", strings.Join(settings.OCR.Languages, ", "))
			return nil
		},
	}
}

func newScrapeCmd() *cobra.Command {
	var (
		listURL  string
		selector string
		docType  string
		forceOCR bool
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape a document listing page and ingest its PDFs",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, logger, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if err := config.EnsureDirs(settings); err != nil {
				return err
			}
			if listURL == "" {
				listURL = settings.BaseURL
			}

			st, err := openStore(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer st.Close()

			topics, err := config.LoadTopics(settings.TopicsPath)
			if err != nil {
				return err
			}
			tg, err := tagger.New(topics.AdvocacyTopics)
			if err != nil {
				return err
			}

			processor := ocr.NewProcessor(settings.OCR.Languages, settings.OCR.DPI, settings.OCR.Workers, logger)
			engine := extract.NewEngine(processor, logger)
			client := scraper.NewClient(settings.Scraper.UserAgent, settings.Scraper.Timeout,
				settings.Scraper.Delay, settings.Scraper.MaxRetries, logger)
			s := scraper.New(st, tg, engine, client, settings.CacheDir, logger)

			report, err := s.ScrapeAndProcess(cmd.Context(), scraper.Job{
				ListURL:  listURL,
				Selector: selector,
				DocType:  docType,
				ForceOCR: forceOCR,
				Limit:    limit,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "found %d, processed %d, skipped %d, failed %d\n",
				report.Found, report.Processed, report.Skipped, report.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&listURL, "url", "", "Listing page URL (defaults to base_url)")
	cmd.Flags().StringVar(&selector, "selector", "a", "CSS selector for document links")
	cmd.Flags().StringVar(&docType, "type", store.TypeOther,
		"Document type: regulation, meeting_minutes, housing_scheme, tender or other")
	cmd.Flags().BoolVar(&forceOCR, "force-ocr", false, "OCR every document, even searchable ones")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max documents to process (0 = all)")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over ingested documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, _, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer st.Close()

			results, err := st.Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "no matches")
				return nil
			}
			for _, r := range results {
				date := "          "
				if r.DatePublished != nil {
					date = r.DatePublished.Format("2006-01-02")
				}
				fmt.Fprintf(out, "[%d] %s  %s  (%s)\n    %s\n    %s\n",
					r.ID, date, r.Title, r.Type, r.URL, r.Snippet)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Max results")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, _, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "documents: %d\n", stats.TotalDocuments)
			for _, docType := range sortedKeys(stats.ByType) {
				fmt.Fprintf(out, "  %-16s %d\n", docType, stats.ByType[docType])
			}
			fmt.Fprintf(out, "tags: %d\n", stats.TotalTags)
			for _, tc := range stats.TopTags {
				fmt.Fprintf(out, "  %-24s %d\n", tc.Name, tc.Count)
			}
			return nil
		},
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
