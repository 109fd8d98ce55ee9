package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/s1ren-78/beiduoduo/internal/app"
	"github.com/s1ren-78/beiduoduo/internal/config"
	"github.com/s1ren-78/beiduoduo/internal/mirror"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer
// a.Close(). operation identifies the CLI command being run.
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cfg, operation, app.Options{})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "bdd",
	Short: "Research document mirror",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [LOCAL_ROOT]",
	Short: "Initialize configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		localRoot := ""
		if len(args) > 0 {
			localRoot = args[0]
		}
		cfg := config.NewConfig(defaults["base_dir"], localRoot)

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", defaults["base_dir"])
		if localRoot != "" {
			fmt.Printf("Local Root: %s\n", localRoot)
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Local Root: %s\n", cfg.Local.Root)
		fmt.Printf("Database:   %s\n", cfg.Database.Type)
		fmt.Printf("Archive:    %s\n", cfg.Archive.Type)
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a synchronization",
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetString("scope")
		mode, _ := cmd.Flags().GetString("mode")
		reason, _ := cmd.Flags().GetString("reason")

		a, err := newApp("Sync")
		if err != nil {
			return err
		}
		defer a.Close()

		outcome, err := a.Sync(cmd.Context(), scope, mode, reason)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		s := outcome.Stats
		fmt.Printf("Run %s: %s\n", outcome.RunID, outcome.Status)
		fmt.Printf("scanned=%d created=%d updated=%d skipped=%d deleted=%d unsupported=%d failures=%d chunks=%d\n",
			s.Scanned, s.Created, s.Updated, s.Skipped, s.Deleted, s.Unsupported, s.Failures, s.ChunksWritten)
		if s.SymbolsSynced > 0 || s.RowsWritten > 0 {
			fmt.Printf("symbols=%d rows=%d\n", s.SymbolsSynced, s.RowsWritten)
		}
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("Status")
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.Status()
		if err != nil {
			return err
		}

		fmt.Printf("Last local full:         %s\n", formatTime(summary.LastLocalFull))
		fmt.Printf("Last local incremental:  %s\n", formatTime(summary.LastLocalIncremental))
		fmt.Printf("Last remote full:        %s\n", formatTime(summary.LastRemoteFull))
		fmt.Printf("Last remote incremental: %s\n", formatTime(summary.LastRemoteIncremental))
		fmt.Printf("Failed runs (7d):        %d\n", summary.FailedRuns)

		runs, err := a.RecentRuns(limit)
		if err != nil {
			return err
		}
		if len(runs) > 0 {
			fmt.Println("\nRecent runs:")
			for _, r := range runs {
				ended := ""
				if r.EndedAt.Valid {
					ended = r.EndedAt.Time.Sub(r.StartedAt).Truncate(time.Millisecond).String()
				}
				fmt.Printf("%s  %-10s  %-11s  %-9s  %s  %s\n",
					r.RunID[:8], r.Scope, r.Mode,
					r.Status, r.StartedAt.Format("2006-01-02 15:04:05"), ended)
			}
		}

		if len(summary.Checkpoints) > 0 {
			fmt.Println("\nCheckpoints:")
			for _, cp := range summary.Checkpoints {
				fmt.Printf("%-40s  %s\n", cp.Key, cp.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
		}
		return nil
	},
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format("2006-01-02 15:04:05")
}

// search command
var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search synced documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topK, _ := cmd.Flags().GetInt("limit")
		sourceType, _ := cmd.Flags().GetString("source")
		category, _ := cmd.Flags().GetString("category")

		a, err := newApp("Search")
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.Search(mirror.SearchQuery{
			Text:       args[0],
			TopK:       topK,
			SourceType: sourceType,
			Category:   category,
		})
		if err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No results.")
			return nil
		}

		for i, r := range results {
			fmt.Printf("%d. [%.2f] %s (%s)\n", i+1, r.Score, r.Title, r.DocID[:8])
			fmt.Printf("   %s\n", r.Quote)
		}
		return nil
	},
}

// doc command
var docCmd = &cobra.Command{
	Use:   "doc DOC_ID",
	Short: "View a synced document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("GetDocument")
		if err != nil {
			return err
		}
		defer a.Close()

		detail, err := a.GetDocument(args[0])
		if err != nil {
			return err
		}

		d := detail.Document
		fmt.Printf("Title:    %s\n", d.Title)
		fmt.Printf("Source:   %s (%s)\n", d.SourceType, d.SourceID)
		if detail.FilePath != "" {
			fmt.Printf("Path:     %s\n", detail.FilePath)
		}
		fmt.Printf("Synced:   %s\n", d.SyncedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Chunks:   %d\n", len(detail.Chunks))
		if d.Removed {
			fmt.Println("Removed:  yes")
		}
		fmt.Printf("\n%s\n", d.FullText)
		return nil
	},
}

// whitelist command
var whitelistCmd = &cobra.Command{
	Use:   "whitelist",
	Short: "Manage the remote pull whitelist",
}

var whitelistListCmd = &cobra.Command{
	Use:   "list",
	Short: "View whitelist entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Whitelist")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Whitelist(false)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No whitelist entries.")
			return nil
		}
		for _, e := range entries {
			state := "enabled"
			if !e.Enabled {
				state = "disabled"
			}
			fmt.Printf("%-10s  %-30s  %-8s  %s\n", e.EntryType, e.EntryToken, state, e.Label.String)
		}
		return nil
	},
}

var whitelistAddCmd = &cobra.Command{
	Use:   "add TYPE TOKEN",
	Short: "Add a whitelist entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		label, _ := cmd.Flags().GetString("label")

		a, err := newApp("AddWhitelistEntry")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.AddWhitelistEntry(args[0], args[1], label); err != nil {
			return err
		}
		fmt.Printf("Added %s %s\n", args[0], args[1])
		return nil
	},
}

var whitelistEnableCmd = &cobra.Command{
	Use:   "enable TYPE TOKEN",
	Short: "Enable a whitelist entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setWhitelistEnabled(args[0], args[1], true)
	},
}

var whitelistDisableCmd = &cobra.Command{
	Use:   "disable TYPE TOKEN",
	Short: "Disable a whitelist entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setWhitelistEnabled(args[0], args[1], false)
	},
}

func setWhitelistEnabled(entryType, entryToken string, enabled bool) error {
	a, err := newApp("SetWhitelistEnabled")
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.SetWhitelistEnabled(entryType, entryToken, enabled); err != nil {
		return err
	}
	state := "Enabled"
	if !enabled {
		state = "Disabled"
	}
	fmt.Printf("%s %s %s\n", state, entryType, entryToken)
	return nil
}

// watchlist command
var watchlistCmd = &cobra.Command{
	Use:   "watchlist",
	Short: "Manage the market watchlist",
}

var watchlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "View watchlist",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Watchlist")
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := a.Watchlist(false)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No watchlist items.")
			return nil
		}
		for _, it := range items {
			state := "enabled"
			if !it.Enabled {
				state = "disabled"
			}
			fmt.Printf("%-12s  %-10s  %-8s  %s\n", it.Symbol, it.AssetClass, state, it.Label.String)
		}
		return nil
	},
}

var watchlistAddCmd = &cobra.Command{
	Use:   "add SYMBOL ASSET_CLASS",
	Short: "Add a watchlist item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		label, _ := cmd.Flags().GetString("label")

		a, err := newApp("AddWatchlistItem")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.AddWatchlistItem(args[0], args[1], label); err != nil {
			return err
		}
		fmt.Printf("Added %s (%s)\n", args[0], args[1])
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the local root and sync on changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Watch")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println("Watching for changes. Press Ctrl-C to stop.")
		return a.Watch(ctx)
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage archive encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the archive key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("SetupKeys")
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Print("Passphrase: ")
		pass, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}

		fmt.Print("Confirm passphrase: ")
		confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}

		if string(pass) != string(confirm) {
			return fmt.Errorf("passphrases do not match")
		}
		if len(pass) == 0 {
			return fmt.Errorf("passphrase must not be empty")
		}

		if err := a.SetupKeys(string(pass)); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Println("Key pair generated.")
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// whitelist subcommands
	whitelistCmd.AddCommand(whitelistListCmd)
	whitelistCmd.AddCommand(whitelistAddCmd)
	whitelistAddCmd.Flags().String("label", "", "Human-readable label")
	whitelistCmd.AddCommand(whitelistEnableCmd)
	whitelistCmd.AddCommand(whitelistDisableCmd)

	// watchlist subcommands
	watchlistCmd.AddCommand(watchlistListCmd)
	watchlistCmd.AddCommand(watchlistAddCmd)
	watchlistAddCmd.Flags().String("label", "", "Human-readable label")

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().String("scope", mirror.ScopeAll, "Sync scope: local, remote, all, market or financials")
	syncCmd.Flags().String("mode", mirror.ModeIncremental, "Sync mode: full or incremental")
	syncCmd.Flags().String("reason", mirror.ReasonManual, "Trigger reason: manual, scheduled or miss")
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntP("limit", "n", 10, "Maximum number of results")
	searchCmd.Flags().String("source", "", "Filter by source type")
	searchCmd.Flags().String("category", "", "Filter by category")
	rootCmd.AddCommand(docCmd)
	rootCmd.AddCommand(whitelistCmd)
	rootCmd.AddCommand(watchlistCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(keysCmd)
}
