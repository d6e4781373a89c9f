package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/kvasirlabs/gh-activity/config"
	"github.com/kvasirlabs/gh-activity/internal/api"
	"github.com/kvasirlabs/gh-activity/internal/cache"
	"github.com/kvasirlabs/gh-activity/internal/models"
	"github.com/kvasirlabs/gh-activity/internal/ratelimit"
	"github.com/kvasirlabs/gh-activity/internal/service"
)

func main() {
	// Define command-line flags
	configPath := flag.String("config", "config.json", "Path to configuration file")
	createConfig := flag.Bool("init", false, "Create a default configuration file if it doesn't exist")
	refresh := flag.Bool("refresh", false, "Bypass the cache and fetch fresh activity")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Create default configuration if requested
	if *createConfig {
		if err := config.CreateDefaultConfig(*configPath); err != nil {
			logger.Error("failed to create default configuration", slog.String("error", err.Error()))
			os.Exit(1)
		}
		fmt.Printf("Created default configuration at %s\n", *configPath)
		return
	}

	usernames := flag.Args()
	if len(usernames) == 0 {
		fmt.Println("gh-activity - GitHub Activity Viewer")
		fmt.Println("------------------------------------")
		fmt.Println("Usage: gh-activity [flags] <username> [username...]")
		fmt.Println("Use -refresh to bypass the cache and fetch fresh activity")
		fmt.Println("Use -init to create a default configuration file")
		fmt.Println("Use -config path/to/config.json to specify a custom configuration file")
		fmt.Println()
		fmt.Printf("GitHub token can be provided via the %s environment variable\n", config.EnvGithubToken)
		return
	}

	// Load configuration; a missing file just means defaults.
	cfg, err := config.LoadConfig(*configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Build the dependency chain: client -> cache -> tracker -> service
	client := api.NewClient(cfg.GitHubToken)
	client.SetMaxEvents(cfg.MaxEvents)

	activityCache, err := cache.New(cfg.CacheCapacity, cfg.FreshnessWindow())
	if err != nil {
		logger.Error("failed to create activity cache", slog.String("error", err.Error()))
		os.Exit(1)
	}

	tracker := ratelimit.New()
	svc := service.New(client, activityCache, tracker, logger, cfg.MaxConcurrentFetches)

	ctx := context.Background()

	// Request all usernames concurrently; the service bounds parallelism.
	type lookup struct {
		username string
		result   service.Result
	}

	results := make([]lookup, len(usernames))
	var wg sync.WaitGroup
	for i, username := range usernames {
		wg.Add(1)
		go func(i int, username string) {
			defer wg.Done()
			var ch <-chan service.Result
			if *refresh {
				ch = svc.Refresh(ctx, username)
			} else {
				ch = svc.Request(ctx, username)
			}
			results[i] = lookup{username: username, result: <-ch}
		}(i, username)
	}
	wg.Wait()

	failed := false
	for _, l := range results {
		if l.result.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", l.username, l.result.Err)
			failed = true
			continue
		}
		printBatch(l.result.Batch, l.result.Stale)
	}

	printQuota(svc.Quota())

	if failed {
		os.Exit(1)
	}
}

// printBatch renders one user's activity as a table.
func printBatch(batch *models.ActivityBatch, stale bool) {
	user := batch.User
	fmt.Printf("\n%s (%s)\n", user.DisplayName(), user.ProfileURL)
	if stale {
		fmt.Printf("  [stale: fetched %s ago, refresh failed]\n", batch.Age(time.Now()).Round(time.Second))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tDETAILS\tDATE")
	for _, record := range batch.Records {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			record.Kind, record.Summary, record.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()

	fmt.Printf("Showing %d recent events.\n", len(batch.Records))
}

// printQuota renders the rate-limit footer, matching the API's
// remaining/limit convention.
func printQuota(quota models.QuotaState) {
	if !quota.Known {
		return
	}
	fmt.Printf("\nAPI Rate: %d / %d (resets %s)\n",
		quota.Remaining, quota.Limit, quota.ResetAt.Format(time.RFC3339))
}
