// alertctl is the operator surface for the alert pipeline: run matcher
// passes, drain the email queue, clean up old records and print statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"marketplace-search/internal/alerts"
	"marketplace-search/internal/config"
	"marketplace-search/internal/logger"
	"marketplace-search/internal/mailer"
	"marketplace-search/internal/storage/postgres"

	"go.uber.org/zap"
)

const usage = `Usage: alertctl <command> [flags]

Commands:
  process-alerts   run a matcher pass, then drain the notification queue
  process-queue    drain the notification queue only
  cleanup          remove sent/failed queue items older than -days
  stats            print saved-search and queue statistics

Common flags:
  -dry-run         report intended actions without mutating state
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, err := postgres.New(cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()

	var exitCode int
	switch os.Args[1] {
	case "process-alerts":
		exitCode = processAlerts(ctx, cfg, store, log, os.Args[2:])
	case "process-queue":
		exitCode = processQueue(ctx, cfg, store, log, os.Args[2:])
	case "cleanup":
		exitCode = cleanup(ctx, store, log, os.Args[2:])
	case "stats":
		exitCode = stats(ctx, store, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		exitCode = 2
	}

	os.Exit(exitCode)
}

func newDispatcher(cfg *config.Config, store *postgres.Store, log *zap.Logger) *alerts.Dispatcher {
	transport := mailer.New(
		cfg.SMTPHost, cfg.SMTPPort,
		cfg.SMTPUsername, cfg.SMTPPassword,
		cfg.MailFrom, cfg.MailTimeout,
		log,
	)

	return alerts.NewDispatcher(store, transport, alerts.DispatcherConfig{
		BatchSize: cfg.DispatchBatchSize,
		Backoff: alerts.Backoff{
			Base:        cfg.RetryBase,
			Max:         cfg.RetryMax,
			MaxAttempts: cfg.MaxSendAttempts,
		},
		StaleAfter: cfg.SendingStaleAfter,
		Interval:   cfg.DispatchInterval,
		BaseURL:    cfg.BaseURL,
	}, log)
}

// processAlerts runs one matcher pass then drains the queue. Individual
// delivery failures are reported, not fatal; only a systemic failure exits
// non-zero.
func processAlerts(ctx context.Context, cfg *config.Config, store *postgres.Store, log *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("process-alerts", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "report intended actions without mutating state")
	limit := fs.Int("limit", 0, "max drain batches after matching; 0 drains until empty")
	fs.Parse(args)

	matcher := alerts.NewMatcher(store, store, store, alerts.MatcherConfig{
		MinInterval: cfg.MatcherMinInterval,
		MatchLimit:  cfg.MatcherMatchLimit,
		DryRun:      *dryRun,
	}, log)

	matchStats, err := matcher.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "matcher pass failed: %v\n", err)
		return 1
	}

	fmt.Printf("matcher: evaluated=%d skipped=%d enqueued=%d errors=%d\n",
		matchStats.Evaluated, matchStats.Skipped, matchStats.Enqueued, matchStats.Errors)

	if *dryRun {
		fmt.Println("dry run: queue not drained")
		return 0
	}

	dispatcher := newDispatcher(cfg, store, log)

	total := alerts.DrainStats{}
	for batch := 0; *limit == 0 || batch < *limit; batch++ {
		drained, err := dispatcher.Drain(ctx, cfg.DispatchBatchSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "drain failed: %v\n", err)
			return 1
		}

		total.Processed += drained.Processed
		total.Sent += drained.Sent
		total.Retried += drained.Retried
		total.Failed += drained.Failed
		total.Errors += drained.Errors

		if drained.Processed == 0 {
			break
		}
	}

	fmt.Printf("dispatcher: processed=%d sent=%d retried=%d failed=%d errors=%d\n",
		total.Processed, total.Sent, total.Retried, total.Failed, total.Errors)

	return 0
}

func processQueue(ctx context.Context, cfg *config.Config, store *postgres.Store, log *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("process-queue", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "report intended actions without mutating state")
	batch := fs.Int("batch", 0, "batch size; defaults to DISPATCH_BATCH_SIZE")
	fs.Parse(args)

	if *batch < 1 {
		*batch = cfg.DispatchBatchSize
	}

	if *dryRun {
		queueStats, err := store.QueueStats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "queue stats failed: %v\n", err)
			return 1
		}
		fmt.Printf("dry run: %d pending items, would attempt up to %d\n", queueStats.Pending, *batch)
		return 0
	}

	drained, err := newDispatcher(cfg, store, log).Drain(ctx, *batch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "drain failed: %v\n", err)
		return 1
	}

	fmt.Printf("dispatcher: processed=%d sent=%d retried=%d failed=%d errors=%d\n",
		drained.Processed, drained.Sent, drained.Retried, drained.Failed, drained.Errors)

	return 0
}

func cleanup(ctx context.Context, store *postgres.Store, log *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "report intended actions without mutating state")
	days := fs.Int("days", 30, "remove sent/failed items older than this many days")
	fs.Parse(args)

	if *days < 1 {
		fmt.Fprintln(os.Stderr, "-days must be at least 1")
		return 2
	}

	cutoff := time.Now().AddDate(0, 0, -*days)

	count, err := store.CleanupOld(ctx, cutoff, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cleanup failed: %v\n", err)
		return 1
	}

	if *dryRun {
		fmt.Printf("dry run: would remove %d items older than %s\n", count, cutoff.Format(time.RFC3339))
	} else {
		fmt.Printf("removed %d items older than %s\n", count, cutoff.Format(time.RFC3339))
	}

	return 0
}

func stats(ctx context.Context, store *postgres.Store, args []string) int {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	top := fs.Int("top", 10, "how many of the most active saved searches to list")
	fs.Parse(args)

	active, err := store.CountActiveSavedSearches(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats failed: %v\n", err)
		return 1
	}

	queueStats, err := store.QueueStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats failed: %v\n", err)
		return 1
	}

	fmt.Printf("active saved searches: %d\n", active)
	fmt.Printf("queue: pending=%d sending=%d sent=%d failed=%d\n",
		queueStats.Pending, queueStats.Sending, queueStats.Sent, queueStats.Failed)

	topSearches, err := store.TopActiveSavedSearches(ctx, *top)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats failed: %v\n", err)
		return 1
	}

	if len(topSearches) > 0 {
		fmt.Println("most active saved searches:")
		for _, s := range topSearches {
			fmt.Printf("  #%d %q: %d matches\n", s.SavedSearchID, s.Name, s.Matches)
		}
	}

	return 0
}
