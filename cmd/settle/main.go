// Command settle runs the settlement posting pipeline from the command
// line: it drafts, posts, and optionally reconciles Amazon settlements
// against the external ledger, printing a JSON run summary to stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/lmb/settlements/internal/amazon"
	"github.com/lmb/settlements/internal/config"
	"github.com/lmb/settlements/internal/draft"
	"github.com/lmb/settlements/internal/journal"
	"github.com/lmb/settlements/internal/ledger"
	"github.com/lmb/settlements/internal/pipeline"
	"github.com/lmb/settlements/internal/repository"
)

// Exit codes. Mismatch is distinct from failure so schedulers can page on
// broken runs but merely flag divergent books.
const (
	exitOK       = 0
	exitError    = 1
	exitMismatch = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		settlementIDs = flag.String("settlement-id", "", "comma-separated settlement references to process")
		startDate     = flag.String("start-date", "", "process every settlement whose period ends on or after this ISO date")
		post          = flag.Bool("post", false, "actually post to the ledger (default is a dry run)")
		process       = flag.Bool("process", false, "reconcile posted entries after posting")
		dbPath        = flag.String("db", "", "SQLite database path (overrides DB_PATH)")
		maxMismatches = flag.Int("max-mismatches", 20, "cap on reported line deltas per journal entry")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return exitError
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	if *settlementIDs == "" && *startDate == "" {
		log.Printf("Either --settlement-id or --start-date is required")
		flag.Usage()
		return exitError
	}
	if cfg.AmazonBaseURL == "" || cfg.LedgerBaseURL == "" {
		log.Printf("AMAZON_BASE_URL and LEDGER_BASE_URL must be set")
		return exitError
	}

	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		log.Printf("Failed to init DB: %v", err)
		return exitError
	}
	defer db.Close()

	source := amazon.NewClient(cfg.AmazonBaseURL, cfg.AmazonToken)
	p := &pipeline.Pipeline{
		Source: source,
		NewLedger: func() pipeline.LedgerClient {
			session := &ledger.Session{
				AccessToken:  cfg.LedgerAccessToken,
				RefreshToken: cfg.LedgerRefreshToken,
			}
			return ledger.NewClient(cfg.LedgerBaseURL, session)
		},
		Audit:           repository.NewAuditRepo(db),
		Uploads:         repository.NewUploadRepo(db),
		Brands:          draft.TableResolver(cfg.BrandRules),
		KnownBrands:     cfg.KnownBrands,
		Categories:      journal.DefaultCategories(),
		MaxHistoryPages: cfg.MaxHistoryPages,
		Workers:         cfg.Workers,
	}

	ctx := context.Background()
	ids, err := resolveTargets(ctx, source, *settlementIDs, *startDate)
	if err != nil {
		log.Printf("Failed to resolve settlements: %v", err)
		return exitError
	}
	if len(ids) == 0 {
		log.Printf("No settlements to process")
		return exitOK
	}

	summary, err := p.Run(ctx, ids, pipeline.Options{
		Post:          *post,
		Process:       *process,
		MaxMismatches: *maxMismatches,
	})
	if err != nil {
		log.Printf("Run failed: %v", err)
		return exitError
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		log.Printf("Failed to encode summary: %v", err)
		return exitError
	}

	switch {
	case summary.Failures > 0:
		return exitError
	case summary.Mismatches > 0:
		return exitMismatch
	default:
		return exitOK
	}
}

// resolveTargets turns the CLI selection into settlement references:
// explicit ids verbatim, or every group overlapping [startDate, now].
func resolveTargets(ctx context.Context, source *amazon.Client, explicit, startDate string) ([]string, error) {
	var ids []string
	for _, id := range strings.Split(explicit, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if startDate == "" {
		return ids, nil
	}

	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid --start-date %q: %w", startDate, err)
	}
	groups, err := source.ListEventGroups(ctx, start, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	for _, g := range groups {
		if g.SettlementID != "" && !seen[g.SettlementID] {
			seen[g.SettlementID] = true
			ids = append(ids, g.SettlementID)
		}
	}
	return ids, nil
}
