// Package pipeline orchestrates the per-settlement flow: parse the
// reference, fetch events, build the draft, resolve accounts, compile,
// post, persist audit rows, and optionally reconcile what was posted.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lmb/settlements/internal/accounts"
	"github.com/lmb/settlements/internal/audit"
	"github.com/lmb/settlements/internal/domain"
	"github.com/lmb/settlements/internal/draft"
	"github.com/lmb/settlements/internal/events"
	"github.com/lmb/settlements/internal/journal"
	"github.com/lmb/settlements/internal/ledger"
	"github.com/lmb/settlements/internal/period"
	"github.com/lmb/settlements/internal/posting"
	"github.com/lmb/settlements/internal/reconciliation"
)

// LedgerClient is the slice of the ledger API the pipeline needs. Clients
// own mutable session state, so each worker gets its own.
type LedgerClient interface {
	FindEntriesByDocNumber(ctx context.Context, substr string) ([]ledger.Entry, error)
	GetEntry(ctx context.Context, id string) (*ledger.Entry, error)
	CreateEntry(ctx context.Context, e *ledger.Entry) (*ledger.Entry, error)
	ListRecentEntries(ctx context.Context, page int) ([]ledger.Entry, error)
}

// AuditStore persists the per-order audit rows of posted settlements.
type AuditStore interface {
	DeleteByInvoiceIDs(invoiceIDs []string) (int, error)
	BulkInsert(rows []domain.AuditRow, batchID string) (int, error)
}

// UploadStore records one summary per stored audit batch.
type UploadStore interface {
	Insert(s audit.InvoiceSummary, uploadedAt time.Time) error
	List(marketplace string) ([]audit.InvoiceSummary, error)
}

// Pipeline wires the stages together. All fields must be set except
// MaxHistoryPages and Workers, which default sensibly.
type Pipeline struct {
	Source      events.Source
	NewLedger   func() LedgerClient
	Audit       AuditStore
	Uploads     UploadStore
	Brands      draft.BrandResolver
	KnownBrands []string
	Categories  journal.CategoryTable

	MaxHistoryPages int
	Workers         int
}

// Options selects what one run does.
type Options struct {
	// Post actually writes to the ledger and the audit store. Without it
	// the run is a dry run: everything is computed and verified, nothing
	// leaves the engine.
	Post bool
	// Process additionally reconciles each settlement's posted entries
	// against a fresh recompilation of its draft.
	Process bool
	// MaxMismatches caps the reported line deltas per journal entry.
	MaxMismatches int
}

// SettlementResult is the outcome for one settlement reference. A failed
// settlement carries Error and nothing else; failures never abort the run.
type SettlementResult struct {
	SettlementID string                         `json:"settlement_id"`
	Outcomes     []posting.Outcome              `json:"outcomes,omitempty"`
	AuditRows    int                            `json:"audit_rows,omitempty"`
	AuditBatch   string                         `json:"audit_batch,omitempty"`
	AuditMatch   *audit.InvoiceSummary          `json:"audit_match,omitempty"`
	Journal      []reconciliation.JournalResult `json:"journal,omitempty"`
	ErrorKind    domain.Kind                    `json:"error_kind,omitempty"`
	Error        string                         `json:"error,omitempty"`
}

// Mismatched reports whether any reconciled entry diverged.
func (r SettlementResult) Mismatched() bool {
	for _, j := range r.Journal {
		if j.Status == reconciliation.JournalMismatch {
			return true
		}
	}
	return false
}

// RunSummary is the whole run's outcome.
type RunSummary struct {
	RunID      string             `json:"run_id"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Results    []SettlementResult `json:"results"`
	Failures   int                `json:"failures"`
	Mismatches int                `json:"mismatches"`
}

// Run processes the given settlement references, fanning out across workers
// when configured. Result order follows the input order regardless of
// completion order.
func (p *Pipeline) Run(ctx context.Context, settlementIDs []string, opts Options) (*RunSummary, error) {
	if len(settlementIDs) == 0 {
		return nil, domain.E(domain.KindMalformed, "no settlement references given")
	}
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(settlementIDs) {
		workers = len(settlementIDs)
	}

	summary := &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Results:   make([]SettlementResult, len(settlementIDs)),
	}
	log.Printf("[pipeline] Run %s: %d settlements, %d workers, post=%v process=%v",
		summary.RunID, len(settlementIDs), workers, opts.Post, opts.Process)

	type job struct {
		idx int
		id  string
	}
	jobs := make(chan job)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lc := p.NewLedger()
			for j := range jobs {
				summary.Results[j.idx] = p.runOne(ctx, lc, j.id, opts)
			}
		}()
	}
	for i, id := range settlementIDs {
		jobs <- job{idx: i, id: id}
	}
	close(jobs)
	wg.Wait()

	for _, res := range summary.Results {
		if res.Error != "" {
			summary.Failures++
		}
		if res.Mismatched() {
			summary.Mismatches++
		}
	}
	summary.FinishedAt = time.Now().UTC()
	log.Printf("[pipeline] Run %s finished: %d ok, %d failed, %d mismatched",
		summary.RunID, len(settlementIDs)-summary.Failures, summary.Failures, summary.Mismatches)
	return summary, nil
}

func (p *Pipeline) runOne(ctx context.Context, lc LedgerClient, settlementID string, opts Options) SettlementResult {
	res := SettlementResult{SettlementID: settlementID}
	fail := func(err error) SettlementResult {
		log.Printf("[pipeline] %s failed: %v", settlementID, err)
		res.ErrorKind = domain.KindOf(err)
		res.Error = err.Error()
		return res
	}

	ref, err := period.ParseRef(settlementID)
	if err != nil {
		return fail(err)
	}

	group, err := p.Source.EventGroupForSettlement(ctx, settlementID)
	if err != nil {
		return fail(err)
	}

	evs, err := p.collectEvents(ctx, group.ID)
	if err != nil {
		return fail(err)
	}

	builder := &draft.Builder{Resolver: p.Brands, KnownBrands: p.KnownBrands}
	d, err := builder.Build(settlementID, ref.Region, ref.Marketplace, group.ID, group.Total, evs)
	if err != nil {
		return fail(err)
	}

	resolver := &accounts.Resolver{History: lc, MaxPages: p.MaxHistoryPages}
	mapping, err := resolver.Resolve(ctx, d.MemoLabels())
	if err != nil {
		return fail(err)
	}

	note := fmt.Sprintf("Amazon settlement %s", settlementID)
	entries, err := journal.Compile(d, *mapping, p.Categories, note)
	if err != nil {
		return fail(err)
	}

	poster := &posting.Poster{Ledger: lc, DryRun: !opts.Post}
	res.Outcomes, err = poster.PostEntries(ctx, entries)
	if err != nil {
		return fail(err)
	}

	if opts.Post {
		if err := p.persistAudit(d, ref, &res); err != nil {
			return fail(err)
		}
	}

	if opts.Process {
		res.Journal, err = p.reconcile(ctx, lc, d, opts.MaxMismatches)
		if err != nil {
			return fail(err)
		}
		res.AuditMatch, err = p.matchAudit(ref)
		if err != nil {
			return fail(err)
		}
		if res.AuditMatch == nil {
			log.Printf("[pipeline] %s: no stored audit batch covers the settlement period", settlementID)
		}
	}

	return res
}

// collectEvents drains every page of a group's events.
func (p *Pipeline) collectEvents(ctx context.Context, groupID string) ([]events.Event, error) {
	var all []events.Event
	token := ""
	for {
		page, err := p.Source.ListEvents(ctx, groupID, token)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Events...)
		if page.NextToken == "" {
			return all, nil
		}
		token = page.NextToken
	}
}

// persistAudit replaces the settlement's stored audit rows wholesale so a
// re-run never duplicates them.
func (p *Pipeline) persistAudit(d *draft.Draft, ref period.Ref, res *SettlementResult) error {
	var rows []domain.AuditRow
	for _, seg := range d.Segments {
		rows = append(rows, seg.AuditRows...)
	}
	if len(rows) == 0 {
		return nil
	}

	if _, err := p.Audit.DeleteByInvoiceIDs(d.DocNumbers()); err != nil {
		return fmt.Errorf("replace audit rows for %s: %w", d.SettlementID, err)
	}

	batchID := uuid.NewString()
	if err := p.Uploads.Insert(summarize(batchID, ref.Marketplace, rows), time.Now().UTC()); err != nil {
		return fmt.Errorf("record audit batch for %s: %w", d.SettlementID, err)
	}
	n, err := p.Audit.BulkInsert(rows, batchID)
	if err != nil {
		return fmt.Errorf("store audit rows for %s: %w", d.SettlementID, err)
	}
	log.Printf("[pipeline] %s: stored %d audit rows as batch %s", d.SettlementID, n, batchID)
	res.AuditRows = n
	res.AuditBatch = batchID
	return nil
}

func summarize(batchID, marketplace string, rows []domain.AuditRow) audit.InvoiceSummary {
	s := audit.InvoiceSummary{
		BatchID:     batchID,
		Marketplace: marketplace,
		MinDate:     rows[0].PostedDate,
		MaxDate:     rows[0].PostedDate,
		RowCount:    len(rows),
	}
	skus := map[string]bool{}
	for _, r := range rows {
		if r.PostedDate < s.MinDate {
			s.MinDate = r.PostedDate
		}
		if r.PostedDate > s.MaxDate {
			s.MaxDate = r.PostedDate
		}
		if r.SKU != "" {
			skus[r.SKU] = true
		}
	}
	s.SKUCount = len(skus)
	return s
}

// reconcile fetches the posted entries for the draft's document numbers and
// diffs them against a fresh recompilation.
func (p *Pipeline) reconcile(ctx context.Context, lc LedgerClient, d *draft.Draft, maxMismatches int) ([]reconciliation.JournalResult, error) {
	posted := map[string]*ledger.Entry{}
	for _, doc := range d.DocNumbers() {
		matches, err := lc.FindEntriesByDocNumber(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("fetch posted %s: %w", doc, err)
		}
		for i := range matches {
			if matches[i].DocNumber != doc {
				continue
			}
			full, err := lc.GetEntry(ctx, matches[i].ID)
			if err != nil {
				return nil, fmt.Errorf("fetch posted %s: %w", doc, err)
			}
			posted[doc] = full
			break
		}
	}
	return reconciliation.ReconcileJournal(d, p.Categories, posted, maxMismatches)
}

// MatchAuditBatch links a settlement reference to the stored audit batch
// covering its period, when there is exactly one.
func (p *Pipeline) MatchAuditBatch(settlementID string) (*audit.InvoiceSummary, error) {
	ref, err := period.ParseRef(settlementID)
	if err != nil {
		return nil, err
	}
	return p.matchAudit(ref)
}

func (p *Pipeline) matchAudit(ref period.Ref) (*audit.InvoiceSummary, error) {
	summaries, err := p.Uploads.List(ref.Marketplace)
	if err != nil {
		return nil, err
	}
	return audit.MatchPeriod(ref, summaries)
}
