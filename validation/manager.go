package validation

import (
	"context"
	"fmt"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/patrickmn/go-cache"
	"github.com/prebid/adstxt-validator/adstxt"
	"github.com/prebid/adstxt-validator/config"
	"github.com/prebid/adstxt-validator/crosscheck"
	"github.com/prebid/adstxt-validator/errortypes"
	"github.com/prebid/adstxt-validator/metrics"
)

// DefaultBatchSize is the number of entries validated concurrently by ValidateEntries.
const DefaultBatchSize = 10

const cacheCleanupInterval = 10 * time.Minute

// Verdict is the cross-check outcome of one ads.txt entry.
type Verdict struct {
	IsVerified bool                 `json:"is_verified"`
	Reasons    []crosscheck.Message `json:"reasons"`
}

// Fallback produces the verdict of an entry the cross-check did not return.
type Fallback func(entry adstxt.Entry) Verdict

// Progress is reported before and after every batch of ValidateEntries.
type Progress struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Failed     int `json:"failed"`
}

type Options struct {
	Fallback   Fallback
	OnProgress func(Progress)
	// SkipDelay disables the pause between batches.
	SkipDelay bool
}

// EntryResult is the settled outcome of one entry of a batch. Err is set when no verdict could be produced.
type EntryResult struct {
	Entry   adstxt.Entry `json:"entry"`
	Verdict Verdict      `json:"verdict"`
	Err     error        `json:"-"`
}

type validation struct {
	done    chan struct{}
	records []crosscheck.Record
}

// Manager cross-checks ads.txt documents against sellers.json and serves per-entry verdicts.
//
// Each document, identified by its URL and content length, is cross-checked at most once: concurrent
// requests wait for the validation in progress, later ones are answered from the result cache.
type Manager struct {
	parser       crosscheck.Parser
	checker      crosscheck.Checker
	provider     crosscheck.SellersProvider
	results      *cache.Cache // document key -> []crosscheck.Record
	verdicts     *cache.Cache // document key + entry key -> Verdict
	batchSize    int
	batchDelay   time.Duration
	metricEngine metrics.MetricsEngine
	clock        clock.Clock

	mu         sync.Mutex
	inProgress map[string]*validation
}

func NewManager(parser crosscheck.Parser, checker crosscheck.Checker, provider crosscheck.SellersProvider, cfg config.Validation, resultTTL time.Duration, metricEngine metrics.MetricsEngine, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Manager{
		parser:       parser,
		checker:      checker,
		provider:     provider,
		results:      cache.New(resultTTL, cacheCleanupInterval),
		verdicts:     cache.New(resultTTL, cacheCleanupInterval),
		batchSize:    batchSize,
		batchDelay:   cfg.BatchDelay(),
		metricEngine: metricEngine,
		clock:        clk,
		inProgress:   make(map[string]*validation),
	}
}

// Validate returns every record of doc annotated by the cross-check. An empty result means the document
// could not be validated.
func (m *Manager) Validate(ctx context.Context, doc *adstxt.Document) ([]crosscheck.Record, error) {
	if doc == nil {
		return nil, &errortypes.BadInput{Message: "no ads.txt document"}
	}
	key := documentKey(doc)
	if records, ok := m.results.Get(key); ok {
		return records.([]crosscheck.Record), nil
	}

	m.mu.Lock()
	if records, ok := m.results.Get(key); ok {
		m.mu.Unlock()
		return records.([]crosscheck.Record), nil
	}
	v, ok := m.inProgress[key]
	if !ok {
		v = &validation{done: make(chan struct{})}
		m.inProgress[key] = v
		// The validation outlives a caller that stops waiting.
		go m.run(context.WithoutCancel(ctx), key, doc, v)
	}
	m.mu.Unlock()

	select {
	case <-v.done:
		return v.records, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) run(ctx context.Context, key string, doc *adstxt.Document, v *validation) {
	v.records = m.doFullValidation(ctx, doc)

	m.mu.Lock()
	// ClearCaches may have dropped this validation meanwhile.
	if m.inProgress[key] == v {
		m.results.SetDefault(key, v.records)
		delete(m.inProgress, key)
	}
	m.mu.Unlock()
	close(v.done)
}

func (m *Manager) doFullValidation(ctx context.Context, doc *adstxt.Document) (records []crosscheck.Record) {
	start := m.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("Panic while validating %s: %v\n%s", doc.URL, r, debug.Stack())
			records = []crosscheck.Record{}
		}
		m.metricEngine.RecordValidation(len(records) > 0, len(records), m.clock.Since(start))
	}()

	parsed := m.parser.Parse(doc.Content, ownerDomain(doc))
	checked, err := m.checker.CrossCheck(ctx, parsed, m.provider)
	if err != nil {
		glog.Warningf("Cross-check of %s failed: %v", doc.URL, err)
		return []crosscheck.Record{}
	}
	if checked == nil {
		checked = []crosscheck.Record{}
	}
	return checked
}

// ValidateEntry returns the verdict for entry of doc. Entries the cross-check did not return get the
// fallback verdict, or an entry-not-found verdict without a fallback.
func (m *Manager) ValidateEntry(ctx context.Context, doc *adstxt.Document, entry adstxt.Entry, fallback Fallback) (Verdict, error) {
	if doc == nil {
		return Verdict{}, &errortypes.BadInput{Message: "no ads.txt document"}
	}
	key := verdictKey(doc, entry)
	if v, ok := m.verdicts.Get(key); ok {
		return v.(Verdict), nil
	}

	records, err := m.Validate(ctx, doc)
	if err != nil {
		return Verdict{}, err
	}

	record := findRecord(records, entry)
	if record == nil {
		if fallback != nil {
			return fallback(entry), nil
		}
		return entryNotFound(entry), nil
	}

	verdict := verdictFromRecord(record)
	m.verdicts.SetDefault(key, verdict)
	return verdict, nil
}

// ValidateEntries validates entries in batches. Batches run one after another; the entries of a batch run
// concurrently and a failed entry does not affect the others. Results are in entry order.
func (m *Manager) ValidateEntries(ctx context.Context, doc *adstxt.Document, entries []adstxt.Entry, opts Options) []EntryResult {
	results := make([]EntryResult, len(entries))
	progress := Progress{Total: len(entries)}

	for start := 0; start < len(entries); start += m.batchSize {
		end := start + m.batchSize
		if end > len(entries) {
			end = len(entries)
		}

		progress.InProgress = end - start
		report(opts.OnProgress, progress)

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = m.settle(ctx, doc, entries[i], opts.Fallback)
			}(i)
		}
		wg.Wait()

		for i := start; i < end; i++ {
			if results[i].Err != nil {
				progress.Failed++
			} else {
				progress.Completed++
			}
		}
		progress.InProgress = 0
		report(opts.OnProgress, progress)

		if end < len(entries) && !opts.SkipDelay && m.batchDelay > 0 {
			m.pause(ctx)
		}
	}
	return results
}

func (m *Manager) settle(ctx context.Context, doc *adstxt.Document, entry adstxt.Entry, fallback Fallback) (result EntryResult) {
	result.Entry = entry
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("Panic while validating entry %s: %v\n%s", entry.Key(), r, debug.Stack())
			result.Err = fmt.Errorf("validating %s: %v", entry.Key(), r)
		}
	}()
	result.Verdict, result.Err = m.ValidateEntry(ctx, doc, entry, fallback)
	return result
}

func (m *Manager) pause(ctx context.Context) {
	timer := m.clock.Timer(m.batchDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// ClearCaches forgets every result and verdict, and detaches validations in progress so their results
// are not stored.
func (m *Manager) ClearCaches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results.Flush()
	m.verdicts.Flush()
	m.inProgress = make(map[string]*validation)
}

// CachedDocuments is the number of documents with a stored result.
func (m *Manager) CachedDocuments() int {
	return m.results.ItemCount()
}

func report(onProgress func(Progress), p Progress) {
	if onProgress != nil {
		onProgress(p)
	}
}

func documentKey(doc *adstxt.Document) string {
	return fmt.Sprintf("%s|%d", doc.URL, doc.ContentLength())
}

func verdictKey(doc *adstxt.Document, entry adstxt.Entry) string {
	return documentKey(doc) + "|" + entry.Key()
}

// ownerDomain is the host the document was served from, without www.
func ownerDomain(doc *adstxt.Document) string {
	if u, err := url.Parse(doc.URL); err == nil && u.Hostname() != "" {
		return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	}
	return doc.Hostname
}

// findRecord returns the first entry record with the same domain, account ID and relationship as entry.
func findRecord(records []crosscheck.Record, entry adstxt.Entry) *crosscheck.Record {
	key := entry.Key()
	for i := range records {
		r := &records[i]
		if r.IsVariable {
			continue
		}
		if adstxt.EntryKey(r.Domain, r.AccountID, r.Relationship) == key {
			return r
		}
	}
	return nil
}

func verdictFromRecord(r *crosscheck.Record) Verdict {
	reasons := make([]crosscheck.Message, 0, len(r.Messages)+1)
	if r.Error != nil {
		reasons = append(reasons, *r.Error)
	}
	reasons = append(reasons, r.Messages...)
	return Verdict{IsVerified: r.Verified(), Reasons: reasons}
}

func entryNotFound(entry adstxt.Entry) Verdict {
	return Verdict{
		IsVerified: false,
		Reasons: []crosscheck.Message{{
			Key:      crosscheck.KeyEntryNotFound,
			Severity: crosscheck.SeverityError,
			Params:   []string{entry.Domain, entry.PublisherID, string(entry.Relationship)},
		}},
	}
}
