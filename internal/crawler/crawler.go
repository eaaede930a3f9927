// Package crawler wires the frontier worker pool, the HTTP fetcher, the
// text pipeline and the index store into the fetch-parse-index pipeline
// spec §4.4 describes. It is the orchestrator that the teacher's
// WebCrawler.crawlPage used to be, reshaped around a fixed worker pool
// and a shared task queue instead of one goroutine per domain.
package crawler

import (
	"context"
	"log"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/codepr/gosearch/internal/events"
	"github.com/codepr/gosearch/internal/frontier"
	"github.com/codepr/gosearch/internal/store"
	"github.com/codepr/gosearch/internal/textpipeline"
)

const (
	// defaultWorkers matches the reference's fixed two-worker pool (spec §4.4).
	defaultWorkers = 2
	// minBodyLength below which a fetched page is treated as an error,
	// per spec §4.4 step 5.
	minBodyLength = 100
	// linkCap is the "first 5 accepted links" parity detail from spec §4.4
	// step 8 and §9 — a tunable, not a design claim.
	linkCap = 5
	// defaultUserAgent is the default Settings.UserAgent, the same
	// Googlebot-flavored string cmd/spider passes to fetcher.New.
	defaultUserAgent = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

// Fetcher is the subset of fetcher.HttpFetcher the crawler depends on,
// narrowed to an interface so tests can substitute a stub.
type Fetcher interface {
	Fetch(url string) (time.Duration, string, []byte, error)
}

// Settings mirrors the teacher's CrawlerSettings/CrawlerOpt functional-option
// idiom, generalized from "concurrency + politeness" to the spec's fixed
// worker count, depth budget and link cap.
type Settings struct {
	Workers   int
	MaxDepth  int
	LinkCap   int
	UserAgent string
}

// Opt configures a Crawler at construction time, the teacher's CrawlerOpt
// pattern applied to the new Settings shape.
type Opt func(*Settings)

// WithWorkers overrides the fixed worker pool size.
func WithWorkers(n int) Opt { return func(s *Settings) { s.Workers = n } }

// WithLinkCap overrides the per-page outgoing-link cap.
func WithLinkCap(n int) Opt { return func(s *Settings) { s.LinkCap = n } }

// WithUserAgent sets Settings.UserAgent. The crawler does not pass this
// value to its Fetcher; the User-Agent header sent on each request is the
// one the Fetcher was constructed with (see fetcher.New).
func WithUserAgent(ua string) Opt { return func(s *Settings) { s.UserAgent = ua } }

// Crawler drives a single run: seed the frontier, drain it to quiescence,
// report progress on an events.Producer exactly as the teacher forwards
// ParsedResult onto its messaging.Producer.
type Crawler struct {
	logger  *log.Logger
	fetcher Fetcher
	index   store.IndexStore
	bus     events.Producer

	settings Settings

	visited   *frontier.VisitedSet
	allowed   *frontier.AllowList
	processed int32
	errored   int32
}

// New builds a Crawler over an already-constructed Fetcher and IndexStore.
// bus may be nil, in which case progress events are dropped.
func New(f Fetcher, idx store.IndexStore, bus events.Producer, opts ...Opt) *Crawler {
	settings := Settings{
		Workers:   defaultWorkers,
		LinkCap:   linkCap,
		UserAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(&settings)
	}
	if bus == nil {
		bus = noopProducer{}
	}
	return &Crawler{
		logger:   log.New(os.Stderr, "crawler: ", log.LstdFlags),
		fetcher:  f,
		index:    idx,
		bus:      bus,
		settings: settings,
	}
}

// Run crawls startPage to maxDepth (inclusive) and blocks until the
// frontier reaches quiescence. The same-origin allow-list is seeded from
// startPage's authority and never grows (spec §9 open question (b):
// reference answer is no).
func (c *Crawler) Run(ctx context.Context, startPage string, maxDepth int) error {
	startPage = normalizeSeed(startPage)
	authority, err := authorityOf(startPage)
	if err != nil {
		return err
	}
	c.settings.MaxDepth = maxDepth
	c.visited = frontier.NewVisitedSet()
	c.allowed = frontier.NewAllowList(authority)

	pool := frontier.NewPool(c.settings.Workers, func(t frontier.Task, p *frontier.Pool) {
		c.process(ctx, t, p)
	})
	pool.Submit(frontier.Task{URL: startPage, Depth: 1})
	pool.Start()
	pool.Wait()

	c.logger.Printf("crawl finished: visited=%d processed=%d errors=%d",
		c.visited.Len(), atomic.LoadInt32(&c.processed), atomic.LoadInt32(&c.errored))
	return nil
}

// process implements spec §4.4's eight-step task semantics. It is called
// with in_flight already incremented by the pool at submission time; every
// return path here is a pool-tracked completion, never a separate
// decrement, since frontier.Pool.complete() runs once per processed task.
func (c *Crawler) process(ctx context.Context, t frontier.Task, pool *frontier.Pool) {
	select {
	case <-ctx.Done():
		return
	default:
	}

	if t.Depth > c.settings.MaxDepth {
		return
	}
	if !c.visited.MarkIfAbsent(t.URL) {
		return
	}
	authority, err := authorityOf(t.URL)
	if err != nil || !c.allowed.Allowed(authority) {
		return
	}

	_, _, body, err := c.fetcher.Fetch(t.URL)
	if err != nil || len(body) < minBodyLength {
		atomic.AddInt32(&c.errored, 1)
		c.bus.Produce(events.CrawlEvent{URL: t.URL, Depth: t.Depth, Err: err})
		return
	}
	html := string(body)

	text := textpipeline.Normalize(textpipeline.StripTags(html))
	freq := textpipeline.CountTerms(text)
	if len(freq) > 0 {
		if err := c.persist(ctx, t.URL, freq); err != nil {
			atomic.AddInt32(&c.errored, 1)
			c.bus.Produce(events.CrawlEvent{URL: t.URL, Depth: t.Depth, Err: err})
			return
		}
		atomic.AddInt32(&c.processed, 1)
	}

	var linksOut int
	if t.Depth < c.settings.MaxDepth {
		linksOut = c.enqueueChildren(html, t.URL, t.Depth, pool)
	}
	c.bus.Produce(events.CrawlEvent{URL: t.URL, Depth: t.Depth, WordCount: len(freq), LinksOut: linksOut})
}

// enqueueChildren resolves outgoing links from html, keeps the first
// LinkCap whose authority is on the allow-list (a document-order prefix,
// not a random sample, per spec §4.4's closing note), and submits each as
// a child task at depth+1. Children are enqueued only after this page's
// own postings are durable, satisfying spec §5's "a child's existence in
// the frontier implies its parent is durable" invariant.
func (c *Crawler) enqueueChildren(html, baseURL string, depth int, pool *frontier.Pool) int {
	links := textpipeline.ExtractLinks(html, baseURL)
	var enqueued int
	for _, link := range links {
		if enqueued >= c.settings.LinkCap {
			break
		}
		authority, err := authorityOf(link)
		if err != nil || !c.allowed.Allowed(authority) {
			continue
		}
		pool.Submit(frontier.Task{URL: link, Depth: depth + 1})
		enqueued++
	}
	return enqueued
}

// persist writes one document's term frequencies: upsert the document,
// then upsert each word and its posting. A transient store error is
// retried once (spec §7), a second failure surfaces to the caller.
func (c *Crawler) persist(ctx context.Context, docURL string, freq map[string]int) error {
	docID, err := upsertWithRetry(func() (int64, error) {
		return c.index.UpsertDocument(ctx, docURL)
	})
	if err != nil {
		return err
	}
	for word, count := range freq {
		wordID, err := upsertWithRetry(func() (int64, error) {
			return c.index.UpsertWord(ctx, word)
		})
		if err != nil {
			return err
		}
		if err := c.index.PutPosting(ctx, wordID, docID, count); err != nil {
			if err := c.index.PutPosting(ctx, wordID, docID, count); err != nil {
				return err
			}
		}
	}
	return nil
}

func upsertWithRetry(fn func() (int64, error)) (int64, error) {
	id, err := fn()
	if err == nil {
		return id, nil
	}
	return fn()
}

// authorityOf extracts the host[:port] portion of rawURL used for the
// same-origin check, via net/url rather than textpipeline's literal scan
// since the crawler needs a real parse to reject malformed URLs outright.
func authorityOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", &url.Error{Op: "parse", URL: rawURL, Err: errEmptyHost}
	}
	return u.Host, nil
}

var errEmptyHost = urlErr("missing host")

type urlErr string

func (e urlErr) Error() string { return string(e) }

// Stats reports the run's processed/errored page counts, exposed for the
// cmd/spider summary line the way the distilled source prints
// "Total pages processed" / "Errors" at the end of main().
func (c *Crawler) Stats() (processed, errored int32) {
	return atomic.LoadInt32(&c.processed), atomic.LoadInt32(&c.errored)
}

// noopProducer discards every event; used when a caller passes a nil bus.
type noopProducer struct{}

func (noopProducer) Produce(events.CrawlEvent) {}

// normalizeSeed ensures a seed URL carries an explicit scheme, the way the
// teacher's Crawl() defaults a bare host to https before parsing.
func normalizeSeed(raw string) string {
	if !strings.Contains(raw, "://") {
		return "https://" + raw
	}
	return raw
}
