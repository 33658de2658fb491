package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tenkings/setops-ingest/internal/htmltable"
	"github.com/tenkings/setops-ingest/internal/logging"
	"github.com/tenkings/setops-ingest/internal/metrics"
	"github.com/tenkings/setops-ingest/internal/setops"
)

// DefaultMaxDepth is how many link hops are followed from the requested page.
const DefaultMaxDepth = 1

// RetryFetcher fetches a URL with bounded retries and reports the attempts used.
type RetryFetcher interface {
	FetchWithRetry(ctx context.Context, rawURL string, attempts int) (setops.FetchResponse, int, error)
}

// Dispatcher fetches sources and runs the parser chain over them.
type Dispatcher struct {
	fetcher  RetryFetcher
	stages   *stageSet
	clock    setops.Clock
	logger   *zap.Logger
	attempts int
	maxDepth int
}

// Config tunes the dispatcher.
type Config struct {
	Attempts int
	MaxDepth int
}

// New wires a Dispatcher.
func New(fetcher RetryFetcher, tables *htmltable.Parser, clock setops.Clock, cfg Config, logger *zap.Logger) *Dispatcher {
	if tables == nil {
		tables = htmltable.New(0)
	}
	depth := cfg.MaxDepth
	if depth < 0 {
		depth = 0
	}
	return &Dispatcher{
		fetcher:  fetcher,
		stages:   newStageSet(tables),
		clock:    clock,
		logger:   logging.OrNop(logger),
		attempts: cfg.Attempts,
		maxDepth: depth,
	}
}

// Visited is the per-call set of URLs already fetched during one source resolution.
type Visited map[string]bool

type target struct {
	url   string
	depth int
}

// FetchRowsFromSource fetches rawURL and returns the first parser result that produced rows,
// following in-page checklist and PDF links when the page itself yields none.
func (d *Dispatcher) FetchRowsFromSource(ctx context.Context, rawURL string) (setops.SourceFetchResult, error) {
	return d.Resolve(ctx, rawURL, Visited{})
}

// Resolve is FetchRowsFromSource with a caller-owned visited set.
func (d *Dispatcher) Resolve(ctx context.Context, rawURL string, visited Visited) (setops.SourceFetchResult, error) {
	work := []target{{url: canonicalURL(rawURL), depth: 0}}
	var (
		root        setops.FetchResponse
		rootURL     string
		rootHandled bool
		rootErr     error
		attempts    int
	)
	for len(work) > 0 {
		t := work[0]
		work = work[1:]
		if visited[t.url] {
			return setops.SourceFetchResult{}, setops.Errorf(setops.KindLoop, "Link loop detected at %s.", t.url)
		}
		visited[t.url] = true

		resp, used, err := d.fetcher.FetchWithRetry(ctx, t.url, d.attempts)
		attempts += used
		if err != nil {
			if t.depth == 0 {
				return setops.SourceFetchResult{}, err
			}
			d.logger.Info("checklist link fetch failed", zap.String("url", t.url), zap.Error(err))
			continue
		}
		final := canonicalURL(resp.URL)
		if final != "" && final != t.url {
			if visited[final] {
				return setops.SourceFetchResult{}, setops.Errorf(setops.KindLoop, "Link loop detected at %s.", final)
			}
			visited[final] = true
		}
		if final == "" {
			final = t.url
		}

		payload := Payload{URL: final, ContentType: resp.ContentType(), Body: resp.Body}
		rows, name, handled, perr := d.stages.primary().Run(payload)
		if perr != nil {
			d.logger.Debug("parser stage failed", zap.String("url", final), zap.String("parser", name), zap.Error(perr))
		}
		if len(rows) == 0 && !handled && t.depth > 0 {
			rows, name, _, _ = d.stages.fallback().Run(payload)
		}
		if len(rows) > 0 {
			if t.depth > 0 {
				name += LinkParserSuffix
			}
			return d.result(final, payload, rows, name, attempts), nil
		}

		if t.depth == 0 {
			root, rootURL, rootHandled, rootErr = resp, final, handled, perr
			if t.depth < d.maxDepth && payload.isHTML() {
				for _, link := range checklistLinks(final, resp.Body) {
					if !visited[link] {
						work = append(work, target{url: link, depth: t.depth + 1})
					}
				}
			}
		}
	}

	if rootURL != "" && !rootHandled {
		payload := Payload{URL: rootURL, ContentType: root.ContentType(), Body: root.Body}
		if rows, name, _, _ := d.stages.fallback().Run(payload); len(rows) > 0 {
			return d.result(rootURL, payload, rows, name, attempts), nil
		}
	}
	return setops.SourceFetchResult{}, setops.Wrap(setops.KindParse, "Could not parse rows from source URL.", rootErr)
}

func (d *Dispatcher) result(finalURL string, p Payload, rows []setops.Record, parser string, attempts int) setops.SourceFetchResult {
	metrics.ObserveParser(parser)
	return setops.SourceFetchResult{
		URL:         finalURL,
		Title:       Title(p),
		Rows:        rows,
		ParserName:  parser,
		ContentType: p.ContentType,
		FetchedAt:   d.now(),
		Attempts:    attempts,
		Body:        p.Body,
	}
}

func (d *Dispatcher) now() time.Time {
	if d.clock == nil {
		return time.Now().UTC()
	}
	return d.clock.Now()
}

// ParseBuffer runs the full parser chain, without link following, over an in-memory payload.
func (d *Dispatcher) ParseBuffer(p Payload) ([]setops.Record, string, error) {
	rows, name, handled, err := d.stages.primary().Run(p)
	if len(rows) > 0 {
		metrics.ObserveParser(name)
		return rows, name, nil
	}
	if handled {
		return nil, name, err
	}
	rows, name, _, _ = d.stages.fallback().Run(p)
	if len(rows) > 0 {
		metrics.ObserveParser(name)
		return rows, name, nil
	}
	return nil, "", err
}
