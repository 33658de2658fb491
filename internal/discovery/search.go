package discovery

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tenkings/setops-ingest/internal/logging"
	"github.com/tenkings/setops-ingest/internal/metrics"
	"github.com/tenkings/setops-ingest/internal/normalize"
	"github.com/tenkings/setops-ingest/internal/setops"
)

// Config tunes the search service.
type Config struct {
	DefaultLimit      int
	MaxLimit          int
	TrustedDomains    []string
	BlockedDomains    []string
	SyntheticFallback bool
}

// Service fans queries out to providers and ranks what comes back.
type Service struct {
	providers []Provider
	rules     rules
	cfg       Config
	clock     setops.Clock
	logger    *zap.Logger
}

// New wires a Service.
func New(providers []Provider, cfg Config, clock setops.Clock, logger *zap.Logger) *Service {
	trusted := cfg.TrustedDomains
	if len(trusted) == 0 {
		trusted = scopedDomains
	}
	return &Service{
		providers: providers,
		rules:     rules{trusted: trusted, blocked: cfg.BlockedDomains},
		cfg:       cfg,
		clock:     clock,
		logger:    logging.OrNop(logger),
	}
}

// Failure records why one provider call produced nothing.
type Failure struct {
	Provider string
	Variant  string
	Err      error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s (%s): %v", f.Provider, f.Variant, f.Err)
}

type outcome struct {
	results []RawResult
	err     error
}

// SearchSetSources returns ranked candidate sources for q, best first.
func (s *Service) SearchSetSources(ctx context.Context, q Query) ([]setops.DiscoveryResult, error) {
	now := s.now()
	q = q.clamp(now, s.cfg.DefaultLimit, s.cfg.MaxLimit)
	if err := validate(q); err != nil {
		return nil, err
	}

	var (
		failures []Failure
		best     = map[string]setops.DiscoveryResult{}
	)
	for _, v := range q.variants() {
		outcomes := s.runProviders(ctx, v)
		if err := ctx.Err(); err != nil {
			return nil, setops.Wrap(setops.KindDiscovery, "Source search aborted.", err)
		}
		for i, out := range outcomes {
			name := s.providers[i].Name()
			if out.err != nil {
				failures = append(failures, Failure{Provider: name, Variant: v.Label(), Err: out.err})
				continue
			}
			for _, raw := range out.results {
				c, ok := newCandidate(raw)
				if !ok || !s.rules.relevant(c, q, v) {
					continue
				}
				res := s.result(c, q, name, now)
				if prev, ok := best[res.URL]; !ok || res.Score > prev.Score {
					best[res.URL] = res
				}
			}
		}
		if len(best) >= q.Limit {
			break
		}
	}

	results := make([]setops.DiscoveryResult, 0, len(best))
	for _, r := range best {
		results = append(results, r)
	}
	if len(results) == 0 && s.cfg.SyntheticFallback {
		s.logger.Warn("no provider results; returning search page fallbacks",
			zap.String("query", q.base()), zap.Int("failures", len(failures)))
		results = s.synthetic(q, now)
	}
	if len(results) == 0 {
		return nil, discoveryError(failures)
	}
	sortResults(results)
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// runProviders calls every provider for one variant concurrently; outcomes keep provider order.
func (s *Service) runProviders(ctx context.Context, v Variant) []outcome {
	outcomes := make([]outcome, len(s.providers))
	var g errgroup.Group
	for i, p := range s.providers {
		g.Go(func() error {
			results, err := p.Search(ctx, v.Text)
			outcomes[i] = outcome{results: results, err: err}
			switch {
			case err != nil:
				metrics.ObserveDiscoveryProvider(p.Name(), "error")
				s.logger.Info("discovery provider failed",
					zap.String("provider", p.Name()), zap.String("variant", v.Label()), zap.Error(err))
			case len(results) == 0:
				metrics.ObserveDiscoveryProvider(p.Name(), "empty")
			default:
				metrics.ObserveDiscoveryProvider(p.Name(), "success")
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *Service) result(c candidate, q Query, provider string, now time.Time) setops.DiscoveryResult {
	u := c.url.String()
	guess := normalize.SetIDFromTitle(c.raw.Title)
	if guess == "" {
		guess = normalize.SetIDFromTitle(q.base())
	}
	return setops.DiscoveryResult{
		ID:           resultID(u),
		Title:        c.raw.Title,
		URL:          u,
		Snippet:      c.raw.Snippet,
		Provider:     provider,
		Domain:       c.domain,
		SetIDGuess:   guess,
		Score:        s.rules.score(c, q),
		DiscoveredAt: now,
	}
}

// synthetic returns provider search pages for the query as last-resort results.
func (s *Service) synthetic(q Query, now time.Time) []setops.DiscoveryResult {
	base := q.base()
	terms := strings.TrimSpace(strings.TrimSuffix(base, " checklist"))
	guess := normalize.SetIDFromTitle(base)
	pages := []struct {
		title  string
		url    string
		domain string
		score  float64
	}{
		{"TCDB search: " + terms, "https://www.tcdb.com/Search.cfm?SearchCategory=Sets&q=" + url.QueryEscape(terms), "tcdb.com", 3},
		{"Cardboard Connection search: " + terms, "https://www.cardboardconnection.com/?s=" + url.QueryEscape(base), "cardboardconnection.com", 2},
		{"Beckett search: " + terms, "https://www.beckett.com/search/?term=" + url.QueryEscape(base), "beckett.com", 1},
	}
	out := make([]setops.DiscoveryResult, 0, len(pages))
	for _, p := range pages {
		out = append(out, setops.DiscoveryResult{
			ID:           resultID(p.url),
			Title:        p.title,
			URL:          p.url,
			Snippet:      "Provider search page. Open it and pick the checklist page to import.",
			Provider:     ProviderSynthetic,
			Domain:       p.domain,
			SetIDGuess:   guess,
			Score:        p.score,
			DiscoveredAt: now,
		})
	}
	return out
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

func sortResults(results []setops.DiscoveryResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].URL < results[j].URL
	})
}

func resultID(u string) string {
	sum := sha1.Sum([]byte(u))
	return hex.EncodeToString(sum[:])
}

func discoveryError(failures []Failure) error {
	if len(failures) == 0 {
		return setops.Errorf(setops.KindDiscovery, "No relevant checklist sources found.")
	}
	reasons := make([]string, 0, len(failures))
	for _, f := range failures {
		reasons = append(reasons, f.String())
	}
	return setops.Errorf(setops.KindDiscovery, "Source search failed: %s", strings.Join(reasons, "; "))
}
