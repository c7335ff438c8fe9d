// Package search provides a deterministic, concurrency-safe in-memory match
// index over partner profiles. Profiles are immutable once indexed, so an
// Index can be shared across goroutines without locking.
//
// A profile contributes two token sets:
//
//   - languages: BCP 47 tags reduced to their base language ("en-GB" -> "en")
//   - interests: lower-cased Unicode words, optionally minus stop words
//
// The match score of a profile for a query is a weighted sum of the Jaccard
// similarity of each set, so it always lies in [0,1]:
//
//	score = w*J(Lq, Lp) + (1-w)*J(Iq, Ip)
package search

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// Profile is the indexed view of a partner.
type Profile struct {
	ID        string
	Languages []string
	Interests string
}

// Query describes what the searching user offers and likes.
type Query struct {
	Languages []string
	Interests string
}

// Result is a ranked profile id with its match score.
type Result struct {
	ID    string
	Score float64
}

// Index is the minimal interface implemented by all match indices.
type Index interface {
	// TopK returns up to k profiles with a positive score, best first.
	TopK(q Query, k int) []Result
	// Score returns the match score of a single profile, or 0 when the id
	// is not indexed.
	Score(id string, q Query) float64
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	languageWeight float64
	stopwords      map[string]struct{}
	maxDocs        int
}

func defaultConfig() config {
	return config{
		languageWeight: 0.7,
		stopwords:      nil,
		maxDocs:        0,
	}
}

// WithLanguageWeight sets how much the language overlap counts, in [0,1].
func WithLanguageWeight(w float64) Option {
	return func(c *config) {
		if w >= 0 && w <= 1 {
			c.languageWeight = w
		}
	}
}

func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	id        string
	languages map[string]struct{}
	interests map[string]struct{}
}

type index struct {
	cfg  config
	docs []doc
	byID map[string]int
}

// NewIndex builds an Index from profiles. Profiles without an id are skipped;
// a repeated id keeps its first occurrence.
func NewIndex(profiles []Profile, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return buildIndex(profiles, cfg)
}

func buildIndex(profiles []Profile, cfg config) *index {
	idx := &index{
		cfg:  cfg,
		docs: make([]doc, 0, len(profiles)),
		byID: make(map[string]int, len(profiles)),
	}
	for _, p := range profiles {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			continue
		}
		if _, dup := idx.byID[id]; dup {
			continue
		}
		idx.byID[id] = len(idx.docs)
		idx.docs = append(idx.docs, doc{
			id:        id,
			languages: languageSet(p.Languages),
			interests: tokenize(p.Interests, cfg.stopwords),
		})
		if cfg.maxDocs > 0 && len(idx.docs) >= cfg.maxDocs {
			break
		}
	}
	return idx
}

func (i *index) score(d doc, qLang, qInt map[string]struct{}) float64 {
	w := i.cfg.languageWeight
	return w*jaccard(qLang, d.languages) + (1-w)*jaccard(qInt, d.interests)
}

// Score implements Index.
func (i *index) Score(id string, q Query) float64 {
	pos, ok := i.byID[id]
	if !ok {
		return 0
	}
	return i.score(i.docs[pos], languageSet(q.Languages), tokenize(q.Interests, i.cfg.stopwords))
}

// TopK implements Index. Ties are broken by id so the order is stable.
func (i *index) TopK(q Query, k int) []Result {
	if len(i.docs) == 0 {
		return nil
	}
	qLang := languageSet(q.Languages)
	qInt := tokenize(q.Interests, i.cfg.stopwords)
	if len(qLang) == 0 && len(qInt) == 0 {
		return nil
	}
	if k <= 0 {
		k = 10
	}

	buf := make([]Result, 0, min(k*4, len(i.docs)))
	for _, d := range i.docs {
		s := i.score(d, qLang, qInt)
		if s <= 0 {
			continue
		}
		buf = append(buf, Result{ID: d.id, Score: s})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].Score != buf[b].Score {
			return buf[a].Score > buf[b].Score
		}
		return buf[a].ID < buf[b].ID
	})

	if k > len(buf) {
		k = len(buf)
	}
	return buf[:k]
}

// ----------------------------------------------------------------------------
// Helpers

// BaseLanguages parses BCP 47 tags and returns their distinct base languages
// in input order. Unparseable tags are dropped.
func BaseLanguages(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, raw := range tags {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		tag, err := language.Parse(raw)
		if err != nil {
			continue
		}
		base, conf := tag.Base()
		if conf == language.No {
			continue
		}
		b := base.String()
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	return out
}

func languageSet(tags []string) map[string]struct{} {
	bases := BaseLanguages(tags)
	if len(bases) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(bases))
	for _, b := range bases {
		out[b] = struct{}{}
	}
	return out
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	s = strings.ToLower(s)
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

// jaccard returns |a ∩ b| / |a ∪ b|, 0 when either set is empty.
func jaccard(a, b map[string]struct{}) float64 {
	over := overlap(a, b)
	if over == 0 {
		return 0
	}
	union := len(a) + len(b) - over
	if union <= 0 {
		return 0
	}
	return float64(over) / float64(union)
}
