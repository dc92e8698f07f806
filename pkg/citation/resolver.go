package citation

import (
	"log/slog"

	"github.com/zen-systems/groundchat/pkg/catalog"
	"github.com/zen-systems/groundchat/pkg/similarity"
)

// Provenance records how a citation was found.
type Provenance string

const (
	// Explicit citations matched a quoted reference.
	Explicit Provenance = "explicit"
	// Partial citations matched the field value somewhere in the whole text.
	Partial Provenance = "partial"
)

// Defaults used when a Resolver field is left zero.
const (
	DefaultField     = "title"
	DefaultThreshold = 0.75
)

// Citation is a candidate record judged to be referenced by a reply.
type Citation struct {
	Record     catalog.Record `json:"record"`
	Index      int            `json:"index"`
	Provenance Provenance     `json:"provenance"`
	Score      float64        `json:"score"`
	// Reference is the quoted text that matched; empty for Partial.
	Reference string `json:"reference,omitempty"`
}

// Title returns the cited record's value for field.
func (c Citation) Title(field string) string {
	return c.Record.Text(field)
}

// Resolver matches generated text against a candidate set.
type Resolver struct {
	extractor *Extractor
	field     string
	threshold float64
	method    similarity.Method
	logger    *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithField sets the record field compared against references.
func WithField(name string) ResolverOption {
	return func(r *Resolver) {
		r.field = name
	}
}

// WithThreshold sets the minimum similarity for a match. Values outside
// [0,1] are accepted and make every or no record match.
func WithThreshold(t float64) ResolverOption {
	return func(r *Resolver) {
		r.threshold = t
	}
}

// WithMethod sets the metric used for quoted references.
func WithMethod(m similarity.Method) ResolverOption {
	return func(r *Resolver) {
		r.method = m
	}
}

// WithExtractor replaces the default quote extractor.
func WithExtractor(e *Extractor) ResolverOption {
	return func(r *Resolver) {
		r.extractor = e
	}
}

// WithLogger sets the logger for resolution diagnostics.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver using the title field, a 0.75 threshold
// and the full-string ratio for quoted references.
func NewResolver(opts ...ResolverOption) (*Resolver, error) {
	r := &Resolver{
		field:     DefaultField,
		threshold: DefaultThreshold,
		method:    similarity.Ratio,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if _, err := similarity.ParseMethod(string(r.method)); err != nil {
		return nil, err
	}
	if r.extractor == nil {
		r.extractor = MustExtractor(DefaultPattern)
	}
	return r, nil
}

// Field returns the compared record field.
func (r *Resolver) Field() string {
	return r.field
}

// Threshold returns the match threshold.
func (r *Resolver) Threshold() float64 {
	return r.threshold
}

// Resolve returns the records of corpus referenced by text, at most one
// citation per corpus index.
//
// Quoted references are resolved first: each picks its most similar
// record (lowest index on ties) and is accepted when the score reaches
// the threshold; an index already accepted keeps its first citation.
// Every remaining record is then accepted if its field value partially
// matches the whole text. Explicit citations come first, in reference
// order, followed by partial ones in corpus order.
func (r *Resolver) Resolve(text string, corpus []catalog.Record) []Citation {
	if len(corpus) == 0 {
		return nil
	}

	values := make([]string, len(corpus))
	for i, rec := range corpus {
		values[i] = rec.Text(r.field)
	}

	var citations []Citation
	accepted := make(map[int]bool, len(corpus))

	for _, ref := range r.extractor.Extract(text) {
		best, bestScore := -1, -1.0
		for i, v := range values {
			score := similarity.MustCompare(ref, v, r.method, false)
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if bestScore < r.threshold || accepted[best] {
			continue
		}
		accepted[best] = true
		citations = append(citations, Citation{
			Record:     corpus[best],
			Index:      best,
			Provenance: Explicit,
			Score:      bestScore,
			Reference:  ref,
		})
	}

	for i, v := range values {
		if accepted[i] {
			continue
		}
		score := similarity.MustCompare(v, text, similarity.PartialRatio, false)
		if score < r.threshold {
			continue
		}
		accepted[i] = true
		citations = append(citations, Citation{
			Record:     corpus[i],
			Index:      i,
			Provenance: Partial,
			Score:      score,
		})
	}

	if len(citations) == 0 {
		r.logger.Debug("no citations found", "candidates", len(corpus))
	} else {
		r.logger.Debug("citations selected", "indexes", Indexes(citations))
	}
	return citations
}

// Indexes returns the corpus indexes of citations in order.
func Indexes(citations []Citation) []int {
	out := make([]int, len(citations))
	for i, c := range citations {
		out[i] = c.Index
	}
	return out
}
