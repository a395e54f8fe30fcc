package rewrite

import (
	"net/http"
	"strings"

	"github.com/pipstrip/pipstrip/internal/featurepolicy"
)

// HeaderName is the only header the rewriter touches.
const HeaderName = "feature-policy"

type Outcome string

const (
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeRewritten Outcome = "rewritten"
	OutcomeRemoved   Outcome = "removed"
	OutcomeBypassed  Outcome = "bypassed"
)

// Field is a single header line in wire order.
type Field struct {
	Name  string
	Value string
}

type Result struct {
	Fields  []Field
	Outcome Outcome
	Removed int
	Before  string
	After   string
}

func (r Result) Changed() bool {
	return r.Outcome == OutcomeRewritten || r.Outcome == OutcomeRemoved
}

type Rewriter struct {
	blocked string
}

func New(blockedFeature string) *Rewriter {
	if blockedFeature == "" {
		blockedFeature = featurepolicy.PictureInPicture
	}
	return &Rewriter{blocked: blockedFeature}
}

func (r *Rewriter) BlockedFeature() string {
	return r.blocked
}

// Fields applies the rewrite to an ordered header list. Non-target fields keep
// their order; the replacement header, if any, is appended last.
func (r *Rewriter) Fields(in []Field) Result {
	retained := make([]Field, 0, len(in))
	var values []string
	for _, f := range in {
		if isTarget(f.Name) {
			values = append(values, f.Value)
			continue
		}
		retained = append(retained, f)
	}

	res := r.apply(values)
	if !res.Changed() {
		res.Fields = in
		return res
	}
	if res.Outcome == OutcomeRewritten {
		retained = append(retained, Field{Name: HeaderName, Value: res.After})
	}
	res.Fields = retained
	return res
}

// Header applies the rewrite to h in place.
func (r *Rewriter) Header(h http.Header) Result {
	var keys []string
	var values []string
	for key, vals := range h {
		if !isTarget(key) {
			continue
		}
		keys = append(keys, key)
		values = append(values, vals...)
	}

	res := r.apply(values)
	if !res.Changed() {
		return res
	}
	for _, key := range keys {
		delete(h, key)
	}
	if res.Outcome == OutcomeRewritten {
		h.Set(HeaderName, res.After)
	}
	return res
}

func (r *Rewriter) apply(values []string) Result {
	if len(values) == 0 {
		return Result{Outcome: OutcomeUnchanged}
	}

	var merged featurepolicy.List
	for _, v := range values {
		merged = append(merged, featurepolicy.Decode(v)...)
	}

	res := Result{Outcome: OutcomeUnchanged, Before: strings.Join(values, ", ")}
	if !merged.Has(r.blocked) {
		return res
	}

	kept := featurepolicy.Filter(merged, r.blocked)
	res.Removed = len(merged) - len(kept)
	res.After = featurepolicy.Encode(kept)
	if res.After == "" {
		res.Outcome = OutcomeRemoved
	} else {
		res.Outcome = OutcomeRewritten
	}
	return res
}

func isTarget(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), HeaderName)
}
