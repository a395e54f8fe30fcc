package featurepolicy

import "strings"

// PictureInPicture is the feature removed by default.
const PictureInPicture = "picture-in-picture"

// Directive is one feature declaration in a Feature-Policy value.
type Directive struct {
	Feature   string   `json:"feature"`
	AllowList []string `json:"allow_list,omitempty"`
}

// List is the decoded form of a single header value.
type List []Directive

// Decode splits a raw header value into directives. It never fails: an empty
// or all-whitespace value yields an empty list, and an empty segment (from
// "a;;b" or a trailing ";") yields a directive with an empty feature.
func Decode(raw string) List {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return List{}
	}

	segments := strings.Split(raw, ";")
	out := make(List, 0, len(segments))
	for _, segment := range segments {
		out = append(out, decodeDirective(segment))
	}
	return out
}

func decodeDirective(segment string) Directive {
	tokens := strings.Fields(segment)
	if len(tokens) == 0 {
		return Directive{}
	}
	d := Directive{Feature: tokens[0]}
	if len(tokens) > 1 {
		d.AllowList = tokens[1:]
	}
	return d
}

// Encode is the inverse of Decode. An empty list encodes to "", which callers
// must treat as "omit the header".
func Encode(list List) string {
	var b strings.Builder
	for i, d := range list {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(d.String())
	}
	return b.String()
}

func (d Directive) String() string {
	if len(d.AllowList) == 0 {
		return d.Feature
	}
	return d.Feature + " " + strings.Join(d.AllowList, " ")
}

func (l List) String() string {
	return Encode(l)
}

// Has reports whether any directive names feature exactly.
func (l List) Has(feature string) bool {
	for _, d := range l {
		if d.Feature == feature {
			return true
		}
	}
	return false
}

// Filter returns the directives whose feature is not blocked, in order.
// Matching is case-sensitive.
func Filter(list List, blocked string) List {
	out := make(List, 0, len(list))
	for _, d := range list {
		if d.Feature == blocked {
			continue
		}
		out = append(out, d)
	}
	return out
}

// StripFeature removes blocked from raw. ok is false when nothing would be
// left to send, in which case the header must be dropped rather than set to
// an empty value.
func StripFeature(raw, blocked string) (value string, ok bool) {
	value = Encode(Filter(Decode(raw), blocked))
	return value, value != ""
}
