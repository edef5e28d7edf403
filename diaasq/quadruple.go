package diaasq

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/theimaginaryfoundation/diaasq-bench/diaasq/fileutils"
)

// Sentiment is the polarity code carried by a quadruple.
type Sentiment string

const (
	SentimentPos   Sentiment = "pos"
	SentimentNeg   Sentiment = "neg"
	SentimentOther Sentiment = "other"
)

const (
	// NonOpinionSentinel marks a sample that carries no quadruples.
	NonOpinionSentinel = "statement-non-opinion"

	// ShorthandSentinel is the no-quadruple marker of the colon-delimited shorthand.
	ShorthandSentinel = "notarget:none:none:none"
)

// Quadruple is one (target, aspect, opinion, sentiment) opinion expression.
// It is comparable and is used directly as a set key.
type Quadruple struct {
	Target    string `json:"target" jsonschema:"required"`
	Aspect    string `json:"aspect" jsonschema:"required"`
	Opinion   string `json:"opinion" jsonschema:"required"`
	Sentiment string `json:"sentiment" jsonschema:"required,enum=pos,enum=neg,enum=other"`
}

// Complete reports whether target, aspect and opinion are all non-empty.
func (q Quadruple) Complete() bool {
	return q.Target != "" && q.Aspect != "" && q.Opinion != ""
}

// Record returns q in the loose record form produced by the parsers.
func (q Quadruple) Record() Record {
	return Record{
		"target":    q.Target,
		"aspect":    q.Aspect,
		"opinion":   q.Opinion,
		"sentiment": q.Sentiment,
	}
}

func (q Quadruple) less(o Quadruple) bool {
	if q.Target != o.Target {
		return q.Target < o.Target
	}
	if q.Aspect != o.Aspect {
		return q.Aspect < o.Aspect
	}
	if q.Opinion != o.Opinion {
		return q.Opinion < o.Opinion
	}
	return q.Sentiment < o.Sentiment
}

// quadrupleKeys are the fields every quadruple record must carry, in tuple order.
var quadrupleKeys = [4]string{"target", "aspect", "opinion", "sentiment"}

// Record is a decoded JSON object that may describe a quadruple.
type Record map[string]any

// Field returns the trimmed string form of key. Absent keys and JSON null yield "".
func (r Record) Field(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case json.Number:
		s = x.String()
	case bool:
		if x {
			s = "true"
		} else {
			s = "false"
		}
	case float64:
		s = fmt.Sprintf("%v", x)
	case []any, map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		s = string(b)
	default:
		s = fmt.Sprint(x)
	}
	return strings.TrimSpace(s)
}

// hasAll reports whether every quadruple key is present and non-null.
func (r Record) hasAll() bool {
	for _, k := range quadrupleKeys {
		if v, ok := r[k]; !ok || v == nil {
			return false
		}
	}
	return true
}

// hasAny reports whether at least one quadruple key is present.
func (r Record) hasAny() bool {
	for _, k := range quadrupleKeys {
		if _, ok := r[k]; ok {
			return true
		}
	}
	return false
}

// Normalize canonicalizes a raw record into a Quadruple. It never fails: missing or null
// fields become empty strings, so callers decide whether to keep incomplete quadruples.
func Normalize(r Record) Quadruple {
	return Quadruple{
		Target:    r.Field("target"),
		Aspect:    r.Field("aspect"),
		Opinion:   r.Field("opinion"),
		Sentiment: r.Field("sentiment"),
	}
}

// NormalizeSentiment maps a free-text sentiment label onto the closed polarity set.
// ok is false when the label is not recognized and the quadruple should be dropped.
func NormalizeSentiment(s string) (Sentiment, bool) {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}

	switch b.String() {
	case "pos", "positive", "posit", "positve":
		return SentimentPos, true
	case "neg", "negative", "negat", "negativ":
		return SentimentNeg, true
	case "other", "neutral", "none":
		return SentimentOther, true
	default:
		return "", false
	}
}

// Set is an unordered collection of unique quadruples for one sample.
type Set map[Quadruple]struct{}

// NewSet builds a Set from quadruples, collapsing duplicates.
func NewSet(qs ...Quadruple) Set {
	s := make(Set, len(qs))
	for _, q := range qs {
		s.Add(q)
	}
	return s
}

// SetFromRecords normalizes records and keeps only complete quadruples.
func SetFromRecords(records []Record) Set {
	s := make(Set, len(records))
	for _, r := range records {
		q := Normalize(r)
		if !q.Complete() {
			continue
		}
		s.Add(q)
	}
	return s
}

func (s Set) Add(q Quadruple) { s[q] = struct{}{} }

func (s Set) Has(q Quadruple) bool {
	_, ok := s[q]
	return ok
}

func (s Set) Len() int { return len(s) }

// Intersect returns the quadruples present in both s and o.
func (s Set) Intersect(o Set) Set {
	out := make(Set)
	for q := range s {
		if o.Has(q) {
			out.Add(q)
		}
	}
	return out
}

// Minus returns the quadruples of s that are not in o.
func (s Set) Minus(o Set) Set {
	out := make(Set)
	for q := range s {
		if !o.Has(q) {
			out.Add(q)
		}
	}
	return out
}

// Equal reports whether s and o hold the same quadruples.
func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for q := range s {
		if !o.Has(q) {
			return false
		}
	}
	return true
}

// Valid returns the complete members of s.
func (s Set) Valid() Set {
	out := make(Set, len(s))
	for q := range s {
		if q.Complete() {
			out.Add(q)
		}
	}
	return out
}

// Sorted returns the members of s in lexicographic (target, aspect, opinion, sentiment) order.
func (s Set) Sorted() []Quadruple {
	out := make([]Quadruple, 0, len(s))
	for q := range s {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// QuadrupleList is the {"quadruples": [...]} payload used by labeled samples and model answers.
type QuadrupleList struct {
	Quadruples []Quadruple `json:"quadruples" jsonschema:"required"`
}

// EncodeTarget serializes s as a labeled-sample target: the non-opinion sentinel for an
// empty set, otherwise a {"quadruples":[...]} JSON string in sorted order.
func EncodeTarget(s Set) (string, error) {
	return encodeTargetList(s.Sorted())
}

// encodeTargetList keeps the given order and duplicates.
func encodeTargetList(qs []Quadruple) (string, error) {
	if len(qs) == 0 {
		return NonOpinionSentinel, nil
	}
	b, err := fileutils.MarshalLine(QuadrupleList{Quadruples: qs})
	if err != nil {
		return "", fmt.Errorf("EncodeTarget: %w", err)
	}
	return string(b), nil
}

// EncodeShorthand serializes s as "target:aspect:opinion:sentiment, ..." or the shorthand sentinel.
func EncodeShorthand(s Set) string {
	if s.Len() == 0 {
		return ShorthandSentinel
	}
	parts := make([]string, 0, s.Len())
	for _, q := range s.Sorted() {
		parts = append(parts, strings.Join([]string{q.Target, q.Aspect, q.Opinion, q.Sentiment}, ":"))
	}
	return strings.Join(parts, ", ")
}
