package diaasq

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var (
	openFenceRe  = regexp.MustCompile("^```[A-Za-z0-9_+-]*[ \t]*\r?\n?")
	closeFenceRe = regexp.MustCompile("\r?\n?```[ \t\r\n]*$")

	// bareKeyRe matches an unquoted identifier key right after '{' or ','.
	bareKeyRe = regexp.MustCompile(`([{,]\s*)([A-Za-z0-9_]+)(\s*:)`)

	shorthandSplitRe = regexp.MustCompile(`\s*(?:,|;|\|)\s*`)

	errTrailingData = errors.New("trailing data after JSON value")
)

// ParseResponse recovers quadruple records from a model answer or a serialized gold label.
//
// wellFormed is true only when the text was a sentinel or verbatim-valid JSON of an
// accepted shape. Text that needed repair still returns whatever records it holds,
// with wellFormed=false. Records missing any of the four keys (or carrying null) are dropped.
func ParseResponse(text string) (records []Record, wellFormed bool) {
	s := strings.TrimSpace(text)
	if s == NonOpinionSentinel || s == ShorthandSentinel {
		return []Record{}, true
	}

	s = stripCodeFence(s)

	if v, err := decodeJSON(s); err == nil {
		items, ok := extractRecordList(v)
		if !ok {
			return []Record{}, false
		}
		return filterRecords(items), true
	}

	repaired := quoteBareKeys(s)
	v, err := decodeJSON(repaired)
	if err != nil {
		fixed, rerr := jsonrepair.JSONRepair(repaired)
		if rerr != nil {
			return []Record{}, false
		}
		if v, err = decodeJSON(fixed); err != nil {
			return []Record{}, false
		}
	}
	items, ok := extractRecordList(v)
	if !ok {
		return []Record{}, false
	}
	return filterRecords(items), false
}

// stripCodeFence removes a wrapping ``` / ```json fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = openFenceRe.ReplaceAllString(s, "")
	s = closeFenceRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// quoteBareKeys rewrites {key: ...} into {"key": ...}. It is a best-effort text substitution.
func quoteBareKeys(s string) string {
	return bareKeyRe.ReplaceAllString(s, `$1"$2"$3`)
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if rest := strings.TrimSpace(s[dec.InputOffset():]); rest != "" {
		return nil, errTrailingData
	}
	return v, nil
}

// extractRecordList picks the candidate list out of a decoded payload.
func extractRecordList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case map[string]any:
		if q, ok := x["quadruples"]; ok {
			list, isList := q.([]any)
			return list, isList
		}
		// A bare quadruple object stands for a one-element list.
		if Record(x).hasAny() {
			return []any{x}, true
		}
		return nil, false
	default:
		return nil, false
	}
}

func filterRecords(items []any) []Record {
	out := make([]Record, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		r := Record(m)
		if !r.hasAll() {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ParseLegacy parses the colon/comma shorthand "target:aspect:opinion:sentiment, ...".
//
// Segments with fewer than four fields or an unrecognized sentiment make the payload
// not well-formed. Segments with an empty or "notarget" target, or an empty aspect or
// opinion, are dropped without affecting wellFormed. Sentiments are resolved to pos/neg/other.
func ParseLegacy(text string) (records []Record, wellFormed bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return []Record{}, false
	}
	if s == NonOpinionSentinel || s == ShorthandSentinel {
		return []Record{}, true
	}

	if i := strings.LastIndex(s, "output:"); i >= 0 {
		s = strings.TrimSpace(s[i+len("output:"):])
	}

	wellFormed = true
	out := make([]Record, 0, 4)
	for _, seg := range shorthandSplitRe.Split(s, -1) {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == ShorthandSentinel {
			continue
		}

		fields := strings.SplitN(seg, ":", 4)
		if len(fields) < 4 {
			wellFormed = false
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		target, aspect, opinion := fields[0], fields[1], fields[2]

		sent, ok := NormalizeSentiment(fields[3])
		if !ok {
			wellFormed = false
			continue
		}
		if target == "" || target == "notarget" || aspect == "" || opinion == "" {
			continue
		}
		out = append(out, Quadruple{Target: target, Aspect: aspect, Opinion: opinion, Sentiment: string(sent)}.Record())
	}
	return out, wellFormed
}
