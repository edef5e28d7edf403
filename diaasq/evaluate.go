package diaasq

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/theimaginaryfoundation/diaasq-bench/diaasq/fileutils"
)

// Mode selects the parser the Evaluator applies to both sides of a sample.
type Mode string

const (
	ModeJSON   Mode = "json"
	ModeLegacy Mode = "legacy"
)

// ParseMode parses an evaluation mode name. The empty string selects ModeJSON.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.TrimSpace(s)) {
	case "", ModeJSON:
		return ModeJSON, nil
	case ModeLegacy:
		return ModeLegacy, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want %q or %q)", s, ModeJSON, ModeLegacy)
	}
}

// ErrorTaxonomy breaks down prediction errors per quadruple.
type ErrorTaxonomy struct {
	TP              int `json:"TP"`
	FNMissing       int `json:"FN_Missing"`
	FPHallucination int `json:"FP_Hallucination"`
	SentimentError  int `json:"Sentiment_Error"`
	OpinionError    int `json:"Opinion_Error"`
	AspectError     int `json:"Aspect_Error"`
	TargetError     int `json:"Target_Error"`
}

// Result holds aggregate scores over a run.
type Result struct {
	Samples   int `json:"samples"`
	Gold      int `json:"gold"`
	GoldRaw   int `json:"gold_raw"`
	Predicted int `json:"predicted"`
	Correct   int `json:"correct"`

	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`

	// MalformedSamples are 0-based sample indices where either side was not well-formed.
	MalformedSamples []int `json:"malformed_samples"`

	// MalformedLines maps MalformedSamples to source line numbers when scoring from a results file.
	MalformedLines []int `json:"malformed_lines,omitempty"`

	Taxonomy *ErrorTaxonomy `json:"taxonomy,omitempty"`
}

// Evaluator scores predicted quadruple sets against gold labels.
type Evaluator struct {
	Mode Mode

	// Taxonomy enables the per-field error breakdown.
	Taxonomy bool

	// ResolveSentiment maps JSON-mode sentiments through NormalizeSentiment and drops
	// quadruples whose label is unrecognized. Off means exact-match scoring.
	ResolveSentiment bool

	Logger *zerolog.Logger
}

func (e Evaluator) logger() *zerolog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

// Score evaluates parallel prediction and gold texts.
func (e Evaluator) Score(predictions, golds []string) (Result, error) {
	if len(predictions) != len(golds) {
		return Result{}, fmt.Errorf("Score: %d predictions for %d golds", len(predictions), len(golds))
	}

	res := Result{MalformedSamples: []int{}}
	if e.Taxonomy {
		res.Taxonomy = &ErrorTaxonomy{}
	}
	for i := range predictions {
		predSet, predOK, _ := e.parse(predictions[i])
		goldSet, goldOK, goldRaw := e.parse(golds[i])

		res.Samples++
		res.Predicted += predSet.Len()
		res.Gold += goldSet.Len()
		res.GoldRaw += goldRaw
		res.Correct += predSet.Intersect(goldSet).Len()

		if !predOK || !goldOK {
			res.MalformedSamples = append(res.MalformedSamples, i)
			e.logger().Debug().
				Int("sample", i).
				Bool("prediction_ok", predOK).
				Bool("gold_ok", goldOK).
				Str("prediction", fileutils.Truncate(fileutils.SanitizeNewlines(predictions[i]), 200)).
				Msg("malformed quadruple payload")
		}
		if res.Taxonomy != nil {
			res.Taxonomy.add(Classify(goldSet, predSet))
		}
	}

	res.Precision = ratio(res.Correct, res.Predicted)
	res.Recall = ratio(res.Correct, res.Gold)
	if res.Precision > 0 && res.Recall > 0 {
		res.F1 = 2 * res.Precision * res.Recall / (res.Precision + res.Recall)
	}
	return res, nil
}

// ScoreSamples evaluates samples read by ReadResults and reports malformed payloads by line.
func (e Evaluator) ScoreSamples(samples []Sample) (Result, error) {
	preds := make([]string, len(samples))
	golds := make([]string, len(samples))
	for i, s := range samples {
		preds[i] = s.Response
		golds[i] = s.Gold
	}
	res, err := e.Score(preds, golds)
	if err != nil {
		return Result{}, err
	}
	res.MalformedLines = make([]int, 0, len(res.MalformedSamples))
	for _, i := range res.MalformedSamples {
		res.MalformedLines = append(res.MalformedLines, samples[i].Line)
	}
	return res, nil
}

// parse returns the valid quadruple set of text, whether it was well-formed, and how many
// complete records it held before de-duplication.
func (e Evaluator) parse(text string) (Set, bool, int) {
	var (
		records []Record
		ok      bool
	)
	if e.Mode == ModeLegacy {
		records, ok = ParseLegacy(text)
	} else {
		records, ok = ParseResponse(text)
	}

	set := make(Set, len(records))
	raw := 0
	for _, r := range records {
		q := Normalize(r)
		if !q.Complete() {
			continue
		}
		if e.ResolveSentiment && e.Mode != ModeLegacy {
			sent, known := NormalizeSentiment(q.Sentiment)
			if !known {
				continue
			}
			q.Sentiment = string(sent)
		}
		raw++
		set.Add(q)
	}
	return set, ok, raw
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Classify computes the error taxonomy of one sample.
//
// Missed (gold only) quadruples are paired greedily with unused spurious (prediction only)
// ones differing in exactly one field, checking sentiment, then opinion, then aspect, then
// target. Both sides are walked in sorted order so the pairing is deterministic.
func Classify(gold, pred Set) ErrorTaxonomy {
	var tax ErrorTaxonomy
	tax.TP = gold.Intersect(pred).Len()

	missed := gold.Minus(pred).Sorted()
	spurious := pred.Minus(gold).Sorted()
	used := make([]bool, len(spurious))

	for _, m := range missed {
		paired := false
		for _, kind := range substitutionKinds {
			for j, s := range spurious {
				if used[j] || !kind.match(m, s) {
					continue
				}
				used[j] = true
				*kind.counter(&tax)++
				paired = true
				break
			}
			if paired {
				break
			}
		}
		if !paired {
			tax.FNMissing++
		}
	}
	for _, u := range used {
		if !u {
			tax.FPHallucination++
		}
	}
	return tax
}

type substitutionKind struct {
	match   func(a, b Quadruple) bool
	counter func(t *ErrorTaxonomy) *int
}

var substitutionKinds = []substitutionKind{
	{
		match: func(a, b Quadruple) bool {
			return a.Target == b.Target && a.Aspect == b.Aspect && a.Opinion == b.Opinion && a.Sentiment != b.Sentiment
		},
		counter: func(t *ErrorTaxonomy) *int { return &t.SentimentError },
	},
	{
		match: func(a, b Quadruple) bool {
			return a.Target == b.Target && a.Aspect == b.Aspect && a.Sentiment == b.Sentiment && a.Opinion != b.Opinion
		},
		counter: func(t *ErrorTaxonomy) *int { return &t.OpinionError },
	},
	{
		match: func(a, b Quadruple) bool {
			return a.Target == b.Target && a.Opinion == b.Opinion && a.Sentiment == b.Sentiment && a.Aspect != b.Aspect
		},
		counter: func(t *ErrorTaxonomy) *int { return &t.AspectError },
	},
	{
		match: func(a, b Quadruple) bool {
			return a.Aspect == b.Aspect && a.Opinion == b.Opinion && a.Sentiment == b.Sentiment && a.Target != b.Target
		},
		counter: func(t *ErrorTaxonomy) *int { return &t.TargetError },
	},
}

func (t *ErrorTaxonomy) add(o ErrorTaxonomy) {
	t.TP += o.TP
	t.FNMissing += o.FNMissing
	t.FPHallucination += o.FPHallucination
	t.SentimentError += o.SentimentError
	t.OpinionError += o.OpinionError
	t.AspectError += o.AspectError
	t.TargetError += o.TargetError
}

// Report is the evaluation summary written by quad-eval.
type Report struct {
	Result

	// SkippedLines are the 1-based lines that were not JSON objects.
	SkippedLines []int `json:"malformed_json_lines"`
}

// WriteText renders the human-readable report.
func (r Report) WriteText(w io.Writer) error {
	malformed := r.MalformedLines
	if malformed == nil {
		malformed = r.MalformedSamples
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Samples processed: %d\n", r.Samples)
	fmt.Fprintf(&b, "Gold quadruples: %d\n", r.Gold)
	fmt.Fprintf(&b, "Gold quadruples (before de-duplication): %d\n", r.GoldRaw)
	fmt.Fprintf(&b, "Predicted quadruples: %d\n", r.Predicted)
	fmt.Fprintf(&b, "Correct predictions: %d\n", r.Correct)
	fmt.Fprintf(&b, "Precision: %.4f\n", r.Precision)
	fmt.Fprintf(&b, "Recall: %.4f\n", r.Recall)
	fmt.Fprintf(&b, "F1: %.4f\n", r.F1)
	fmt.Fprintf(&b, "Lines with malformed quadruple payloads: %s\n", formatIntList(malformed))
	fmt.Fprintf(&b, "Malformed JSON records skipped: %s\n", formatIntList(r.SkippedLines))
	if t := r.Taxonomy; t != nil {
		b.WriteString("Error taxonomy:\n")
		fmt.Fprintf(&b, "  TP: %d\n", t.TP)
		fmt.Fprintf(&b, "  FN_Missing: %d\n", t.FNMissing)
		fmt.Fprintf(&b, "  FP_Hallucination: %d\n", t.FPHallucination)
		fmt.Fprintf(&b, "  Sentiment_Error: %d\n", t.SentimentError)
		fmt.Fprintf(&b, "  Opinion_Error: %d\n", t.OpinionError)
		fmt.Fprintf(&b, "  Aspect_Error: %d\n", t.AspectError)
		fmt.Fprintf(&b, "  Target_Error: %d\n", t.TargetError)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func formatIntList(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
