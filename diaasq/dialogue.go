package diaasq

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Structural corpus errors. They are fatal for the dialogue they occur in.
var (
	ErrOffsetOutOfRange = errors.New("span offset beyond the last utterance boundary")
	ErrCrossUtterance   = errors.New("quadruple spans fall in different utterances")
	ErrInvalidReply     = errors.New("invalid reply index")
)

// Dialogue is one annotated conversation from the corpus.
type Dialogue struct {
	Speakers  []Speaker `json:"speakers"`
	Replies   []int     `json:"replies"`
	Sentences []string  `json:"sentences"`
	Triplets  []Triplet `json:"triplets"`
}

// Speaker identifies who said an utterance. The corpus uses both numbers and names.
type Speaker string

func (s *Speaker) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = Speaker(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("speaker: %w", err)
	}
	*s = Speaker(n.String())
	return nil
}

// Triplet is one raw annotation record. On disk it is a fixed-position array:
// [target_start, _, aspect_start, _, opinion_start, _, sentiment, target, aspect, opinion].
type Triplet struct {
	TargetStart  int
	AspectStart  int
	OpinionStart int

	// Sentiment is the raw polarity code; HasSentiment is false when it is absent, null or -1.
	Sentiment    string
	HasSentiment bool

	Target  string
	Aspect  string
	Opinion string
}

func (t *Triplet) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("triplet: expected array: %w", err)
	}
	at := func(i int) json.RawMessage {
		if i < len(raw) {
			return raw[i]
		}
		return nil
	}

	var err error
	if t.TargetStart, err = offsetField(at(0)); err != nil {
		return fmt.Errorf("triplet: target offset: %w", err)
	}
	if t.AspectStart, err = offsetField(at(2)); err != nil {
		return fmt.Errorf("triplet: aspect offset: %w", err)
	}
	if t.OpinionStart, err = offsetField(at(4)); err != nil {
		return fmt.Errorf("triplet: opinion offset: %w", err)
	}
	t.Sentiment, t.HasSentiment = sentimentField(at(6))
	t.Target = textField(at(7))
	t.Aspect = textField(at(8))
	t.Opinion = textField(at(9))
	return nil
}

// MarshalJSON writes the triplet back in its fixed-position array form.
func (t Triplet) MarshalJSON() ([]byte, error) {
	var sentiment any = -1
	if t.HasSentiment {
		sentiment = t.Sentiment
	}
	return json.Marshal([]any{
		t.TargetStart, -1, t.AspectStart, -1, t.OpinionStart, -1,
		sentiment, t.Target, t.Aspect, t.Opinion,
	})
}

func offsetField(raw json.RawMessage) (int, error) {
	if isNull(raw) {
		return -1, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		return 0, err
	}
	return v, nil
}

func sentimentField(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if n.String() == "-1" {
			return "", false
		}
		return n.String(), true
	}
	return string(raw), true
}

func textField(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// ReplyChain is a root-to-leaf sequence of utterance indices.
type ReplyChain []int

// AssignPolicy decides which utterance a quadruple belongs to when its spans are mapped.
type AssignPolicy string

const (
	// PolicyMaxIndex maps each span independently and assigns the quadruple to the
	// highest utterance index among the three. Cross-utterance spans are tolerated.
	PolicyMaxIndex AssignPolicy = "max-index"

	// PolicySameUtterance requires all three spans to fall in one utterance.
	PolicySameUtterance AssignPolicy = "same-utterance"
)

// ParseAssignPolicy parses a policy name. The empty string selects PolicyMaxIndex.
func ParseAssignPolicy(s string) (AssignPolicy, error) {
	switch AssignPolicy(strings.TrimSpace(s)) {
	case "", PolicyMaxIndex:
		return PolicyMaxIndex, nil
	case PolicySameUtterance:
		return PolicySameUtterance, nil
	default:
		return "", fmt.Errorf("unknown assign policy %q (want %q or %q)", s, PolicyMaxIndex, PolicySameUtterance)
	}
}

// UtteranceQuadruple is a derived quadruple together with the utterance each span was mapped to.
type UtteranceQuadruple struct {
	Target           string `json:"target"`
	TargetUtterance  int    `json:"target_sentence_id"`
	Aspect           string `json:"aspect"`
	AspectUtterance  int    `json:"aspect_sentence_id"`
	Opinion          string `json:"opinion"`
	OpinionUtterance int    `json:"opinion_sentence_id"`
	Sentiment        string `json:"sentiment"`
}

// Quadruple drops the span locations.
func (u UtteranceQuadruple) Quadruple() Quadruple {
	return Quadruple{Target: u.Target, Aspect: u.Aspect, Opinion: u.Opinion, Sentiment: u.Sentiment}
}

// Labels holds everything derived from one dialogue.
type Labels struct {
	Dialogue Dialogue
	Chains   []ReplyChain

	// PerUtterance[i] lists the quadruples assigned to utterance i, in annotation order.
	PerUtterance [][]UtteranceQuadruple
}

// WordBoundaries returns cumulative whitespace-token counts: utterance i owns
// word offsets [b[i-1], b[i]) with b[-1] = 0.
func WordBoundaries(sentences []string) []int {
	out := make([]int, len(sentences))
	total := 0
	for i, s := range sentences {
		total += len(strings.Fields(s))
		out[i] = total
	}
	return out
}

// LocateUtterance returns the first utterance whose boundary is strictly greater than offset.
func LocateUtterance(boundaries []int, offset int) (int, bool) {
	for i, b := range boundaries {
		if offset < b {
			return i, true
		}
	}
	return -1, false
}

// ReplyChains reconstructs every root-to-leaf chain. A leaf is an utterance that no other
// utterance replies to; chains are returned in leaf order.
func ReplyChains(replies []int) ([]ReplyChain, error) {
	n := len(replies)
	leaf := make([]bool, n)
	for i := range leaf {
		leaf[i] = true
	}
	for i, r := range replies {
		if r == -1 {
			continue
		}
		if r < 0 || r >= n {
			return nil, fmt.Errorf("utterance %d replies to %d: %w", i, r, ErrInvalidReply)
		}
		leaf[r] = false
	}

	var chains []ReplyChain
	for id := range replies {
		if !leaf[id] {
			continue
		}
		var chain ReplyChain
		visited := make(map[int]struct{}, n)
		for cur := id; cur != -1; cur = replies[cur] {
			if _, ok := visited[cur]; ok {
				return nil, fmt.Errorf("cycle at utterance %d: %w", cur, ErrInvalidReply)
			}
			visited[cur] = struct{}{}
			chain = append(chain, cur)
		}
		for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
			chain[i], chain[j] = chain[j], chain[i]
		}
		chains = append(chains, chain)
	}
	if n > 0 && len(chains) == 0 {
		return nil, fmt.Errorf("no leaf utterance among %d: %w", n, ErrInvalidReply)
	}
	return chains, nil
}

// DeriveLabels reconstructs reply chains and assigns every usable triplet to an utterance.
// Triplets without a sentiment code or with an empty target, aspect or opinion text are skipped.
// An offset that maps to no utterance aborts the dialogue with ErrOffsetOutOfRange.
func DeriveLabels(d Dialogue, policy AssignPolicy) (Labels, error) {
	if policy == "" {
		policy = PolicyMaxIndex
	}
	n := len(d.Sentences)
	if len(d.Replies) != n {
		return Labels{}, fmt.Errorf("DeriveLabels: %d replies for %d sentences: %w", len(d.Replies), n, ErrInvalidReply)
	}

	chains, err := ReplyChains(d.Replies)
	if err != nil {
		return Labels{}, fmt.Errorf("DeriveLabels: %w", err)
	}

	boundaries := WordBoundaries(d.Sentences)
	per := make([][]UtteranceQuadruple, n)
	for i := range per {
		per[i] = []UtteranceQuadruple{}
	}

	for ti, t := range d.Triplets {
		if !t.HasSentiment || t.Target == "" || t.Aspect == "" || t.Opinion == "" {
			continue
		}

		var idx [3]int
		for k, span := range []struct {
			name   string
			offset int
		}{
			{"target", t.TargetStart},
			{"aspect", t.AspectStart},
			{"opinion", t.OpinionStart},
		} {
			u, ok := LocateUtterance(boundaries, span.offset)
			if !ok {
				return Labels{}, fmt.Errorf("DeriveLabels: triplet %d %s offset %d (words=%d): %w",
					ti, span.name, span.offset, wordTotal(boundaries), ErrOffsetOutOfRange)
			}
			idx[k] = u
		}

		owner := max(idx[0], idx[1], idx[2])
		if policy == PolicySameUtterance && (idx[0] != idx[1] || idx[1] != idx[2]) {
			return Labels{}, fmt.Errorf("DeriveLabels: triplet %d spans utterances %d/%d/%d: %w",
				ti, idx[0], idx[1], idx[2], ErrCrossUtterance)
		}

		per[owner] = append(per[owner], UtteranceQuadruple{
			Target:           t.Target,
			TargetUtterance:  idx[0],
			Aspect:           t.Aspect,
			AspectUtterance:  idx[1],
			Opinion:          t.Opinion,
			OpinionUtterance: idx[2],
			Sentiment:        string(resolveSentimentCode(t.Sentiment)),
		})
	}

	return Labels{Dialogue: d, Chains: chains, PerUtterance: per}, nil
}

func wordTotal(boundaries []int) int {
	if len(boundaries) == 0 {
		return 0
	}
	return boundaries[len(boundaries)-1]
}

// resolveSentimentCode passes pos/neg through and folds every other code into other.
func resolveSentimentCode(code string) Sentiment {
	switch Sentiment(code) {
	case SentimentPos, SentimentNeg:
		return Sentiment(code)
	default:
		return SentimentOther
	}
}

// Grouping selects how derived labels are emitted.
type Grouping string

const (
	GroupByChain     Grouping = "chain"
	GroupByUtterance Grouping = "utterance"
)

// ParseGrouping parses a grouping name. The empty string selects GroupByChain.
func ParseGrouping(s string) (Grouping, error) {
	switch Grouping(strings.TrimSpace(s)) {
	case "", GroupByChain:
		return GroupByChain, nil
	case GroupByUtterance:
		return GroupByUtterance, nil
	default:
		return "", fmt.Errorf("unknown grouping %q (want %q or %q)", s, GroupByChain, GroupByUtterance)
	}
}

// ChainSample is one reply chain with the quadruples of each of its utterances.
type ChainSample struct {
	SampleID    string           `json:"sample_id"`
	ChainLength int              `json:"chain_length"`
	Data        []ChainUtterance `json:"data"`
}

// ChainUtterance is an utterance annotated as "<u{index}>{text}(reply_to:u{reply})".
type ChainUtterance struct {
	Utterance  string               `json:"utterance"`
	Quadruples []UtteranceQuadruple `json:"quadruples"`
}

// UtteranceSample is a single-utterance supervised example. Target is either the
// non-opinion sentinel or a {"quadruples":[...]} JSON string.
type UtteranceSample struct {
	SampleID string `json:"sample_id"`
	Input    string `json:"input"`
	Target   string `json:"target"`
}

// AnnotateUtterance renders utterance i with its index and reply target.
func (l Labels) AnnotateUtterance(i int) string {
	return fmt.Sprintf("<u%d>%s(reply_to:u%d)", i, l.Dialogue.Sentences[i], l.Dialogue.Replies[i])
}

// ChainSamples emits one record per reply chain, identified by "<dialogue>_<chain>".
func (l Labels) ChainSamples(dialogueIndex int) []ChainSample {
	out := make([]ChainSample, 0, len(l.Chains))
	for ci, chain := range l.Chains {
		cs := ChainSample{
			SampleID:    fmt.Sprintf("%d_%d", dialogueIndex, ci),
			ChainLength: len(chain),
			Data:        make([]ChainUtterance, 0, len(chain)),
		}
		for _, u := range chain {
			cs.Data = append(cs.Data, ChainUtterance{
				Utterance:  l.AnnotateUtterance(u),
				Quadruples: l.PerUtterance[u],
			})
		}
		out = append(out, cs)
	}
	return out
}

// UtteranceSamples emits one record per utterance, identified by "<dialogue>_<utterance>".
func (l Labels) UtteranceSamples(dialogueIndex int) ([]UtteranceSample, error) {
	out := make([]UtteranceSample, 0, len(l.Dialogue.Sentences))
	for ui, text := range l.Dialogue.Sentences {
		qs := make([]Quadruple, 0, len(l.PerUtterance[ui]))
		for _, uq := range l.PerUtterance[ui] {
			qs = append(qs, uq.Quadruple())
		}
		target, err := encodeTargetList(qs)
		if err != nil {
			return nil, fmt.Errorf("UtteranceSamples: dialogue %d utterance %d: %w", dialogueIndex, ui, err)
		}
		out = append(out, UtteranceSample{
			SampleID: fmt.Sprintf("%d_%d", dialogueIndex, ui),
			Input:    text,
			Target:   target,
		})
	}
	return out, nil
}
