package diaasq

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// TaskInstruction is the system prompt for JSON-style extraction.
const TaskInstruction = "Now you are an expert in extracting quadruples from a text. " +
	"Given the input text, first determine if it contains any opinion expression. " +
	"If no opinion exists, output 'statement-non-opinion'. " +
	"If opinions exist, extract the quadruples. Note that: " +
	"1) Target, Aspect, and Opinion MUST be explicitly found in the input text. " +
	"2) Sentiment (pos, neg, or other) is determined based on the target, aspect, and opinion. " +
	"3) Always return a JSON object: {\"quadruples\": [{\"target\": string, \"aspect\": string, \"opinion\": string, \"sentiment\": string}, ...]}\n"

// ShorthandSystemPrompt is the system prompt paired with the shorthand instruction sets.
const ShorthandSystemPrompt = "You are a helpful assistant that extracts quadruples (target, aspect, opinion, sentiment) from the given text."

const shorthandDefinition = `Definition: The output will be the quadruples consisting of (target, aspect, opinion, sentiment) in the input text and the sentiment polarity (pos, neg, other) of the opinion term. In cases where there are no quadruple the output should be notarget:none:none:none.
`

const shorthandPositiveExamples = `Positive example 1-
input: This phone is not very good , but compared to the iPhone , I think it is better than the iPhone except for the processor [ laughs cry ]
output: iPhone:processor:better:pos
Positive example 2-
input: 778 Xiaomi Civi looks invincible and feels invincible [ doge ]
output: Xiaomi Civi:looks:invincible:pos, Xiaomi Civi:feels:invincible:pos
`

const shorthandNegativeOtherExamples = `Negative example 1-
input: Do n't tell me anything else , ca n't I afford a Huawei since I bought apple with more than 1W ? What does Huawei has except domestic ? The system is not good , it 's useless that a brand only has patriotic title .
output: Huawei:system:not good:neg
Negative example 2-
input: Your apple has no high brush , no quick charge , low battery and perilously fragile , use more than 10,000 to buy such a mobile phone , what do you show off ? [ Puzzle ]
output: apple:battery:low:neg
Other example 1-
input: How is the K40 photo compared with the realme GT NEO2 ?
output: K40:photo:How:other
Other example 2-
input: Generally speaking , if you do n't care about wireless charging , 12X is definitely enough . After all , these two are only different from the processor and wireless charging .
output: 12X:wireless charging:don't care about:other
`

const shorthandEOS = " \noutput:"

// ShorthandInstructionSet returns the instruction preamble for set 1 (positive examples)
// or set 2 (positive, negative and other examples).
func ShorthandInstructionSet(n int) (string, error) {
	switch n {
	case 1:
		return shorthandDefinition + shorthandPositiveExamples, nil
	case 2:
		return shorthandDefinition + shorthandPositiveExamples + shorthandNegativeOtherExamples, nil
	default:
		return "", fmt.Errorf("ShorthandInstructionSet: unknown set %d (want 1 or 2)", n)
	}
}

// FormatExamples renders few-shot examples as numbered ###Example blocks.
func FormatExamples(examples []UtteranceSample) string {
	var b strings.Builder
	for i, ex := range examples {
		fmt.Fprintf(&b, "###Example%d:\n###Input: %s\n###Output: %s\n", i+1, ex.Input, ex.Target)
	}
	return b.String()
}

// BuildUserPrompt renders the JSON-style user turn: optional examples followed by the input.
func BuildUserPrompt(examples []UtteranceSample, input string) string {
	return FormatExamples(examples) + "###Input:\n" + input + "\n###Output:"
}

// SampleExamples draws n distinct examples from pool. The same seed always yields the same draw.
func SampleExamples(pool []UtteranceSample, n int, seed uint64) ([]UtteranceSample, error) {
	if n < 0 {
		return nil, fmt.Errorf("SampleExamples: negative count %d", n)
	}
	if n > len(pool) {
		return nil, fmt.Errorf("SampleExamples: want %d examples, pool has %d", n, len(pool))
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	perm := rng.Perm(len(pool))
	out := make([]UtteranceSample, 0, n)
	for _, i := range perm[:n] {
		out = append(out, pool[i])
	}
	return out, nil
}

// PromptStyle selects the instruction family used for a run.
type PromptStyle string

const (
	StyleJSON       PromptStyle = "json"
	StyleShorthand1 PromptStyle = "shorthand-1"
	StyleShorthand2 PromptStyle = "shorthand-2"
)

// Shorthand reports whether answers in this style use the colon-delimited format.
func (s PromptStyle) Shorthand() bool {
	return s == StyleShorthand1 || s == StyleShorthand2
}

// PromptBuilder renders system and user turns for one prompt style.
type PromptBuilder struct {
	style    PromptStyle
	examples []UtteranceSample
	preamble string
}

// NewPromptBuilder validates style. Examples are used only by StyleJSON.
func NewPromptBuilder(style PromptStyle, examples []UtteranceSample) (PromptBuilder, error) {
	p := PromptBuilder{style: style}
	switch style {
	case StyleJSON, "":
		p.style = StyleJSON
		p.examples = examples
	case StyleShorthand1, StyleShorthand2:
		n := 1
		if style == StyleShorthand2 {
			n = 2
		}
		pre, err := ShorthandInstructionSet(n)
		if err != nil {
			return PromptBuilder{}, err
		}
		p.preamble = pre
	default:
		return PromptBuilder{}, fmt.Errorf("NewPromptBuilder: unknown style %q", style)
	}
	return p, nil
}

func (p PromptBuilder) Style() PromptStyle { return p.style }

func (p PromptBuilder) System() string {
	if p.style.Shorthand() {
		return ShorthandSystemPrompt
	}
	return TaskInstruction
}

func (p PromptBuilder) User(input string) string {
	if p.style.Shorthand() {
		return p.preamble + "input: " + input + shorthandEOS
	}
	return BuildUserPrompt(p.examples, input)
}
