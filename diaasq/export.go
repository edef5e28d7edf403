package diaasq

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/theimaginaryfoundation/diaasq-bench/diaasq/fileutils"
)

const (
	// UtteranceChatSystemPrompt opens every single-utterance fine-tuning conversation.
	UtteranceChatSystemPrompt = "You are a helpful assistant that extracts quadruples from a utterance."

	// ChainChatSystemPrompt opens every reply-chain fine-tuning conversation.
	ChainChatSystemPrompt = "You are a helpful assistant that extracts quadruples from a series of utterances in a dialogue."

	// emptyChatAnswer is the assistant turn for a sample without quadruples. It is not strict
	// JSON; ParseResponse recovers it through key repair.
	emptyChatAnswer = "{quadruples: []}"
)

// ChatMessage is one turn of a fine-tuning conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRecord is one line of a chat-format fine-tuning file.
type ChatRecord struct {
	Messages []ChatMessage `json:"messages"`
}

// UtteranceChat turns an utterance sample into a system/user/assistant conversation.
func UtteranceChat(s UtteranceSample) ChatRecord {
	answer := s.Target
	if strings.TrimSpace(answer) == NonOpinionSentinel {
		answer = emptyChatAnswer
	}
	return ChatRecord{Messages: []ChatMessage{
		{Role: "system", Content: UtteranceChatSystemPrompt},
		{Role: "user", Content: s.Input},
		{Role: "assistant", Content: answer},
	}}
}

// ChainChat turns a reply chain into a conversation that alternates each annotated
// utterance with the JSON list of its quadruples.
func ChainChat(c ChainSample) (ChatRecord, error) {
	rec := ChatRecord{Messages: make([]ChatMessage, 0, 1+2*len(c.Data))}
	rec.Messages = append(rec.Messages, ChatMessage{Role: "system", Content: ChainChatSystemPrompt})
	for i, u := range c.Data {
		qs := u.Quadruples
		if qs == nil {
			qs = []UtteranceQuadruple{}
		}
		b, err := fileutils.MarshalLine(qs)
		if err != nil {
			return ChatRecord{}, fmt.Errorf("ChainChat: %s utterance %d: %w", c.SampleID, i, err)
		}
		rec.Messages = append(rec.Messages,
			ChatMessage{Role: "user", Content: u.Utterance},
			ChatMessage{Role: "assistant", Content: string(b)},
		)
	}
	return rec, nil
}

// ShorthandTarget rewrites a labeled-sample target into "t:a:o:s, ..." keeping annotation order.
func ShorthandTarget(target string) (string, error) {
	records, ok := ParseResponse(target)
	if !ok {
		return "", fmt.Errorf("ShorthandTarget: target is not well-formed: %q", fileutils.Truncate(target, 80))
	}
	if len(records) == 0 {
		return ShorthandSentinel, nil
	}
	parts := make([]string, 0, len(records))
	for _, r := range records {
		q := Normalize(r)
		parts = append(parts, strings.Join([]string{q.Target, q.Aspect, q.Opinion, q.Sentiment}, ":"))
	}
	return strings.Join(parts, ", "), nil
}

// WriteShorthandCSV writes sample_id,input,target rows with shorthand targets.
func WriteShorthandCSV(w io.Writer, samples []UtteranceSample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sample_id", "input", "target"}); err != nil {
		return fmt.Errorf("WriteShorthandCSV: header: %w", err)
	}
	for _, s := range samples {
		target, err := ShorthandTarget(s.Target)
		if err != nil {
			return fmt.Errorf("WriteShorthandCSV: %s: %w", s.SampleID, err)
		}
		if err := cw.Write([]string{s.SampleID, s.Input, target}); err != nil {
			return fmt.Errorf("WriteShorthandCSV: %s: %w", s.SampleID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadUtteranceSamples loads an utterance-grouped labeled-sample file.
func ReadUtteranceSamples(path string) ([]UtteranceSample, error) {
	return readJSONL[UtteranceSample](path)
}

// ReadChainSamples loads a chain-grouped labeled-sample file.
func ReadChainSamples(path string) ([]ChainSample, error) {
	return readJSONL[ChainSample](path)
}

// readJSONL decodes every non-blank line of path. Unlike ReadResults it is strict:
// labeled-sample files are produced by this module and a bad line means corruption.
func readJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []T
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return nil, fmt.Errorf("read %s: line %d: %w", path, line, err)
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}
