package diaasq

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// RecordWriter receives derived samples one at a time.
type RecordWriter interface {
	WriteRecord(v any) error
}

// DeriveOptions controls DeriveCorpus.
type DeriveOptions struct {
	// ArrayField is the JSON field holding the dialogue array when the top-level value is an object.
	// If empty, the first array-valued field is used.
	ArrayField string

	Grouping Grouping
	Policy   AssignPolicy

	// ContinueOnError logs and counts corrupt dialogues instead of aborting the run.
	ContinueOnError bool

	Logger *zerolog.Logger
}

// DeriveResult contains basic stats from a derivation run.
type DeriveResult struct {
	Dialogues        int
	SamplesWritten   int
	CorruptDialogues int
}

// DeriveCorpus streams the dialogue corpus at inputPath and writes one labeled sample per
// reply chain or per utterance into w.
//
// The input is expected to be either:
// - a top-level JSON array: [ { ...dialogue... }, ... ]
// - a top-level JSON object containing an array field (e.g. { "dialogues": [ ... ] })
func DeriveCorpus(ctx context.Context, inputPath string, w RecordWriter, opts DeriveOptions) (DeriveResult, error) {
	if ctx == nil {
		return DeriveResult{}, errors.New("DeriveCorpus: ctx is nil")
	}
	if inputPath == "" {
		return DeriveResult{}, errors.New("DeriveCorpus: inputPath is empty")
	}
	if w == nil {
		return DeriveResult{}, errors.New("DeriveCorpus: writer is nil")
	}
	if opts.Grouping == "" {
		opts.Grouping = GroupByChain
	}
	if opts.Policy == "" {
		opts.Policy = PolicyMaxIndex
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return DeriveResult{}, fmt.Errorf("DeriveCorpus: open input: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(bufio.NewReaderSize(f, 1<<20))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return DeriveResult{}, fmt.Errorf("DeriveCorpus: read first token: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return DeriveResult{}, fmt.Errorf("DeriveCorpus: expected JSON array/object, got %T", tok)
	}

	d := corpusDeriver{w: w, opts: opts, log: logger}

	switch delim {
	case '[':
		if err := d.deriveArrayFromOpen(ctx, dec); err != nil {
			return d.res, err
		}
		if err := expectDelim(dec, ']'); err != nil {
			return d.res, err
		}
		return d.res, nil
	case '{':
		foundArray := false
		for dec.More() {
			if err := ctx.Err(); err != nil {
				return d.res, err
			}

			keyTok, err := dec.Token()
			if err != nil {
				return d.res, fmt.Errorf("DeriveCorpus: read object key: %w", err)
			}
			key, ok := keyTok.(string)
			if !ok {
				return d.res, fmt.Errorf("DeriveCorpus: expected string key, got %T", keyTok)
			}

			valTok, err := dec.Token()
			if err != nil {
				return d.res, fmt.Errorf("DeriveCorpus: read value token for key %q: %w", key, err)
			}

			isTarget := opts.ArrayField != "" && key == opts.ArrayField
			if !isTarget && opts.ArrayField == "" && !foundArray {
				if dd, ok := valTok.(json.Delim); ok && dd == '[' {
					isTarget = true
				}
			}

			if isTarget {
				if dd, ok := valTok.(json.Delim); !ok || dd != '[' {
					return d.res, fmt.Errorf("DeriveCorpus: key %q was chosen as array but value isn't an array", key)
				}
				foundArray = true
				if err := d.deriveArrayFromOpen(ctx, dec); err != nil {
					return d.res, err
				}
				if err := expectDelim(dec, ']'); err != nil {
					return d.res, err
				}
				continue
			}

			if err := skipValue(dec, valTok); err != nil {
				return d.res, fmt.Errorf("DeriveCorpus: skip key %q value: %w", key, err)
			}
		}
		if err := expectDelim(dec, '}'); err != nil {
			return d.res, err
		}
		if !foundArray {
			return d.res, errors.New("DeriveCorpus: no dialogue array found in top-level object")
		}
		return d.res, nil
	default:
		return DeriveResult{}, fmt.Errorf("DeriveCorpus: unsupported top-level delimiter %q", delim)
	}
}

type corpusDeriver struct {
	w    RecordWriter
	opts DeriveOptions
	log  *zerolog.Logger
	res  DeriveResult
}

func (d *corpusDeriver) deriveArrayFromOpen(ctx context.Context, dec *json.Decoder) error {
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return err
		}

		idx := d.res.Dialogues
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("DeriveCorpus: decode dialogue %d: %w", idx, err)
		}
		d.res.Dialogues++

		records, err := d.deriveOne(idx, raw)
		if err != nil {
			if !d.opts.ContinueOnError {
				return err
			}
			d.res.CorruptDialogues++
			d.log.Error().Err(err).Int("dialogue", idx).Msg("skipping corrupt dialogue")
			continue
		}

		for _, rec := range records {
			if err := d.w.WriteRecord(rec); err != nil {
				return fmt.Errorf("DeriveCorpus: write dialogue %d: %w", idx, err)
			}
			d.res.SamplesWritten++
		}
	}
	return nil
}

// deriveOne turns one dialogue into its output records. Every sample of a dialogue is built
// before any is written, so a corrupt dialogue leaves no partial output.
func (d *corpusDeriver) deriveOne(idx int, raw json.RawMessage) ([]any, error) {
	var dlg Dialogue
	if err := json.Unmarshal(raw, &dlg); err != nil {
		return nil, fmt.Errorf("DeriveCorpus: dialogue %d: unmarshal: %w", idx, err)
	}

	labels, err := DeriveLabels(dlg, d.opts.Policy)
	if err != nil {
		return nil, fmt.Errorf("DeriveCorpus: dialogue %d: %w", idx, err)
	}

	var out []any
	switch d.opts.Grouping {
	case GroupByUtterance:
		samples, err := labels.UtteranceSamples(idx)
		if err != nil {
			return nil, fmt.Errorf("DeriveCorpus: dialogue %d: %w", idx, err)
		}
		for _, s := range samples {
			out = append(out, s)
		}
	default:
		for _, s := range labels.ChainSamples(idx) {
			out = append(out, s)
		}
	}
	d.log.Debug().Int("dialogue", idx).Int("chains", len(labels.Chains)).Int("records", len(out)).Msg("dialogue derived")
	return out, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("DeriveCorpus: read closing %q: %w", want, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("DeriveCorpus: expected closing %q, got %v", want, tok)
	}
	return nil
}

func skipValue(dec *json.Decoder, first json.Token) error {
	d, ok := first.(json.Delim)
	if !ok {
		// Primitive (string/number/bool/null): already fully consumed.
		return nil
	}

	switch d {
	case '{', '[':
	default:
		return fmt.Errorf("skipValue: unexpected delimiter %q", d)
	}

	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if dd, ok := tok.(json.Delim); ok {
			switch dd {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
