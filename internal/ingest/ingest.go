// Package ingest derives a partial thinking document from a JSON response
// that is still streaming in and may never become valid JSON.
package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/sokinpui/changepipe/internal/logging"
	"github.com/sokinpui/changepipe/model"
)

// Ingestor accumulates chunks of one streamed response. It is owned by a
// single session; create a new one per AI turn.
type Ingestor struct {
	mu       sync.Mutex
	buf      strings.Builder
	out      model.ThinkingOutput
	started  time.Time
	finished bool

	now func() time.Time
	log logging.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(in *Ingestor) {
		if now != nil {
			in.now = now
		}
	}
}

// WithLogger sets the logger used for parse diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(in *Ingestor) {
		in.log = logging.OrNop(l)
	}
}

// New returns an empty Ingestor in thinking mode.
func New(opts ...Option) *Ingestor {
	in := &Ingestor{
		now: time.Now,
		log: logging.Nop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	in.out = initialOutput()
	return in
}

func initialOutput() model.ThinkingOutput {
	return model.ThinkingOutput{UI: model.ThinkingUI{Mode: model.ModeThinking}}
}

// Append adds chunk to the buffer and returns the output re-derived from the
// whole buffer. Chunks arriving after Finish are ignored.
func (in *Ingestor) Append(chunk string) model.ThinkingOutput {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.finished {
		return in.out.Clone()
	}
	if in.started.IsZero() {
		in.started = in.now()
	}
	in.buf.WriteString(chunk)
	in.derive(in.buf.String())
	return in.out.Clone()
}

// derive updates in.out from the full buffer. Fields that cannot be read yet
// keep their previous value.
func (in *Ingestor) derive(buf string) {
	out := &in.out

	if v, ok := matchString(modeRegex, buf); ok {
		if mode := model.Mode(v); mode.Rank() > out.UI.Mode.Rank() {
			out.UI.Mode = mode
		}
	}
	if v, ok := matchString(modelRegex, buf); ok {
		out.UI.Model = v
	}
	if v, ok := matchString(titleRegex, buf); ok {
		out.UI.Title = v
	}
	if v, ok := matchString(languageRegex, buf); ok {
		out.UI.Language = v
	}

	if raw, ok := arrayAfter(thoughtSummaryRegex, buf); ok {
		var summary []string
		if err := json.Unmarshal([]byte(raw), &summary); err == nil {
			out.ThoughtSummary = summary
		} else {
			in.log.Debug("thought_summary not parseable yet", "error", err)
		}
	}
	if raw, ok := arrayAfter(traceRegex, buf); ok {
		var trace []model.TraceEvent
		if err := json.Unmarshal([]byte(raw), &trace); err == nil {
			out.Trace = trace
		} else {
			in.log.Debug("trace not parseable yet", "error", err)
		}
	}

	if raw, ok := partialStringAfter(finalAnswerRegex, buf); ok {
		out.FinalAnswer = unescape(raw)
	}
}

// Finish finalizes the output. It tries a strict parse of the buffer, then
// the first balanced object inside it, and finally treats the raw buffer as
// the answer. The result always has mode done. Only the first call does any
// work; later calls return the same value.
func (in *Ingestor) Finish() model.ThinkingOutput {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.finished {
		return in.out.Clone()
	}
	in.finished = true

	raw := in.buf.String()
	if parsed, ok := parseDocument(raw); ok {
		in.out = merge(in.out, parsed)
	} else {
		in.log.Debug("response is not a thinking document, using raw text as answer", "bytes", len(raw))
		in.out.FinalAnswer = raw
		in.out.Trace = []model.TraceEvent{{
			Stage:  "answer",
			Label:  "Answer",
			Status: model.TraceOK,
		}}
	}

	in.out.UI.Mode = model.ModeDone
	if !in.started.IsZero() {
		in.out.UI.TimeMS = in.now().Sub(in.started).Milliseconds()
	}
	return in.out.Clone()
}

func parseDocument(raw string) (model.ThinkingOutput, bool) {
	var doc model.ThinkingOutput
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &doc); err == nil {
			return doc, true
		}
	}
	if obj, ok := firstObject(raw); ok {
		doc = model.ThinkingOutput{}
		if err := json.Unmarshal([]byte(obj), &doc); err == nil {
			return doc, true
		}
	}
	return model.ThinkingOutput{}, false
}

// merge prefers the parsed document and falls back to streamed values for
// fields the document left empty.
func merge(streamed, parsed model.ThinkingOutput) model.ThinkingOutput {
	out := parsed
	if out.UI.Title == "" {
		out.UI.Title = streamed.UI.Title
	}
	if out.UI.Model == "" {
		out.UI.Model = streamed.UI.Model
	}
	if out.UI.Language == "" {
		out.UI.Language = streamed.UI.Language
	}
	return out
}

// Snapshot returns a copy of the current output.
func (in *Ingestor) Snapshot() model.ThinkingOutput {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.out.Clone()
}

// Buffer returns everything appended so far.
func (in *Ingestor) Buffer() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.buf.String()
}

// Finished reports whether Finish has been called.
func (in *Ingestor) Finished() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.finished
}

// Reset discards the buffer and output so the ingestor can serve a new turn.
func (in *Ingestor) Reset() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.buf.Reset()
	in.out = initialOutput()
	in.started = time.Time{}
	in.finished = false
}

// Follow feeds chunks from src into the ingestor, calling emit with a
// snapshot after each one. When src is closed the output is finalized and
// returned. If ctx ends first, the current snapshot is returned with the
// context error and the stream is left unfinished.
func (in *Ingestor) Follow(ctx context.Context, src <-chan string, emit func(model.ThinkingOutput)) (model.ThinkingOutput, error) {
	for {
		select {
		case <-ctx.Done():
			return in.Snapshot(), ctx.Err()
		case chunk, ok := <-src:
			if !ok {
				out := in.Finish()
				if emit != nil {
					emit(out)
				}
				return out, nil
			}
			out := in.Append(chunk)
			if emit != nil {
				emit(out)
			}
		}
	}
}
