package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/changepipe/model"
)

const fullDocument = `{
  "ui": {"title": "Refactor", "mode": "answering", "model": "m-1", "language": "en"},
  "thought_summary": ["read the code", "plan [edits]"],
  "trace": [{"stage": "plan", "label": "Plan", "status": "ok"}],
  "final_answer": "line one\nsays \"hi\""
}`

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestAppend_ChunkByChunk(t *testing.T) {
	in := New()

	var out model.ThinkingOutput
	for i := 0; i < len(fullDocument); i += 7 {
		end := min(i+7, len(fullDocument))
		out = in.Append(fullDocument[i:end])
	}

	assert.Equal(t, "Refactor", out.UI.Title)
	assert.Equal(t, model.ModeAnswering, out.UI.Mode)
	assert.Equal(t, "m-1", out.UI.Model)
	assert.Equal(t, []string{"read the code", "plan [edits]"}, out.ThoughtSummary)
	assert.Equal(t, []model.TraceEvent{{Stage: "plan", Label: "Plan", Status: model.TraceOK}}, out.Trace)
	assert.Equal(t, "line one\nsays \"hi\"", out.FinalAnswer)
	assert.Equal(t, fullDocument, in.Buffer())
}

func TestAppend_EmptyChunkIsNoOp(t *testing.T) {
	in := New()
	prefix := fullDocument[:len(fullDocument)/2]

	before := in.Append(prefix)
	after := in.Append("")

	assert.Equal(t, before, after)
	assert.Equal(t, prefix, in.Buffer())
}

func TestAppend_PartialFinalAnswer(t *testing.T) {
	in := New()

	out := in.Append(`{"final_answer": "Hello\tworld\nstill typ`)
	assert.Equal(t, "Hello\tworld\nstill typ", out.FinalAnswer)

	out = in.Append(`ing \\ done \`)
	assert.Equal(t, "Hello\tworld\nstill typing \\ done ", out.FinalAnswer, "dangling escape is dropped")

	out = in.Append(`"", "x": 1`)
	assert.Equal(t, "Hello\tworld\nstill typing \\ done \"", out.FinalAnswer)
}

func TestAppend_ArraysKeepLastGoodValue(t *testing.T) {
	in := New()

	out := in.Append(`{"thought_summary": ["a", "b"], "trace": [{"stage":"x","label":"X","status":"running"}, {"stage":`)
	assert.Equal(t, []string{"a", "b"}, out.ThoughtSummary)
	assert.Nil(t, out.Trace, "open array is not parsed")

	out = in.Append(`"y","label":"Y","status":"ok"}]`)
	require.Len(t, out.Trace, 2)
	assert.Equal(t, model.TraceOK, out.Trace[1].Status)
}

func TestAppend_ModeNeverRegresses(t *testing.T) {
	in := New()
	assert.Equal(t, model.ModeThinking, in.Snapshot().UI.Mode)

	out := in.Append(`{"ui": {"mode": "answering"}}`)
	assert.Equal(t, model.ModeAnswering, out.UI.Mode)

	// A fresh ingestor fed a regressing document keeps the highest mode seen.
	in = New()
	in.Append(`{"ui": {"mode": "answering"`)
	out = in.Append(`, "mode": "thinking"}}`)
	assert.Equal(t, model.ModeAnswering, out.UI.Mode)
}

func TestFinish(t *testing.T) {
	t.Run("strict json", func(t *testing.T) {
		clock := &fakeClock{t: time.Unix(100, 0)}
		in := New(WithClock(clock.now))
		in.Append(fullDocument)
		clock.t = clock.t.Add(1500 * time.Millisecond)

		out := in.Finish()

		assert.Equal(t, model.ModeDone, out.UI.Mode)
		assert.Equal(t, int64(1500), out.UI.TimeMS)
		assert.Equal(t, "line one\nsays \"hi\"", out.FinalAnswer)
		assert.Len(t, out.Trace, 1)
	})

	t.Run("object embedded in prose", func(t *testing.T) {
		in := New()
		in.Append("Here you go:\n```json\n{\"final_answer\": \"42\", \"trace\": []}\n```\n")

		out := in.Finish()

		assert.Equal(t, "42", out.FinalAnswer)
		assert.Equal(t, model.ModeDone, out.UI.Mode)
	})

	t.Run("not json at all", func(t *testing.T) {
		in := New()
		in.Append("not json at all")

		var out model.ThinkingOutput
		require.NotPanics(t, func() { out = in.Finish() })

		assert.Equal(t, model.ModeDone, out.UI.Mode)
		assert.Equal(t, "not json at all", out.FinalAnswer)
		assert.Equal(t, []model.TraceEvent{{Stage: "answer", Label: "Answer", Status: model.TraceOK}}, out.Trace)
	})

	t.Run("never appended", func(t *testing.T) {
		out := New().Finish()
		assert.Equal(t, model.ModeDone, out.UI.Mode)
		assert.Equal(t, int64(0), out.UI.TimeMS)
	})

	t.Run("finalized once", func(t *testing.T) {
		in := New()
		in.Append("plain")
		first := in.Finish()
		in.Append(" more")
		second := in.Finish()

		assert.True(t, in.Finished())
		assert.Equal(t, first, second)
		assert.Equal(t, "plain", in.Buffer())
	})
}

func TestReset(t *testing.T) {
	in := New()
	in.Append(fullDocument)
	in.Finish()

	in.Reset()

	assert.False(t, in.Finished())
	assert.Equal(t, "", in.Buffer())
	assert.Equal(t, model.ModeThinking, in.Snapshot().UI.Mode)
}

func TestFollow(t *testing.T) {
	src := make(chan string, 3)
	src <- `{"final_answer": "a`
	src <- `bc"}`
	close(src)

	in := New()
	var answers []string
	out, err := in.Follow(context.Background(), src, func(o model.ThinkingOutput) {
		answers = append(answers, o.FinalAnswer)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "abc", "abc"}, answers)
	assert.Equal(t, model.ModeDone, out.UI.Mode)
}

func TestFollow_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := New()
	_, err := in.Follow(ctx, make(chan string), nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, in.Finished())
}

func TestUnescape(t *testing.T) {
	tests := map[string]string{
		`plain`:           "plain",
		`a\nb\tc`:         "a\nb\tc",
		`q\"\\\/`:         `q"\/`,
		`\u00e9t\u00e9`:   "été",
		`\ud83d\ude00!`:   "😀!",
		`lone \ud83d.`:    "lone \uFFFD.",
		`cut \u00`:        "cut ",
		`trailing \`:      "trailing ",
		`bad \uZZZZ here`: `bad \uZZZZ here`,
	}
	for in, want := range tests {
		assert.Equal(t, want, unescape(in), in)
	}
}

func TestBalanced(t *testing.T) {
	s := `["a]", ["b"]] tail`
	end, ok := balanced(s, 0, '[', ']')
	require.True(t, ok)
	assert.Equal(t, `["a]", ["b"]]`, s[:end])

	_, ok = balanced(`["open`, 0, '[', ']')
	assert.False(t, ok)
}
