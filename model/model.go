package model

// DiffKind classifies a single line of a rendered diff.
type DiffKind string

const (
	DiffUnchanged DiffKind = "unchanged"
	DiffAdded     DiffKind = "added"
	DiffRemoved   DiffKind = "removed"
)

// DiffLine is one row of the unified, top-to-bottom diff view.
// A zero line number means the line does not exist on that side.
type DiffLine struct {
	Kind      DiffKind `json:"kind"`
	Text      string   `json:"text"`
	OldLineNo int      `json:"oldLineNo,omitempty"`
	NewLineNo int      `json:"newLineNo,omitempty"`
}

// EditIntent is an extracted (path, language, content) triple before the
// current file has been read.
type EditIntent struct {
	FilePath        string `json:"filePath"`
	Language        string `json:"language"`
	ProposedContent string `json:"proposedContent"`
}

// Status is the review state of a FileChange.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// FileChange is a resolved, reviewable edit.
type FileChange struct {
	ID              string `json:"id"`
	FilePath        string `json:"filePath"`
	OriginalContent string `json:"originalContent"`
	NewContent      string `json:"newContent"`
	Language        string `json:"language"`
	IsNewFile       bool   `json:"isNewFile"`
	Status          Status `json:"status"`
	Additions       int    `json:"additions"`
	Deletions       int    `json:"deletions"`
}

// IsPending reports whether the change is still awaiting a decision.
func (c FileChange) IsPending() bool {
	return c.Status == StatusPending
}

// Mode is the phase of a streaming thinking response.
type Mode string

const (
	ModeThinking  Mode = "thinking"
	ModeAnswering Mode = "answering"
	ModeDone      Mode = "done"
)

// Rank orders modes so callers can refuse regressions. Unknown modes rank
// below thinking.
func (m Mode) Rank() int {
	switch m {
	case ModeThinking:
		return 1
	case ModeAnswering:
		return 2
	case ModeDone:
		return 3
	default:
		return 0
	}
}

// TraceStatus is the state of one stage in the thinking trace.
type TraceStatus string

const (
	TraceRunning TraceStatus = "running"
	TraceOK      TraceStatus = "ok"
	TraceWarn    TraceStatus = "warn"
	TraceFail    TraceStatus = "fail"
)

// TraceEvent is one stage in the thinking trace.
type TraceEvent struct {
	Stage  string      `json:"stage"`
	Label  string      `json:"label"`
	Status TraceStatus `json:"status"`
}

// ThinkingUI carries the display metadata of a thinking response.
type ThinkingUI struct {
	Title    string `json:"title"`
	Mode     Mode   `json:"mode"`
	Model    string `json:"model"`
	Language string `json:"language"`
	TimeMS   int64  `json:"time_ms"`
}

// ThinkingOutput is the structured document a model streams while it works.
type ThinkingOutput struct {
	UI             ThinkingUI   `json:"ui"`
	ThoughtSummary []string     `json:"thought_summary"`
	Trace          []TraceEvent `json:"trace"`
	FinalAnswer    string       `json:"final_answer"`
}

// Clone returns a deep copy so snapshots handed to callers never alias the
// ingestor's working state.
func (o ThinkingOutput) Clone() ThinkingOutput {
	out := o
	if o.ThoughtSummary != nil {
		out.ThoughtSummary = append([]string(nil), o.ThoughtSummary...)
	}
	if o.Trace != nil {
		out.Trace = append([]TraceEvent(nil), o.Trace...)
	}
	return out
}

// Summary holds the results of an operation for display.
type Summary struct {
	Created  []string
	Modified []string
	Rejected []string
	Failed   []string
	Message  string
}
