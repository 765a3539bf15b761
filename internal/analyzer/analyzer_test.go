package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetlabs/whogitit/internal/pending"
	"github.com/dotsetlabs/whogitit/internal/snapshot"
)

var fixedTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func snap(content string) snapshot.ContentSnapshot {
	return snapshot.New(content, fixedTime)
}

func edit(editID string, promptIndex int, before, after string) pending.AIEdit {
	return pending.AIEdit{
		EditID:      editID,
		PromptIndex: promptIndex,
		Before:      snap(before),
		After:       snap(after),
		Timestamp:   fixedTime,
	}
}

// Pure append: the model only adds lines and the commit keeps them.
func TestAnalyze_PureAppend(t *testing.T) {
	h := &pending.FileEditHistory{
		Path:     "main.rs",
		Original: snap("fn main() {}\n"),
		Edits: []pending.AIEdit{
			edit("e0", 0, "fn main() {}\n", "fn main() {}\n    println!();\n}\n"),
		},
	}

	result := Analyze(h, "fn main() {}\n    println!();\n}\n", 0)

	assert.Equal(t, 3, result.Summary.TotalLines)
	assert.Equal(t, 1, result.Summary.Original)
	assert.Equal(t, 2, result.Summary.AI)
}

// Human prepend: a human line added above untouched model output.
func TestAnalyze_HumanPrepend(t *testing.T) {
	h := &pending.FileEditHistory{
		Path:     "f.txt",
		Original: snap("line1\nline2\n"),
		Edits: []pending.AIEdit{
			edit("e0", 0, "line1\nline2\n", "line1\nline2\nAI added\n"),
		},
	}

	committed := "new first line\nline1\nline2\nAI added\n"
	result := Analyze(h, committed, 0)

	assert.Equal(t, 1, result.Summary.Human)
	assert.Equal(t, 2, result.Summary.Original)
	assert.Equal(t, 1, result.Summary.AI)

	for _, l := range result.Lines {
		if l.Content == "AI added" {
			require.NotNil(t, l.PromptIndex)
			assert.Equal(t, 0, *l.PromptIndex)
		}
	}
}

// Human modifies a model-written line after the fact.
func TestAnalyze_HumanModifiesAILine(t *testing.T) {
	h := &pending.FileEditHistory{
		Path:     "f.txt",
		Original: snap("line1\n"),
		Edits: []pending.AIEdit{
			edit("e0", 0, "line1\n", "line1\nAI line\n"),
		},
	}

	committed := "line1\nAI line modified\nhuman line\n"
	result := Analyze(h, committed, 0)

	assert.Equal(t, 1, result.Summary.Original)
	assert.Equal(t, result.Summary.AIModified+result.Summary.Human, 2)
}

// Two prompts layering edits onto the same file.
func TestAnalyze_TwoPromptLayering(t *testing.T) {
	h := &pending.FileEditHistory{
		Path:     "f.txt",
		Original: snap("original\n"),
		Edits: []pending.AIEdit{
			edit("e0", 0, "original\n", "original\nfirst AI\n"),
			edit("e1", 1, "original\nfirst AI\n", "original\nfirst AI\nsecond AI\n"),
		},
	}

	committed := "original\nfirst AI\nsecond AI\n"
	result := Analyze(h, committed, 0)

	assert.Equal(t, 1, result.Summary.Original)
	assert.Equal(t, 2, result.Summary.AI)

	byContent := map[string]LineAttribution{}
	for _, l := range result.Lines {
		byContent[l.Content] = l
	}

	require.NotNil(t, byContent["second AI"].PromptIndex)
	assert.Equal(t, 1, *byContent["second AI"].PromptIndex)
	require.NotNil(t, byContent["first AI"].PromptIndex)
	assert.Equal(t, 0, *byContent["first AI"].PromptIndex)
}

// New file written entirely by the model.
func TestAnalyze_NewFileAllAI(t *testing.T) {
	h := &pending.FileEditHistory{
		Path:       "new.rs",
		Original:   snapshot.Empty(fixedTime),
		WasNewFile: true,
		Edits: []pending.AIEdit{
			edit("e0", 0, "", "// New file\nfn new_func() {}\n"),
		},
	}

	committed := "// New file\nfn new_func() {}\n"
	result := Analyze(h, committed, 0)

	assert.Equal(t, 2, result.Summary.AI)
	assert.Equal(t, 0, result.Summary.Human)
	assert.Equal(t, 0, result.Summary.Original)
}

// Classification partition: total lines equals sum of class counts
// equals the length of committed.lines().
func TestAnalyze_ClassificationPartition(t *testing.T) {
	h := &pending.FileEditHistory{
		Path:     "f.txt",
		Original: snap("a\nb\nc\n"),
		Edits: []pending.AIEdit{
			edit("e0", 0, "a\nb\nc\n", "a\nb\nc\nd\ne\n"),
		},
	}

	committed := "a\nb\nX\nd\nhuman\n"
	result := Analyze(h, committed, 0)

	sum := result.Summary.Original + result.Summary.AI + result.Summary.AIModified +
		result.Summary.Human + result.Summary.Unknown
	assert.Equal(t, result.Summary.TotalLines, sum)
	assert.Equal(t, len(snapshot.Lines(committed)), result.Summary.TotalLines)
}

// Original precedence: a line in both original and an AI edit's
// added set is still classified Original.
func TestAnalyze_OriginalPrecedence(t *testing.T) {
	h := &pending.FileEditHistory{
		Path:     "f.txt",
		Original: snap("shared line\n"),
		Edits: []pending.AIEdit{
			// "shared line" is not AI-added here since it's already present
			// in before; but an edit can re-add the same text from a
			// different file section. To exercise precedence, force a
			// collision by having the AI edit's before differ.
			edit("e0", 0, "other\n", "other\nshared line\n"),
		},
	}

	committed := "shared line\n"
	result := Analyze(h, committed, 0)

	require.Len(t, result.Lines, 1)
	assert.Equal(t, SourceOriginal, result.Lines[0].Source.Kind)
	assert.Equal(t, 1.0, result.Lines[0].Confidence)
}

func TestAnalyze_EmptyCommittedFile(t *testing.T) {
	h := &pending.FileEditHistory{
		Path:     "f.txt",
		Original: snap("a\n"),
		Edits: []pending.AIEdit{
			edit("e0", 0, "a\n", "a\nb\n"),
		},
	}

	result := Analyze(h, "", 0)
	assert.Empty(t, result.Lines)
	assert.Equal(t, 0, result.Summary.TotalLines)
}

func TestAnalyze_NoEditsFallsBackToOriginalOrHuman(t *testing.T) {
	h := &pending.FileEditHistory{
		Path:     "f.txt",
		Original: snap("a\nb\n"),
	}

	result := Analyze(h, "a\nc\n", 0)
	require.Len(t, result.Lines, 2)
	assert.Equal(t, SourceOriginal, result.Lines[0].Source.Kind)
	assert.Equal(t, SourceHuman, result.Lines[1].Source.Kind)
}
