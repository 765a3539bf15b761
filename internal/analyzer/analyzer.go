// Package analyzer implements the three-way attribution analyzer: it
// reconciles Original, Latest-AI, and Committed content for one file and
// classifies every committed line into a provenance class with a
// confidence score, built on this module's diffutil/similarity
// primitives.
package analyzer

import (
	"github.com/dotsetlabs/whogitit/internal/diffutil"
	"github.com/dotsetlabs/whogitit/internal/pending"
	"github.com/dotsetlabs/whogitit/internal/similarity"
	"github.com/dotsetlabs/whogitit/internal/snapshot"
)

// SourceKind is the tagged-union discriminant for LineAttribution.Source.
type SourceKind string

const (
	SourceOriginal   SourceKind = "original"
	SourceAI         SourceKind = "ai"
	SourceAIModified SourceKind = "ai_modified"
	SourceHuman      SourceKind = "human"
	SourceUnknown    SourceKind = "unknown"
)

// LineSource is the five-variant provenance tag. Similarity is only
// meaningful when Kind == SourceAIModified.
type LineSource struct {
	Kind       SourceKind `json:"type"`
	EditID     string     `json:"edit_id,omitempty"`
	Similarity float64    `json:"similarity,omitempty"`
}

// LineAttribution is the per-line classification result.
type LineAttribution struct {
	LineNumber  int        `json:"line_number"`
	Content     string     `json:"content"`
	Source      LineSource `json:"source"`
	EditID      string     `json:"edit_id,omitempty"`
	PromptIndex *int       `json:"prompt_index,omitempty"`
	Confidence  float64    `json:"confidence"`
}

// AttributionSummary is a derived count of lines per class.
type AttributionSummary struct {
	TotalLines int `json:"total_lines"`
	Original   int `json:"original_lines"`
	AI         int `json:"ai_lines"`
	AIModified int `json:"ai_modified_lines"`
	Human      int `json:"human_lines"`
	Unknown    int `json:"unknown_lines"`
}

// FileAttributionResult is the per-file output of Analyze.
type FileAttributionResult struct {
	Path    string             `json:"path"`
	Lines   []LineAttribution  `json:"lines"`
	Summary AttributionSummary `json:"summary"`
}

// DefaultThreshold is the similarity threshold for an AIModified match,
// overridable via [analyzer].similarity_threshold.
const DefaultThreshold = similarity.DefaultThreshold

// aiLineRecord is the value half of the AI-added-line map.
type aiLineRecord struct {
	editID      string
	promptIndex int
}

// Analyze classifies every line of committed against the edit history h,
// using threshold for the fuzzy AIModified match (pass <= 0 to
// use DefaultThreshold).
func Analyze(h *pending.FileEditHistory, committed string, threshold float64) FileAttributionResult {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	committedLines := snapshot.Lines(committed)

	if len(h.Edits) == 0 {
		return analyzeNoEdits(h, committedLines)
	}

	latestAI := h.Edits[len(h.Edits)-1].After.Content

	aiKeys, aiMap := buildAILineMap(h)

	moSet := diffutil.AlignedNewIndices(h.Original.Content, committed)
	maSet := diffutil.AlignedNewIndices(latestAI, committed)

	attributions := make([]LineAttribution, len(committedLines))
	for j, line := range committedLines {
		attributions[j] = classifyLine(j, line, moSet, maSet, aiKeys, aiMap, threshold)
	}

	repairContext(attributions)

	return FileAttributionResult{
		Path:    h.Path,
		Lines:   attributions,
		Summary: summarize(attributions),
	}
}

func analyzeNoEdits(h *pending.FileEditHistory, committedLines []string) FileAttributionResult {
	originalSet := lineSet(snapshot.Lines(h.Original.Content))

	attributions := make([]LineAttribution, len(committedLines))
	for j, line := range committedLines {
		kind := SourceHuman
		if originalSet[line] {
			kind = SourceOriginal
		}
		attributions[j] = LineAttribution{
			LineNumber: j + 1,
			Content:    line,
			Source:     LineSource{Kind: kind},
			Confidence: 1.0,
		}
	}

	return FileAttributionResult{
		Path:    h.Path,
		Lines:   attributions,
		Summary: summarize(attributions),
	}
}

// buildAILineMap builds the AI-added-line map: a line is
// AI-added iff it appears in an edit's after-lines but not its
// before-lines. Later edits override earlier ones on key collision. aiKeys
// preserves first-insertion order for deterministic fuzzy-match ties.
func buildAILineMap(h *pending.FileEditHistory) ([]string, map[string]aiLineRecord) {
	m := make(map[string]aiLineRecord)
	var keys []string

	for _, edit := range h.Edits {
		beforeSet := lineSet(snapshot.Lines(edit.Before.Content))
		for _, line := range snapshot.Lines(edit.After.Content) {
			if beforeSet[line] {
				continue
			}
			if _, exists := m[line]; !exists {
				keys = append(keys, line)
			}
			m[line] = aiLineRecord{editID: edit.EditID, promptIndex: edit.PromptIndex}
		}
	}

	return keys, m
}

func lineSet(lines []string) map[string]bool {
	s := make(map[string]bool, len(lines))
	for _, l := range lines {
		s[l] = true
	}
	return s
}

func classifyLine(j int, line string, moSet, maSet map[int]bool, aiKeys []string, aiMap map[string]aiLineRecord, threshold float64) LineAttribution {
	lineNumber := j + 1

	// Original precedence: an unchanged original line stays Original.
	if moSet[j] {
		return LineAttribution{
			LineNumber: lineNumber,
			Content:    line,
			Source:     LineSource{Kind: SourceOriginal},
			Confidence: 1.0,
		}
	}

	// Exact AI-added match via the latest-AI alignment.
	if maSet[j] {
		if rec, ok := aiMap[line]; ok {
			pi := rec.promptIndex
			return LineAttribution{
				LineNumber:  lineNumber,
				Content:     line,
				Source:      LineSource{Kind: SourceAI, EditID: rec.editID},
				EditID:      rec.editID,
				PromptIndex: &pi,
				Confidence:  1.0,
			}
		}
	}

	// Fuzzy match against the AI-added set.
	if editID, promptIndex, sim, found := findSimilarAILine(line, aiKeys, aiMap, threshold); found {
		pi := promptIndex
		return LineAttribution{
			LineNumber:  lineNumber,
			Content:     line,
			Source:      LineSource{Kind: SourceAIModified, EditID: editID, Similarity: sim},
			EditID:      editID,
			PromptIndex: &pi,
			Confidence:  sim,
		}
	}

	// Fallback: nothing matched, so a human wrote it.
	return LineAttribution{
		LineNumber: lineNumber,
		Content:    line,
		Source:     LineSource{Kind: SourceHuman},
		Confidence: 0.9,
	}
}

// findSimilarAILine searches aiKeys in order (first-insertion, so ties
// resolve to the earliest-introduced key) for the maximum-similarity match
// at or above threshold.
func findSimilarAILine(line string, aiKeys []string, aiMap map[string]aiLineRecord, threshold float64) (editID string, promptIndex int, sim float64, found bool) {
	best := -1.0
	for _, key := range aiKeys {
		s := similarity.Similarity(line, key)
		if s >= threshold && s > best {
			best = s
			rec := aiMap[key]
			editID = rec.editID
			promptIndex = rec.promptIndex
			found = true
		}
	}
	return editID, promptIndex, best, found
}

// repairContext runs the context-repair post-pass: an
// Unknown line flanked by two lines attributed to the same edit is
// promoted to AIModified at similarity 0.5.
func repairContext(attrs []LineAttribution) {
	if len(attrs) < 3 {
		return
	}
	for i := 1; i < len(attrs)-1; i++ {
		if attrs[i].Source.Kind != SourceUnknown {
			continue
		}
		prevEdit := attrs[i-1].EditID
		nextEdit := attrs[i+1].EditID
		if prevEdit != "" && prevEdit == nextEdit {
			attrs[i].Source = LineSource{Kind: SourceAIModified, EditID: prevEdit, Similarity: 0.5}
			attrs[i].EditID = prevEdit
			attrs[i].PromptIndex = attrs[i-1].PromptIndex
			attrs[i].Confidence = 0.5
		}
	}
}

func summarize(attrs []LineAttribution) AttributionSummary {
	s := AttributionSummary{TotalLines: len(attrs)}
	for _, a := range attrs {
		switch a.Source.Kind {
		case SourceOriginal:
			s.Original++
		case SourceAI:
			s.AI++
		case SourceAIModified:
			s.AIModified++
		case SourceHuman:
			s.Human++
		default:
			s.Unknown++
		}
	}
	return s
}
