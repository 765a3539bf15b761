// Package trailers parses and formats the AI-* commit message trailers:
// key-value metadata appended after the commit message body following the
// git trailer convention.
package trailers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Trailer key constants, emitted in this fixed order by Format.
const (
	SessionKey    = "AI-Session"
	ModelKey      = "AI-Model"
	LinesKey      = "AI-Lines"
	ModifiedKey   = "AI-Modified"
	HumanLinesKey = "Human-Lines"
	CoAuthoredKey = "Co-Authored-By"
)

var orderedKeys = []string{SessionKey, ModelKey, LinesKey, ModifiedKey, HumanLinesKey, CoAuthoredKey}

// trailerLineRegex matches one "key: value" trailer line, key restricted
// to [A-Za-z0-9-].
var trailerLineRegex = regexp.MustCompile(`^([A-Za-z0-9-]+):\s*(.*)$`)

// Set is the decoded value of every AI-* trailer found on a commit message.
type Set struct {
	SessionID     string
	Model         string
	Lines         int
	ModifiedLines int
	HumanLines    int
	CoAuthoredBy  string

	HasSession  bool
	HasModel    bool
	HasLines    bool
	HasModified bool
	HasHuman    bool
	HasCoAuthor bool
}

// modelFamilyCoAuthors maps a model id substring to the Co-Authored-By line
// used for that family. Checked in order; first match wins.
var modelFamilyCoAuthors = []struct {
	substr string
	author string
}{
	{"claude", "Claude <noreply@anthropic.com>"},
	{"gpt", "ChatGPT <noreply@openai.com>"},
	{"gemini", "Gemini <noreply@google.com>"},
	{"copilot", "GitHub Copilot <noreply@github.com>"},
}

// CoAuthorFor resolves a model id to its Co-Authored-By trailer value via
// the model-family mapping. Unknown families fall back to a generic
// attribution line naming the model id verbatim.
func CoAuthorFor(modelID string) string {
	lower := strings.ToLower(modelID)
	for _, m := range modelFamilyCoAuthors {
		if strings.Contains(lower, m.substr) {
			return m.author
		}
	}
	if modelID == "" {
		return "AI Assistant <noreply@whogitit.dev>"
	}
	return fmt.Sprintf("%s <noreply@whogitit.dev>", modelID)
}

// trailingTrailerLines scans commitMessage from the end backward, collecting
// contiguous "key: value" lines until a non-trailer line or a blank line
// boundary is hit. A wholly blank trailing
// block (message ending in blank lines with no trailers above it) yields
// no lines.
func trailingTrailerLines(commitMessage string) []string {
	raw := strings.Split(strings.TrimRight(commitMessage, "\n"), "\n")

	end := len(raw)
	for end > 0 && strings.TrimSpace(raw[end-1]) == "" {
		end--
	}

	start := end
	for start > 0 && trailerLineRegex.MatchString(raw[start-1]) {
		start--
	}

	if start == end {
		return nil
	}
	return raw[start:end]
}

// Parse extracts every AI-* trailer from commitMessage's trailing trailer
// block. Trailers outside that final block, even if they happen
// to match "Key: value", are not recognized; only a tail scan of the
// message counts. Absent trailers leave their Has* flag
// false and the zero value in the corresponding field.
func Parse(commitMessage string) Set {
	var s Set

	for _, line := range trailingTrailerLines(commitMessage) {
		m := trailerLineRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key, value := m[1], strings.TrimSpace(m[2])
		switch key {
		case SessionKey:
			s.SessionID, s.HasSession = value, true
		case ModelKey:
			s.Model, s.HasModel = value, true
		case LinesKey:
			if n, err := strconv.Atoi(value); err == nil {
				s.Lines, s.HasLines = n, true
			}
		case ModifiedKey:
			if n, err := strconv.Atoi(value); err == nil {
				s.ModifiedLines, s.HasModified = n, true
			}
		case HumanLinesKey:
			if n, err := strconv.Atoi(value); err == nil {
				s.HumanLines, s.HasHuman = n, true
			}
		case CoAuthoredKey:
			s.CoAuthoredBy, s.HasCoAuthor = value, true
		}
	}

	return s
}

// Format appends the AI-* trailers present in s to message, in the fixed
// key order (SessionKey, ModelKey, LinesKey, ModifiedKey, HumanLinesKey,
// CoAuthoredKey) regardless of which subset is populated. A blank-line
// separator is inserted unless message already ends in a trailer block, in
// which case the new trailers are appended directly to it.
func Format(message string, s Set) string {
	values := map[string]string{}
	if s.HasSession {
		values[SessionKey] = s.SessionID
	}
	if s.HasModel {
		values[ModelKey] = s.Model
	}
	if s.HasLines {
		values[LinesKey] = strconv.Itoa(s.Lines)
	}
	if s.HasModified {
		values[ModifiedKey] = strconv.Itoa(s.ModifiedLines)
	}
	if s.HasHuman {
		values[HumanLinesKey] = strconv.Itoa(s.HumanLines)
	}
	if s.HasCoAuthor {
		values[CoAuthoredKey] = s.CoAuthoredBy
	}
	if len(values) == 0 {
		return message
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimRight(message, "\n"))
	if len(trailingTrailerLines(message)) == 0 {
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("\n")
	}
	for _, key := range orderedKeys {
		if v, ok := values[key]; ok {
			fmt.Fprintf(&sb, "%s: %s\n", key, v)
		}
	}
	return sb.String()
}
