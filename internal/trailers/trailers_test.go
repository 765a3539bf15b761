package trailers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullSet() Set {
	return Set{
		SessionID: "abc123def456", HasSession: true,
		Model: "claude-sonnet", HasModel: true,
		Lines: 10, HasLines: true,
		ModifiedLines: 3, HasModified: true,
		HumanLines: 2, HasHuman: true,
		CoAuthoredBy: "Claude <noreply@anthropic.com>", HasCoAuthor: true,
	}
}

// Format followed by Parse recovers every populated field.
func TestFormatThenParse_RoundTrips(t *testing.T) {
	s := fullSet()
	msg := Format("Fix the thing", s)

	parsed := Parse(msg)
	assert.Equal(t, s.SessionID, parsed.SessionID)
	assert.Equal(t, s.Model, parsed.Model)
	assert.Equal(t, s.Lines, parsed.Lines)
	assert.Equal(t, s.ModifiedLines, parsed.ModifiedLines)
	assert.Equal(t, s.HumanLines, parsed.HumanLines)
	assert.Equal(t, s.CoAuthoredBy, parsed.CoAuthoredBy)
}

func TestFormat_FixedKeyOrder(t *testing.T) {
	msg := Format("body", fullSet())
	require.Contains(t, msg, "AI-Session: abc123def456\nAI-Model: claude-sonnet\nAI-Lines: 10\nAI-Modified: 3\nHuman-Lines: 2\nCo-Authored-By: Claude <noreply@anthropic.com>\n")
}

func TestFormat_OnlyPopulatedTrailers(t *testing.T) {
	s := Set{Lines: 5, HasLines: true}
	msg := Format("body", s)
	assert.Contains(t, msg, "AI-Lines: 5")
	assert.NotContains(t, msg, "AI-Model")
	assert.NotContains(t, msg, "Human-Lines")
}

func TestFormat_NoTrailersLeavesMessageUnchanged(t *testing.T) {
	msg := Format("plain commit message", Set{})
	assert.Equal(t, "plain commit message", msg)
}

func TestFormat_BlankSeparatorWhenBodyHasNoTrailerBlock(t *testing.T) {
	msg := Format("Fix the thing\n\nLonger description.", Set{Lines: 1, HasLines: true})
	assert.Contains(t, msg, "Longer description.\n\nAI-Lines: 1")
}

func TestFormat_AppendsDirectlyToExistingTrailerBlock(t *testing.T) {
	base := "Fix the thing\n\nSigned-off-by: Jane Doe <jane@example.com>"
	msg := Format(base, Set{Lines: 1, HasLines: true})
	assert.Contains(t, msg, "Signed-off-by: Jane Doe <jane@example.com>\nAI-Lines: 1")
	assert.NotContains(t, msg, "Jane Doe <jane@example.com>\n\nAI-Lines")
}

func TestParse_IgnoresKeyValueLinesOutsideTrailingBlock(t *testing.T) {
	msg := "AI-Lines: 999 mentioned in prose, not a trailer\n\nBody text here.\n\nAI-Lines: 7"
	parsed := Parse(msg)
	assert.Equal(t, 7, parsed.Lines)
}

func TestParse_AbsentTrailerLeavesZeroValue(t *testing.T) {
	parsed := Parse("just a commit message")
	assert.False(t, parsed.HasSession)
	assert.False(t, parsed.HasLines)
	assert.Equal(t, 0, parsed.Lines)
}

func TestCoAuthorFor_ModelFamilies(t *testing.T) {
	assert.Equal(t, "Claude <noreply@anthropic.com>", CoAuthorFor("claude-sonnet-4"))
	assert.Equal(t, "ChatGPT <noreply@openai.com>", CoAuthorFor("gpt-4o"))
	assert.Equal(t, "Gemini <noreply@google.com>", CoAuthorFor("gemini-2.5"))
	assert.Equal(t, "AI Assistant <noreply@whogitit.dev>", CoAuthorFor(""))
	assert.Equal(t, "mystery-model <noreply@whogitit.dev>", CoAuthorFor("mystery-model"))
}
