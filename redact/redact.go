// Package redact implements the redaction engine: a compiled set of named
// regex patterns applied, in registration order, to prompt text before it
// reaches the pending buffer. An entropy-scored, gitleaks-backed secret
// detector serves as the GENERIC_SECRET catalog entry, layered behind a
// set of named patterns for well-known secret classes.
package redact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Catalog names, stable identifiers usable in configuration.
const (
	APIKey        = "API_KEY"
	Email         = "EMAIL"
	Password      = "PASSWORD"
	AWSKey        = "AWS_KEY"
	PrivateKey    = "PRIVATE_KEY"
	BearerToken   = "BEARER_TOKEN"
	GitHubToken   = "GITHUB_TOKEN"
	GenericSecret = "GENERIC_SECRET"
	SSN           = "SSN"
	CreditCard    = "CREDIT_CARD"
	Phone         = "PHONE"
	DBConnection  = "DB_CONNECTION"
	SlackToken    = "SLACK_TOKEN"
	StripeKey     = "STRIPE_KEY"
)

// Replacement is the literal substring every redacted match is replaced
// with.
const Replacement = "[REDACTED]"

// entropyThreshold is the minimum Shannon entropy for a candidate string to
// be flagged by the GENERIC_SECRET pattern. 4.5 was chosen through trial
// and error: high enough to avoid false positives on common words and
// identifiers, low enough to catch typical API keys and tokens.
const entropyThreshold = 4.5

// previewLen is the maximum length of the preview string recorded in a
// Match.
const previewLen = 10

// Pattern is one named entry in the redaction catalog. find returns the
// byte ranges in s that this pattern matches.
type Pattern struct {
	Name string
	find func(s string) []region
}

// region is a byte range within a string.
type region struct{ start, end int }

// Match is one redacted span reported by RedactWithAudit.
type Match struct {
	PatternName string    `json:"pattern_name"`
	Start       int       `json:"start"`
	End         int       `json:"end"`
	Preview     string    `json:"preview"`
	Timestamp   time.Time `json:"timestamp"`
}

// Redactor holds an ordered catalog of patterns. The zero value is not
// usable; construct with NewDefault or New.
type Redactor struct {
	patterns []Pattern
}

var (
	entropyPattern = regexp.MustCompile(`[A-Za-z0-9/+_=-]{10,}`)

	emailPattern       = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	awsKeyPattern      = regexp.MustCompile(`AKIA[0-9A-Z]{16}`)
	privateKeyPattern  = regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |DSA |)PRIVATE KEY-----[\s\S]*?-----END (?:RSA |EC |OPENSSH |DSA |)PRIVATE KEY-----`)
	bearerTokenPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`)
	githubTokenPattern = regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)
	ssnPattern         = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	creditCardPattern  = regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)
	phonePattern       = regexp.MustCompile(`\b(?:\+1[ .-]?)?\(?\d{3}\)?[ .-]?\d{3}[ .-]?\d{4}\b`)
	dbConnPattern      = regexp.MustCompile(`\b(?:postgres|postgresql|mysql|mongodb(?:\+srv)?|redis|amqp)://[^\s'"]+`)
	slackTokenPattern  = regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`)
	stripeKeyPattern   = regexp.MustCompile(`\b(?:sk|pk|rk)_(?:live|test)_[A-Za-z0-9]{16,}\b`)
	apiKeyPattern      = regexp.MustCompile(`(?i)\b(?:api[_-]?key|apikey)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,}['"]?`)
	passwordPattern    = regexp.MustCompile(`(?i)\b(?:password|passwd|pwd)\s*[:=]\s*['"]?\S{4,}['"]?`)
)

func regexFind(re *regexp.Regexp) func(string) []region {
	return func(s string) []region {
		var regions []region
		for _, loc := range re.FindAllStringIndex(s, -1) {
			regions = append(regions, region{loc[0], loc[1]})
		}
		return regions
	}
}

var (
	gitleaksDetector     *detect.Detector
	gitleaksDetectorOnce sync.Once
)

func getDetector() *detect.Detector {
	gitleaksDetectorOnce.Do(func() {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return
		}
		gitleaksDetector = d
	})
	return gitleaksDetector
}

// findGenericSecret flags high-entropy alphanumeric runs (Shannon entropy
// above entropyThreshold) and anything gitleaks' default rule set detects.
// The two layers back the GENERIC_SECRET catalog entry.
func findGenericSecret(s string) []region {
	var regions []region

	for _, loc := range entropyPattern.FindAllStringIndex(s, -1) {
		if shannonEntropy(s[loc[0]:loc[1]]) > entropyThreshold {
			regions = append(regions, region{loc[0], loc[1]})
		}
	}

	if d := getDetector(); d != nil {
		for _, f := range d.DetectString(s) {
			if f.Secret == "" {
				continue
			}
			searchFrom := 0
			for {
				idx := strings.Index(s[searchFrom:], f.Secret)
				if idx < 0 {
					break
				}
				absIdx := searchFrom + idx
				regions = append(regions, region{absIdx, absIdx + len(f.Secret)})
				searchFrom = absIdx + len(f.Secret)
			}
		}
	}

	return mergeRegions(regions)
}

func mergeRegions(regions []region) []region {
	if len(regions) == 0 {
		return nil
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].start < regions[j].start })
	merged := []region{regions[0]}
	for _, r := range regions[1:] {
		last := &merged[len(merged)-1]
		if r.start <= last.end {
			if r.end > last.end {
				last.end = r.end
			}
		} else {
			merged = append(merged, r)
		}
	}
	return merged
}

// defaultPatterns returns the builtin catalog in a fixed registration
// order: structured/high-precision patterns first, GENERIC_SECRET's
// entropy+gitleaks sweep last, so a string already redacted by a named
// pattern is not double-counted by the broader heuristic.
func defaultPatterns() []Pattern {
	return []Pattern{
		{Name: PrivateKey, find: regexFind(privateKeyPattern)},
		{Name: AWSKey, find: regexFind(awsKeyPattern)},
		{Name: GitHubToken, find: regexFind(githubTokenPattern)},
		{Name: SlackToken, find: regexFind(slackTokenPattern)},
		{Name: StripeKey, find: regexFind(stripeKeyPattern)},
		{Name: BearerToken, find: regexFind(bearerTokenPattern)},
		{Name: DBConnection, find: regexFind(dbConnPattern)},
		{Name: APIKey, find: regexFind(apiKeyPattern)},
		{Name: Password, find: regexFind(passwordPattern)},
		{Name: SSN, find: regexFind(ssnPattern)},
		{Name: CreditCard, find: regexFind(creditCardPattern)},
		{Name: Phone, find: regexFind(phonePattern)},
		{Name: Email, find: regexFind(emailPattern)},
		{Name: GenericSecret, find: findGenericSecret},
	}
}

// NewDefault builds a Redactor with the builtin catalog only.
func NewDefault() *Redactor {
	return &Redactor{patterns: defaultPatterns()}
}

// CustomPattern is a user-supplied pattern loaded from `.whogitit.toml`'s
// [redact].custom_patterns.
type CustomPattern struct {
	Name    string
	Pattern string
}

// New builds a Redactor with the builtin catalog followed by custom, each
// compiled and appended in order. An invalid regex is logged (by the
// caller, via the onInvalid callback) and skipped, never fatal.
func New(custom []CustomPattern, onInvalid func(name, pattern string, err error)) *Redactor {
	patterns := defaultPatterns()
	for _, c := range custom {
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			if onInvalid != nil {
				onInvalid(c.Name, c.Pattern, err)
			}
			continue
		}
		patterns = append(patterns, Pattern{Name: c.Name, find: regexFind(re)})
	}
	return &Redactor{patterns: patterns}
}

// Redact replaces every match, across all catalog patterns, with the
// literal [REDACTED]. Patterns apply in registration order, each over the
// result of the previous, so a span consumed by an earlier pattern is
// already gone by the time a later pattern scans the text.
func (r *Redactor) Redact(text string) string {
	out, _ := r.apply(text, time.Time{})
	return out
}

// RedactWithAudit redacts text the same way Redact does, additionally
// returning one Match per redacted span (pattern name, char range in the
// text as it stood when that pattern matched, a ≤10-char preview, and a
// timestamp), sorted by start offset.
func (r *Redactor) RedactWithAudit(text string, at time.Time) (string, []Match) {
	return r.apply(text, at)
}

func (r *Redactor) apply(text string, at time.Time) (string, []Match) {
	var matches []Match
	current := text

	for _, p := range r.patterns {
		regions := p.find(current)
		if len(regions) == 0 {
			continue
		}
		regions = mergeRegions(regions)

		var b strings.Builder
		prev := 0
		for _, reg := range regions {
			matches = append(matches, Match{
				PatternName: p.Name,
				Start:       reg.start,
				End:         reg.end,
				Preview:     preview(current[reg.start:reg.end]),
				Timestamp:   at,
			})
			b.WriteString(current[prev:reg.start])
			b.WriteString(Replacement)
			prev = reg.end
		}
		b.WriteString(current[prev:])
		current = b.String()
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })
	return current, matches
}

func preview(s string) string {
	if len(s) <= previewLen {
		return s
	}
	return s[:previewLen]
}

func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[byte]int)
	for i := range len(s) {
		freq[s[i]]++
	}
	length := float64(len(s))
	var entropy float64
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// --- Convenience wrappers over a package-level default Redactor, for
// callers (e.g. hook-input or log scrubbing) that don't need a custom
// catalog. ---

var defaultRedactor = NewDefault()

// String redacts s using the default catalog.
func String(s string) string { return defaultRedactor.Redact(s) }

// Bytes is a convenience wrapper around String for []byte content.
func Bytes(b []byte) []byte {
	s := string(b)
	redacted := String(s)
	if redacted == s {
		return b
	}
	return []byte(redacted)
}

// JSONLBytes is a convenience wrapper around JSONLContent for []byte content.
func JSONLBytes(b []byte) ([]byte, error) {
	s := string(b)
	redacted, err := JSONLContent(s)
	if err != nil {
		return nil, err
	}
	if redacted == s {
		return b, nil
	}
	return []byte(redacted), nil
}

// JSONLContent parses each line as JSON to determine which string values
// need redaction, then performs targeted replacements on the raw JSON bytes.
// Lines with no secrets are returned unchanged, preserving original
// formatting. It operates on String beneath it, so it picks up the full
// catalog automatically.
func JSONLContent(content string) (string, error) {
	lines := strings.Split(content, "\n")
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			b.WriteString(line)
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
			b.WriteString(String(line))
			continue
		}
		repls := collectJSONLReplacements(parsed)
		if len(repls) == 0 {
			b.WriteString(line)
			continue
		}
		result := line
		for _, r := range repls {
			origJSON, err := jsonEncodeString(r[0])
			if err != nil {
				return "", err
			}
			replJSON, err := jsonEncodeString(r[1])
			if err != nil {
				return "", err
			}
			result = strings.ReplaceAll(result, origJSON, replJSON)
		}
		b.WriteString(result)
	}
	return b.String(), nil
}

// collectJSONLReplacements walks a parsed JSON value and collects unique
// (original, redacted) string pairs for values that need redaction.
func collectJSONLReplacements(v any) [][2]string {
	seen := make(map[string]bool)
	var repls [][2]string
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case map[string]any:
			if shouldSkipJSONLObject(val) {
				return
			}
			for k, child := range val {
				if shouldSkipJSONLField(k) {
					continue
				}
				walk(child)
			}
		case []any:
			for _, child := range val {
				walk(child)
			}
		case string:
			redacted := String(val)
			if redacted != val && !seen[val] {
				seen[val] = true
				repls = append(repls, [2]string{val, redacted})
			}
		}
	}
	walk(v)
	return repls
}

// shouldSkipJSONLField returns true if a JSON key should be excluded from
// scanning/redaction. Skips "signature" (exact) and any key ending in "id"
// (case-insensitive).
func shouldSkipJSONLField(key string) bool {
	if key == "signature" {
		return true
	}
	lower := strings.ToLower(key)
	return strings.HasSuffix(lower, "id") || strings.HasSuffix(lower, "ids")
}

// shouldSkipJSONLObject returns true if the object has "type":"image" or "type":"image_url".
func shouldSkipJSONLObject(obj map[string]any) bool {
	t, ok := obj["type"].(string)
	return ok && (strings.HasPrefix(t, "image") || t == "base64")
}

// jsonEncodeString returns the JSON encoding of s without HTML escaping.
func jsonEncodeString(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", fmt.Errorf("json encode string: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
