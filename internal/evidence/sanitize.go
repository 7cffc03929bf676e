package evidence

import (
	"regexp"
	"strings"
)

// Injection phrasings that have no business appearing in weather reports,
// price feeds or status pages. Matched case-insensitively and replaced
// wholesale, not escaped: the auditors must never see them at all.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts|rules)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+`),
	regexp.MustCompile(`(?i)new\s+(system\s+)?instructions?\s*:`),
	regexp.MustCompile(`(?i)system\s*(prompt|message)\s*:`),
	regexp.MustCompile(`(?i)\b(assistant|system|user)\s*:`),
	regexp.MustCompile(`(?i)respond\s+with\s+(true|false|yes|no)\b`),
	regexp.MustCompile(`(?i)(approve|deny)\s+the\s+claim\b`),
	regexp.MustCompile(`(?i)verdict\s*[:=]\s*(true|false)`),
	regexp.MustCompile(`<\|[^|]*\|>`),
	regexp.MustCompile(`(?i)\[/?(inst|sys)\]`),
}

var (
	htmlTags     = regexp.MustCompile(`<[^>]{1,200}>`)
	controlChars = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
	runsOfSpace  = regexp.MustCompile(`[ \t]{2,}`)
	runsOfBlank  = regexp.MustCompile(`\n{3,}`)
)

// Sanitize strips markup, control characters and prompt-injection
// phrasings from fetched evidence.
func Sanitize(raw string) string {
	out := htmlTags.ReplaceAllString(raw, " ")
	out = controlChars.ReplaceAllString(out, "")
	for _, p := range injectionPatterns {
		out = p.ReplaceAllString(out, "[removed]")
	}
	out = runsOfSpace.ReplaceAllString(out, " ")
	out = runsOfBlank.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
