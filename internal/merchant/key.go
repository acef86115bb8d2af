// Package merchant derives comparison keys from raw merchant strings.
package merchant

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxPatternKeyLength bounds the length of a pattern key in runes.
const MaxPatternKeyLength = 80

const monthPattern = `(?:JAN(?:UARY)?|FEB(?:RUARY)?|MAR(?:CH)?|APR(?:IL)?|MAY|JUNE?|JULY?|AUG(?:UST)?|SEPT?(?:EMBER)?|OCT(?:OBER)?|NOV(?:EMBER)?|DEC(?:EMBER)?)`

var (
	// 7342*TX9 UBER EATS: an order number glued to a token by '*'.
	orderPrefixRegex = regexp.MustCompile(`^[A-Z]*[0-9][A-Z0-9]*\s*\*\s*\S+\s+`)

	urlRegexes = []*regexp.Regexp{
		regexp.MustCompile(`\bHTTPS?://\S+`),
		regexp.MustCompile(`\bWWW\.\S+`),
		regexp.MustCompile(`\b[A-Z0-9-]+(?:\.[A-Z0-9-]+)*\.(?:COM|NET|ORG|IO|CO|US|CA|UK|DE|FR)\b(?:/\S*)?`),
	}
	phoneRegexes = []*regexp.Regexp{
		regexp.MustCompile(`\(?\b\d{3}\)?[-. ]\d{3}[-. ]\d{4}\b`),
		regexp.MustCompile(`\+\d[\d -]{7,}\d`),
	}
	dateRegexes = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}[/.-]\d{1,2}[/.-]\d{1,2}\b`),
		regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}(?:[/-]\d{2,4})?\b`),
		regexp.MustCompile(`\b\d{1,2}\.\d{1,2}\.\d{2,4}\b`),
		regexp.MustCompile(`\b` + monthPattern + `\.?\s+\d{1,2}(?:,?\s+\d{4})?\b`),
		regexp.MustCompile(`\b\d{1,2}\s+` + monthPattern + `(?:\s+\d{4})?\b`),
	}
	ticketRegex   = regexp.MustCompile(`#\s*\d+`)
	alnumRunRegex = regexp.MustCompile(`[A-Z0-9]{6,}`)
)

// Normalize trims, uppercases, and collapses internal whitespace.
func Normalize(merchant string) string {
	return strings.Join(strings.Fields(strings.ToUpper(merchant)), " ")
}

// PatternKey returns a stable key for merchant with volatile tokens removed,
// so differently-suffixed variants of the same brand share one key.
func PatternKey(merchant string) string {
	normalized := Normalize(merchant)
	if normalized == "" {
		return ""
	}

	key := orderPrefixRegex.ReplaceAllString(normalized, "")
	key = splitProcessorSeparator(key)
	key = stripVolatile(key)
	key = cleanTokens(key)

	if key == "" {
		key = fallbackKey(normalized)
	}
	if key == "" {
		key = normalized
	}

	return truncate(key, MaxPatternKeyLength)
}

// splitProcessorSeparator handles "BRAND *PROCESSORID NAME" by keeping the
// text before '*' and the second token after it.
func splitProcessorSeparator(s string) string {
	before, after, found := strings.Cut(s, "*")
	if !found {
		return s
	}

	// A trailing date or phone must not become the kept token.
	tokens := strings.Fields(stripFormatted(after))
	var kept string
	switch {
	case len(tokens) >= 2:
		kept = tokens[1]
	case len(tokens) == 1:
		kept = tokens[0]
	}

	return strings.TrimSpace(strings.TrimSpace(before) + " " + kept)
}

// stripFormatted removes URLs, phone numbers and dates.
func stripFormatted(s string) string {
	for _, re := range urlRegexes {
		s = re.ReplaceAllString(s, " ")
	}
	for _, re := range phoneRegexes {
		s = re.ReplaceAllString(s, " ")
	}
	for _, re := range dateRegexes {
		s = re.ReplaceAllString(s, " ")
	}
	return s
}

func stripVolatile(s string) string {
	s = stripFormatted(s)
	s = ticketRegex.ReplaceAllString(s, " ")

	// Transaction ids: long alphanumeric runs carrying at least one digit.
	return alnumRunRegex.ReplaceAllStringFunc(s, func(run string) string {
		if strings.ContainsFunc(run, unicode.IsDigit) {
			return " "
		}
		return run
	})
}

// cleanTokens drops punctuation-only tokens and collapses whitespace.
func cleanTokens(s string) string {
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "*#-./,:;")
		if f == "" {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// fallbackKey takes the first token before a decimal point, so a bare
// domain such as NETFLIX.COM still yields NETFLIX.
func fallbackKey(normalized string) string {
	s := normalized
	for _, prefix := range []string{"HTTPS://", "HTTP://", "WWW."} {
		s = strings.TrimPrefix(s, prefix)
	}
	before, _, _ := strings.Cut(s, ".")
	fields := strings.Fields(before)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit]))
}
