// Package extract pulls contacts, role titles and a cleaned body out of raw
// captured post text.
package extract

import (
	"regexp"
	"strings"

	"github.com/leadscout/leadscout/internal/lead"
)

var (
	// Strict pattern to avoid false positives like "October@9".
	emailRe  = regexp.MustCompile(`\b[A-Za-z0-9._%+-]{1,64}@[A-Za-z0-9.-]{1,255}\.[A-Za-z]{2,15}\b`)
	phoneRe  = regexp.MustCompile(`\+?\d[\d\-\s().]{6,}\d`)
	atGapRe  = regexp.MustCompile(`\s*@\s*`)
	dotGapRe = regexp.MustCompile(`\s*\.\s*`)
	atWordRe = regexp.MustCompile(`(?i)\bat\b`)
	dotWord  = regexp.MustCompile(`(?i)\bdot\b`)

	commentsHeaderRe = regexp.MustCompile(`^\d+\s+comments?$`)
	likesLineRe      = regexp.MustCompile(`^\d+\s+likes?$`)
	degreeBadgeRe    = regexp.MustCompile(`\b\d+(st|nd|rd|th)\b`)

	rolePhraseRe = regexp.MustCompile(`(?i)(?:looking for|we're looking for|we are looking for|hiring|we're hiring|we are hiring|seeking|open for|open role for)\s+(?:an?|the)?\s*([A-Za-z0-9+.#\s\-]{3,80}?)\b(?:\.|,|\band|for|in|\(|$)`)
	roleKeywordRe = regexp.MustCompile(`(?i)([A-Za-z0-9+#.\-\s]{0,60}\b(?:developer|engineer|manager|designer|architect|consultant|analyst|specialist|lead|scientist|administrator|admin|devops|full[ -]?stack|backend|frontend|mobile))`)
	langComboRe   = regexp.MustCompile(`(?i)(Python|JavaScript|Java|Go|Golang|Ruby|C\+\+|C#|Node|React|Django|Flask)\s+([A-Za-z]{2,20})`)
)

// Contacts finds email addresses and phone numbers in text. Obfuscated
// addresses ("name @ domain . com", "name at domain dot com") are recovered
// when nothing matches verbatim. Results keep first-seen order, deduplicated.
func Contacts(text string) (emails, phones []string) {
	emails = emailRe.FindAllString(text, -1)
	if len(emails) == 0 && text != "" {
		collapsed := dotGapRe.ReplaceAllString(atGapRe.ReplaceAllString(text, "@"), ".")
		emails = emailRe.FindAllString(collapsed, -1)
	}
	if len(emails) == 0 && text != "" {
		deob := dotWord.ReplaceAllString(atWordRe.ReplaceAllString(text, "@"), ".")
		emails = emailRe.FindAllString(deob, -1)
	}
	phones = phoneRe.FindAllString(text, -1)
	return dedupe(emails), dedupe(phones)
}

// AnchorContacts picks mailto: and tel: targets out of anchor hints.
func AnchorContacts(anchors []lead.AnchorHint) (emails, phones []string) {
	for _, a := range anchors {
		h := strings.TrimSpace(a.Href)
		switch {
		case strings.HasPrefix(strings.ToLower(h), "mailto:"):
			addr := strings.SplitN(h[len("mailto:"):], "?", 2)[0]
			if emailRe.MatchString(addr) {
				emails = append(emails, addr)
			}
		case strings.HasPrefix(strings.ToLower(h), "tel:"):
			phones = append(phones, h[len("tel:"):])
		}
	}
	return dedupe(emails), dedupe(phones)
}

// Clean strips feed chrome from captured post text: interaction counters,
// follow/connect rows, anything after the comments header, degree badges and
// repeated lines.
func Clean(text string) string {
	var out []string
	prev := ""
	inComments := false
	for _, line := range strings.Split(text, "\n") {
		l := strings.TrimSpace(line)
		if l == "" {
			continue
		}
		low := strings.ToLower(l)
		if strings.HasPrefix(low, "feed post number") {
			continue
		}
		if !inComments && commentsHeaderRe.MatchString(low) {
			inComments = true
			continue
		}
		if inComments {
			continue
		}
		if likesLineRe.MatchString(low) {
			continue
		}
		if strings.HasPrefix(low, "like") || strings.HasPrefix(low, "comment") || strings.Contains(low, "share") {
			continue
		}
		if strings.HasPrefix(low, "follow") || strings.HasPrefix(low, "connect") {
			continue
		}
		if strings.Contains(low, "premium") {
			continue
		}
		if degreeBadgeRe.MatchString(low) && len(strings.Fields(l)) <= 4 {
			continue
		}
		if containsAny(low, "b.sc", "bsc", "m.sc", "msc", "bachelor", "master", "degree", "mba", "phd") {
			continue
		}
		if l == prev {
			continue
		}
		out = append(out, l)
		prev = l
	}
	return strings.Join(out, "\n")
}

// Role guesses a short role title from post text, or returns "" when none of
// the heuristics produce something plausible.
func Role(text string) string {
	t := strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if t == "" {
		return ""
	}
	if m := rolePhraseRe.FindStringSubmatch(t); m != nil {
		if c := tidyRole(m[1]); c != "" {
			return c
		}
	}
	if m := roleKeywordRe.FindStringSubmatch(t); m != nil {
		if c := tidyRole(m[1]); c != "" {
			return c
		}
	}
	if m := langComboRe.FindStringSubmatch(t); m != nil {
		return strings.TrimSpace(m[1] + " " + m[2])
	}
	return ""
}

func tidyRole(s string) string {
	c := strings.Trim(s, " .,:;\\/")
	if len(c) < 3 || len(c) > 80 {
		return ""
	}
	return strings.Join(strings.Fields(c), " ")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
