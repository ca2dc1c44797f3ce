// Package identity derives stable fingerprints for scraped items so the
// same lead is recognized across runs even when the surrounding page text
// drifts (relative timestamps, counters, UI chrome).
package identity

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"

	"github.com/leadscout/leadscout/internal/lead"
)

var (
	activityIDRe = regexp.MustCompile(`activity:(\d+)`)

	relTimeRe  = regexp.MustCompile(`\b\d+\s*(?:h|hr|hrs|hour|hours|m|min|mins|minute|minutes)\b`)
	justNowRe  = regexp.MustCompile(`\bjust now\b`)
	likesRe    = regexp.MustCompile(`\b\d+\s+likes?\b`)
	commentsRe = regexp.MustCompile(`\b\d+\s+comments?\b`)
	sharesRe   = regexp.MustCompile(`\bshares?\b`)
	followRe   = regexp.MustCompile(`\bfollow(ing)?\b`)
	premiumRe  = regexp.MustCompile(`\bpremium\b`)
	bulletRe   = regexp.MustCompile(`[·•]`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// Resolver computes fingerprints. It is stateless and safe for concurrent use.
type Resolver struct{}

// New returns a Resolver.
func New() *Resolver {
	return &Resolver{}
}

// Resolve returns the item's fingerprint. Resolution is total: anchors with
// a native activity ID win, then a canonical post path, then a hash of the
// normalized text. Two captures of the same underlying post that differ only
// in timestamps or counters resolve to the same fingerprint.
func (r *Resolver) Resolve(item lead.RawItem) lead.Fingerprint {
	if fp, ok := fromAnchors(item.Anchors); ok {
		return fp
	}
	sum := sha256.Sum256([]byte(Normalize(item.Text)))
	return lead.Fingerprint("text:" + hex.EncodeToString(sum[:]))
}

func fromAnchors(anchors []lead.AnchorHint) (lead.Fingerprint, bool) {
	// First pass: native activity IDs beat path hashes regardless of
	// anchor order.
	for _, a := range anchors {
		h := strings.ToLower(a.Href)
		if h == "" {
			continue
		}
		if m := activityIDRe.FindStringSubmatch(h); m != nil {
			return lead.Fingerprint("native:" + m[1]), true
		}
	}
	for _, a := range anchors {
		h := strings.ToLower(a.Href)
		if !strings.Contains(h, "/posts/") {
			continue
		}
		u, err := url.Parse(h)
		if err != nil || u.Path == "" {
			continue
		}
		sum := sha1.Sum([]byte(u.Path))
		return lead.Fingerprint("path:" + hex.EncodeToString(sum[:])), true
	}
	return "", false
}

// Normalize strips the volatile parts of captured post text: relative time
// tokens, like/comment counters, feed chrome words and the bullet separators
// between them, lowercased with whitespace collapsed. Punctuation left
// dangling at the end after the volatile tail is removed is trimmed too, so
// "remote us only, 2h" and "remote us only, 45m · 12 likes" normalize
// identically.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	t := strings.ToLower(text)
	t = relTimeRe.ReplaceAllString(t, " ")
	t = justNowRe.ReplaceAllString(t, " ")
	t = likesRe.ReplaceAllString(t, " ")
	t = commentsRe.ReplaceAllString(t, " ")
	t = sharesRe.ReplaceAllString(t, " ")
	t = followRe.ReplaceAllString(t, " ")
	t = premiumRe.ReplaceAllString(t, " ")
	t = bulletRe.ReplaceAllString(t, " ")
	t = strings.TrimSpace(spaceRe.ReplaceAllString(t, " "))
	return strings.TrimRight(t, " ,.;:")
}
