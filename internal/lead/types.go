// Package lead defines the core types and collaborator contracts for the
// lead pipeline: scraped items, fingerprints, filter decisions and the
// payloads recorded for delivered leads.
package lead

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AnchorHint is a hyperlink observed near an item while scraping. Hints feed
// the identity resolver and contact extraction; Href may be relative.
type AnchorHint struct {
	Href string
}

// RawItem is one short text block captured from a source page before any
// identity or filtering work has happened.
type RawItem struct {
	Text        string
	SourceLabel string
	SourceURL   string
	Anchors     []AnchorHint
}

// Fingerprint is the stable identity string for an item. The prefix names
// the resolution tier ("native:", "path:" or "text:").
type Fingerprint string

// Tier reports the resolution tier prefix of the fingerprint, without the
// trailing colon.
func (f Fingerprint) Tier() string {
	s := string(f)
	if i := strings.IndexByte(s, ':'); i > 0 {
		return s[:i]
	}
	return ""
}

// Short returns an abbreviated fingerprint suitable for subjects and logs.
func (f Fingerprint) Short() string {
	s := string(f)
	if len(s) <= 18 {
		return s
	}
	return s[:18]
}

// FilterDecision is the outcome of running an item through the filter chain.
type FilterDecision struct {
	Accept bool
	Reason string
}

// Item is a RawItem after identity resolution, cleaning and extraction.
type Item struct {
	Raw         RawItem
	Fingerprint Fingerprint
	CleanedText string
	Role        string
	Emails      []string
	Phones      []string
	Decision    FilterDecision
}

// ReplyTo returns the preferred reply address for the item, or "".
func (it Item) ReplyTo() string {
	if len(it.Emails) == 0 {
		return ""
	}
	return it.Emails[0]
}

// DeliveryRecord is the durable row written when an item is admitted to the
// dedup store. Payload is opaque JSON describing what was sent.
type DeliveryRecord struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	Payload     []byte      `json:"payload,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// DeliveryPayload is the serialized form stored alongside a fingerprint and
// embedded in outbound notifications.
type DeliveryPayload struct {
	SourceLabel string   `json:"source_label"`
	SourceURL   string   `json:"source_url"`
	CleanedText string   `json:"cleaned_text"`
	RawText     string   `json:"raw_text"`
	Reason      string   `json:"reason"`
	Role        string   `json:"role,omitempty"`
	Emails      []string `json:"emails,omitempty"`
	Phones      []string `json:"phones,omitempty"`
}

// EncodePayload serializes a DeliveryPayload for storage.
func EncodePayload(p DeliveryPayload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal delivery payload: %w", err)
	}
	return data, nil
}

// DecodePayload deserializes a stored payload. An empty payload decodes to
// the zero value; old rows stored before payloads were added have none.
func DecodePayload(data []byte) (DeliveryPayload, error) {
	var p DeliveryPayload
	if len(data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("unmarshal delivery payload: %w", err)
	}
	return p, nil
}

// Credential is one sender identity in the rotation pool.
type Credential struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	SSL      bool   `json:"ssl"`
}

// Masked returns a copy safe to expose over the admin API.
func (c Credential) Masked() Credential {
	c.Secret = "********"
	return c
}

// Source is one configured feed to scan, in priority order.
type Source struct {
	Label string
	URL   string
}
