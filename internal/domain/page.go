package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// Artifact page extensions in the naming registry namespace
const (
	ChartExt = ".chart"
	TabExt   = ".tab"
)

// Page identifies a wiki page. The revision marker is refreshed on every
// fetch; everything else is stable.
type Page struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Revision int64  `json:"revision"`
}

// Revision is one fetched snapshot of a page's wikitext
type Revision struct {
	Page Page   `json:"page"`
	Text string `json:"text"`
}

// GraphInstance is one legacy graph occurrence inside a page's wikitext.
// Derived fresh on every scan, never persisted standalone.
type GraphInstance struct {
	PageID      int64  `json:"page_id"`
	Ordinal     int    `json:"ordinal"`
	Raw         string `json:"raw"`
	Fingerprint string `json:"fingerprint"`
}

// Key returns the task key for this instance
func (g GraphInstance) Key() TaskKey {
	return TaskKey{PageID: g.PageID, Ordinal: g.Ordinal}
}

// FingerprintOf hashes raw legacy markup for change detection
func FingerprintOf(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewGraphInstance builds an instance with its fingerprint derived from raw
func NewGraphInstance(pageID int64, ordinal int, raw string) GraphInstance {
	return GraphInstance{
		PageID:      pageID,
		Ordinal:     ordinal,
		Raw:         raw,
		Fingerprint: FingerprintOf(raw),
	}
}
