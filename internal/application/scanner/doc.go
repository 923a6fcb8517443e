// Package scanner discovers conversion work. Each cycle it enumerates the
// tracking category, fetches page wikitext, extracts legacy graph instances
// in source order and upserts a conversion task per instance. Graph
// extraction is owned by the conversion service; the scanner treats it as an
// opaque text function.
package scanner
