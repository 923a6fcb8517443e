// Package mediawiki provides a client for the MediaWiki action API.
//
// The client implements the content port: revision reads anchored to a
// revision id, baserevid-guarded edits with conflict detection, category
// member listing with continuation, and page existence probes.
package mediawiki
