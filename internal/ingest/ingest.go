// Package ingest is the import and QA path for Contaboo.
//
// Each supported format (WhatsApp chat exports, CRM CSV/TSV sheets, JSON
// listing exports, HTML listing pages) has its own importer that implements
// the Importer interface. The engine auto-detects formats by file extension
// or content, analyzes every listing for defects (optionally auto-cleaning
// it), and stores it with its extracted fields and quality score.
//
// All importers preserve provenance: source file path, line number and the
// sender and timestamp of chat messages are tracked for every listing.
package ingest
