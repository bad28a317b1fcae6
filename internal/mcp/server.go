// Package mcp provides a Model Context Protocol server for Contaboo.
//
// It exposes listing extraction, mobile masking, quality analysis and
// cleaning, and the listing store (search, list, import, stats) as MCP
// tools, and store statistics and recent listings as MCP resources.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ahmedgfathy/contaboo/internal/extract"
	"github.com/ahmedgfathy/contaboo/internal/ingest"
	"github.com/ahmedgfathy/contaboo/internal/mobile"
	"github.com/ahmedgfathy/contaboo/internal/patterns"
	"github.com/ahmedgfathy/contaboo/internal/quality"
	"github.com/ahmedgfathy/contaboo/internal/store"
)

// ServerConfig holds configuration for the MCP server. Only Store is needed
// for the store-backed tools; the pure tools work without it.
type ServerConfig struct {
	Store     store.Store
	Engine    *ingest.Engine // optional; built from Store when nil
	Extractor *extract.Pipeline
	Analyzer  *quality.Analyzer
	MaskChar  rune
	Logger    *zap.Logger
	Version   string // version string for MCP server info
}

// dbMu serializes tool calls that touch the database. mcp-go dispatches
// handlers concurrently and SQLite allows one writer at a time.
var dbMu sync.Mutex

const (
	defaultLimit = 10
	maxLimit     = 50
	recentLimit  = 20
	snippetRunes = 200
)

// NewServer creates a configured MCP server with all Contaboo tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	if cfg.Extractor == nil {
		cfg.Extractor = extract.NewPipeline()
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = quality.NewAnalyzer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Engine == nil && cfg.Store != nil {
		cfg.Engine = ingest.NewEngine(cfg.Store,
			ingest.WithLogger(cfg.Logger),
			ingest.WithAnalyzer(cfg.Analyzer),
			ingest.WithExtractor(cfg.Extractor),
		)
	}
	masker := mobile.Masker{Char: cfg.MaskChar}

	s := server.NewMCPServer(
		"Contaboo",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerExtractTool(s, cfg.Extractor, masker)
	registerMaskTool(s, masker)
	registerAnalyzeTool(s, cfg.Analyzer)
	registerCleanTool(s, cfg.Analyzer)

	if cfg.Store != nil {
		registerSearchTool(s, cfg.Store, masker)
		registerListTool(s, cfg.Store, masker)
		registerImportTool(s, cfg.Engine, cfg.Store, cfg.Logger)
		registerStatsTool(s, cfg.Store)

		registerStatsResource(s, cfg.Store)
		registerRecentResource(s, cfg.Store, masker)
	}

	return s
}

// --- Pure tools ---

func registerExtractTool(s *server.MCPServer, x *extract.Pipeline, masker mobile.Masker) {
	tool := mcp.NewTool("contaboo_extract",
		mcp.WithDescription("Extract structured fields from an Arabic/English property listing: purpose (sale, rent, wanted), area, price and price band, broker name and mobile, property type, and matched keywords."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Listing text, e.g. a WhatsApp message"),
		),
		mcp.WithBoolean("authenticated",
			mcp.Description("Return the broker mobile unmasked (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}
		f := x.Extract(text)
		f.BrokerMobile = masker.Mask(f.BrokerMobile, req.GetBool("authenticated", false))
		return jsonResult(f), nil
	})
}

func registerMaskTool(s *server.MCPServer, masker mobile.Masker) {
	tool := mcp.NewTool("contaboo_mask",
		mcp.WithDescription("Mask Egyptian mobile numbers in text. Authenticated viewers get each number formatted as +20 1X XXXX XXXX; everyone else sees only the first two characters of the number followed by mask characters."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text that may contain mobile numbers"),
		),
		mcp.WithBoolean("authenticated",
			mcp.Description("Show full numbers (default: false)"),
		),
		mcp.WithString("mask_char",
			mcp.Description("Single masking character (default: server setting)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}
		m := masker
		if c := req.GetString("mask_char", ""); c != "" {
			if utf8.RuneCountInString(c) != 1 {
				return mcp.NewToolResultError("mask_char must be a single character"), nil
			}
			m.Char, _ = utf8.DecodeRuneInString(c)
		}
		auth := req.GetBool("authenticated", false)

		payload := map[string]interface{}{
			"text":    m.Mask(text, auth),
			"mobiles": len(mobile.FindAll(text)),
		}
		return jsonResult(payload), nil
	})
}

func inputOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Description("Plain listing text"),
		),
		mcp.WithString("markup",
			mcp.Description("HTML fragment or document"),
		),
		mcp.WithObject("record",
			mcp.Description("Named listing fields, e.g. {\"title\": \"...\", \"price\": \"...\"}"),
		),
	}
}

func registerAnalyzeTool(s *server.MCPServer, a *quality.Analyzer) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Detect data-quality defects in a listing and score it 0-100 (Excellent, Good, Fair, Poor). Pass exactly one of text, markup or record."),
	}, inputOptions()...)
	tool := mcp.NewTool("contaboo_analyze", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in, err := inputFrom(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		report, err := a.Analyze(in)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("analyze error: %v", err)), nil
		}
		payload := map[string]interface{}{"report": report}
		if r, ok := in.(quality.Record); ok {
			payload["completeness"] = quality.ValidateCompleteness(r)
		}
		return jsonResult(payload), nil
	})
}

func registerCleanTool(s *server.MCPServer, a *quality.Analyzer) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Auto-clean a listing: collapse repeated blocks and duplicated fields, fix mobile blocks, balance tags and layout. Returns the cleaned content with before/after scores and the actions taken."),
	}, inputOptions()...)
	tool := mcp.NewTool("contaboo_clean", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in, err := inputFrom(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res := a.AutoClean(in)
		payload := map[string]interface{}{
			"cleaned": res.CleanedString(),
			"result":  res,
		}
		if r, ok := res.Cleaned.(quality.Record); ok {
			payload["record"] = r.Map()
		}
		return jsonResult(payload), nil
	})
}

// inputFrom picks the single input shape given in req.
func inputFrom(req mcp.CallToolRequest) (quality.Input, error) {
	var (
		in    quality.Input
		given int
	)
	if v := req.GetString("text", ""); v != "" {
		in, given = quality.Text(v), given+1
	}
	if v := req.GetString("markup", ""); v != "" {
		in, given = quality.Markup(v), given+1
	}
	if raw, ok := req.GetArguments()["record"]; ok && raw != nil {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			return nil, errors.New("record must be an object of field values")
		}
		data, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("encoding record: %w", err)
		}
		r, err := quality.RecordFromJSON(data)
		if err != nil {
			return nil, err
		}
		in, given = r, given+1
	}
	switch given {
	case 0:
		return nil, errors.New("one of text, markup or record is required")
	case 1:
		return in, nil
	default:
		return nil, errors.New("pass only one of text, markup or record")
	}
}

// --- Store tools ---

// listingView is a Property as shown to a client, with mobiles masked
// unless the caller is authenticated.
type listingView struct {
	*store.Property
	Message      string `json:"message"`
	BrokerMobile string `json:"broker_mobile,omitempty"`
}

func viewOf(p *store.Property, masker mobile.Masker, auth bool) listingView {
	return listingView{
		Property:     p,
		Message:      masker.Mask(p.Message, auth),
		BrokerMobile: masker.Mask(p.BrokerMobile, auth),
	}
}

func viewsOf(props []*store.Property, masker mobile.Masker, auth bool) []listingView {
	out := make([]listingView, 0, len(props))
	for _, p := range props {
		out = append(out, viewOf(p, masker, auth))
	}
	return out
}

func limitFrom(req mcp.CallToolRequest) int {
	limit := defaultLimit
	if v, err := req.RequireFloat("limit"); err == nil {
		limit = int(v)
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	return limit
}

func registerSearchTool(s *server.MCPServer, st store.Store, masker mobile.Masker) {
	tool := mcp.NewTool("contaboo_search",
		mcp.WithDescription("Full-text search over stored listings. Arabic spelling variants match (شقه finds شقة). Mobiles are masked unless authenticated."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query string"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 10, max: 50)"),
		),
		mcp.WithBoolean("authenticated",
			mcp.Description("Show full mobile numbers (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query is required"), nil
		}
		props, err := st.SearchProperties(ctx, query, limitFrom(req))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
		}
		return jsonResult(viewsOf(props, masker, req.GetBool("authenticated", false))), nil
	})
}

func registerListTool(s *server.MCPServer, st store.Store, masker mobile.Masker) {
	tool := mcp.NewTool("contaboo_list",
		mcp.WithDescription("List stored listings, newest first, filtered by purpose, area, property type or price."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("purpose",
			mcp.Description("Filter by purpose"),
			mcp.Enum("sale", "rent", "wanted", "unknown"),
		),
		mcp.WithString("area",
			mcp.Description("Filter by canonical area name, e.g. المعادي"),
		),
		mcp.WithString("property_type",
			mcp.Description("Filter by property type"),
			mcp.Enum("apartment", "villa", "land", "office", "warehouse", "other"),
		),
		mcp.WithNumber("min_price",
			mcp.Description("Minimum price in EGP"),
		),
		mcp.WithNumber("max_price",
			mcp.Description("Maximum price in EGP"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 10, max: 50)"),
		),
		mcp.WithBoolean("authenticated",
			mcp.Description("Show full mobile numbers (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		opts := store.ListOpts{
			Limit:        limitFrom(req),
			Purpose:      extract.Purpose(req.GetString("purpose", "")),
			Area:         req.GetString("area", ""),
			PropertyType: patterns.PropertyType(req.GetString("property_type", "")),
			MinPrice:     req.GetFloat("min_price", 0),
			MaxPrice:     req.GetFloat("max_price", 0),
		}
		props, err := st.ListProperties(ctx, opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list error: %v", err)), nil
		}
		return jsonResult(viewsOf(props, masker, req.GetBool("authenticated", false))), nil
	})
}

func registerImportTool(s *server.MCPServer, engine *ingest.Engine, st store.Store, logger *zap.Logger) {
	tool := mcp.NewTool("contaboo_import",
		mcp.WithDescription("Store one listing message. Fields are extracted, the text is quality-scored, and identical messages from the same source are deduplicated."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The listing text"),
		),
		mcp.WithString("source",
			mcp.Description("Source identifier (e.g. group or file name). Defaults to 'mcp-import'."),
		),
		mcp.WithString("sender",
			mcp.Description("Who posted the listing"),
		),
		mcp.WithBoolean("clean",
			mcp.Description("Auto-clean before storing when that raises the score (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		message, err := req.RequireString("message")
		if err != nil {
			return mcp.NewToolResultError("message is required"), nil
		}
		message = strings.ReplaceAll(message, "\x00", "")
		if strings.TrimSpace(message) == "" {
			return mcp.NewToolResultError("message cannot be empty"), nil
		}

		source := "mcp-import"
		if v := req.GetString("source", ""); v != "" {
			// Sources are labels, never paths.
			v = strings.ReplaceAll(v, "..", "")
			v = strings.ReplaceAll(v, "/", "-")
			v = strings.ReplaceAll(v, "\\", "-")
			source = v
		}

		raw := ingest.RawListing{
			Message:    message,
			Sender:     req.GetString("sender", ""),
			SourceFile: source,
		}
		p, res, err := engine.ImportListing(ctx, "mcp", raw, ingest.ImportOptions{Clean: req.GetBool("clean", false)})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("import error: %v", err)), nil
		}
		stored, err := st.GetProperty(ctx, p.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("lookup error: %v", err)), nil
		}

		logger.Debug("mcp import",
			zap.Int64("id", stored.ID),
			zap.String("source", source),
			zap.Bool("duplicate", res.ListingsDuplicate > 0),
		)
		payload := map[string]interface{}{
			"id":             stored.ID,
			"duplicate":      res.ListingsDuplicate > 0,
			"cleaned":        res.ListingsCleaned > 0,
			"fields":         stored.Fields(),
			"quality_score":  stored.QualityScore,
			"quality_status": stored.QualityStatus,
		}
		return jsonResult(payload), nil
	})
}

func registerStatsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("contaboo_stats",
		mcp.WithDescription("Extraction coverage statistics: totals, rows with purpose/area/price/broker, purpose and property-type breakdowns, top areas, and average quality."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
		}
		return jsonResult(stats), nil
	})
}

// --- Resources ---

func registerStatsResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"contaboo://stats",
		"Listing Statistics",
		mcp.WithResourceDescription("Extraction coverage and quality statistics for the listing store."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting stats: %w", err)
		}
		data, _ := json.MarshalIndent(stats, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func registerRecentResource(s *server.MCPServer, st store.Store, masker mobile.Masker) {
	resource := mcp.NewResource(
		"contaboo://recent",
		"Recent Listings",
		mcp.WithResourceDescription("The 20 most recently imported listings, mobiles masked."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		props, err := st.ListProperties(ctx, store.ListOpts{Limit: recentLimit})
		if err != nil {
			return nil, fmt.Errorf("listing recent properties: %w", err)
		}

		type recentListing struct {
			ID         int64           `json:"id"`
			Source     string          `json:"source"`
			Purpose    extract.Purpose `json:"purpose"`
			Area       string          `json:"area,omitempty"`
			Snippet    string          `json:"snippet"`
			ImportedAt string          `json:"imported_at"`
		}
		recent := make([]recentListing, 0, len(props))
		for _, p := range props {
			recent = append(recent, recentListing{
				ID:         p.ID,
				Source:     p.Source,
				Purpose:    p.Purpose,
				Area:       p.Area,
				Snippet:    snippet(masker.Mask(p.Message, false)),
				ImportedAt: p.ImportedAt.Format(time.RFC3339),
			})
		}

		data, _ := json.MarshalIndent(recent, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

// --- Helpers ---

func jsonResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// snippet shortens s to snippetRunes runes.
func snippet(s string) string {
	if utf8.RuneCountInString(s) <= snippetRunes {
		return s
	}
	r := []rune(s)
	return string(r[:snippetRunes]) + "..."
}
