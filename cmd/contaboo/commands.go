package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/ahmedgfathy/contaboo/internal/extract"
	"github.com/ahmedgfathy/contaboo/internal/ingest"
	contaboomcp "github.com/ahmedgfathy/contaboo/internal/mcp"
	"github.com/ahmedgfathy/contaboo/internal/metrics"
	"github.com/ahmedgfathy/contaboo/internal/mobile"
	"github.com/ahmedgfathy/contaboo/internal/patterns"
	"github.com/ahmedgfathy/contaboo/internal/quality"
	"github.com/ahmedgfathy/contaboo/internal/store"
)

// Swapped in tests.
var (
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin
)

// flagSet is the small hand-rolled parser every command shares. Boolean
// flags are listed in bools; valued flags in values and accept both
// "--name v" and "--name=v".
type flagSet struct {
	bools  map[string]*bool
	values map[string]*string
	rest   []string
}

func (fs *flagSet) parse(args []string) error {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "-" || !strings.HasPrefix(arg, "-") {
			fs.rest = append(fs.rest, arg)
			continue
		}
		if arg == "--" {
			fs.rest = append(fs.rest, args[i+1:]...)
			return nil
		}
		if b, ok := fs.bools[arg]; ok {
			*b = true
			continue
		}
		name, value, hasValue := strings.Cut(arg, "=")
		dst, ok := fs.values[name]
		if !ok {
			return fmt.Errorf("unknown flag: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return fmt.Errorf("%s requires a value", name)
			}
			i++
			value = args[i]
		}
		*dst = value
	}
	return nil
}

// textInput is the shared input handling of the pure text commands.
type textInput struct {
	auth, html, record, chat, asJSON bool
	file                             string
}

func (ti *textInput) flags(extraBools map[string]*bool, extraValues map[string]*string) *flagSet {
	fs := &flagSet{
		bools: map[string]*bool{
			"--auth":   &ti.auth,
			"--html":   &ti.html,
			"--record": &ti.record,
			"--chat":   &ti.chat,
			"--json":   &ti.asJSON,
		},
		values: map[string]*string{"--file": &ti.file},
	}
	for k, v := range extraBools {
		fs.bools[k] = v
	}
	for k, v := range extraValues {
		fs.values[k] = v
	}
	return fs
}

// read returns the positional text, the --file contents, or stdin.
func (ti *textInput) read(rest []string) (string, error) {
	if ti.file != "" {
		b, err := os.ReadFile(ti.file)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", ti.file, err)
		}
		return string(b), nil
	}
	if len(rest) > 0 && !(len(rest) == 1 && rest[0] == "-") {
		return strings.Join(rest, " "), nil
	}
	if f, ok := stdin.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return "", errors.New("no input: pass text, --file <path>, or pipe it on stdin")
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(b), nil
}

// input wraps text in the quality shape the flags select.
func (ti *textInput) input(text string) (quality.Input, error) {
	switch {
	case ti.html && ti.record:
		return nil, errors.New("--html and --record are exclusive")
	case ti.html:
		return quality.Markup(text), nil
	case ti.record:
		return quality.RecordFromJSON([]byte(text))
	}
	return quality.Text(text), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func masker() (mobile.Masker, error) {
	cfg, err := resolveConfig(commandFlags{})
	if err != nil {
		return mobile.Masker{}, err
	}
	return mobile.Masker{Char: cfg.MaskRune()}, nil
}

// ==================== import ====================

func runImport(args []string) error {
	var (
		opts        ingest.ImportOptions
		clean       bool
		workers     string
		metricsAddr string
	)
	fs := &flagSet{
		bools: map[string]*bool{
			"--recursive": &opts.Recursive, "-r": &opts.Recursive,
			"--dry-run": &opts.DryRun, "-n": &opts.DryRun,
			"--clean": &clean,
		},
		values: map[string]*string{
			"--workers":      &workers,
			"--metrics-addr": &metricsAddr,
		},
	}
	if err := fs.parse(args); err != nil {
		return err
	}
	if len(fs.rest) == 0 {
		return errors.New("usage: contaboo import <path>... [--recursive] [--dry-run] [--clean] [--workers n]")
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, commandFlags{workers: workers, clean: clean, metricsAddr: metricsAddr})
	if err != nil {
		return err
	}
	defer a.Close()

	reg := metrics.New()
	if addr := a.cfg.MetricsAddr.Value; addr != "" {
		go func() {
			if err := reg.Serve(ctx, addr); err != nil {
				a.logger.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
			}
		}()
	}

	engine := ingest.NewEngine(a.store,
		ingest.WithLogger(a.logger),
		ingest.WithMetrics(reg),
		ingest.WithExtractor(extract.NewPipeline()),
	)
	opts.Clean = a.cfg.Clean()
	opts.Workers = a.cfg.WorkerCount()

	if opts.DryRun {
		fmt.Fprintln(stdout, "Dry run mode: no changes will be written")
		fmt.Fprintln(stdout)
	}

	total := &ingest.ImportResult{}
	for _, path := range fs.rest {
		fmt.Fprintf(stdout, "Importing %s...\n", path)
		opts.ProgressFn = func(current, n int, file string) {
			fmt.Fprintf(stdout, "  [%d/%d] %s\n", current, n, file)
		}
		result, err := engine.ImportFile(ctx, path, opts)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintf(os.Stderr, "  Error: %v\n", err)
			total.Errors = append(total.Errors, ingest.ImportError{File: path, Message: err.Error()})
			continue
		}
		total.Add(result)
	}

	fmt.Fprintln(stdout)
	fmt.Fprint(stdout, ingest.FormatImportResult(total))
	return nil
}

// ==================== extract ====================

func runExtract(args []string) error {
	var ti textInput
	fs := ti.flags(nil, nil)
	if err := fs.parse(args); err != nil {
		return err
	}
	text, err := ti.read(fs.rest)
	if err != nil {
		return err
	}
	m, err := masker()
	if err != nil {
		return err
	}
	x := extract.NewPipeline()

	if ti.chat {
		res, err := x.ParseChat(strings.NewReader(text))
		if err != nil {
			return fmt.Errorf("parsing chat: %w", err)
		}
		for i := range res.Messages {
			msg := &res.Messages[i]
			msg.Text = m.Mask(msg.Text, ti.auth)
			msg.Fields.BrokerMobile = m.Mask(msg.Fields.BrokerMobile, ti.auth)
		}
		if ti.asJSON {
			return printJSON(map[string]interface{}{"messages": res.Messages, "skipped": res.Skipped})
		}
		for _, msg := range res.Messages {
			fmt.Fprintf(stdout, "%4d  %-16s %-8s %-10s %-14s %s\n",
				msg.Line, msg.Sender, msg.Fields.Purpose, msg.Fields.PropertyType,
				formatPrice(msg.Fields.Price), msg.Fields.Area)
		}
		fmt.Fprintf(stdout, "\n%d messages, %d lines skipped\n", len(res.Messages), res.Skipped)
		return nil
	}

	f := x.Extract(text)
	f.BrokerMobile = m.Mask(f.BrokerMobile, ti.auth)
	if ti.asJSON {
		return printJSON(f)
	}
	printFields(f)
	return nil
}

func printFields(f extract.Fields) {
	fmt.Fprintf(stdout, "Purpose:        %s\n", f.Purpose)
	fmt.Fprintf(stdout, "Property type:  %s\n", f.PropertyType)
	fmt.Fprintf(stdout, "Area:           %s\n", orDash(f.Area))
	fmt.Fprintf(stdout, "Price:          %s (%s)\n", formatPrice(f.Price), f.PriceRange)
	broker := strings.TrimSpace(f.BrokerName + "  " + f.BrokerMobile)
	fmt.Fprintf(stdout, "Broker:         %s\n", orDash(broker))
	fmt.Fprintf(stdout, "Keywords:       %s\n", orDash(strings.Join(f.Keywords, ", ")))
}

// ==================== mask ====================

func runMask(args []string) error {
	var ti textInput
	fs := ti.flags(nil, nil)
	if err := fs.parse(args); err != nil {
		return err
	}
	text, err := ti.read(fs.rest)
	if err != nil {
		return err
	}
	m, err := masker()
	if err != nil {
		return err
	}
	masked := m.Mask(text, ti.auth)
	if ti.asJSON {
		return printJSON(map[string]interface{}{"text": masked, "mobiles": len(mobile.FindAll(text))})
	}
	fmt.Fprint(stdout, masked)
	if !strings.HasSuffix(masked, "\n") {
		fmt.Fprintln(stdout)
	}
	return nil
}

// ==================== analyze / clean ====================

func runAnalyze(args []string) error {
	var ti textInput
	fs := ti.flags(nil, nil)
	if err := fs.parse(args); err != nil {
		return err
	}
	text, err := ti.read(fs.rest)
	if err != nil {
		return err
	}
	in, err := ti.input(text)
	if err != nil {
		return err
	}
	report, err := quality.NewAnalyzer().Analyze(in)
	if err != nil {
		return err
	}

	var completeness *quality.Completeness
	if r, ok := in.(quality.Record); ok {
		c := quality.ValidateCompleteness(r)
		completeness = &c
	}
	if ti.asJSON {
		return printJSON(map[string]interface{}{"report": report, "completeness": completeness})
	}

	printReport(report)
	if completeness != nil {
		fmt.Fprintf(stdout, "\nCompleteness: %d%% (%d/%d fields)\n", completeness.Score, completeness.Filled, completeness.Total)
		if len(completeness.MissingRequired) > 0 {
			fmt.Fprintf(stdout, "  Missing required: %s\n", strings.Join(completeness.MissingRequired, ", "))
		}
	}
	return nil
}

func printReport(r quality.Report) {
	fmt.Fprintf(stdout, "Score: %d/100 (%s)\n", r.Score, r.Status)
	if len(r.Findings) == 0 {
		fmt.Fprintln(stdout, "No defects found.")
		return
	}
	fmt.Fprintf(stdout, "\nFindings (%d):\n", len(r.Findings))
	for _, f := range r.Findings {
		fmt.Fprintf(stdout, "  [%s] %s: %s\n", f.Kind, f.Rule, f.Evidence)
	}
	fmt.Fprintln(stdout, "\nSuggestions:")
	for _, s := range r.Suggestions {
		fmt.Fprintf(stdout, "  - %s\n", s)
	}
}

func runClean(args []string) error {
	var (
		ti     textInput
		output string
	)
	fs := ti.flags(nil, map[string]*string{"--output": &output, "-o": &output})
	if err := fs.parse(args); err != nil {
		return err
	}
	text, err := ti.read(fs.rest)
	if err != nil {
		return err
	}
	in, err := ti.input(text)
	if err != nil {
		return err
	}

	res := quality.NewAnalyzer().AutoClean(in)
	cleaned := res.CleanedString()
	if output != "" {
		if err := os.WriteFile(output, []byte(cleaned), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", output, err)
		}
	}
	if ti.asJSON {
		return printJSON(map[string]interface{}{"cleaned": cleaned, "result": res})
	}

	fmt.Fprintf(stdout, "Score: %d -> %d (%+d)\n", res.OriginalScore, res.FinalScore, res.Improvement)
	if len(res.Actions) > 0 {
		fmt.Fprintln(stdout, "\nActions:")
		for _, a := range res.Actions {
			fmt.Fprintf(stdout, "  - %s\n", a)
		}
	}
	if output != "" {
		fmt.Fprintf(stdout, "\nCleaned content written to %s\n", output)
		return nil
	}
	fmt.Fprintf(stdout, "\n%s\n", cleaned)
	return nil
}

// ==================== list / search ====================

func runList(args []string) error {
	var (
		auth, asJSON                      bool
		purpose, area, ptype, source      string
		minPrice, maxPrice, limit, offset string
	)
	fs := &flagSet{
		bools: map[string]*bool{"--auth": &auth, "--json": &asJSON},
		values: map[string]*string{
			"--purpose": &purpose, "--area": &area, "--type": &ptype, "--source": &source,
			"--min-price": &minPrice, "--max-price": &maxPrice,
			"--limit": &limit, "--offset": &offset,
		},
	}
	if err := fs.parse(args); err != nil {
		return err
	}
	if len(fs.rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.rest[0])
	}

	opts := store.ListOpts{
		Purpose:      extract.Purpose(purpose),
		Area:         area,
		PropertyType: patterns.PropertyType(ptype),
		Source:       source,
	}
	var err error
	if opts.MinPrice, err = parseFloatFlag("--min-price", minPrice); err != nil {
		return err
	}
	if opts.MaxPrice, err = parseFloatFlag("--max-price", maxPrice); err != nil {
		return err
	}
	if opts.Limit, err = parseIntFlag("--limit", limit, 20); err != nil {
		return err
	}
	if opts.Offset, err = parseIntFlag("--offset", offset, 0); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx, commandFlags{})
	if err != nil {
		return err
	}
	defer a.Close()

	props, err := a.store.ListProperties(ctx, opts)
	if err != nil {
		return fmt.Errorf("listing: %w", err)
	}
	return printListings(props, mobile.Masker{Char: a.cfg.MaskRune()}, auth, asJSON)
}

func runSearch(args []string) error {
	var (
		auth, asJSON bool
		limit        string
	)
	fs := &flagSet{
		bools:  map[string]*bool{"--auth": &auth, "--json": &asJSON},
		values: map[string]*string{"--limit": &limit},
	}
	if err := fs.parse(args); err != nil {
		return err
	}
	query := strings.TrimSpace(strings.Join(fs.rest, " "))
	if query == "" {
		return errors.New("usage: contaboo search <query> [--limit n] [--auth] [--json]")
	}
	n, err := parseIntFlag("--limit", limit, 10)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx, commandFlags{})
	if err != nil {
		return err
	}
	defer a.Close()

	props, err := a.store.SearchProperties(ctx, query, n)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}
	return printListings(props, mobile.Masker{Char: a.cfg.MaskRune()}, auth, asJSON)
}

func printListings(props []*store.Property, m mobile.Masker, auth, asJSON bool) error {
	for _, p := range props {
		p.Message = m.Mask(p.Message, auth)
		p.BrokerMobile = m.Mask(p.BrokerMobile, auth)
	}
	if asJSON {
		return printJSON(props)
	}
	if len(props) == 0 {
		fmt.Fprintln(stdout, "No listings found.")
		return nil
	}
	for _, p := range props {
		fmt.Fprintf(stdout, "#%-5d %-8s %-10s %-14s %s\n",
			p.ID, p.Purpose, p.PropertyType, formatPrice(p.Price), orDash(p.Area))
		fmt.Fprintf(stdout, "       %s\n", firstLine(p.Message, 100))
		if p.QualityStatus != "" {
			fmt.Fprintf(stdout, "       quality %d (%s)  %s\n", p.QualityScore, p.QualityStatus, p.SourceRef)
		}
	}
	return nil
}

// ==================== stats / reextract ====================

func runStats(args []string) error {
	var asJSON bool
	fs := &flagSet{bools: map[string]*bool{"--json": &asJSON}}
	if err := fs.parse(args); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx, commandFlags{})
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	if asJSON {
		return printJSON(st)
	}
	printStats(st)
	return nil
}

func printStats(st *store.Stats) {
	pct := func(n int64) string {
		if st.Total == 0 {
			return "0%"
		}
		return fmt.Sprintf("%.0f%%", float64(n)*100/float64(st.Total))
	}
	fmt.Fprintf(stdout, "Listings:       %s\n", humanize.Comma(st.Total))
	fmt.Fprintf(stdout, "  with purpose: %s (%s)\n", humanize.Comma(st.WithPurpose), pct(st.WithPurpose))
	fmt.Fprintf(stdout, "  with area:    %s (%s)\n", humanize.Comma(st.WithArea), pct(st.WithArea))
	fmt.Fprintf(stdout, "  with price:   %s (%s)\n", humanize.Comma(st.WithPrice), pct(st.WithPrice))
	fmt.Fprintf(stdout, "  with broker:  %s (%s)\n", humanize.Comma(st.WithBroker), pct(st.WithBroker))
	if st.Analyzed > 0 {
		fmt.Fprintf(stdout, "Quality:        %.1f average over %s analyzed\n", st.AvgQuality, humanize.Comma(st.Analyzed))
	}

	fmt.Fprintln(stdout, "\nBy purpose:")
	for _, k := range []string{"sale", "rent", "wanted", "unknown"} {
		if n := st.ByPurpose[k]; n > 0 {
			fmt.Fprintf(stdout, "  %-10s %s\n", k, humanize.Comma(n))
		}
	}
	fmt.Fprintln(stdout, "\nBy type:")
	for _, k := range patterns.PropertyTypes() {
		if n := st.ByPropertyType[string(k)]; n > 0 {
			fmt.Fprintf(stdout, "  %-10s %s\n", k, humanize.Comma(n))
		}
	}
	if len(st.TopAreas) > 0 {
		fmt.Fprintln(stdout, "\nTop areas:")
		for _, ac := range st.TopAreas {
			fmt.Fprintf(stdout, "  %-20s %s\n", ac.Area, humanize.Comma(ac.Count))
		}
	}
	fmt.Fprintf(stdout, "\nPatterns:       %s\n", st.PatternVersion)
	if st.DBSizeBytes > 0 {
		fmt.Fprintf(stdout, "Database size:  %s\n", humanize.Bytes(uint64(st.DBSizeBytes)))
	}
}

func runReExtract(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx, commandFlags{})
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.store.ReExtract(ctx)
	if err != nil {
		return fmt.Errorf("re-extracting: %w", err)
	}
	fmt.Fprintf(stdout, "Re-extracted %s listings with patterns %s\n", humanize.Comma(int64(n)), patterns.Version)
	return nil
}

// ==================== mcp ====================

func runMCP(args []string) error {
	var metricsAddr string
	fs := &flagSet{values: map[string]*string{"--metrics-addr": &metricsAddr}}
	if err := fs.parse(args); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx, commandFlags{metricsAddr: metricsAddr})
	if err != nil {
		return err
	}
	defer a.Close()

	reg := metrics.New()
	if addr := a.cfg.MetricsAddr.Value; addr != "" {
		go func() {
			if err := reg.Serve(ctx, addr); err != nil {
				a.logger.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
			}
		}()
	}

	x := extract.NewPipeline()
	analyzer := quality.NewAnalyzer()
	srv := contaboomcp.NewServer(contaboomcp.ServerConfig{
		Store: a.store,
		Engine: ingest.NewEngine(a.store,
			ingest.WithLogger(a.logger),
			ingest.WithMetrics(reg),
			ingest.WithAnalyzer(analyzer),
			ingest.WithExtractor(x),
		),
		Extractor: x,
		Analyzer:  analyzer,
		MaskChar:  a.cfg.MaskRune(),
		Logger:    a.logger,
		Version:   version,
	})

	a.logger.Info("mcp server starting", zap.String("transport", "stdio"), zap.String("db", a.cfg.DBPath.Value))
	return server.ServeStdio(srv)
}

// ==================== formatting ====================

func formatPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return humanize.Comma(int64(*p)) + " EGP"
}

func parseIntFlag(name, raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}

func parseFloatFlag(name, raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// firstLine returns the first line of s, cut to max runes.
func firstLine(s string, max int) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	r := []rune(line)
	if len(r) > max {
		return string(r[:max]) + "..."
	}
	return line
}
