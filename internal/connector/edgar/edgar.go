// Package edgar implements the disclosure connector polling the SEC
// submissions API for new filings on a CIK watchlist.
//
// The SEC caps automated clients at 10 requests per second and requires a
// User-Agent with contact information. The fetcher stays well under that cap
// and honors Retry-After on throttle responses.
package edgar

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/quantfold/tip/errs"
	"github.com/quantfold/tip/internal/connector"
	"github.com/quantfold/tip/internal/fetchstate"
	"github.com/quantfold/tip/internal/httpfetch"
	"github.com/quantfold/tip/internal/schema"
)

const (
	submissionsHost   = "https://data.sec.gov"
	archivesHost      = "https://www.sec.gov"
	companyTickersURL = "https://www.sec.gov/files/company_tickers.json"

	// maxRecentFilings bounds how deep one cycle reads into the recent
	// filings window of a single CIK.
	maxRecentFilings = 100
)

// DefaultForms lists the form types tracked when none are configured.
var DefaultForms = []string{
	"8-K", "10-Q", "10-K", "S-1",
	"424B1", "424B2", "424B3", "424B4", "424B5",
	"13D", "13G", "SC 13D", "SC 13G",
	"4", "3", "5",
}

// fetchClient is the slice of the polite fetcher the adapter depends on.
type fetchClient interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	FetchConditional(ctx context.Context, entity, url string) (httpfetch.Result, error)
	Jitter(ctx context.Context) error
}

// seenStore tracks which accessions were already ingested per CIK.
type seenStore interface {
	IsSeen(ctx context.Context, sourceEntity, accession string) (bool, error)
	MarkSeen(ctx context.Context, sourceEntity, accession string) error
}

// Config parameterizes the disclosure connector.
type Config struct {
	// CIKs to watch; accepted padded or bare, normalized on construction.
	CIKs []string
	// Forms allowlist; defaults to DefaultForms.
	Forms []string
	// UserAgent must carry operator contact information.
	UserAgent string
	// MaxRPS caps the request rate; the fetcher enforces the hard ceiling.
	MaxRPS float64
	// State persists seen filings and conditional request validators.
	State  *fetchstate.Store
	Logger *log.Logger
}

// Adapter polls submissions per CIK and normalizes filings into disclosure
// events. Not safe for concurrent use; one poll loop owns the adapter.
type Adapter struct {
	ciks    []string
	forms   map[string]struct{}
	fetcher fetchClient
	state   seenStore
	logger  *log.Logger
}

// New constructs the disclosure adapter. CIKs are zero-padded here so state
// rows and dedupe keys always use the canonical form.
func New(cfg Config) (*Adapter, error) {
	if cfg.State == nil {
		return nil, errs.New("edgar", errs.CodeConfig, errs.WithMessage("state store required"))
	}

	ciks := make([]string, 0, len(cfg.CIKs))
	for _, cik := range cfg.CIKs {
		padded, err := NormalizeCIK(cik)
		if err != nil {
			return nil, err
		}
		ciks = append(ciks, padded)
	}

	forms := cfg.Forms
	if len(forms) == 0 {
		forms = DefaultForms
	}
	allow := make(map[string]struct{}, len(forms))
	for _, form := range forms {
		allow[strings.ToUpper(form)] = struct{}{}
	}

	fetcher := httpfetch.New(httpfetch.Config{
		Source:    "edgar",
		UserAgent: cfg.UserAgent,
		MaxRPS:    cfg.MaxRPS,
		State:     cfg.State,
		Logger:    cfg.Logger,
	})

	return &Adapter{
		ciks:    ciks,
		forms:   allow,
		fetcher: fetcher,
		state:   cfg.State,
		logger:  cfg.Logger,
	}, nil
}

// Name identifies the connector.
func (a *Adapter) Name() string { return "edgar" }

// Source tags disclosure events.
func (a *Adapter) Source() schema.Source { return schema.SourceEdgar }

// Fetch polls every watched CIK. Unmodified CIKs (304) and per-CIK upstream
// failures are skipped; state store failures abort the cycle.
func (a *Adapter) Fetch(ctx context.Context) ([]connector.Raw, error) {
	if len(a.ciks) == 0 {
		a.logf("edgar: no CIKs configured")
		return nil, nil
	}
	a.logf("edgar: polling %d CIKs for new filings", len(a.ciks))

	var records []connector.Raw
	for _, cik := range a.ciks {
		if err := a.fetcher.Jitter(ctx); err != nil {
			return nil, err
		}

		subs, err := a.fetchSubmissions(ctx, cik)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logf("edgar: fetch CIK %s: %v", cik, err)
			continue
		}
		if subs == nil {
			continue
		}

		filings, err := a.selectFilings(ctx, cik, subs)
		if err != nil {
			return nil, err
		}
		records = append(records, filings...)
	}
	return records, nil
}

// fetchSubmissions returns nil with no error when the CIK is unmodified.
func (a *Adapter) fetchSubmissions(ctx context.Context, cik string) (*submissions, error) {
	url := fmt.Sprintf("%s/submissions/CIK%s.json", submissionsHost, cik)
	res, err := a.fetcher.FetchConditional(ctx, cik, url)
	if err != nil {
		return nil, err
	}
	if !res.Modified {
		return nil, nil
	}

	var subs submissions
	if err := json.Unmarshal(res.Body, &subs); err != nil {
		return nil, fmt.Errorf("decode submissions: %w", err)
	}
	return &subs, nil
}

func (a *Adapter) selectFilings(ctx context.Context, cik string, subs *submissions) ([]connector.Raw, error) {
	recent := subs.Filings.Recent
	total := len(recent.AccessionNumber)
	if total > maxRecentFilings {
		total = maxRecentFilings
	}
	bare := unpadCIK(cik)

	var records []connector.Raw
	for i := 0; i < total; i++ {
		var form string
		if i < len(recent.Form) {
			form = recent.Form[i]
		}
		if _, ok := a.forms[strings.ToUpper(form)]; !ok {
			continue
		}

		accession := recent.AccessionNumber[i]
		seen, err := a.state.IsSeen(ctx, cik, accession)
		if err != nil {
			return nil, err
		}
		if seen {
			continue
		}

		var filingDate, primaryDoc string
		if i < len(recent.FilingDate) {
			filingDate = recent.FilingDate[i]
		}
		if i < len(recent.PrimaryDocument) {
			primaryDoc = recent.PrimaryDocument[i]
		}
		indexURL := fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s-index.html",
			archivesHost, bare, strings.ReplaceAll(accession, "-", ""), accession)

		// Marked before the record is handed to the runner. A crash
		// between here and commit drops the filing rather than
		// double-ingesting it; replay covers the gap.
		if err := a.state.MarkSeen(ctx, cik, accession); err != nil {
			return nil, err
		}

		records = append(records, connector.Raw{
			"cik":             cik,
			"form":            form,
			"accession":       accession,
			"filingDate":      filingDate,
			"filingIndexUrl":  indexURL,
			"primaryDocument": primaryDoc,
			"companyName":     subs.Name,
			"tickers":         subs.Tickers,
		})
	}
	return records, nil
}

// Normalize maps one filing onto the canonical disclosure shape. Filings are
// authoritative so confidence is fixed at 1.0.
func (a *Adapter) Normalize(raw connector.Raw) (connector.Partial, error) {
	tickers := stringSlice(raw["tickers"])
	var symbol string
	if len(tickers) > 0 {
		symbol = tickers[0]
	}

	var tsEvent time.Time
	if ts, err := time.Parse("2006-01-02", stringValue(raw["filingDate"])); err == nil {
		tsEvent = ts
	}

	form := strings.ToUpper(stringValue(raw["form"]))
	severity := formSeverity(form)
	confidence := 1.0
	cik := stringValue(raw["cik"])

	return connector.Partial{
		EventType:  schema.EventTypeDisclosureFiling,
		Symbol:     symbol,
		EntityID:   cik,
		TsEvent:    tsEvent,
		Severity:   &severity,
		Confidence: &confidence,
		Payload: map[string]any{
			"cik":             raw["cik"],
			"form":            raw["form"],
			"accession":       raw["accession"],
			"filingDate":      raw["filingDate"],
			"filingUrl":       raw["filingIndexUrl"],
			"primaryDocument": raw["primaryDocument"],
			"companyName":     raw["companyName"],
			"tickers":         tickers,
		},
		DedupeKey: fmt.Sprintf("edgar:%s:%s", cik, stringValue(raw["accession"])),
	}, nil
}

// formSeverity grades a form type. Exact matches take precedence over the
// offering prefixes.
func formSeverity(form string) int {
	switch form {
	case "8-K":
		return 70
	case "10-K", "10-Q":
		return 60
	case "4", "3", "5":
		return 50
	case "13D", "13G", "SC 13D", "SC 13G":
		return 65
	}
	if strings.HasPrefix(form, "S-") || strings.HasPrefix(form, "424") {
		return 55
	}
	return 50
}

// LookupCIK resolves a ticker symbol to its zero-padded CIK through the
// public company_tickers mapping.
func LookupCIK(ctx context.Context, userAgent, symbol string) (string, error) {
	fetcher := httpfetch.New(httpfetch.Config{
		Source:    "edgar",
		UserAgent: userAgent,
	})
	return lookupCIK(ctx, fetcher, symbol)
}

func lookupCIK(ctx context.Context, fetcher fetchClient, symbol string) (string, error) {
	body, err := fetcher.Fetch(ctx, companyTickersURL)
	if err != nil {
		return "", err
	}

	var entries map[string]struct {
		CIK    int64  `json:"cik_str"`
		Ticker string `json:"ticker"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return "", fmt.Errorf("decode company tickers: %w", err)
	}

	for _, entry := range entries {
		if strings.EqualFold(entry.Ticker, symbol) {
			return fmt.Sprintf("%010d", entry.CIK), nil
		}
	}
	return "", errs.New("edgar", errs.CodeNotFound,
		errs.WithEntity(symbol),
		errs.WithMessage("ticker not present in company_tickers mapping"))
}

// NormalizeCIK zero-pads a CIK to the canonical 10-digit form.
func NormalizeCIK(cik string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(cik))
	if err != nil || n < 0 {
		return "", errs.New("edgar", errs.CodeConfig,
			errs.WithMessage(fmt.Sprintf("invalid CIK %q", cik)))
	}
	return fmt.Sprintf("%010d", n), nil
}

func unpadCIK(cik string) string {
	trimmed := strings.TrimLeft(cik, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

// submissions mirrors the slice of the submissions document the connector
// reads. The recent block is a set of parallel arrays indexed together.
type submissions struct {
	Name    string   `json:"name"`
	Tickers []string `json:"tickers"`
	Filings struct {
		Recent recentFilings `json:"recent"`
	} `json:"filings"`
}

type recentFilings struct {
	AccessionNumber []string `json:"accessionNumber"`
	Form            []string `json:"form"`
	FilingDate      []string `json:"filingDate"`
	PrimaryDocument []string `json:"primaryDocument"`
}

func (a *Adapter) logf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

var _ connector.Adapter = (*Adapter)(nil)
