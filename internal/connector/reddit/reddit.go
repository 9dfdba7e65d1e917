// Package reddit implements the forum connector polling finance subreddits
// through the public JSON listing API.
package reddit

import (
	"context"
	"fmt"
	"log"
	"math"
	"regexp"
	"slices"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/quantfold/tip/internal/connector"
	"github.com/quantfold/tip/internal/httpfetch"
	"github.com/quantfold/tip/internal/schema"
)

const (
	host              = "https://www.reddit.com"
	postLimit         = 25
	fetchTimeout      = 10 * time.Second
	maxTickersPerPost = 5
	textLimit         = 500
)

// tickerPattern matches cashtags ($OPEN) and bare uppercase words that look
// like tickers. Bare matches need the blacklist below to be useful.
var tickerPattern = regexp.MustCompile(`\$([A-Z]{1,5})\b|\b([A-Z]{2,5})\b`)

// tickerBlacklist drops common words, finance acronyms, and meme vocabulary
// the bare-word pattern would otherwise flag.
var tickerBlacklist = map[string]struct{}{
	"THE": {}, "AND": {}, "FOR": {}, "ARE": {}, "BUT": {}, "NOT": {}, "YOU": {}, "ALL": {}, "CAN": {}, "HAD": {},
	"HER": {}, "WAS": {}, "ONE": {}, "OUR": {}, "OUT": {}, "HAS": {}, "HIS": {}, "HOW": {}, "MAN": {}, "NEW": {},
	"NOW": {}, "OLD": {}, "SEE": {}, "WAY": {}, "WHO": {}, "BOY": {}, "DID": {}, "GET": {}, "HIM": {}, "LET": {},
	"PUT": {}, "SAY": {}, "SHE": {}, "TOO": {}, "USE": {}, "CEO": {}, "CFO": {}, "IPO": {}, "USA": {}, "FBI": {},
	"CIA": {}, "GDP": {}, "IMO": {}, "TBH": {}, "LOL": {}, "WTF": {}, "OMG": {}, "FYI": {}, "EOD": {}, "ATH": {},
	"ATL": {}, "DD": {}, "YOLO": {}, "FOMO": {}, "HODL": {}, "WSB": {}, "GME": {}, "AMC": {}, "APE": {}, "APES": {},
	"MOON": {}, "HOLD": {}, "BUY": {}, "SELL": {}, "CALL": {}, "ITM": {}, "OTM": {}, "IV": {}, "DTE": {},
}

// fetchClient is the slice of the polite fetcher the adapter depends on.
type fetchClient interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	Jitter(ctx context.Context) error
}

// Config parameterizes the forum connector.
type Config struct {
	// Subreddits to poll; defaults to wallstreetbets.
	Subreddits []string
	// UserAgent identifies the operator to the listing API.
	UserAgent string
	// MaxRPS caps the request rate across subreddits.
	MaxRPS float64
	Logger *log.Logger
}

// Adapter polls subreddit listings and normalizes posts into social mention
// events. Not safe for concurrent use; one poll loop owns the adapter.
type Adapter struct {
	subreddits []string
	fetcher    fetchClient
	logger     *log.Logger
	// seenIDs dedupes posts across this adapter's cycles; the store's
	// dedupe key remains the durable guard.
	seenIDs map[string]struct{}
}

// New constructs the forum adapter.
func New(cfg Config) *Adapter {
	subs := cfg.Subreddits
	if len(subs) == 0 {
		subs = []string{"wallstreetbets"}
	}
	fetcher := httpfetch.New(httpfetch.Config{
		Source:    "reddit",
		UserAgent: cfg.UserAgent,
		MaxRPS:    cfg.MaxRPS,
		Timeout:   fetchTimeout,
		Logger:    cfg.Logger,
	})
	return &Adapter{
		subreddits: subs,
		fetcher:    fetcher,
		logger:     cfg.Logger,
		seenIDs:    make(map[string]struct{}),
	}
}

// Name identifies the connector.
func (a *Adapter) Name() string { return "reddit" }

// Source tags forum events with the retail feed source.
func (a *Adapter) Source() schema.Source { return schema.SourceWSB }

// Fetch polls each configured subreddit. Per-subreddit failures are logged
// and skipped; posts already seen by this adapter are dropped.
func (a *Adapter) Fetch(ctx context.Context) ([]connector.Raw, error) {
	var records []connector.Raw
	for i, subreddit := range a.subreddits {
		if i > 0 {
			if err := a.fetcher.Jitter(ctx); err != nil {
				return nil, err
			}
		}
		posts, err := a.fetchSubreddit(ctx, subreddit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logf("reddit: fetch r/%s: %v", subreddit, err)
			continue
		}
		for _, post := range posts {
			id := stringValue(post["id"])
			if _, ok := a.seenIDs[id]; ok {
				continue
			}
			a.seenIDs[id] = struct{}{}
			records = append(records, post)
		}
	}
	return records, nil
}

func (a *Adapter) fetchSubreddit(ctx context.Context, subreddit string) ([]connector.Raw, error) {
	url := fmt.Sprintf("%s/r/%s/new.json?limit=%d&raw_json=1", host, subreddit, postLimit)
	body, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	var listing struct {
		Data struct {
			Children []struct {
				Data map[string]any `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	posts := make([]connector.Raw, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		posts = append(posts, connector.Raw{
			"id":              post["id"],
			"subreddit":       subreddit,
			"title":           pick(post, "title", ""),
			"selftext":        pick(post, "selftext", ""),
			"author":          post["author"],
			"score":           pick(post, "score", float64(0)),
			"upvote_ratio":    pick(post, "upvote_ratio", float64(0)),
			"num_comments":    pick(post, "num_comments", float64(0)),
			"created_utc":     post["created_utc"],
			"permalink":       post["permalink"],
			"url":             post["url"],
			"link_flair_text": post["link_flair_text"],
		})
	}
	a.logf("reddit: fetched %d posts from r/%s", len(posts), subreddit)
	return posts, nil
}

// Normalize implements the adapter contract over NormalizePost.
func (a *Adapter) Normalize(raw connector.Raw) (connector.Partial, error) {
	return NormalizePost(raw)
}

// NormalizePost maps a raw forum post onto the canonical social-mentions
// shape. Severity grades engagement; confidence blends upvote ratio with
// engagement volume.
func NormalizePost(raw connector.Raw) (connector.Partial, error) {
	title := stringValue(raw["title"])
	selftext := stringValue(raw["selftext"])
	tickers := extractTickers(title + " " + selftext)

	var symbol string
	if len(tickers) > 0 {
		symbol = tickers[0]
	}

	score := floatValue(raw["score"])
	comments := floatValue(raw["num_comments"])
	severity := int(math.Floor((score + comments*2) / 50))
	if severity > 100 {
		severity = 100
	}

	upvoteRatio := 0.5
	if v, ok := numberValue(raw["upvote_ratio"]); ok {
		upvoteRatio = v
	}
	engagement := (score + comments) / 1000
	if engagement > 1 {
		engagement = 1
	}
	confidence := round2(upvoteRatio*0.7 + engagement*0.3)

	var tsEvent time.Time
	if sec, ok := numberValue(raw["created_utc"]); ok {
		tsEvent = time.Unix(int64(sec), int64((sec-math.Trunc(sec))*1e9)).UTC()
	}

	return connector.Partial{
		EventType:  schema.EventTypeSocialMentions,
		Symbol:     symbol,
		EntityID:   stringValue(raw["author"]),
		TsEvent:    tsEvent,
		Severity:   &severity,
		Confidence: &confidence,
		Payload: map[string]any{
			"postId":      raw["id"],
			"subreddit":   raw["subreddit"],
			"title":       raw["title"],
			"text":        truncate(selftext, textLimit),
			"author":      raw["author"],
			"score":       raw["score"],
			"upvoteRatio": raw["upvote_ratio"],
			"numComments": raw["num_comments"],
			"flair":       raw["link_flair_text"],
			"tickers":     tickers,
			"url":         "https://reddit.com" + stringValue(raw["permalink"]),
		},
		DedupeKey: fmt.Sprintf("reddit:%s:%s", stringValue(raw["subreddit"]), stringValue(raw["id"])),
	}, nil
}

// extractTickers returns up to five unique candidate tickers in mention
// order. Cashtag captures win over bare-word captures.
func extractTickers(text string) []string {
	matches := tickerPattern.FindAllStringSubmatch(text, -1)
	var tickers []string
	for _, m := range matches {
		ticker := m[1]
		if ticker == "" {
			ticker = m[2]
		}
		if ticker == "" {
			continue
		}
		if _, banned := tickerBlacklist[ticker]; banned {
			continue
		}
		if !slices.Contains(tickers, ticker) {
			tickers = append(tickers, ticker)
		}
	}
	if len(tickers) > maxTickersPerPost {
		tickers = tickers[:maxTickersPerPost]
	}
	return tickers
}

// round2 rounds half to even at two decimal places.
func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).RoundBank(2).Float64()
	return f
}

func (a *Adapter) logf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

func pick(m map[string]any, key string, def any) any {
	if v, ok := m[key]; ok && v != nil {
		return v
	}
	return def
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func floatValue(v any) float64 {
	f, _ := numberValue(v)
	return f
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}

var _ connector.Adapter = (*Adapter)(nil)
