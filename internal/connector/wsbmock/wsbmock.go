// Package wsbmock provides a canned forum adapter. It yields fixed posts
// through the real forum normalization, so pipeline wiring can be exercised
// end to end without touching the listing API.
package wsbmock

import (
	"context"
	"maps"

	"github.com/quantfold/tip/internal/connector"
	"github.com/quantfold/tip/internal/connector/reddit"
	"github.com/quantfold/tip/internal/schema"
)

// Adapter yields the same posts every cycle. The second cycle therefore
// exercises the dedupe path.
type Adapter struct {
	posts []connector.Raw
}

// New builds the adapter; with no posts it serves FixturePost.
func New(posts ...connector.Raw) *Adapter {
	if len(posts) == 0 {
		posts = []connector.Raw{FixturePost()}
	}
	return &Adapter{posts: posts}
}

// Name identifies the connector.
func (a *Adapter) Name() string { return "wsb-mock" }

// Source matches the live forum connector so downstream consumers cannot
// tell fixture events apart.
func (a *Adapter) Source() schema.Source { return schema.SourceWSB }

// Fetch returns copies of the canned posts.
func (a *Adapter) Fetch(context.Context) ([]connector.Raw, error) {
	out := make([]connector.Raw, 0, len(a.posts))
	for _, post := range a.posts {
		out = append(out, maps.Clone(post))
	}
	return out, nil
}

// Normalize applies the forum normalization to the canned post.
func (a *Adapter) Normalize(raw connector.Raw) (connector.Partial, error) {
	return reddit.NormalizePost(raw)
}

// FixturePost is a single engaged post mentioning one ticker.
func FixturePost() connector.Raw {
	return connector.Raw{
		"id":           "abc123",
		"subreddit":    "wallstreetbets",
		"title":        "$OPEN to the moon",
		"selftext":     "",
		"score":        float64(420),
		"upvote_ratio": 0.95,
		"num_comments": float64(50),
		"created_utc":  float64(1700000000),
	}
}

var _ connector.Adapter = (*Adapter)(nil)
