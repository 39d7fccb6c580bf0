package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const redditPayload = `{
  "data": {
    "children": [
      {"data": {"title": "ETH to the moon", "selftext": "very bullish", "permalink": "/r/eth/1", "created_utc": 1714550400, "score": 1500}},
      {"data": {"title": "", "selftext": ""}},
      {"data": {"title": "old post", "created_utc": 1600000000, "score": 3}},
      {"data": {"title": "ms timestamp", "created_utc": 1714550400000, "score": 12}}
    ]
  }
}`

func newRedditFeed(t *testing.T, url string) *Feed {
	t.Helper()
	f, err := NewFeed(FeedConfig{
		Name:              "reddit",
		URL:               url + "/search?q={symbol}",
		Headers:           map[string]string{"User-Agent": "sentrix-test"},
		RequestsPerSecond: 100,
		ItemsPath:         "data.children",
		TitlePath:         "data.title",
		ContentPath:       "data.selftext",
		URLPath:           "data.permalink",
		TimePath:          "data.created_utc",
		EngagementPath:    "data.score",
	})
	require.NoError(t, err)
	return f
}

func TestFeed_FetchParsesItems(t *testing.T) {
	var gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(redditPayload))
	}))
	defer srv.Close()

	f := newRedditFeed(t, srv.URL)
	res, err := f.Fetch(context.Background(), Request{Symbol: "eth/usdt", Since: time.Unix(1700000000, 0)})
	require.NoError(t, err)
	assert.Equal(t, "ETH", gotQuery)
	assert.Equal(t, "sentrix-test", gotUA)
	assert.Equal(t, "reddit", res.Source)
	require.Len(t, res.Items, 2)
	first := res.Items[0]
	assert.Equal(t, "reddit", first.Source)
	assert.Equal(t, "ETH to the moon", first.Title)
	assert.Equal(t, "very bullish", first.Content)
	assert.Equal(t, 1500.0, first.Engagement)
	assert.Equal(t, time.Unix(1714550400, 0).UTC(), first.Timestamp)
	assert.Equal(t, time.Unix(1714550400, 0).UTC(), res.Items[1].Timestamp)
}

func TestFeed_Limit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(redditPayload))
	}))
	defer srv.Close()
	res, err := newRedditFeed(t, srv.URL).Fetch(context.Background(), Request{Symbol: "ETH", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
}

func TestFeed_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("q") {
		case "BAD":
			http.Error(w, "nope", http.StatusBadGateway)
		case "JUNK":
			_, _ = w.Write([]byte("not json"))
		default:
			_, _ = w.Write([]byte(`{"data": {"children": {}}}`))
		}
	}))
	defer srv.Close()
	f := newRedditFeed(t, srv.URL)

	_, err := f.Fetch(context.Background(), Request{Symbol: "BAD"})
	assert.ErrorContains(t, err, "status 502")
	_, err = f.Fetch(context.Background(), Request{Symbol: "JUNK"})
	assert.ErrorContains(t, err, "invalid json")
	_, err = f.Fetch(context.Background(), Request{Symbol: "ETH"})
	assert.ErrorContains(t, err, "not an array")

	_, err = NewFeed(FeedConfig{URL: srv.URL})
	assert.Error(t, err)
}

func TestFeed_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	f, err := NewFeed(FeedConfig{Name: "n", URL: srv.URL, HealthURL: srv.URL + "/health", RequestsPerSecond: 100})
	require.NoError(t, err)
	assert.NoError(t, f.HealthCheck(context.Background()))

	f, err = NewFeed(FeedConfig{Name: "n", URL: srv.URL, HealthURL: srv.URL + "/down", RequestsPerSecond: 100})
	require.NoError(t, err)
	assert.Error(t, f.HealthCheck(context.Background()))
}
