package news

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tickerdeck/tickerdeck/internal/providers"
	apperrors "github.com/tickerdeck/tickerdeck/pkg/errors"
)

func TestLatestFollowsCursorURL(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"id":2,"title":"Second"}],"next":""}`))
	}))
	defer srv.Close()

	client := New(providers.Config{BaseURL: srv.URL, APIKey: "k"})

	page, err := client.Latest(context.Background(), srv.URL+"/posts/page2/", nil)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	require.Empty(t, page.Next)
	require.Equal(t, []string{"/posts/page2/"}, paths)
}

func TestLatestDecodesAndFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/posts/", r.URL.Path)
		require.Equal(t, "BTC,ETH", r.URL.Query().Get("currencies"))
		require.Equal(t, "k", r.URL.Query().Get("auth_token"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{
				"id":           101,
				"title":        "BTC breaks out",
				"url":          "https://example.com/101",
				"published_at": "2026-08-30T12:00:00Z",
				"source":       map[string]string{"title": "Example Wire"},
				"currencies":   []map[string]string{{"code": "btc"}},
			}},
			"next": "https://example.com/posts/?page=2",
		})
	}))
	defer srv.Close()

	client := New(providers.Config{BaseURL: srv.URL, APIKey: "k"})

	page, err := client.Latest(context.Background(), "", []string{"BTC", "ETH"})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	require.Equal(t, "https://example.com/posts/?page=2", page.Next)

	row := page.Results[0].Normalize()
	require.Equal(t, "101", row.ExternalID)
	require.Equal(t, "BTC breaks out", row.Title)
	require.Equal(t, "Example Wire", row.Source)
	require.JSONEq(t, `["BTC"]`, string(row.Currencies))
	require.Equal(t, 2026, row.PublishedAt.Year())
}

func TestLatestMissingAPIKeyMakesNoCall(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	client := New(providers.Config{BaseURL: srv.URL})

	_, err := client.Latest(context.Background(), "", nil)
	require.ErrorIs(t, err, apperrors.ErrConfigMissing)
	require.Zero(t, hits)
}

func TestLatestRateLimitSignal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := New(providers.Config{BaseURL: srv.URL, APIKey: "k"})

	_, err := client.Latest(context.Background(), "", nil)
	require.ErrorIs(t, err, apperrors.ErrProviderRateLimited)
}

func TestNormalizeBadTimestampFallsBackToZero(t *testing.T) {
	row := Item{ID: 7, Title: "x", PublishedAt: "not-a-time"}.Normalize()
	require.True(t, row.PublishedAt.IsZero())
}
