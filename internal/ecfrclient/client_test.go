package ecfrclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (rt roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt(req)
}

func newTestClient(rt roundTripperFunc) *Client {
	c := New("http://example.test", 2*time.Second)
	c.hc.Transport = rt
	return c
}

func jsonResponse(body string, status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestClient_FetchAgenciesAndTitles(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/admin/v1/agencies.json":
			return jsonResponse(`{"agencies":[{"slug":"agency-a","display_name":"Agency A","cfr_references":[{"title":1,"chapter":"I"}]}]}`, 200), nil
		case "/versioner/v1/titles.json":
			return jsonResponse(`{"titles":[{"number":1,"name":"Title 1","reserved":false}]}`, 200), nil
		}
		return jsonResponse("not found", 404), nil
	})

	agencies, err := c.FetchAgencies(context.Background())
	require.NoError(t, err)
	require.Len(t, agencies, 1)
	assert.Equal(t, "agency-a", agencies[0].Slug)
	assert.Equal(t, 1, agencies[0].CFRReferences[0].Title)
	assert.Equal(t, "I", agencies[0].CFRReferences[0].Fields["chapter"])

	titles, err := c.FetchTitles(context.Background())
	require.NoError(t, err)
	require.Len(t, titles, 1)
	assert.Equal(t, 1, titles[0].Number)
}

func TestClient_FetchTitleVersions_404IsEmpty(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse("not found", 404), nil
	})

	versions, err := c.FetchTitleVersions(context.Background(), 99)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestClient_FetchFullTitle_404IsEmpty(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse("not found", 404), nil
	})

	xmlBytes, err := c.FetchFullTitle(context.Background(), 7, "2021-01-01")
	require.NoError(t, err)
	assert.Empty(t, xmlBytes)
}

func TestClient_NonDocumented5xxRetriesThenFails(t *testing.T) {
	attempts := 0
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		attempts++
		return jsonResponse("boom", 500), nil
	})

	// The first backoff is 700ms and the second 1.4s, so a 1s deadline
	// lets exactly one retry happen and then aborts mid-backoff, without
	// paying the full exponential-backoff wall-clock cost.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.FetchTitles(ctx)
	require.Error(t, err)
	assert.GreaterOrEqual(t, attempts, 2)
}
