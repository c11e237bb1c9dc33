package http

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestPurpose: Validates the accepted event type pattern at the boundary.
// Scope: Unit Test
// Expected: Alphanumerics with _ . : - pass up to 64 characters; spaces, slashes and empty strings fail.
// Test Case ID: VAL-01
func TestValidate_EventType(t *testing.T) {
	for _, ok := range []string{"page_view", "click", "checkout.step:2", "a", "UPPER-case_1"} {
		assert.NoError(t, validateEventType(ok), ok)
	}
	for _, bad := range []string{"", "has space", "slash/type", "semi;colon", strings.Repeat("a", 65)} {
		assert.Error(t, validateEventType(bad), bad)
	}
}

// TestPurpose: Validates URL checks for registration and event payloads.
// Scope: Unit Test
// Expected: Absolute http(s) URLs pass; relative paths and other schemes fail.
// Test Case ID: VAL-02
func TestValidate_WebURL(t *testing.T) {
	assert.NoError(t, validateWebURL("https://blog.example.com"))
	assert.NoError(t, validateWebURL("http://localhost:3000/path"))
	assert.Error(t, validateWebURL("/relative/path"))
	assert.Error(t, validateWebURL("ftp://example.com"))
	assert.Error(t, validateWebURL("blog.example.com"))
}

// TestPurpose: Validates conversion of a well-formed ingest request into a core payload.
// Scope: Unit Test
// Expected: All fields carry over and the RFC 3339 timestamp is parsed.
// Test Case ID: VAL-03
func TestValidate_IngestRequest(t *testing.T) {
	req := &ingestEventRequest{
		EventType: "page_view",
		URL:       "https://blog.example.com/post/1",
		Referrer:  "https://news.ycombinator.com",
		Device:    "mobile",
		Metadata:  map[string]any{"ab_test": "b"},
		SessionID: "sess-1",
		UserID:    "user-1",
		Timestamp: "2026-03-14T15:09:26Z",
	}

	p, err := req.validate()
	assert.NoError(t, err)
	assert.Equal(t, "page_view", p.EventType)
	assert.Equal(t, "mobile", p.Device)
	assert.NotNil(t, p.OccurredAt)
	assert.Equal(t, time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC), p.OccurredAt.UTC())
}

// TestPurpose: Validates rejection of malformed ingest requests.
// Scope: Unit Test
// Expected: Bad device values, bad timestamps and bad URLs are all rejected; optional fields may be omitted.
// Test Case ID: VAL-04
func TestValidate_IngestRequest_Rejections(t *testing.T) {
	_, err := (&ingestEventRequest{EventType: "click", Device: "smartwatch"}).validate()
	assert.Error(t, err)

	_, err = (&ingestEventRequest{EventType: "click", Timestamp: "14/03/2026"}).validate()
	assert.Error(t, err)

	_, err = (&ingestEventRequest{EventType: "click", URL: "not a url"}).validate()
	assert.Error(t, err)

	// Minimal request: only the type is mandatory.
	p, err := (&ingestEventRequest{EventType: "click"}).validate()
	assert.NoError(t, err)
	assert.Nil(t, p.OccurredAt)
}

// TestPurpose: Validates date range parsing for the stats endpoints.
// Scope: Unit Test
// Expected: Dates parse as UTC calendar days, either bound may be omitted, and an inverted range is rejected.
// Test Case ID: VAL-05
func TestValidate_ParseDateRange(t *testing.T) {
	from, to, err := parseDateRange("2026-03-14", "2026-03-15")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), to)

	from, to, err = parseDateRange("", "")
	assert.NoError(t, err)
	assert.True(t, from.IsZero())
	assert.True(t, to.IsZero())

	_, _, err = parseDateRange("2026-03-15", "2026-03-14")
	assert.Error(t, err)

	_, _, err = parseDateRange("14-03-2026", "")
	assert.Error(t, err)
}
