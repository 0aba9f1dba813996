package config

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vburojevic/tracesink/internal/domain"
)

const sampleDocument = `{
  "traceOverride": "forceEnabled",
  "destinations": [
    {
      "name": "app",
      "type": "text",
      "directory": "/var/log/app",
      "filenameTemplate": "{0}_{1}.log",
      "rotationIntervalSeconds": 3600,
      "timestampLocal": true,
      "maximumAgeSeconds": 86400,
      "maximumSizeBytes": 104857600,
      "sources": [
        {"name": "app.core", "minimumSeverity": "verbose", "keywordsHex": "ff"},
        {"providerID": "6ba7b810-9dad-11d1-80b4-00c04fd430c8", "minimumSeverity": "error"}
      ],
      "filters": ["^ERR", "timeout"]
    },
    {
      "name": "buffer",
      "type": "memory",
      "bufferSizeMB": 4,
      "sources": [{"name": "app.core", "minimumSeverity": "info"}]
    }
  ]
}`

func TestParseDocument(t *testing.T) {
	g, err := ParseDocument([]byte(sampleDocument))
	require.NoError(t, err)

	assert.Equal(t, OverrideForceEnabled, g.TraceOverride)
	require.Len(t, g.Destinations, 2)

	app := g.Destinations["app"]
	require.NotNil(t, app)
	assert.Equal(t, TypeText, app.Type)
	assert.Equal(t, "/var/log/app", app.Directory)
	assert.Equal(t, "{0}_{1}.log", app.FilenameTemplate)
	assert.Equal(t, int64(104857600), app.MaximumSizeBytes)
	assert.True(t, app.TimestampLocal)

	require.Len(t, app.Subscriptions, 2)
	assert.Equal(t, domain.SeverityVerbose, app.Subscriptions[0].MinimumLevel)
	assert.Equal(t, uint64(0xff), app.Subscriptions[0].Keywords)
	assert.Equal(t, uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"), app.Subscriptions[1].ProviderID)

	assert.Equal(t, []string{"^ERR", "timeout"}, app.Filters)

	buffer := g.Destinations["buffer"]
	require.NotNil(t, buffer)
	assert.Equal(t, TypeMemoryBuffer, buffer.Type)
	assert.Equal(t, 4, buffer.BufferSizeMB)

	// Parsed descriptors pass validation as-is.
	require.NoError(t, Validate(app))
	require.NoError(t, Validate(buffer))
}

func TestParseDocumentRejectsMalformedJSON(t *testing.T) {
	_, err := ParseDocument([]byte(`{"destinations": [`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}

func TestParseDocumentRejectsBadProviderID(t *testing.T) {
	doc := `{"destinations": [{"name": "x", "type": "memory",
		"sources": [{"providerID": "not-a-uuid"}]}]}`
	_, err := ParseDocument([]byte(doc))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}

func TestParseDocumentRejectsBadKeywordMask(t *testing.T) {
	doc := `{"destinations": [{"name": "x", "type": "memory",
		"sources": [{"name": "app", "keywordsHex": "zz"}]}]}`
	_, err := ParseDocument([]byte(doc))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}

func TestParseDocumentRejectsUnknownOverride(t *testing.T) {
	_, err := ParseDocument([]byte(`{"traceOverride": "sometimes"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}
