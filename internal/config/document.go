package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/vburojevic/tracesink/internal/domain"
)

// ParseDocument converts a declarative JSON configuration document into a
// snapshot. The document is a list of destination descriptors plus one
// document-level trace override:
//
//	{
//	  "traceOverride": "forceEnabled",
//	  "destinations": [
//	    {
//	      "name": "app", "type": "text",
//	      "directory": "/var/log/app", "filenameTemplate": "{0}_{1}.log",
//	      "rotationIntervalSeconds": 3600, "timestampLocal": false,
//	      "maximumAgeSeconds": 86400, "maximumSizeBytes": 104857600,
//	      "sources": [{"name": "app.core", "minimumSeverity": "info", "keywordsHex": "ff"}],
//	      "filters": ["^ERROR"]
//	    }
//	  ]
//	}
//
// Descriptors are translated one-for-one; semantic validation is left to
// Validate so apply-time defect reporting stays per-descriptor.
func ParseDocument(data []byte) (Global, error) {
	if !gjson.ValidBytes(data) {
		return Global{}, fmt.Errorf("%w: malformed configuration document", domain.ErrInvalidConfiguration)
	}
	doc := gjson.ParseBytes(data)
	g := NewGlobal()

	switch doc.Get("traceOverride").String() {
	case "", "unset":
		g.TraceOverride = OverrideUnset
	case "forceEnabled":
		g.TraceOverride = OverrideForceEnabled
	case "forceDisabled":
		g.TraceOverride = OverrideForceDisabled
	default:
		return Global{}, fmt.Errorf("%w: unknown trace override %q",
			domain.ErrInvalidConfiguration, doc.Get("traceOverride").String())
	}

	var parseErr error
	doc.Get("destinations").ForEach(func(_, desc gjson.Result) bool {
		d, err := parseDescriptor(desc)
		if err != nil {
			parseErr = err
			return false
		}
		g.Add(d)
		return true
	})
	if parseErr != nil {
		return Global{}, parseErr
	}
	return g, nil
}

func parseDescriptor(desc gjson.Result) (*Destination, error) {
	d := &Destination{
		Name:             desc.Get("name").String(),
		Type:             DestinationType(desc.Get("type").String()),
		BufferSizeMB:     int(desc.Get("bufferSizeMB").Int()),
		Directory:        desc.Get("directory").String(),
		FilenameTemplate: desc.Get("filenameTemplate").String(),
		RotationInterval: time.Duration(desc.Get("rotationIntervalSeconds").Int()) * time.Second,
		TimestampLocal:   desc.Get("timestampLocal").Bool(),
		Hostname:         desc.Get("hostname").String(),
		Port:             int(desc.Get("port").Int()),
		MaximumAge:       time.Duration(desc.Get("maximumAgeSeconds").Int()) * time.Second,
		MaximumSizeBytes: desc.Get("maximumSizeBytes").Int(),
	}

	var subErr error
	desc.Get("sources").ForEach(func(_, src gjson.Result) bool {
		sub := Subscription{
			Name:         src.Get("name").String(),
			MinimumLevel: domain.ParseSeverity(src.Get("minimumSeverity").String()),
		}
		if raw := src.Get("providerID").String(); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				subErr = fmt.Errorf("%w: destination %q: bad provider id %q",
					domain.ErrInvalidConfiguration, d.Name, raw)
				return false
			}
			sub.ProviderID = id
		}
		if raw := src.Get("keywordsHex").String(); raw != "" {
			mask, err := strconv.ParseUint(raw, 16, 64)
			if err != nil {
				subErr = fmt.Errorf("%w: destination %q: bad keyword mask %q",
					domain.ErrInvalidConfiguration, d.Name, raw)
				return false
			}
			sub.Keywords = mask
		}
		// AddSubscription dedupes by key within one descriptor too.
		_ = d.AddSubscription(sub)
		return true
	})
	if subErr != nil {
		return nil, subErr
	}

	desc.Get("filters").ForEach(func(_, pattern gjson.Result) bool {
		_ = d.AddFilter(pattern.String())
		return true
	})

	return d, nil
}
