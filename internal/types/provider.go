package types

import (
	"encoding/json"
	"strings"
)

// Provider source identifiers as reported by the collection tools. These are
// carried into Activity.DataSource for provenance.
const (
	SourceGoogleOrganic = "google_organic_search"
	SourceGoogleEvents  = "google_events_search"
	SourceGoogleLocal   = "google_local_search"
	SourceYelp          = "yelp_search"
	SourceWebPage       = "web_page"
	SourceModel         = "Model"
)

// RawProviderBatch is one provider's untyped result set. The payload schema
// differs per source; extraction lives in the ingest package.
type RawProviderBatch struct {
	Source  string            `json:"source"`
	Results []json.RawMessage `json:"results"`
}

// PipelineContext carries the per-session configuration the original passed
// around ambiently: the base location that names the store collection, the
// geographic bias point for place search and the result limits.
type PipelineContext struct {
	BaseLocation    string  `json:"base_location"`
	BiasLat         float64 `json:"bias_lat"`
	BiasLon         float64 `json:"bias_lon"`
	SearchRadiusM   float64 `json:"search_radius_m"`
	NumberOfResults int     `json:"number_of_results"`
}

// Collection derives the store collection name from the base location:
// lowercased, with runs of non-alphanumerics collapsed to underscores, so
// "Dallas, TX" and "dallas tx" land in the same collection.
func (p PipelineContext) Collection() string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(p.BaseLocation)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	return b.String()
}
