package ingest

import (
	"encoding/json"
	"strings"

	"github.com/sierge-ai/activity-engine/internal/types"
)

// The upstream model is documented to emit "N/A" for unknown values; the
// pipeline stores empty instead.
func clean(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "N/A") {
		return ""
	}
	return s
}

// NormalizeActivity clamps a model-supplied record into the canonical shape:
// the category is coerced into the enumeration, sentinel "N/A" values become
// empty, and surrounding whitespace is dropped. Unknown JSON fields were
// already discarded by decoding into the canonical struct.
func NormalizeActivity(a types.Activity) types.Activity {
	a.Name = clean(a.Name)
	a.Category = types.ParseCategory(string(a.Category))
	a.Location = clean(a.Location)
	a.FullAddress = clean(a.FullAddress)
	a.Description = clean(a.Description)
	a.Website = clean(a.Website)
	a.StartTime = clean(a.StartTime)
	a.EndTime = clean(a.EndTime)
	a.HoursOfOperation = clean(a.HoursOfOperation)
	a.Cost = clean(a.Cost)
	a.BookingInfo = clean(a.BookingInfo)
	a.FamilyFriendliness = clean(a.FamilyFriendliness)
	a.AgeRestrictions = clean(a.AgeRestrictions)
	a.IndoorOutdoor = clean(a.IndoorOutdoor)
	a.RecommendedAttireOrEquipment = clean(a.RecommendedAttireOrEquipment)
	a.WeatherConsiderations = clean(a.WeatherConsiderations)
	a.DataSource = clean(a.DataSource)

	features := a.AccessibilityFeatures[:0]
	for _, f := range a.AccessibilityFeatures {
		if f = clean(f); f != "" {
			features = append(features, f)
		}
	}
	if len(features) == 0 {
		features = nil
	}
	a.AccessibilityFeatures = features
	return a
}

// Provider payload shapes. Each extraction projects what the provider is
// known to carry and drops everything else.

type organicResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

type eventResult struct {
	Title string `json:"title"`
	Date  struct {
		StartDate string `json:"start_date"`
		When      string `json:"when"`
	} `json:"date"`
	Address     []string `json:"address"`
	Description string   `json:"description"`
	Venue       struct {
		Name string `json:"name"`
	} `json:"venue"`
	Link       string `json:"link"`
	TicketInfo []struct {
		Link string `json:"link"`
	} `json:"ticket_info"`
}

type localResult struct {
	Title       string `json:"title"`
	Type        string `json:"type"`
	Address     string `json:"address"`
	Description string `json:"description"`
	Hours       string `json:"hours"`
	Website     string `json:"website"`
	Price       string `json:"price"`
}

type yelpResult struct {
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	Categories []struct {
		Title string `json:"title"`
	} `json:"categories"`
	Price         string `json:"price"`
	Neighborhoods string `json:"neighborhoods"`
	Link          string `json:"link"`
}

// NormalizeBatch projects one provider's raw result set onto partial
// Activities tagged with the source. Entries that fail to decode or carry no
// name are dropped, never an error: provider payloads are best-effort input.
// The web_page source (and any unrecognized source) is expected to carry
// records already in canonical shape, extracted upstream by the model.
func NormalizeBatch(batch types.RawProviderBatch) []types.Activity {
	out := make([]types.Activity, 0, len(batch.Results))
	for _, raw := range batch.Results {
		var a types.Activity
		var ok bool
		switch batch.Source {
		case types.SourceGoogleOrganic:
			a, ok = fromOrganic(raw)
		case types.SourceGoogleEvents:
			a, ok = fromEvent(raw)
		case types.SourceGoogleLocal:
			a, ok = fromLocal(raw)
		case types.SourceYelp:
			a, ok = fromYelp(raw)
		default:
			ok = json.Unmarshal(raw, &a) == nil
		}
		if !ok {
			continue
		}
		a.DataSource = batch.Source
		a = NormalizeActivity(a)
		if a.Name == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}

func fromOrganic(raw json.RawMessage) (types.Activity, bool) {
	var r organicResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return types.Activity{}, false
	}
	return types.Activity{
		Name:        r.Title,
		Description: r.Snippet,
		Website:     r.Link,
	}, true
}

func fromEvent(raw json.RawMessage) (types.Activity, bool) {
	var r eventResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return types.Activity{}, false
	}
	a := types.Activity{
		Name:        r.Title,
		Category:    types.CategoryCommunityEvents,
		Location:    strings.Join(r.Address, ", "),
		Description: r.Description,
		StartTime:   r.Date.StartDate,
		Website:     r.Link,
	}
	if a.StartTime == "" {
		a.StartTime = r.Date.When
	}
	if a.Location == "" && r.Venue.Name != "" {
		a.Location = r.Venue.Name
	}
	if len(r.TicketInfo) > 0 {
		a.BookingInfo = r.TicketInfo[0].Link
	}
	return a, true
}

func fromLocal(raw json.RawMessage) (types.Activity, bool) {
	var r localResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return types.Activity{}, false
	}
	return types.Activity{
		Name:             r.Title,
		Category:         types.ParseCategory(r.Type),
		Location:         r.Address,
		Description:      r.Description,
		HoursOfOperation: r.Hours,
		Website:          r.Website,
		Cost:             r.Price,
	}, true
}

func fromYelp(raw json.RawMessage) (types.Activity, bool) {
	var r yelpResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return types.Activity{}, false
	}
	a := types.Activity{
		Name:        r.Title,
		Location:    r.Neighborhoods,
		Description: r.Snippet,
		Website:     r.Link,
		Cost:        r.Price,
	}
	if len(r.Categories) > 0 {
		a.Category = types.ParseCategory(r.Categories[0].Title)
	}
	return a, true
}
