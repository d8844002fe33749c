package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Category is the fixed classification set for activities. Anything the
// upstream collectors emit outside this set is clamped to CategoryOther.
type Category string

const (
	CategoryLiveEntertainment Category = "Live Entertainment"
	CategoryMoviesFilm        Category = "Movies & Film"
	CategoryMuseumsExhibits   Category = "Museums & Exhibits"
	CategoryCommunityEvents   Category = "Community Events & Activities"
	CategorySportsRecreation  Category = "Sports & Recreation"
	CategoryHealthWellness    Category = "Health & Wellness"
	CategoryLearning          Category = "Learning & Skill-Building"
	CategoryShopping          Category = "Shopping"
	CategoryFoodDrink         Category = "Food & Drink Experiences"
	CategorySelfGuided        Category = "Self-Guided Activities & Destinations"
	CategoryOther             Category = "Other"
)

var allCategories = map[Category]struct{}{
	CategoryLiveEntertainment: {},
	CategoryMoviesFilm:        {},
	CategoryMuseumsExhibits:   {},
	CategoryCommunityEvents:   {},
	CategorySportsRecreation:  {},
	CategoryHealthWellness:    {},
	CategoryLearning:          {},
	CategoryShopping:          {},
	CategoryFoodDrink:         {},
	CategorySelfGuided:        {},
	CategoryOther:             {},
}

// ParseCategory clamps an arbitrary string to the category enumeration.
func ParseCategory(s string) Category {
	c := Category(strings.TrimSpace(s))
	if _, ok := allCategories[c]; ok {
		return c
	}
	return CategoryOther
}

// Coordinates is a WGS84 point. Nil on an Activity means the address was
// never resolved and the record is not eligible for geo-filtered queries.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Activity is the canonical normalized record for a recommendable place or
// event. Empty string means the field is unknown; the pipeline never invents
// sentinel values ("N/A" from the upstream model is normalized to empty).
type Activity struct {
	ID          uuid.UUID    `json:"id,omitempty"`
	Name        string       `json:"name"`
	Category    Category     `json:"category"`
	Location    string       `json:"location,omitempty"`
	FullAddress string       `json:"full_address,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`

	Description                  string   `json:"description,omitempty"`
	Website                      string   `json:"website,omitempty"`
	StartTime                    string   `json:"start_time,omitempty"`
	EndTime                      string   `json:"end_time,omitempty"`
	HoursOfOperation             string   `json:"hours_of_operation,omitempty"`
	Cost                         string   `json:"cost,omitempty"`
	BookingInfo                  string   `json:"booking_info,omitempty"`
	FamilyFriendliness           string   `json:"family_friendliness,omitempty"`
	AccessibilityFeatures        []string `json:"accessibility_features,omitempty"`
	AgeRestrictions              string   `json:"age_restrictions,omitempty"`
	IndoorOutdoor                string   `json:"indoor_outdoor,omitempty"`
	RecommendedAttireOrEquipment string   `json:"recommended_attire_or_equipment,omitempty"`
	WeatherConsiderations        string   `json:"weather_considerations,omitempty"`

	DataSource string `json:"data_source,omitempty"`
	CreatedAt  int64  `json:"created_at,omitempty"`
	UpdatedAt  int64  `json:"updated_at,omitempty"`

	// SimilarityScore is populated on similarity-search results only and is
	// never persisted.
	SimilarityScore float64 `json:"similarity_score,omitempty"`
}

// IdentityKey returns the deterministic identity of the record: a name-based
// UUID over the lowercased name and full address. Records without a resolved
// address have no deterministic identity and always insert as new.
func (a *Activity) IdentityKey() (uuid.UUID, bool) {
	if a.Name == "" || a.FullAddress == "" {
		return uuid.Nil, false
	}
	seed := strings.ToLower(a.Name + a.FullAddress)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)), true
}

// EmbeddingText is the full textual representation of the record used for
// semantic indexing.
func (a *Activity) EmbeddingText() string {
	var b strings.Builder
	write := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}
	write("name", a.Name)
	write("category", string(a.Category))
	write("description", a.Description)
	write("location", a.Location)
	write("full_address", a.FullAddress)
	write("cost", a.Cost)
	write("hours_of_operation", a.HoursOfOperation)
	write("start_time", a.StartTime)
	write("end_time", a.EndTime)
	write("family_friendliness", a.FamilyFriendliness)
	write("indoor_outdoor", a.IndoorOutdoor)
	write("age_restrictions", a.AgeRestrictions)
	write("weather_considerations", a.WeatherConsiderations)
	if len(a.AccessibilityFeatures) > 0 {
		write("accessibility_features", strings.Join(a.AccessibilityFeatures, ", "))
	}
	return b.String()
}

// MergeFrom backfills every empty field of the receiver from an existing
// stored record. Present incoming values always win; identity and creation
// provenance are sticky and handled by the caller.
func (a *Activity) MergeFrom(existing *Activity) {
	if existing == nil {
		return
	}
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&a.Location, existing.Location)
	fill(&a.FullAddress, existing.FullAddress)
	fill(&a.Description, existing.Description)
	fill(&a.Website, existing.Website)
	fill(&a.StartTime, existing.StartTime)
	fill(&a.EndTime, existing.EndTime)
	fill(&a.HoursOfOperation, existing.HoursOfOperation)
	fill(&a.Cost, existing.Cost)
	fill(&a.BookingInfo, existing.BookingInfo)
	fill(&a.FamilyFriendliness, existing.FamilyFriendliness)
	fill(&a.AgeRestrictions, existing.AgeRestrictions)
	fill(&a.IndoorOutdoor, existing.IndoorOutdoor)
	fill(&a.RecommendedAttireOrEquipment, existing.RecommendedAttireOrEquipment)
	fill(&a.WeatherConsiderations, existing.WeatherConsiderations)
	fill(&a.DataSource, existing.DataSource)
	if a.Coordinates == nil {
		a.Coordinates = existing.Coordinates
	}
	if len(a.AccessibilityFeatures) == 0 {
		a.AccessibilityFeatures = existing.AccessibilityFeatures
	}
	if a.Category == "" || a.Category == CategoryOther {
		if existing.Category != "" {
			a.Category = existing.Category
		}
	}
}

// GeoFilter restricts a similarity search to records within RadiusMeters of
// the point. AND semantics: candidates outside the radius never rank.
type GeoFilter struct {
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	RadiusMeters float64 `json:"radius"`
}

// SaveResult reports the outcome of a save operation to the calling
// collaborator.
type SaveResult struct {
	Status          string   `json:"status"`
	DataSource      string   `json:"data_source,omitempty"`
	RecordsAffected int      `json:"records_affected"`
	AffectedIDs     []string `json:"affected_ids,omitempty"`
}

// StoreMetrics is the operational stats blob for a collection.
type StoreMetrics struct {
	Collection      string `json:"collection"`
	RecordCount     int64  `json:"record_count"`
	WithCoordinates int64  `json:"with_coordinates"`
	WithEmbedding   int64  `json:"with_embedding"`
}
