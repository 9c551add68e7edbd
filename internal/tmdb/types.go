package tmdb

import "time"

// Payload types for detail responses. Decoding is tolerant by construction:
// any field absent from the JSON lands on its zero value, so downstream code
// never sees a missing-key failure.

// Genre is a shared reference entity keyed by the API's own ID.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Company is a production company reference.
type Company struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	LogoPath      string `json:"logo_path"`
	OriginCountry string `json:"origin_country"`
}

// Country is a production country reference, keyed by ISO 3166-1 code.
type Country struct {
	ISO31661 string `json:"iso_3166_1"`
	Name     string `json:"name"`
}

// Language is a spoken language reference, keyed by ISO 639-1 code.
type Language struct {
	ISO6391     string `json:"iso_639_1"`
	EnglishName string `json:"english_name"`
	Name        string `json:"name"`
}

// Keyword is a shared keyword reference.
type Keyword struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Network is a TV network reference.
type Network struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	LogoPath      string `json:"logo_path"`
	OriginCountry string `json:"origin_country"`
}

// PersonRef carries the person fields embedded in credit entries. Every
// sighting refreshes the person row (last-write-wins).
type PersonRef struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	OriginalName       string  `json:"original_name"`
	Gender             int     `json:"gender"`
	Adult              bool    `json:"adult"`
	KnownForDepartment string  `json:"known_for_department"`
	Popularity         float64 `json:"popularity"`
	ProfilePath        string  `json:"profile_path"`
}

// CastMember is one cast credit.
type CastMember struct {
	PersonRef
	Character string `json:"character"`
	CreditID  string `json:"credit_id"`
	Order     int    `json:"order"`
}

// CrewMember is one crew credit.
type CrewMember struct {
	PersonRef
	Department string `json:"department"`
	Job        string `json:"job"`
	CreditID   string `json:"credit_id"`
}

// Credits holds the appended credits sub-resource.
type Credits struct {
	Cast []CastMember `json:"cast"`
	Crew []CrewMember `json:"crew"`
}

// Creator is one entry of a series' created_by list.
type Creator struct {
	PersonRef
	CreditID string `json:"credit_id"`
}

// ExternalIDs holds cross-site identifiers for one content item.
type ExternalIDs struct {
	IMDbID      string `json:"imdb_id"`
	TVDBID      int64  `json:"tvdb_id"`
	TVRageID    int64  `json:"tvrage_id"`
	WikidataID  string `json:"wikidata_id"`
	FacebookID  string `json:"facebook_id"`
	InstagramID string `json:"instagram_id"`
	TwitterID   string `json:"twitter_id"`
	FreebaseMID string `json:"freebase_mid"`
	FreebaseID  string `json:"freebase_id"`
}

// Empty reports whether no identifier was present in the payload.
func (e ExternalIDs) Empty() bool {
	return e == ExternalIDs{}
}

// KeywordList accommodates both payload shapes: movies nest keywords under
// "keywords", series under "results".
type KeywordList struct {
	Keywords []Keyword `json:"keywords"`
	Results  []Keyword `json:"results"`
}

// All returns the populated list regardless of shape.
func (k KeywordList) All() []Keyword {
	if len(k.Keywords) > 0 {
		return k.Keywords
	}
	return k.Results
}

// Provider is a watch provider reference.
type Provider struct {
	ProviderID      int64  `json:"provider_id"`
	ProviderName    string `json:"provider_name"`
	LogoPath        string `json:"logo_path"`
	DisplayPriority int    `json:"display_priority"`
}

// ProviderOffers groups a country's providers by offer type.
type ProviderOffers struct {
	Flatrate []Provider `json:"flatrate"`
	Buy      []Provider `json:"buy"`
	Rent     []Provider `json:"rent"`
	Ads      []Provider `json:"ads"`
	Free     []Provider `json:"free"`
}

// ByType returns the offer lists in the canonical persistence order.
func (o ProviderOffers) ByType() []struct {
	Type      string
	Providers []Provider
} {
	return []struct {
		Type      string
		Providers []Provider
	}{
		{"flatrate", o.Flatrate},
		{"buy", o.Buy},
		{"rent", o.Rent},
		{"ads", o.Ads},
		{"free", o.Free},
	}
}

// WatchProviders holds the appended watch/providers sub-resource, keyed by
// country code.
type WatchProviders struct {
	Results map[string]ProviderOffers `json:"results"`
}

// TranslationData holds the localized fields of one translation.
type TranslationData struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Overview string `json:"overview"`
	Homepage string `json:"homepage"`
	Tagline  string `json:"tagline"`
}

// Translation is one locale's translation entry.
type Translation struct {
	ISO6391  string          `json:"iso_639_1"`
	ISO31661 string          `json:"iso_3166_1"`
	Data     TranslationData `json:"data"`
}

// TranslationList holds the appended translations sub-resource.
type TranslationList struct {
	Translations []Translation `json:"translations"`
}

// SimilarEntry is one entry of the similar-items list.
type SimilarEntry struct {
	ID int64 `json:"id"`
}

// SimilarList holds the appended similar sub-resource.
type SimilarList struct {
	Results []SimilarEntry `json:"results"`
}

// Season is one season summary of a series.
type Season struct {
	ID           int64   `json:"id"`
	SeasonNumber int     `json:"season_number"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	AirDate      string  `json:"air_date"`
	EpisodeCount int     `json:"episode_count"`
	PosterPath   string  `json:"poster_path"`
	VoteAverage  float64 `json:"vote_average"`
}

// Episode describes a series' last or next episode to air.
type Episode struct {
	ID             int64   `json:"id"`
	SeasonNumber   int     `json:"season_number"`
	EpisodeNumber  int     `json:"episode_number"`
	Name           string  `json:"name"`
	Overview       string  `json:"overview"`
	AirDate        string  `json:"air_date"`
	Runtime        int     `json:"runtime"`
	VoteAverage    float64 `json:"vote_average"`
	VoteCount      int     `json:"vote_count"`
	ProductionCode string  `json:"production_code"`
	StillPath      string  `json:"still_path"`
}

// Movie is the decoded movie detail payload with appended sub-resources.
type Movie struct {
	ID                  int64           `json:"id"`
	IMDbID              string          `json:"imdb_id"`
	Title               string          `json:"title"`
	OriginalTitle       string          `json:"original_title"`
	OriginalLanguage    string          `json:"original_language"`
	Overview            string          `json:"overview"`
	Tagline             string          `json:"tagline"`
	Status              string          `json:"status"`
	Adult               bool            `json:"adult"`
	Video               bool            `json:"video"`
	Homepage            string          `json:"homepage"`
	Budget              int64           `json:"budget"`
	Revenue             int64           `json:"revenue"`
	Runtime             int             `json:"runtime"`
	ReleaseDate         string          `json:"release_date"`
	Popularity          float64         `json:"popularity"`
	VoteAverage         float64         `json:"vote_average"`
	VoteCount           int             `json:"vote_count"`
	PosterPath          string          `json:"poster_path"`
	BackdropPath        string          `json:"backdrop_path"`
	Genres              []Genre         `json:"genres"`
	ProductionCompanies []Company       `json:"production_companies"`
	ProductionCountries []Country       `json:"production_countries"`
	SpokenLanguages     []Language      `json:"spoken_languages"`
	Credits             Credits         `json:"credits"`
	ExternalIDs         ExternalIDs     `json:"external_ids"`
	Keywords            KeywordList     `json:"keywords"`
	WatchProviders      WatchProviders  `json:"watch/providers"`
	Translations        TranslationList `json:"translations"`
	Similar             SimilarList     `json:"similar"`
}

// TVSeries is the decoded series detail payload with appended sub-resources.
type TVSeries struct {
	ID                  int64           `json:"id"`
	Name                string          `json:"name"`
	OriginalName        string          `json:"original_name"`
	OriginalLanguage    string          `json:"original_language"`
	Overview            string          `json:"overview"`
	Tagline             string          `json:"tagline"`
	Status              string          `json:"status"`
	Type                string          `json:"type"`
	Adult               bool            `json:"adult"`
	Homepage            string          `json:"homepage"`
	InProduction        bool            `json:"in_production"`
	FirstAirDate        string          `json:"first_air_date"`
	LastAirDate         string          `json:"last_air_date"`
	NumberOfEpisodes    int             `json:"number_of_episodes"`
	NumberOfSeasons     int             `json:"number_of_seasons"`
	Popularity          float64         `json:"popularity"`
	VoteAverage         float64         `json:"vote_average"`
	VoteCount           int             `json:"vote_count"`
	PosterPath          string          `json:"poster_path"`
	BackdropPath        string          `json:"backdrop_path"`
	Genres              []Genre         `json:"genres"`
	ProductionCompanies []Company       `json:"production_companies"`
	ProductionCountries []Country       `json:"production_countries"`
	SpokenLanguages     []Language      `json:"spoken_languages"`
	Networks            []Network       `json:"networks"`
	CreatedBy           []Creator       `json:"created_by"`
	Seasons             []Season        `json:"seasons"`
	LastEpisodeToAir    *Episode        `json:"last_episode_to_air"`
	NextEpisodeToAir    *Episode        `json:"next_episode_to_air"`
	Credits             Credits         `json:"credits"`
	ExternalIDs         ExternalIDs     `json:"external_ids"`
	Keywords            KeywordList     `json:"keywords"`
	WatchProviders      WatchProviders  `json:"watch/providers"`
	Translations        TranslationList `json:"translations"`
	Similar             SimilarList     `json:"similar"`
}

// ParseDate converts an API date string (YYYY-MM-DD) into a *time.Time,
// returning nil for absent or malformed values.
func ParseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
