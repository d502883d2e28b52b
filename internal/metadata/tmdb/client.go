package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"aninamer/internal/services"
)

// SearchResult is a single TV search match.
type SearchResult struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	Overview     string `json:"overview"`
	FirstAirDate string `json:"first_air_date"`
}

// Year extracts the first-air year, or 0 when unknown.
func (r SearchResult) Year() int {
	return parseYear(r.FirstAirDate)
}

type searchResponse struct {
	Page    int            `json:"page"`
	Results []SearchResult `json:"results"`
}

// SeasonSummary is a season entry from the TV details payload.
type SeasonSummary struct {
	SeasonNumber int `json:"season_number"`
	EpisodeCount int `json:"episode_count"`
}

// Details is the TV details payload, seasons sorted by number.
type Details struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	OriginalName string          `json:"original_name"`
	FirstAirDate string          `json:"first_air_date"`
	Seasons      []SeasonSummary `json:"seasons"`
}

// Year extracts the first-air year, or 0 when unknown.
func (d *Details) Year() int {
	return parseYear(d.FirstAirDate)
}

// EpisodeCounts maps season number to episode count for every season TMDB
// lists, the specials season included.
func (d *Details) EpisodeCounts() map[int]int {
	counts := make(map[int]int, len(d.Seasons))
	for _, s := range d.Seasons {
		counts[s.SeasonNumber] = s.EpisodeCount
	}
	return counts
}

// Episode is a single episode from a season payload.
type Episode struct {
	EpisodeNumber int    `json:"episode_number"`
	Name          string `json:"name"`
	AirDate       string `json:"air_date"`
}

// SeasonDetails is the full season payload, episodes included.
type SeasonDetails struct {
	SeasonNumber int       `json:"season_number"`
	Name         string    `json:"name"`
	Episodes     []Episode `json:"episodes"`
}

// Translation is one entry from the translations endpoint.
type Translation struct {
	CountryCode  string `json:"iso_3166_1"`
	LanguageCode string `json:"iso_639_1"`
	Name         string
}

// chineseCountryFallback orders country codes for Chinese title resolution:
// simplified first, then traditional.
var chineseCountryFallback = []string{"CN", "SG", "HK", "TW"}

// Provider is the metadata surface the planning pipeline consumes.
type Provider interface {
	SearchTV(ctx context.Context, query string, year int) ([]SearchResult, error)
	GetTVDetails(ctx context.Context, id int64) (*Details, error)
	GetSeasonDetails(ctx context.Context, id int64, season int, language string) (*SeasonDetails, error)
	ResolveSeriesTitle(ctx context.Context, id int64) (string, *Details, error)
}

// Client calls the TMDB HTTP API.
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *http.Client
}

var _ Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a TMDB client. Language is used on every request that accepts
// one; the zh-CN default lives in configuration.
func New(apiKey, baseURL, language string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "tmdb", "new", "api key required", nil)
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "tmdb", "new", "base url required", nil)
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   strings.TrimSpace(language),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// SearchTV searches TV series by title. Year narrows the search when
// positive.
func (c *Client) SearchTV(ctx context.Context, query string, year int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, services.Wrap(services.ErrValidation, "tmdb", "search", "query must not be empty", nil)
	}
	params := url.Values{}
	params.Set("query", query)
	if year > 0 {
		params.Set("first_air_date_year", strconv.Itoa(year))
	}
	var payload searchResponse
	if err := c.getJSON(ctx, "/search/tv", params, &payload); err != nil {
		return nil, err
	}
	return payload.Results, nil
}

// GetTVDetails fetches TV show details, seasons sorted by season number.
func (c *Client) GetTVDetails(ctx context.Context, id int64) (*Details, error) {
	if id <= 0 {
		return nil, services.Wrap(services.ErrValidation, "tmdb", "details", "show id must be positive", nil)
	}
	var payload Details
	if err := c.getJSON(ctx, fmt.Sprintf("/tv/%d", id), url.Values{}, &payload); err != nil {
		return nil, err
	}
	sort.Slice(payload.Seasons, func(i, j int) bool {
		return payload.Seasons[i].SeasonNumber < payload.Seasons[j].SeasonNumber
	})
	return &payload, nil
}

// GetSeasonDetails fetches one season with its episode list. Season 0 is the
// specials season and is valid. An explicit language overrides the client
// default, which lets the caller fetch specials names in several languages.
func (c *Client) GetSeasonDetails(ctx context.Context, id int64, season int, language string) (*SeasonDetails, error) {
	if id <= 0 {
		return nil, services.Wrap(services.ErrValidation, "tmdb", "season", "show id must be positive", nil)
	}
	if season < 0 {
		return nil, services.Wrap(services.ErrValidation, "tmdb", "season", "season must not be negative", nil)
	}
	params := url.Values{}
	if language = strings.TrimSpace(language); language != "" {
		params.Set("language", language)
	}
	var payload SeasonDetails
	if err := c.getJSON(ctx, fmt.Sprintf("/tv/%d/season/%d", id, season), params, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// GetTranslations fetches all translated names for a TV show.
func (c *Client) GetTranslations(ctx context.Context, id int64) ([]Translation, error) {
	if id <= 0 {
		return nil, services.Wrap(services.ErrValidation, "tmdb", "translations", "show id must be positive", nil)
	}
	var payload struct {
		Translations []struct {
			CountryCode  string `json:"iso_3166_1"`
			LanguageCode string `json:"iso_639_1"`
			Data         struct {
				Name string `json:"name"`
			} `json:"data"`
		} `json:"translations"`
	}
	if err := c.getJSONRaw(ctx, fmt.Sprintf("/tv/%d/translations", id), url.Values{}, &payload); err != nil {
		return nil, err
	}
	out := make([]Translation, 0, len(payload.Translations))
	for _, t := range payload.Translations {
		out = append(out, Translation{
			CountryCode:  t.CountryCode,
			LanguageCode: t.LanguageCode,
			Name:         strings.TrimSpace(t.Data.Name),
		})
	}
	return out, nil
}

// ResolveSeriesTitle picks the best Chinese title via the translations
// endpoint, trying CN, SG, HK, TW in order, then falling back to the
// original name and finally the localized name.
func (c *Client) ResolveSeriesTitle(ctx context.Context, id int64) (string, *Details, error) {
	details, err := c.GetTVDetails(ctx, id)
	if err != nil {
		return "", nil, err
	}
	translations, err := c.GetTranslations(ctx, id)
	if err != nil {
		return "", nil, err
	}

	byCountry := make(map[string]string, len(translations))
	for _, t := range translations {
		if t.Name != "" {
			if _, seen := byCountry[t.CountryCode]; !seen {
				byCountry[t.CountryCode] = t.Name
			}
		}
	}
	for _, country := range chineseCountryFallback {
		if title, ok := byCountry[country]; ok {
			return title, details, nil
		}
	}
	if original := strings.TrimSpace(details.OriginalName); original != "" {
		return original, details, nil
	}
	if name := strings.TrimSpace(details.Name); name != "" {
		return name, details, nil
	}
	return "Unknown", details, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if c.language != "" && params.Get("language") == "" {
		params.Set("language", c.language)
	}
	return c.getJSONRaw(ctx, path, params, out)
}

func (c *Client) getJSONRaw(ctx context.Context, path string, params url.Values, out any) error {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "tmdb", "request", "parse url", err)
	}
	params.Set("api_key", c.apiKey)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "tmdb", "request", "build request", err)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return services.Wrap(services.ErrTransient, "tmdb", "request",
			fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		marker := services.ErrExternalTool
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			marker = services.ErrTransient
		}
		return services.Wrap(marker, "tmdb", "request",
			fmt.Sprintf("%s returned %d (latency=%v)", path, resp.StatusCode, latency), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrExternalTool, "tmdb", "request", "decode response", err)
	}
	return nil
}

var tmdbTagPattern = regexp.MustCompile(`\{tmdb-(\d+)\}`)

// ExtractID pulls a TMDB id out of a "{tmdb-123}" tag embedded in a
// directory name, returning 0 when no tag is present.
func ExtractID(name string) int64 {
	m := tmdbTagPattern.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func parseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}
