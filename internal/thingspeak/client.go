package thingspeak

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/rs/zerolog"

	"github.com/jgoulah/submeter/pkg/models"
)

const (
	// DefaultBaseURL is the public ThingSpeak API
	DefaultBaseURL = "https://api.thingspeak.com"
	// DefaultMaxResults is the largest page the feeds endpoint returns
	DefaultMaxResults = 8000

	queryTimeLayout = "2006-01-02 15:04:05"
)

// Options configures a Client
type Options struct {
	BaseURL    string
	ChannelID  string
	ReadAPIKey string
	Field      int // 1-8, defaults to 1
	MaxResults int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client reads samples from a single ThingSpeak channel field
type Client struct {
	baseURL    string
	channelID  string
	apiKey     string
	field      int
	maxResults int
	http       *http.Client
	log        zerolog.Logger
}

// New creates a new channel client
func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	field := opts.Field
	if field < 1 || field > 8 {
		field = 1
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    baseURL,
		channelID:  opts.ChannelID,
		apiKey:     opts.ReadAPIKey,
		field:      field,
		maxResults: maxResults,
		http:       httpClient,
		log:        opts.Logger,
	}
}

// feed is one entry as returned by the feeds endpoints
type feed struct {
	CreatedAt time.Time `json:"created_at"`
	EntryID   int64     `json:"entry_id"`
	Field1    *string   `json:"field1"`
	Field2    *string   `json:"field2"`
	Field3    *string   `json:"field3"`
	Field4    *string   `json:"field4"`
	Field5    *string   `json:"field5"`
	Field6    *string   `json:"field6"`
	Field7    *string   `json:"field7"`
	Field8    *string   `json:"field8"`
}

type feedsResponse struct {
	Feeds []feed `json:"feeds"`
}

func (f feed) raw(field int) *string {
	switch field {
	case 2:
		return f.Field2
	case 3:
		return f.Field3
	case 4:
		return f.Field4
	case 5:
		return f.Field5
	case 6:
		return f.Field6
	case 7:
		return f.Field7
	case 8:
		return f.Field8
	default:
		return f.Field1
	}
}

// sample converts a feed entry, leaving Value as NaN if the field is empty or non-numeric
func (f feed) sample(field int) models.Sample {
	return models.Sample{
		EntryID:   f.EntryID,
		Timestamp: f.CreatedAt.UTC(),
		Value:     parseValue(f.raw(field)),
	}
}

func parseValue(raw *string) float64 {
	if raw == nil {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(*raw), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// isFinite reports whether v is neither NaN nor infinite
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FetchLatest retrieves the most recent sample of the channel
func (c *Client) FetchLatest(ctx context.Context) (models.Sample, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)

	var f feed
	if err := c.get(ctx, "latest", "feeds/last.json", params, &f); err != nil {
		return models.Sample{}, err
	}

	s := f.sample(c.field)
	if !isFinite(s.Value) {
		return models.Sample{}, &FetchError{Op: "latest", Err: ErrNonNumeric}
	}
	return s, nil
}

// FetchWindow retrieves every sample the server holds in [center-radius, center+radius].
// An empty window is not an error.
func (c *Client) FetchWindow(ctx context.Context, center time.Time, radius time.Duration) ([]models.Sample, error) {
	start := center.Add(-radius).UTC()
	end := center.Add(radius).UTC()

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("start", start.Format(queryTimeLayout))
	params.Set("end", end.Format(queryTimeLayout))
	params.Set("timezone", "Etc/UTC")
	params.Set("results", strconv.Itoa(c.maxResults))

	var resp feedsResponse
	if err := c.get(ctx, "window", "feeds.json", params, &resp); err != nil {
		return nil, err
	}

	samples := make([]models.Sample, 0, len(resp.Feeds))
	for _, f := range resp.Feeds {
		samples = append(samples, f.sample(c.field))
	}

	c.log.Debug().
		Time("center", center).
		Dur("radius", radius).
		Int("samples", len(samples)).
		Msg("fetched window")
	return samples, nil
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values, out any) error {
	reqURL := fmt.Sprintf("%s/channels/%s/%s?%s", c.baseURL, url.PathEscape(c.channelID), path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &FetchError{Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	c.log.Debug().Str("op", op).Str("path", path).Msg("thingspeak request")

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error carries the full request URL, read key included
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return &FetchError{Op: op, Err: fmt.Errorf("request error: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &FetchError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}

	if err := json.UnmarshalRead(resp.Body, out); err != nil {
		return &FetchError{Op: op, Err: fmt.Errorf("parsing response: %w", err)}
	}
	return nil
}
