// Package geo provides an HTTP client for the ip-api.com style geolocation
// service and normalizes its answers into intelligence records.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hervehildenbrand/threatsage/pkg/models"
)

const (
	// DefaultBaseURL is the public ip-api.com endpoint.
	DefaultBaseURL = "http://ip-api.com"

	// DefaultTimeout bounds a single lookup.
	DefaultTimeout = 5 * time.Second

	userAgent       = "threatsage/1.0 (+https://github.com/hervehildenbrand/threatsage)"
	maxResponseSize = 1 << 20
)

// ErrLookupFailed wraps every transport-level lookup failure.
var ErrLookupFailed = errors.New("geolocation lookup failed")

// ServiceError is returned when the service answers but reports a failure status.
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return "IP lookup failed: " + e.Message
}

// Lookuper resolves an IP to a geolocation record.
type Lookuper interface {
	Lookup(ctx context.Context, ip string) (models.IntelligenceRecord, error)
}

// Client queries the geolocation service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL. Empty values select the defaults.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// apiResponse is the JSON body returned by GET /json/{ip}.
type apiResponse struct {
	Status     string   `json:"status"`
	Message    string   `json:"message"`
	Query      *string  `json:"query"`
	Country    *string  `json:"country"`
	RegionName *string  `json:"regionName"`
	City       *string  `json:"city"`
	ISP        *string  `json:"isp"`
	Org        *string  `json:"org"`
	AS         *string  `json:"as"`
	Proxy      bool     `json:"proxy"`
	Hosting    bool     `json:"hosting"`
	Mobile     bool     `json:"mobile"`
	Timezone   *string  `json:"timezone"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
}

// Lookup performs one GET against the service. Transport failures, timeouts
// and non-2xx answers return an error wrapping ErrLookupFailed; a
// non-"success" status returns a *ServiceError.
func (c *Client) Lookup(ctx context.Context, ip string) (models.IntelligenceRecord, error) {
	url := c.baseURL + "/json/" + ip
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.IntelligenceRecord{}, fmt.Errorf("%w: build request: %w", ErrLookupFailed, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.IntelligenceRecord{}, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.IntelligenceRecord{}, fmt.Errorf("%w: unexpected status %d", ErrLookupFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return models.IntelligenceRecord{}, fmt.Errorf("%w: read body: %w", ErrLookupFailed, err)
	}

	var data apiResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return models.IntelligenceRecord{}, fmt.Errorf("%w: decode body: %w", ErrLookupFailed, err)
	}

	if data.Status != "success" {
		msg := data.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return models.IntelligenceRecord{}, &ServiceError{Message: msg}
	}

	return toRecord(data), nil
}

func toRecord(data apiResponse) models.IntelligenceRecord {
	coordinates := models.NotAvailable
	if data.Lat != nil && data.Lon != nil {
		coordinates = strconv.FormatFloat(*data.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(*data.Lon, 'f', -1, 64)
	}

	return models.IntelligenceRecord{
		IP:           orNA(data.Query),
		Country:      orNA(data.Country),
		Region:       orNA(data.RegionName),
		City:         orNA(data.City),
		ISP:          orNA(data.ISP),
		Organization: orNA(data.Org),
		ASN:          orNA(data.AS),
		IsProxy:      data.Proxy,
		IsHosting:    data.Hosting,
		IsMobile:     data.Mobile,
		Timezone:     orNA(data.Timezone),
		Coordinates:  coordinates,
	}
}

func orNA(s *string) string {
	if s == nil || *s == "" {
		return models.NotAvailable
	}
	return *s
}

// FailureRecord converts a Lookup error into the error-tagged record callers
// receive. Service-reported failures carry only the message; transport
// failures are marked as Fallback and keep the IP.
func FailureRecord(ip string, err error) models.IntelligenceRecord {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return models.IntelligenceRecord{Error: svcErr.Error()}
	}
	return models.IntelligenceRecord{
		Error:    err.Error(),
		IP:       ip,
		Fallback: true,
	}
}
