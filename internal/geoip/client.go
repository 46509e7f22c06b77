// Package geoip resolves IP addresses to location and network metadata
// through an ip-api.com compatible JSON endpoint.
package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
)

var (
	ErrInvalidIP    = errors.New("invalid ip address")
	ErrLookupFailed = errors.New("ip lookup failed")
	ErrCircuitOpen  = errors.New("ip lookup circuit open")
)

const lookupFields = "status,message,country,countryCode,region,regionName,city,lat,lon,isp,org,as"

// Client looks up IP metadata
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *Breaker
	logger     *slog.Logger
}

// NewClient creates a lookup client; a nil breaker disables circuit breaking
func NewClient(baseURL string, timeout time.Duration, breaker *Breaker, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		logger:     logger,
	}
}

type lookupResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	models.IPInfo
}

// Lookup resolves ip. Errors wrap ErrInvalidIP, ErrCircuitOpen or ErrLookupFailed.
func (c *Client) Lookup(ctx context.Context, ip string) (*models.IPInfo, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}

	if c.breaker != nil && !c.breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	info, err := c.fetch(ctx, addr.String())
	if c.breaker != nil {
		if err != nil && ctx.Err() == nil {
			c.breaker.RecordFailure()
		} else if err == nil {
			c.breaker.RecordSuccess()
		}
	}
	if err != nil {
		c.logger.WarnContext(ctx, "ip lookup failed",
			slog.String("collaborator", "geoip"),
			slog.String("ip", ip),
			slog.Any("error", err),
		)
		return nil, err
	}
	return info, nil
}

func (c *Client) fetch(ctx context.Context, ip string) (*models.IPInfo, error) {
	url := fmt.Sprintf("%s/%s?fields=%s", c.baseURL, ip, lookupFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrLookupFailed, resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrLookupFailed, err)
	}
	if body.Status != "success" {
		return nil, fmt.Errorf("%w: %s", ErrLookupFailed, body.Message)
	}

	info := body.IPInfo
	return &info, nil
}
