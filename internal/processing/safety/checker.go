// Package safety screens destination URLs against the Google Safe Browsing
// v4 Lookup API before they are persisted.
//
// The checker fails open: a missing API key, an unreachable endpoint, or a
// malformed response all report the URL as safe. That is a deliberate
// availability-over-filtering tradeoff, consistent with the quota limiter's
// policy; operators who need strict screening must not rely on this checker
// alone.
package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Akmalwizdom/onyx-shortener/internal/config"
	"github.com/Akmalwizdom/onyx-shortener/internal/infrastructure/logger"
	"github.com/Akmalwizdom/onyx-shortener/pkg/httpclient"
	"go.uber.org/zap"
)

type Checker struct {
	http     *httpclient.Client
	endpoint string
	apiKey   string
	clientID string
	version  string
}

type threatRequest struct {
	Client     clientInfo `json:"client"`
	ThreatInfo threatInfo `json:"threatInfo"`
}

type clientInfo struct {
	ClientID      string `json:"clientId"`
	ClientVersion string `json:"clientVersion"`
}

type threatInfo struct {
	ThreatTypes      []string      `json:"threatTypes"`
	PlatformTypes    []string      `json:"platformTypes"`
	ThreatEntryTypes []string      `json:"threatEntryTypes"`
	ThreatEntries    []threatEntry `json:"threatEntries"`
}

type threatEntry struct {
	URL string `json:"url"`
}

type threatResponse struct {
	Matches []json.RawMessage `json:"matches"`
}

func NewChecker(cfg config.SafetyConfig, appVersion string) *Checker {
	if cfg.APIKey == "" {
		logger.Warn("safe browsing API key not set, URL screening disabled")
	}

	return &Checker{
		http:     httpclient.NewClient(cfg.Timeout, 5, 30*time.Second),
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		clientID: cfg.ClientID,
		version:  appVersion,
	}
}

// IsUnsafe reports whether url matches a known threat list. It returns
// (false, nil) whenever the lookup cannot be completed.
func (c *Checker) IsUnsafe(ctx context.Context, url string) (bool, error) {
	if c.apiKey == "" {
		return false, nil
	}

	body := threatRequest{
		Client: clientInfo{
			ClientID:      c.clientID,
			ClientVersion: c.version,
		},
		ThreatInfo: threatInfo{
			ThreatTypes:      []string{"MALWARE", "SOCIAL_ENGINEERING", "UNWANTED_SOFTWARE", "POTENTIALLY_HARMFUL_APPLICATION"},
			PlatformTypes:    []string{"ANY_PLATFORM"},
			ThreatEntryTypes: []string{"URL"},
			ThreatEntries:    []threatEntry{{URL: url}},
		},
	}

	resp, err := c.http.Post(ctx, fmt.Sprintf("%s?key=%s", c.endpoint, c.apiKey), body, nil)
	if err != nil {
		logger.Warn("safe browsing lookup failed, treating URL as safe", zap.Error(err))
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("safe browsing lookup returned non-OK status, treating URL as safe",
			zap.Int("status", resp.StatusCode))
		return false, nil
	}

	var parsed threatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		logger.Warn("safe browsing response unparseable, treating URL as safe", zap.Error(err))
		return false, nil
	}

	if len(parsed.Matches) > 0 {
		logger.Warn("unsafe URL detected", zap.String("url", url))
		return true, nil
	}

	return false, nil
}
