package questhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client notifies the quest subsystem about gameplay events. Notifications
// are best-effort: a quest outage must never fail a pickup, so errors are
// logged and swallowed.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a new quest hook client. An empty baseURL disables delivery.
func New(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log,
	}
}

// Healthcheck checks if the quest subsystem is reachable.
func (c *Client) Healthcheck() error {
	if c.baseURL == "" {
		return fmt.Errorf("quest hook not configured")
	}
	resp, err := c.httpClient.Get(c.baseURL + "/healthcheck")
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// ArtifactExtracted notifies about a completed extraction.
func (c *Client) ArtifactExtracted(playerID, artifactTypeID uint) {
	c.post("artifact_extracted", map[string]interface{}{
		"playerId":       playerID,
		"artifactTypeId": artifactTypeID,
	})
}

// PlayerDied notifies about a death.
func (c *Client) PlayerDied(playerID uint) {
	c.post("player_died", map[string]interface{}{
		"playerId": playerID,
	})
}

// PlayerRevived notifies about a resurrection.
func (c *Client) PlayerRevived(playerID uint) {
	c.post("player_revived", map[string]interface{}{
		"playerId": playerID,
	})
}

func (c *Client) post(event string, payload map[string]interface{}) {
	if c.baseURL == "" {
		return
	}

	payload["event"] = event
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal quest event")
		return
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/quests/events", bytes.NewReader(body))
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Failed to build quest request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("event", event).Msg("Quest notification failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Str("event", event).
			Msg("Quest notification rejected")
	}
}
