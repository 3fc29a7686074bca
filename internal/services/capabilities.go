package services

import (
	"context"

	"github.com/desertthunder/cassette/internal/models"
)

// CapabilitiesClient implements [CapabilitiesService].
type CapabilitiesClient struct {
	client *Client
}

// NewCapabilitiesClient creates a CapabilitiesClient on top of client.
func NewCapabilitiesClient(client *Client) *CapabilitiesClient {
	return &CapabilitiesClient{client: client}
}

// GetCapabilities calls GET /api/me/capabilities.
func (c *CapabilitiesClient) GetCapabilities(ctx context.Context) (models.Capabilities, error) {
	var caps models.Capabilities
	if err := c.client.getJSON(ctx, "/api/me/capabilities", &caps); err != nil {
		return models.ConservativeCapabilities(), err
	}
	return caps, nil
}
