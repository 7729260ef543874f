// Package directory fetches the fleet identity listing from the backend
// and seeds the durable store with it, so telemetry merges have identity
// rows to land on.
package directory

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/banshee-data/fleetwatch/internal/fleet"
	"github.com/banshee-data/fleetwatch/internal/httputil"
	"github.com/banshee-data/fleetwatch/internal/monitoring"
)

// Client talks to the identity-listing endpoint.
type Client struct {
	http       httputil.HTTPClient
	baseURL    string
	credential string
}

// NewClient creates a directory client. A nil http client uses the
// standard one.
func NewClient(httpClient httputil.HTTPClient, baseURL, credential string) *Client {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(nil)
	}
	return &Client{
		http:       httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		credential: credential,
	}
}

// listResponse is the wire shape of the identity listing. Each item
// carries the canonical tracker id and may embed a shared hardware source
// block alongside it.
type listResponse struct {
	Success bool       `json:"success"`
	List    []listItem `json:"list"`
}

type listItem struct {
	ID         fleet.EntityID `json:"id"`
	Label      string         `json:"label"`
	GroupTitle string         `json:"group_title"`
	Source     struct {
		ID       fleet.EntityID `json:"id"`
		DeviceID string         `json:"device_id"`
		Model    string         `json:"model"`
		Phone    string         `json:"phone"`
	} `json:"source"`
	ContractEndDate string `json:"contract_end_date"`
}

// FetchEntities retrieves the identity listing. Items resolving to no id
// at all are dropped with a log line.
func (c *Client) FetchEntities() ([]fleet.EntityRecord, error) {
	form := url.Values{"hash": {c.credential}}
	resp, err := c.http.Post(c.baseURL+"/tracker/list", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch identity listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("identity listing returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed listResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode identity listing: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("identity listing request rejected")
	}

	records := make([]fleet.EntityRecord, 0, len(parsed.List))
	for _, item := range parsed.List {
		// internal id wins over the shared source id
		id := item.ID
		if id == 0 {
			id = item.Source.ID
		}
		if id == 0 {
			monitoring.Logf("directory: dropping listing item with no id (label=%q)", item.Label)
			continue
		}
		records = append(records, fleet.EntityRecord{
			ID:              id,
			Label:           item.Label,
			Group:           item.GroupTitle,
			Model:           item.Source.Model,
			Phone:           item.Source.Phone,
			DeviceID:        item.Source.DeviceID,
			ContractEndDate: item.ContractEndDate,
		})
	}
	return records, nil
}

// IdentityStore is the subset of the db store the seeder needs.
type IdentityStore interface {
	UpsertIdentities(records []fleet.EntityRecord) error
}

// Seed fetches the listing and upserts it into the store.
func (c *Client) Seed(store IdentityStore) error {
	records, err := c.FetchEntities()
	if err != nil {
		return err
	}
	if err := store.UpsertIdentities(records); err != nil {
		return fmt.Errorf("failed to seed identity records: %w", err)
	}
	monitoring.Logf("directory: seeded %d identity records", len(records))
	return nil
}
