package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// errSubjectNotFound marks a subject the registry has never seen. Only this
// condition triggers registration; any other registry failure propagates so
// the dispatcher retries the batch instead of re-registering blindly.
var errSubjectNotFound = errors.New("schema subject not found")

// SchemaRegistryClient resolves schema IDs for the service's event subjects
// (daily_record_events-value, sync_advisories-value) against Confluent Schema
// Registry, registering a subject on first use.
type SchemaRegistryClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// NewSchemaRegistryClient constructs a client with sane defaults.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: log.New(log.Writer(), "[schema-registry] ", log.LstdFlags),
	}
}

// EnsureSchema returns the subject's latest schema ID, registering the given
// schema when the subject does not exist yet.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	id, err := c.fetchLatest(ctx, subject)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, errSubjectNotFound) {
		return 0, err
	}

	id, err = c.register(ctx, subject, schema)
	if err != nil {
		return 0, err
	}
	c.logger.Printf("registered subject=%s id=%d", subject, id)
	return id, nil
}

func (c *SchemaRegistryClient) fetchLatest(ctx context.Context, subject string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/subjects/%s/versions/latest", c.baseURL, subject), nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("%w: %s", errSubjectNotFound, subject)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("schema registry error for %s: %s", subject, body)
	}

	return decodeSchemaID(resp.Body)
}

func (c *SchemaRegistryClient) register(ctx context.Context, subject string, schema string) (int, error) {
	body, err := json.Marshal(map[string]any{
		"schemaType": "JSON",
		"schema":     schema,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/subjects/%s/versions", c.baseURL, subject), bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/vnd.schemaregistry.v1+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("schema registry register error for %s: %s", subject, data)
	}

	return decodeSchemaID(resp.Body)
}

func decodeSchemaID(body io.Reader) (int, error) {
	var payload struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return 0, err
	}
	return payload.ID, nil
}
