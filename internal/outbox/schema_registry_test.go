package outbox

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureSchemaUsesExistingSubject(t *testing.T) {
	registered := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/subjects/daily_record_events-value/versions/latest":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id": 42}`))
		case r.Method == http.MethodPost:
			registered++
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL)
	id, err := client.EnsureSchema(context.Background(), "daily_record_events-value", dailyRecordUpdatedSchema)
	require.NoError(t, err)
	require.Equal(t, 42, id)
	require.Zero(t, registered, "existing subject must not be re-registered")
}

func TestEnsureSchemaRegistersUnknownSubject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPost:
			require.Equal(t, "/subjects/sync_advisories-value/versions", r.URL.Path)
			require.Equal(t, "application/vnd.schemaregistry.v1+json", r.Header.Get("Content-Type"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id": 7}`))
		}
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL)
	id, err := client.EnsureSchema(context.Background(), "sync_advisories-value", syncAdvisorySchema)
	require.NoError(t, err)
	require.Equal(t, 7, id)
}

func TestEnsureSchemaPropagatesRegistryOutage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method, "an outage must not trigger registration")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL)
	_, err := client.EnsureSchema(context.Background(), "daily_record_events-value", dailyRecordUpdatedSchema)
	require.Error(t, err)
	require.NotErrorIs(t, err, errSubjectNotFound)
}
