package httptransport

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewServerAppliesDefaults(t *testing.T) {
	srv := NewServer(ServerConfig{Address: ":8080"}, http.NewServeMux())

	require.Equal(t, ":8080", srv.Addr)
	require.Equal(t, 5*time.Second, srv.ReadTimeout)
	require.Equal(t, 30*time.Second, srv.WriteTimeout)
	require.Equal(t, 60*time.Second, srv.IdleTimeout)
}

func TestNewServerKeepsExplicitTimeouts(t *testing.T) {
	srv := NewServer(ServerConfig{
		Address:      ":8081",
		ReadTimeout:  time.Second,
		WriteTimeout: 2 * time.Second,
		IdleTimeout:  3 * time.Second,
	}, http.NewServeMux())

	require.Equal(t, time.Second, srv.ReadTimeout)
	require.Equal(t, 2*time.Second, srv.WriteTimeout)
	require.Equal(t, 3*time.Second, srv.IdleTimeout)
}
