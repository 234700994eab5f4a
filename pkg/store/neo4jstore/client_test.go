package neo4jstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-deconflict/pkg/store"
	"github.com/dd0wney/cluso-deconflict/pkg/store/storetest"
)

func TestNormalizeURI(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "bolt://127.0.0.1:7687"},
		{"127.0.0.1:7687", "bolt://127.0.0.1:7687"},
		{"neo4j://graph.internal:7687", "neo4j://graph.internal:7687"},
		{"bolt+s://db.example.com", "bolt+s://db.example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeURI(tt.in), "input %q", tt.in)
	}
}

func TestConnectUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, Options{URI: "127.0.0.1:1", Username: "neo4j", Password: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

// TestConformance runs against a live server when NEO4J_TEST_URI is set.
// The database is wiped before every case.
func TestConformance(t *testing.T) {
	uri := os.Getenv("NEO4J_TEST_URI")
	if uri == "" {
		t.Skip("NEO4J_TEST_URI not set")
	}

	storetest.Run(t, func(t *testing.T) store.Client {
		ctx := context.Background()
		c, err := Connect(ctx, Options{
			URI:      uri,
			Username: envOr("NEO4J_TEST_USER", "neo4j"),
			Password: envOr("NEO4J_TEST_PASSWORD", "password"),
			Database: envOr("NEO4J_TEST_DATABASE", "neo4j"),
		})
		require.NoError(t, err)
		require.NoError(t, c.write(ctx, "wipe", "MATCH (n) DETACH DELETE n", nil))
		t.Cleanup(func() { c.Close(context.Background()) })
		return c
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
