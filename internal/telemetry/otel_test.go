package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc ,bad, =x,tenant=flights,")
	assert.Equal(t, map[string]string{"api-key": "abc", "tenant": "flights"}, got)
	assert.Empty(t, ParseHeaders(""))
}

func TestInitDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "flight-seat-lock"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitRequiresServiceName(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Endpoint: "localhost:4318"})
	require.Error(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
