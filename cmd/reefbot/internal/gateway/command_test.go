package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGatewayCommand(t *testing.T) {
	cmd := NewGatewayCommand()

	require.NotNil(t, cmd)

	assert.Equal(t, "gateway", cmd.Use)
	assert.Contains(t, cmd.Aliases, "g")
	assert.NotNil(t, cmd.RunE)
	assert.Nil(t, cmd.Run)

	assert.NotNil(t, cmd.Flags().Lookup("debug"))
}
