//go:build !consul

package consul

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"uplink-monitor/pkg/model"
)

func TestStubPublisherIsNoop(t *testing.T) {
	p, err := New("127.0.0.1:8500", "", zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Publish(context.Background(), "default", model.StateOK, model.StateDown, model.HistoryEntry{}))
	assert.Equal(t, "uplink-monitor/default/state", StateKey("default"))
}
