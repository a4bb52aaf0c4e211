package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMock_WithResponse(t *testing.T) {
	m := NewMock(WithResponse("ping", "pong"))
	res := m.Invoke(context.Background(), "ping", InvokeOptions{})
	assert.True(t, res.Success)
	assert.Equal(t, "pong", res.Response)
}

func TestMock_WithFailure(t *testing.T) {
	m := NewMock(WithFailure("boom"))
	res := m.Invoke(context.Background(), "anything", InvokeOptions{})
	assert.False(t, res.Success)
	assert.Equal(t, "boom", res.Error)
}

func TestMock_WithSimulatedDelayHonoursCancellation(t *testing.T) {
	m := NewMock(WithSimulatedDelay(200*time.Millisecond), WithResponse("x", "y"))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res := m.Invoke(ctx, "x", InvokeOptions{})
	assert.False(t, res.Success)
}
