// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMockAdvanceAndSleep(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMock(start)
	require.Equal(t, start, c.Now())

	require.NoError(t, c.Sleep(context.Background(), 5*time.Minute))
	require.Equal(t, start.Add(5*time.Minute), c.Now())
}

func TestMockSleepRespectsCancellation(t *testing.T) {
	c := NewMock(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Sleep(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRealSleepRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Real{}.Sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}
