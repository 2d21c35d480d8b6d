package binance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeys struct {
	mu         sync.Mutex
	starts     int
	keepalives int
	failKeep   bool
}

func (f *fakeKeys) StartUserStream(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return "key-" + string(rune('0'+f.starts)), nil
}

func (f *fakeKeys) KeepaliveUserStream(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keepalives++
	if f.failKeep {
		return errors.New("boom")
	}
	return nil
}

func TestListenKeyKeeper_RenewKeepsKey(t *testing.T) {
	svc := &fakeKeys{}
	k := NewListenKeyKeeper(svc, time.Minute)
	require.NoError(t, k.Start(context.Background()))
	assert.Equal(t, "key-1", k.Key())
	assert.True(t, k.Healthy())

	k.renew(context.Background())
	assert.Equal(t, 1, svc.keepalives)
	assert.Equal(t, 1, svc.starts)
	assert.Equal(t, "key-1", k.Key())
}

func TestListenKeyKeeper_RotatesAfterFailedKeepalives(t *testing.T) {
	svc := &fakeKeys{failKeep: true}
	k := NewListenKeyKeeper(svc, time.Minute)
	k.retryWait = time.Millisecond
	rotated := 0
	k.OnRotate(func() { rotated++ })
	require.NoError(t, k.Start(context.Background()))

	k.renew(context.Background())
	assert.Equal(t, keepaliveAttempts, svc.keepalives)
	assert.Equal(t, 2, svc.starts)
	assert.Equal(t, "key-2", k.Key())
	assert.Equal(t, 1, rotated)
	assert.True(t, k.Healthy())
}

func TestListenKeyKeeper_ExpiredSkipsKeepalive(t *testing.T) {
	svc := &fakeKeys{}
	k := NewListenKeyKeeper(svc, time.Minute)
	require.NoError(t, k.Start(context.Background()))

	k.MarkExpired()
	assert.False(t, k.Healthy())
	k.renew(context.Background())
	assert.Zero(t, svc.keepalives)
	assert.Equal(t, "key-2", k.Key())
}
