package websocket

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeVersions struct {
	v atomic.Int64
}

func (f *fakeVersions) GetLeaderboardVersion(ctx context.Context) (int64, error) {
	return f.v.Load(), nil
}

func receive(t *testing.T, c *Client) VersionUpdate {
	t.Helper()
	select {
	case msg := <-c.send:
		var u VersionUpdate
		require.NoError(t, json.Unmarshal(msg, &u))
		return u
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return VersionUpdate{}
}

func TestHubBroadcastsVersionChanges(t *testing.T) {
	versions := &fakeVersions{}
	versions.v.Store(3)
	hub := NewHub(versions, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := &Client{hub: hub, send: make(chan []byte, sendBuffer)}
	hub.register <- client

	initial := receive(t, client)
	assert.Equal(t, MessageTypeVersion, initial.Type)
	assert.EqualValues(t, 3, initial.Version)
	assert.Equal(t, 1, hub.GetClientCount())

	// unchanged version: nothing is pushed
	select {
	case <-client.send:
		t.Fatal("unexpected broadcast without a version change")
	case <-time.After(50 * time.Millisecond):
	}

	versions.v.Store(4)
	assert.EqualValues(t, 4, receive(t, client).Version)

	hub.unregister <- client
	require.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-client.send
	assert.False(t, open)

	cancel()
	<-done
}

func TestHubClosesClientsOnShutdown(t *testing.T) {
	hub := NewHub(&fakeVersions{}, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := &Client{hub: hub, send: make(chan []byte, sendBuffer)}
	hub.register <- client
	receive(t, client)

	cancel()
	<-done
	_, open := <-client.send
	assert.False(t, open)
	assert.Zero(t, hub.GetClientCount())
}
