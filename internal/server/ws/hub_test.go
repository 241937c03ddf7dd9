package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/cache/redis"
)

const testChannel = "test.events"

func TestFilter(t *testing.T) {
	f := newFilter()
	assert.True(t, f.match(eventHeader{Name: "OrderCreated", OrderID: 1}))

	require.True(t, f.apply(request{Action: "subscribe", Events: []string{"Proposal*", "NFTTransferred"}}))
	assert.False(t, f.match(eventHeader{Name: "OrderCreated"}))
	assert.True(t, f.match(eventHeader{Name: "ProposalCreated"}))
	assert.True(t, f.match(eventHeader{Name: "ProposalAccepted"}))
	assert.True(t, f.match(eventHeader{Name: "NFTTransferred"}))

	require.True(t, f.apply(request{Action: "unsubscribe", Events: []string{"Proposal*"}}))
	assert.False(t, f.match(eventHeader{Name: "ProposalCreated"}))

	require.True(t, f.apply(request{Action: "subscribe", Orders: []uint64{7}}))
	assert.True(t, f.match(eventHeader{Name: "NFTTransferred", OrderID: 7}))
	assert.False(t, f.match(eventHeader{Name: "NFTTransferred", OrderID: 8}))
	assert.True(t, f.match(eventHeader{Name: "NFTTransferred"}), "events without an order pass the order filter")

	assert.False(t, f.apply(request{Action: "shout"}))
	assert.Equal(t, filterState{Events: []string{"NFTTransferred"}, Orders: []uint64{7}}, f.snapshot())

	require.True(t, f.apply(request{Action: "subscribe", Events: []string{"*"}}))
	assert.True(t, f.match(eventHeader{Name: "Upgraded"}))
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	check := originChecker([]string{"https://app.example.com/"})
	assert.True(t, check(req("https://app.example.com")))
	assert.True(t, check(req("")), "non-browser clients send no origin")
	assert.False(t, check(req("https://evil.example.com")))

	assert.True(t, originChecker(nil)(req("https://anything.test")))
	assert.True(t, originChecker([]string{"*"})(req("https://anything.test")))
}

func TestHubRelaysBusEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	bus := redis.NewSignalBus(redis.Wrap(rdb, 100))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(bus, nil, Config{Channel: testChannel, Mode: "Node"})
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var hello struct {
		Type    string `json:"type"`
		Payload struct {
			Mode    string `json:"mode"`
			Channel string `json:"channel"`
		} `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)
	assert.Equal(t, "node", hello.Payload.Mode)
	assert.Equal(t, testChannel, hello.Payload.Channel)

	// The relay subscribes asynchronously; keep publishing until it lands.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				_ = bus.Publish(ctx, testChannel, []byte(`not json`))
				_ = bus.Publish(ctx, testChannel, []byte(`{"name":"OrderCreated","orderId":1}`))
			}
		}
	}()

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev map[string]any
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "OrderCreated", ev["name"])

	require.NoError(t, conn.WriteJSON(request{Action: "subscribe", Events: []string{"Proposal*"}}))
	for {
		var msg struct {
			Type    string      `json:"type"`
			Payload filterState `json:"payload"`
		}
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == "subscriptions" {
			assert.Equal(t, []string{"Proposal*"}, msg.Payload.Events)
			break
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not stop")
	}
}

func TestRegisterRacingShutdown(t *testing.T) {
	for i := 0; i < 50; i++ {
		hub := NewHub(nil, nil, Config{Channel: testChannel, Mode: "Node"})
		clients := make([]*client, 8)
		joined := make([]bool, len(clients))

		var wg sync.WaitGroup
		for j := range clients {
			clients[j] = newClient(hub, nil, "test")
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				_, joined[j] = hub.register(clients[j])
			}(j)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.shutdown()
		}()
		wg.Wait()

		for j, c := range clients {
			if !joined[j] {
				assert.Empty(t, c.send, "a rejected client gets nothing queued")
				continue
			}
			msg, ok := <-c.send
			require.True(t, ok, "hello must be queued before the hub closes send")
			assert.Contains(t, string(msg), `"hello"`)
			_, ok = <-c.send
			assert.False(t, ok)
		}
	}
}

func TestRegisterAfterShutdown(t *testing.T) {
	hub := NewHub(nil, nil, Config{Channel: testChannel, Mode: "Node"})
	n, ok := hub.register(newClient(hub, nil, "first"))
	require.True(t, ok)
	assert.Equal(t, 1, n)

	hub.shutdown()
	late := newClient(hub, nil, "late")
	_, ok = hub.register(late)
	assert.False(t, ok)
	assert.Empty(t, late.send)
}
