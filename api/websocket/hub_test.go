package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cosmossdk.io/log"
	gws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/sharepool/indexer"
	"github.com/openalpha/sharepool/metrics"
	"github.com/openalpha/sharepool/x/pool/types"
)

func startHub(t *testing.T, cfg *HubConfig) (*Hub, *httptest.Server, *metrics.Collector) {
	t.Helper()
	collector := metrics.NewCollector(prometheus.NewRegistry())
	hub := NewHub(cfg, log.NewNopLogger(), collector)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv, collector
}

func dial(t *testing.T, srv *httptest.Server) *gws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *gws.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func subscribe(t *testing.T, conn *gws.Conn, channel string) WSMessage {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "subscribe", Channel: channel}))
	return readMessage(t, conn)
}

func TestSubscribeAndReceivePoolEvent(t *testing.T) {
	hub, srv, collector := startHub(t, nil)
	conn := dial(t, srv)

	msg := subscribe(t, conn, "pool:7")
	require.Equal(t, "subscribed", msg.Type)
	require.Equal(t, "pool:7", msg.Channel)
	require.Eventually(t, func() bool { return hub.GetChannelClientCount("pool:7") == 1 }, time.Second, 10*time.Millisecond)

	ev := indexer.Event{
		Seq:    3,
		Type:   types.EventTypeDonationMade,
		PoolID: 7,
		Attributes: map[string]string{
			types.AttributeKeyDonor:  "dave",
			types.AttributeKeyAmount: "10",
		},
	}
	require.NoError(t, hub.Consume(context.Background(), ev))

	msg = readMessage(t, conn)
	require.Equal(t, types.EventTypeDonationMade, msg.Type)
	require.Equal(t, "pool:7", msg.Channel)
	data := msg.Data.(map[string]interface{})
	require.Equal(t, float64(3), data["seq"])

	require.Equal(t, 1.0, testutil.ToFloat64(collector.WSConnectionsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(collector.WSMessagesTotal.WithLabelValues("pool")))
}

func TestAccountChannelReceivesDonorEvents(t *testing.T) {
	hub, srv, _ := startHub(t, nil)
	conn := dial(t, srv)

	subscribe(t, conn, AccountChannel("dave"))
	require.Eventually(t, func() bool { return hub.GetChannelClientCount("account:dave") == 1 }, time.Second, 10*time.Millisecond)

	// events for other pools and accounts do not arrive
	require.NoError(t, hub.Consume(context.Background(), indexer.Event{
		Seq: 1, Type: types.EventTypeDonationMade, PoolID: 1,
		Attributes: map[string]string{types.AttributeKeyDonor: "erin"},
	}))
	require.NoError(t, hub.Consume(context.Background(), indexer.Event{
		Seq: 2, Type: types.EventTypeDonationMade, PoolID: 2,
		Attributes: map[string]string{types.AttributeKeyDonor: "dave"},
	}))

	msg := readMessage(t, conn)
	require.Equal(t, "account:dave", msg.Channel)
	require.Equal(t, float64(2), msg.Data.(map[string]interface{})["seq"])
}

func TestInvalidChannelRejected(t *testing.T) {
	_, srv, _ := startHub(t, nil)
	conn := dial(t, srv)

	msg := subscribe(t, conn, "ticker:BTC")
	require.Equal(t, "error", msg.Type)
	require.Equal(t, "invalid_channel", msg.Data.(map[string]interface{})["code"])
}

func TestPingPong(t *testing.T) {
	_, srv, _ := startHub(t, nil)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "ping"}))
	require.Equal(t, "pong", readMessage(t, conn).Type)
}

func TestPerIPConnectionLimit(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.MaxClientsPerIP = 1
	hub, srv, _ := startHub(t, cfg)

	dial(t, srv)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := gws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestValidChannel(t *testing.T) {
	require.True(t, ValidChannel("events"))
	require.True(t, ValidChannel("pool:12"))
	require.True(t, ValidChannel("account:cosmos1xyz"))
	require.False(t, ValidChannel("pool:0"))
	require.False(t, ValidChannel("pool:abc"))
	require.False(t, ValidChannel("account:"))
	require.False(t, ValidChannel("orders:alice"))
}
