package web

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_market_table/internal/domain"
)

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil returns the first message matching match, failing after 2s.
func readUntil(t *testing.T, conn *websocket.Conn, match func(Message) bool) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func isDataset(msg Message) bool { return msg.Type == "dataset" && msg.Data != nil }

func TestWS_InitialDatasetAndSort(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env)

	first := readUntil(t, conn, isDataset)
	assert.Equal(t, []string{"btc", "eth", "doge"}, symbols(first.Data.Rows))
	assert.True(t, first.Data.Sort.Unsorted())

	require.NoError(t, conn.WriteJSON(Message{Type: "sort", Column: "price"}))
	msg := readUntil(t, conn, func(m Message) bool {
		return isDataset(m) && m.Data.Sort.Column == domain.ColumnPrice
	})
	assert.Equal(t, domain.DirectionDescending, msg.Data.Sort.Direction)
	assert.Greater(t, msg.Data.Version, first.Data.Version)

	require.NoError(t, conn.WriteJSON(Message{Type: "sort", Column: "price"}))
	msg = readUntil(t, conn, func(m Message) bool {
		return isDataset(m) && m.Data.Sort.Direction == domain.DirectionAscending
	})
	assert.Equal(t, []string{"doge", "eth", "btc"}, symbols(msg.Data.Rows))

	assert.Equal(t, []domain.Column{"price", "price"}, env.observer.Sorts())
}

func TestWS_PushesPublishedDatasets(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env)
	readUntil(t, conn, isDataset)

	env.view.RequestSort(domain.ColumnMarketCap)
	env.view.RequestSort(domain.ColumnMarketCap)

	env.provider.Set([]domain.CoinRecord{
		coin("solana", "Solana", "sol", 100, 45e9),
		coin("ripple", "XRP", "xrp", 0.6, 33e9),
	}, nil)
	require.NoError(t, env.scheduler.FetchNow(context.Background()))

	msg := readUntil(t, conn, func(m Message) bool { return isDataset(m) && len(m.Data.Rows) == 2 })
	assert.Equal(t, domain.SortSpec{Column: domain.ColumnMarketCap, Direction: domain.DirectionAscending}, msg.Data.Sort)
	assert.Equal(t, []string{"xrp", "sol"}, symbols(msg.Data.Rows))
}

func TestWS_RejectsBadMessages(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env)
	readUntil(t, conn, isDataset)

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"unknown column", `{"type":"sort","column":"volume"}`, domain.ErrUnknownColumn.Error()},
		{"malformed", `{"type":`, "malformed message"},
		{"unsupported type", `{"type":"subscribe"}`, "unsupported message type subscribe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.payload)))
			msg := readUntil(t, conn, func(m Message) bool { return m.Type == "error" })
			assert.Equal(t, tt.want, msg.Error)
		})
	}

	assert.True(t, env.view.SortSpec().Unsorted())
}

func TestWS_ClientAccounting(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env)
	readUntil(t, conn, isDataset)

	assert.Equal(t, 1, env.hub.Clients())

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool { return env.hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWS_HubShutdownClosesClients(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, env)
	readUntil(t, conn, isDataset)

	env.stopHub()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var err error
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived),
		"unexpected error: %v", err)
	assert.Equal(t, 0, env.hub.Clients())
}
