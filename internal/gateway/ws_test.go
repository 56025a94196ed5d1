// ABOUTME: Tests for the websocket push transport
// ABOUTME: Covers confirm-after-write, fan-out routing, and error frames

package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialWS opens an authenticated push session against the test server.
func dialWS(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	url := strings.Replace(server.URL, "http://", "ws://", 1) + "/api/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close(websocket.StatusNormalClosure, "test done")
	})
	return conn
}

// readFrame reads one server frame with a timeout.
func readFrame(t *testing.T, conn *websocket.Conn) ServerFrame {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var frame ServerFrame
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	return frame
}

// writeFrame writes one client frame with a timeout.
func writeFrame(t *testing.T, conn *websocket.Conn, frame ClientFrame) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, frame))
}

func TestWS_SendMessage_ConfirmAndFanOut(t *testing.T) {
	f := setupGateway(t)
	server := httptest.NewServer(f.gw.Handler())
	defer server.Close()

	contactConn := dialWS(t, server, f.contactToken(t))
	staffConn := dialWS(t, server, f.staffToken(t))

	writeFrame(t, contactConn, ClientFrame{
		Type:      frameSendMessage,
		RequestID: "req-1",
		Body:      "hello over push",
	})

	confirm := readFrame(t, contactConn)
	assert.Equal(t, eventMessageConfirmed, confirm.Type)
	assert.Equal(t, "req-1", confirm.RequestID)
	require.NotNil(t, confirm.Message)
	assert.Greater(t, confirm.Message.ID, int64(0))

	// The confirmation is written after the store write, so the message
	// must already be durable.
	stored, err := f.gw.store.GetMessage(context.Background(), confirm.Message.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello over push", stored.Body)

	received := readFrame(t, staffConn)
	assert.Equal(t, eventMessageReceived, received.Type)
	require.NotNil(t, received.Message)
	assert.Equal(t, confirm.Message.ID, received.Message.ID)
}

func TestWS_StaffSend_ReachesContact(t *testing.T) {
	f := setupGateway(t)
	server := httptest.NewServer(f.gw.Handler())
	defer server.Close()

	contactConn := dialWS(t, server, f.contactToken(t))
	staffConn := dialWS(t, server, f.staffToken(t))

	writeFrame(t, staffConn, ClientFrame{
		Type:      frameSendMessage,
		RequestID: "req-2",
		Body:      "reply over push",
		ContactID: f.contactID,
	})

	confirm := readFrame(t, staffConn)
	require.Equal(t, eventMessageConfirmed, confirm.Type)

	received := readFrame(t, contactConn)
	assert.Equal(t, eventMessageReceived, received.Type)
	require.NotNil(t, received.Message)
	assert.Equal(t, "staff", received.Message.SenderRole)
}

func TestWS_MarkRead_Notifies(t *testing.T) {
	f := setupGateway(t)
	server := httptest.NewServer(f.gw.Handler())
	defer server.Close()

	contactConn := dialWS(t, server, f.contactToken(t))
	staffConn := dialWS(t, server, f.staffToken(t))

	writeFrame(t, contactConn, ClientFrame{
		Type:      frameSendMessage,
		RequestID: "req-3",
		Body:      "please read this",
	})
	confirm := readFrame(t, contactConn)
	require.Equal(t, eventMessageConfirmed, confirm.Type)
	messageID := confirm.Message.ID

	// Drain the staff copy of the send.
	received := readFrame(t, staffConn)
	require.Equal(t, eventMessageReceived, received.Type)

	writeFrame(t, staffConn, ClientFrame{
		Type:      frameMarkRead,
		RequestID: "req-4",
		MessageID: messageID,
	})

	marked := readFrame(t, staffConn)
	assert.Equal(t, eventMessageConfirmed, marked.Type)
	require.NotNil(t, marked.Found)
	assert.True(t, *marked.Found)

	notification := readFrame(t, contactConn)
	assert.Equal(t, eventMessageRead, notification.Type)
	assert.Equal(t, messageID, notification.MessageID)
}

func TestWS_ErrorFrame_NoWrite(t *testing.T) {
	f := setupGateway(t)
	server := httptest.NewServer(f.gw.Handler())
	defer server.Close()

	contactConn := dialWS(t, server, f.contactToken(t))

	writeFrame(t, contactConn, ClientFrame{
		Type:      frameSendMessage,
		RequestID: "req-5",
		Body:      "   ",
	})

	frame := readFrame(t, contactConn)
	assert.Equal(t, eventError, frame.Type)
	assert.Equal(t, "req-5", frame.RequestID)
	assert.NotEmpty(t, frame.Reason)

	// A failed send guarantees no store write occurred.
	messages, err := f.gw.store.ListByContact(context.Background(), f.contactID, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestWS_UnknownFrameType(t *testing.T) {
	f := setupGateway(t)
	server := httptest.NewServer(f.gw.Handler())
	defer server.Close()

	conn := dialWS(t, server, f.contactToken(t))

	writeFrame(t, conn, ClientFrame{Type: "bogus", RequestID: "req-6"})

	frame := readFrame(t, conn)
	assert.Equal(t, eventError, frame.Type)
}

func TestWS_RejectsUnauthenticated(t *testing.T) {
	f := setupGateway(t)
	server := httptest.NewServer(f.gw.Handler())
	defer server.Close()

	url := strings.Replace(server.URL, "http://", "ws://", 1) + "/api/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}
