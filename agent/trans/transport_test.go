package trans

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/findy-network/findy-agent-core/agent/trans/mock"
	"github.com/golang/mock/gomock"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	httpT := mock.NewMockTransport(ctrl)
	natsT := mock.NewMockTransport(ctrl)
	httpT.EXPECT().Send(ctx, "http://localhost/a2a/VK", []byte("1")).Return(nil)
	httpT.EXPECT().Send(ctx, "HTTPS://localhost/a2a/VK", []byte("2")).Return(nil)
	natsT.EXPECT().Send(ctx, "nats:agents.VK", []byte("3")).Return(errors.New("down"))

	r := NewRouter().
		Handle("http", httpT).
		Handle("https", httpT).
		Handle(NATSScheme, natsT)

	assert.NoError(t, r.Send(ctx, "http://localhost/a2a/VK", []byte("1")))
	assert.NoError(t, r.Send(ctx, "HTTPS://localhost/a2a/VK", []byte("2")))
	assert.Error(t, r.Send(ctx, "nats:agents.VK", []byte("3")))
	assert.ErrorIs(t, r.Send(ctx, "ws://localhost", nil), ErrNoTransport)
	assert.ErrorIs(t, r.Send(ctx, "no-scheme", nil), ErrNoTransport)
}

func TestHTTP_Send(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			http.Error(w, "no such agent", http.StatusNotFound)
			return
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ContentType, r.Header.Get("Content-Type"))
		got, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	h := NewHTTP(5 * time.Second)
	require.NoError(t, h.Send(context.Background(), srv.URL+"/a2a/VK", []byte(`{"a":1}`)))
	assert.Equal(t, `{"a":1}`, string(got))

	err := h.Send(context.Background(), srv.URL+"/fail", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such agent")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, h.Send(ctx, srv.URL+"/a2a/VK", nil))
}

func startNATS(t *testing.T) *natsserver.Server {
	t.Helper()
	ns, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(10*time.Second), "nats server start")
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns
}

func TestNATS_Send(t *testing.T) {
	ns := startNATS(t)
	nc, err := Connect(ns.ClientURL(), "trans-test")
	require.NoError(t, err)
	defer nc.Close()

	received := make(chan []byte, 1)
	sub, err := nc.Subscribe("agents.alice.VK", func(m *nats.Msg) {
		received <- m.Data
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	n := NewNATS(nc)
	require.NoError(t, n.Send(context.Background(), "nats:agents.alice.VK", []byte("hello")))

	select {
	case data := <-received:
		assert.Equal(t, "hello", string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = n.Send(ctx, "nats:agents.alice.VK", []byte("late"))
	assert.ErrorIs(t, err, ErrUnconfirmed)

	assert.ErrorIs(t, n.Send(context.Background(), "nats://localhost:4222", nil), ErrNoTransport)
	assert.ErrorIs(t, n.Send(context.Background(), "http://x", nil), ErrNoTransport)
}

func TestSubject(t *testing.T) {
	subj, ok := Subject("nats:agents.VK")
	assert.True(t, ok)
	assert.Equal(t, "agents.VK", subj)

	_, ok = Subject("nats:")
	assert.False(t, ok)
}

func TestConnect_InvalidURL(t *testing.T) {
	nc, err := Connect("invalid://not-a-nats-server", "test-client")
	assert.Error(t, err)
	assert.Nil(t, nc)
}
