package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/findy-network/findy-agent-core/agent/comm"
	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/psm"
	"github.com/findy-network/findy-agent-core/agent/registry"
	"github.com/findy-network/findy-agent-core/agent/ssi"
	"github.com/findy-network/findy-agent-core/agent/storage/memstore"
	"github.com/findy-network/findy-agent-core/std/common"
	"github.com/findy-network/findy-common-go/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testFamily = "https://example.org/test/1.0"
	typeEcho   = testFamily + "/echo"
	typeAdmin  = testFamily + "/admin"
	typeFail   = testFamily + "/fail"
	typeInfra  = testFamily + "/infra"
	typePanic  = testFamily + "/panic"
)

type echo struct {
	didcomm.Header
	Text string `json:"text"`
}

func (m *echo) Validate() error {
	c := &didcomm.Check{}
	return c.Required("text", m.Text).Err()
}

type fixture struct {
	d       *Dispatcher
	store   *memstore.Store
	wallet  *ssi.LocalWallet
	handled []*comm.RequestContext
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{store: memstore.New()}
	f.wallet = ssi.NewLocalWallet(f.store)

	handler := func(ctx context.Context, rc *comm.RequestContext) error {
		f.handled = append(f.handled, rc)
		switch rc.Envelope.Type {
		case typeFail:
			return fault.Invalid("Connection not found.")
		case typeInfra:
			return fault.Infra("save", errors.New("disk full"))
		case typePanic:
			panic("boom")
		}
		in := rc.Message.(*echo)
		return rc.Responder.SendReply(ctx, &echo{
			Header: didcomm.NewReplyHeader(typeEcho, in.Hdr()),
			Text:   in.Text,
		})
	}
	newEcho := func() didcomm.Message { return &echo{} }

	reg := registry.New()
	require.NoError(t, reg.RegisterMany(
		registry.Descriptor{Type: typeEcho, New: newEcho, Handler: handler},
		registry.Descriptor{Type: typeAdmin, New: newEcho, Handler: handler, AdminOnly: true},
		registry.Descriptor{Type: typeFail, New: newEcho, Handler: handler},
		registry.Descriptor{Type: typeInfra, New: newEcho, Handler: handler},
		registry.Descriptor{Type: typePanic, New: newEcho, Handler: handler},
	))
	f.d = New(Config{
		Registry: reg,
		Storage:  f.store,
		Wallet:   f.wallet,
		Sender:   comm.NewMessenger(f.store, nil),
	})
	return f
}

func raw(t, id, text string) []byte {
	return dto.ToJSONBytes(map[string]any{"@type": t, "@id": id, "text": text})
}

func problemOf(t *testing.T, data []byte) *common.ProblemReport {
	pr := &common.ProblemReport{}
	require.NoError(t, didcomm.Unmarshal(data, pr))
	assert.Equal(t, pltype.NotificationProblemReport, pr.Type)
	return pr
}

func TestHandle_Echo(t *testing.T) {
	f := newFixture(t)
	c := &comm.Collector{}

	err := f.d.Handle(context.Background(), raw(typeEcho, "m1", "hello"),
		comm.Delivery{Origin: comm.OriginNetwork, Reply: c.Reply})
	require.NoError(t, err)
	require.Len(t, f.handled, 1)
	assert.Nil(t, f.handled[0].Connection)

	require.Len(t, c.Replies(), 1)
	out := &echo{}
	require.NoError(t, didcomm.Unmarshal(c.Replies()[0], out))
	assert.Equal(t, "hello", out.Text)
	assert.Equal(t, "m1", out.ThreadID())
}

func TestHandle_Unsupported(t *testing.T) {
	f := newFixture(t)
	c := &comm.Collector{}

	err := f.d.Handle(context.Background(), raw(testFamily+"/nope", "m2", "x"),
		comm.Delivery{Origin: comm.OriginNetwork, Reply: c.Reply})
	assert.NoError(t, err)
	assert.Empty(t, f.handled)

	require.Len(t, c.Replies(), 1)
	pr := problemOf(t, c.Replies()[0])
	assert.Equal(t, ExplainUnsupported, pr.ExplainLongTxt)
	assert.Equal(t, fault.RetryNone, pr.WhoRetries)
	assert.Equal(t, "m2", pr.ThreadID())
}

func TestHandle_Malformed(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte(`{"@type": `)},
		{"no type", []byte(`{"@id": "x"}`)},
		{"invalid fields", raw(typeEcho, "m3", "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &comm.Collector{}
			err := f.d.Handle(context.Background(), tt.data,
				comm.Delivery{Origin: comm.OriginLocal, Reply: c.Reply})
			assert.Equal(t, fault.CodeInvalidRequest, fault.CodeOf(err))
			require.Len(t, c.Replies(), 1)
			assert.Equal(t, ExplainMalformed, problemOf(t, c.Replies()[0]).ExplainLongTxt)

			err = f.d.Handle(context.Background(), tt.data,
				comm.Delivery{Origin: comm.OriginNetwork})
			assert.NoError(t, err)
		})
	}
	assert.Empty(t, f.handled)
}

func TestHandle_AdminOnly(t *testing.T) {
	f := newFixture(t)
	c := &comm.Collector{}

	err := f.d.Handle(context.Background(), raw(typeAdmin, "m4", "x"),
		comm.Delivery{Origin: comm.OriginNetwork, Reply: c.Reply})
	var ae *fault.AuthorizationError
	require.ErrorAs(t, err, &ae)
	assert.Empty(t, c.Replies())
	assert.Empty(t, f.handled)

	err = f.d.Handle(context.Background(), raw(typeAdmin, "m5", "x"),
		comm.Delivery{Origin: comm.OriginLocal, Reply: c.Reply})
	assert.NoError(t, err)
	assert.Len(t, f.handled, 1)
}

func TestHandle_HandlerErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := &comm.Collector{}
	err := f.d.Handle(ctx, raw(typeFail, "m6", "x"),
		comm.Delivery{Origin: comm.OriginNetwork, Reply: c.Reply})
	assert.NoError(t, err)
	require.Len(t, c.Replies(), 1)
	pr := problemOf(t, c.Replies()[0])
	assert.Equal(t, "Connection not found.", pr.ExplainLongTxt)
	assert.Equal(t, "m6", pr.ThreadID())

	c = &comm.Collector{}
	err = f.d.Handle(ctx, raw(typeInfra, "m7", "x"),
		comm.Delivery{Origin: comm.OriginLocal, Reply: c.Reply})
	assert.Equal(t, fault.CodeUnavailable, fault.CodeOf(err))
	assert.Empty(t, c.Replies())

	err = f.d.Handle(ctx, raw(typeInfra, "m8", "x"),
		comm.Delivery{Origin: comm.OriginNetwork})
	assert.NoError(t, err)

	err = f.d.Handle(ctx, raw(typePanic, "m9", "x"),
		comm.Delivery{Origin: comm.OriginLocal})
	require.Error(t, err)
	assert.Equal(t, fault.CodeInternal, fault.CodeOf(err))
}

func TestHandle_SenderConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	my, err := f.wallet.CreateLocalDID(ctx, "", nil)
	require.NoError(t, err)
	conn := psm.NewConnectionRecord("conn1", psm.InitiatorSelf, psm.AcceptAuto)
	conn.MyDID = my.DID
	require.NoError(t, conn.SetState(psm.ConnStatic))
	require.NoError(t, psm.Save(ctx, f.store, conn))

	hooked := 0
	f.d.AddHook(func(_ context.Context, rc *comm.RequestContext) error {
		hooked++
		assert.Equal(t, "conn1", rc.ConnectionID())
		return nil
	})

	c := &comm.Collector{}
	err = f.d.Handle(ctx, raw(typeEcho, "m10", "hi"), comm.Delivery{
		Origin:       comm.OriginNetwork,
		RecipientKey: my.Verkey,
		Reply:        c.Reply,
	})
	require.NoError(t, err)
	require.Len(t, f.handled, 1)
	require.NotNil(t, f.handled[0].Connection)
	assert.Equal(t, "conn1", f.handled[0].Delivery.ConnectionID)
	assert.Equal(t, 1, hooked)

	err = f.d.Handle(ctx, raw(typeEcho, "m11", "hi"), comm.Delivery{
		Origin:       comm.OriginNetwork,
		RecipientKey: "unknown",
		Reply:        c.Reply,
	})
	require.NoError(t, err)
	assert.Nil(t, f.handled[1].Connection)
	assert.Equal(t, 1, hooked)
}
