package signature

import (
	"context"
	"testing"

	"github.com/findy-network/findy-agent-core/agent/didcomm"
	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/ssi"
	"github.com/findy-network/findy-agent-core/agent/storage/memstore"
	"github.com/findy-network/findy-agent-core/std/did"
	"github.com/findy-network/findy-agent-core/std/didexchange"
	"github.com/lainio/err2/assert"
)

func TestSignVerify(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	ctx := context.Background()
	w := ssi.NewLocalWallet(memstore.New())
	invKey, err := w.CreateLocalDID(ctx, "", nil)
	assert.NoError(err)
	myDID, err := w.CreateLocalDID(ctx, "", nil)
	assert.NoError(err)

	r := &didexchange.Response{
		Header: didcomm.NewHeader(pltype.AriesConnectionResponse),
		Connection: &didexchange.Connection{
			DID:    myDID.DID,
			DIDDoc: did.NewDoc(myDID.DID, myDID.Verkey, "http://localhost/a2a/"+myDID.Verkey, nil),
		},
	}
	assert.NoError(Sign(ctx, r, w, invKey.Verkey))
	assert.NoError(r.Validate())

	// receiver side has only the wire data
	in := &didexchange.Response{ConnectionSignature: r.ConnectionSignature}
	assert.NoError(Verify(in, invKey.Verkey))
	assert.Equal(in.Connection.DID, myDID.DID)
	assert.Equal(in.Connection.DIDDoc.RecipientKey(), myDID.Verkey)

	in = &didexchange.Response{ConnectionSignature: r.ConnectionSignature}
	assert.Error(Verify(in, myDID.Verkey))

	tampered := *r.ConnectionSignature
	tampered.Signature = r.ConnectionSignature.SignedData
	in = &didexchange.Response{ConnectionSignature: &tampered}
	assert.Error(Verify(in, ""))
	assert.That(in.Connection == nil)
}
