// Package signature builds and verifies the connection signature of the
// connection response: ed25519 over the 8 byte big endian timestamp followed
// by the connection JSON.
package signature

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/findy-network/findy-agent-core/agent/pltype"
	"github.com/findy-network/findy-agent-core/agent/ssi"
	"github.com/findy-network/findy-agent-core/agent/utils"
	"github.com/findy-network/findy-agent-core/std/didexchange"
	"github.com/findy-network/findy-common-go/dto"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

const connectionSigExpTime = 10 * 60 * 60

var (
	ErrInvalid = errors.New("invalid connection signature")
	ErrSigner  = errors.New("connection signed with unexpected key")
)

// Signer signs with the private key of the verkey.
type Signer interface {
	Sign(ctx context.Context, verkey string, data []byte) ([]byte, error)
}

// Sign signs the connection of the response with the verkey.
func Sign(ctx context.Context, r *didexchange.Response, signer Signer, verkey string) (err error) {
	defer err2.Handle(&err, "build connection sign")

	connectionJSON := dto.ToJSONBytes(r.Connection)
	data := make([]byte, 8, 8+len(connectionJSON))
	binary.BigEndian.PutUint64(data, uint64(time.Now().Unix()))
	data = append(data, connectionJSON...)

	sig := try.To1(signer.Sign(ctx, verkey, data))
	r.ConnectionSignature = &didexchange.ConnectionSignature{
		Type:       pltype.ConnectionSignature,
		SignedData: utils.EncodeB64(data),
		SignVerKey: verkey,
		Signature:  utils.EncodeB64(sig),
	}
	return nil
}

// Verify checks the connection signature and that it's made with the
// expected key. On success the connection is set to the response.
func Verify(r *didexchange.Response, expectedKey string) (err error) {
	defer err2.Handle(&err, "verify connection sign")

	cs := r.ConnectionSignature
	if cs == nil {
		return ErrInvalid
	}
	if expectedKey != "" && cs.SignVerKey != expectedKey {
		return ErrSigner
	}
	data := try.To1(utils.DecodeB64(cs.SignedData))
	if len(data) <= 8 {
		return fmt.Errorf("missing signature data: %w", ErrInvalid)
	}
	sig := try.To1(utils.DecodeB64(cs.Signature))

	ok := try.To1(ssi.VerifyWithKey(cs.SignVerKey, data, sig))
	if !ok {
		return ErrInvalid
	}

	timestamp := int64(binary.BigEndian.Uint64(data))
	diff := time.Now().Unix() - timestamp
	if diff < 0 || diff > connectionSigExpTime {
		glog.Errorln("connection signature timestamp is invalid: ", timestamp, time.Unix(timestamp, 0))
		return fmt.Errorf("timestamp: %w", ErrInvalid)
	}
	glog.V(3).Info("verified connection signature w/ ts:", time.Unix(timestamp, 0))

	var connection didexchange.Connection
	dto.FromJSON(data[8:], &connection)
	r.Connection = &connection
	return nil
}
