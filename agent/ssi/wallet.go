/*
Package ssi is the wallet collaborator of the agent. The wallet owns the key
pairs of our DIDs: it creates them, signs with them and looks them up by DID
or by verkey.

LocalWallet is the built-in implementation. It uses ed25519 keys, the verkey
is the base58 encoded public key and the DID is base58 of its first 16 bytes,
like in Indy. Key records are kept in the agent storage which encrypts them
when it's configured with a key.
*/
package ssi

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/findy-network/findy-agent-core/agent/storage/api"
	"github.com/findy-network/findy-common-go/dto"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/mr-tron/base58"
)

// TypeKey is the storage type of the key records.
const TypeKey = "wallet_key"

var ErrUnknownDID = errors.New("DID not in wallet")

// Wallet is the wallet collaborator.
type Wallet interface {
	CreateLocalDID(ctx context.Context, seed string, meta map[string]string) (*DID, error)
	GetLocalDID(ctx context.Context, did string) (*DID, error)
	GetLocalDIDForVerkey(ctx context.Context, verkey string) (*DID, error)
	GetLocalDIDs(ctx context.Context) ([]*DID, error)
	Sign(ctx context.Context, verkey string, data []byte) ([]byte, error)
	Verify(ctx context.Context, verkey string, data, signature []byte) (bool, error)
	PublicDID(ctx context.Context) (*DID, error)
	SetPublicDID(ctx context.Context, did string) (*DID, error)
}

type keyRecord struct {
	DID
	PrivateKey string `json:"private_key"`
}

type LocalWallet struct {
	store api.Storage
	cache Cache

	publicLk sync.Mutex
}

func NewLocalWallet(store api.Storage) *LocalWallet {
	return &LocalWallet{store: store}
}

// CreateLocalDID creates a new key pair. The seed must be empty or 32 bytes,
// and the same seed gives always the same DID.
func (w *LocalWallet) CreateLocalDID(ctx context.Context, seed string, meta map[string]string) (d *DID, err error) {
	defer err2.Handle(&err, "create local DID")

	var priv ed25519.PrivateKey
	switch len(seed) {
	case 0:
		_, priv = try.To2(ed25519.GenerateKey(rand.Reader))
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed([]byte(seed))
	default:
		return nil, fmt.Errorf("seed length must be %d", ed25519.SeedSize)
	}
	pub := priv.Public().(ed25519.PublicKey)
	rec := keyRecord{
		DID: DID{
			DID:      base58.Encode(pub[:16]),
			Verkey:   base58.Encode(pub),
			Metadata: meta,
		},
		PrivateKey: base58.Encode(priv),
	}
	if old, err := w.getKey(ctx, rec.DID.DID); err == nil {
		rec.Public = old.Public
	}
	try.To(w.saveKey(ctx, &rec))
	glog.V(3).Infoln("created local DID:", rec.DID.DID)
	return copyDID(&rec.DID), nil
}

func (w *LocalWallet) GetLocalDID(ctx context.Context, did string) (d *DID, err error) {
	defer err2.Handle(&err, "get local DID")

	if d := w.cache.Get(did); d != nil {
		return copyDID(d), nil
	}
	rec := try.To1(w.getKey(ctx, did))
	w.cache.Add(copyDID(&rec.DID))
	return copyDID(&rec.DID), nil
}

func (w *LocalWallet) GetLocalDIDForVerkey(ctx context.Context, verkey string) (d *DID, err error) {
	defer err2.Handle(&err, "get local DID for verkey")

	if d := w.cache.GetByKey(verkey); d != nil {
		return copyDID(d), nil
	}
	items := try.To1(w.store.Query(ctx, TypeKey, api.TagFilter{"verkey": verkey}))
	if len(items) == 0 {
		return nil, fmt.Errorf("verkey %s: %w", verkey, ErrUnknownDID)
	}
	var rec keyRecord
	dto.FromJSON(items[0].Value, &rec)
	w.cache.Add(copyDID(&rec.DID))
	return copyDID(&rec.DID), nil
}

func (w *LocalWallet) GetLocalDIDs(ctx context.Context) (dids []*DID, err error) {
	defer err2.Handle(&err, "get local DIDs")

	items := try.To1(w.store.Query(ctx, TypeKey, nil))
	dids = make([]*DID, 0, len(items))
	for _, item := range items {
		var rec keyRecord
		dto.FromJSON(item.Value, &rec)
		dids = append(dids, copyDID(&rec.DID))
	}
	return dids, nil
}

func (w *LocalWallet) Sign(ctx context.Context, verkey string, data []byte) (sig []byte, err error) {
	defer err2.Handle(&err, "wallet sign")

	d := try.To1(w.GetLocalDIDForVerkey(ctx, verkey))
	rec := try.To1(w.getKey(ctx, d.DID))
	priv := try.To1(base58.Decode(rec.PrivateKey))
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key")
	}
	return ed25519.Sign(priv, data), nil
}

// Verify checks the signature with the verkey. The verkey doesn't need to be
// ours.
func (w *LocalWallet) Verify(_ context.Context, verkey string, data, signature []byte) (bool, error) {
	return VerifyWithKey(verkey, data, signature)
}

func (w *LocalWallet) PublicDID(ctx context.Context) (d *DID, err error) {
	defer err2.Handle(&err, "get public DID")

	items := try.To1(w.store.Query(ctx, TypeKey, api.TagFilter{"public": "true"}))
	if len(items) == 0 {
		return nil, nil
	}
	var rec keyRecord
	dto.FromJSON(items[0].Value, &rec)
	return copyDID(&rec.DID), nil
}

// SetPublicDID marks the DID as our public DID. The previous one is unmarked.
func (w *LocalWallet) SetPublicDID(ctx context.Context, did string) (d *DID, err error) {
	defer err2.Handle(&err, "set public DID")

	w.publicLk.Lock()
	defer w.publicLk.Unlock()

	rec := try.To1(w.getKey(ctx, did))
	old := try.To1(w.store.Query(ctx, TypeKey, api.TagFilter{"public": "true"}))
	for _, item := range old {
		var o keyRecord
		dto.FromJSON(item.Value, &o)
		if o.DID.DID == did {
			continue
		}
		o.Public = false
		try.To(w.saveKey(ctx, &o))
	}
	rec.Public = true
	try.To(w.saveKey(ctx, rec))
	return copyDID(&rec.DID), nil
}

func (w *LocalWallet) getKey(ctx context.Context, did string) (rec *keyRecord, err error) {
	item, err := w.store.Get(ctx, TypeKey, did)
	if errors.Is(err, api.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", did, ErrUnknownDID)
	} else if err != nil {
		return nil, err
	}
	rec = &keyRecord{}
	dto.FromJSON(item.Value, rec)
	return rec, nil
}

func (w *LocalWallet) saveKey(ctx context.Context, rec *keyRecord) error {
	public := "false"
	if rec.Public {
		public = "true"
	}
	err := w.store.Save(ctx, api.Item{
		Type:  TypeKey,
		ID:    rec.DID.DID,
		Value: dto.ToJSONBytes(rec),
		Tags:  map[string]string{"verkey": rec.Verkey, "public": public},
	})
	if err == nil {
		w.cache.Add(copyDID(&rec.DID))
	}
	return err
}

// VerifyWithKey checks the ed25519 signature with the base58 verkey.
func VerifyWithKey(verkey string, data, signature []byte) (bool, error) {
	pub, err := base58.Decode(verkey)
	if err != nil {
		return false, fmt.Errorf("verkey: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("verkey length %d", len(pub))
	}
	return ed25519.Verify(pub, data, signature), nil
}

func copyDID(d *DID) *DID {
	c := *d
	if d.Metadata != nil {
		c.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
