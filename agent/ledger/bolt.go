package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/findy-network/findy-common-go/dto"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	bolt "go.etcd.io/bbolt"
)

const (
	schemaBucket  = "schema"
	credDefBucket = "cred_def"
	nymBucket     = "nym"
	seqBucket     = "seq"
)

// Bolt is a ledger of a single agent kept in a local bolt file. Writes are
// serialized by bolt and every schema and cred def gets the next sequence
// number like in a real ledger.
type Bolt struct {
	filename string

	l       sync.Mutex
	db      *bolt.DB
	handles int
}

func NewBolt(filename string) *Bolt {
	return &Bolt{filename: filename}
}

func (b *Bolt) Open(ctx context.Context) (h Handle, err error) {
	defer err2.Handle(&err, "bolt ledger open")

	try.To(ctx.Err())

	b.l.Lock()
	defer b.l.Unlock()

	if b.db == nil {
		b.db = try.To1(bolt.Open(b.filename, 0600, &bolt.Options{Timeout: time.Second}))
		try.To(b.db.Update(func(tx *bolt.Tx) (err error) {
			defer err2.Handle(&err, "create buckets")

			for _, name := range []string{schemaBucket, credDefBucket, nymBucket, seqBucket} {
				try.To1(tx.CreateBucketIfNotExists([]byte(name)))
			}
			return nil
		}))
	}
	b.handles++
	return &boltHandle{owner: b}, nil
}

// OpenHandles returns the count of the handles not yet closed.
func (b *Bolt) OpenHandles() int {
	b.l.Lock()
	defer b.l.Unlock()
	return b.handles
}

// Backup copies the ledger file to the path.
func (b *Bolt) Backup(path string) (err error) {
	defer err2.Handle(&err, "bolt ledger backup")

	b.l.Lock()
	defer b.l.Unlock()

	if b.db == nil {
		return nil
	}
	return b.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(path, 0600)
	})
}

// Close closes the ledger file. Handles still open get ErrClosed.
func (b *Bolt) Close() error {
	b.l.Lock()
	defer b.l.Unlock()

	if b.db == nil {
		return nil
	}
	if b.handles > 0 {
		glog.Warningln("closing ledger with open handles:", b.handles)
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func (b *Bolt) release() {
	b.l.Lock()
	defer b.l.Unlock()
	b.handles--
}

func (b *Bolt) database() (*bolt.DB, error) {
	b.l.Lock()
	defer b.l.Unlock()
	if b.db == nil {
		return nil, ErrClosed
	}
	return b.db, nil
}

type boltHandle struct {
	owner *Bolt

	l      sync.Mutex
	closed bool
}

func (h *boltHandle) db(ctx context.Context) (*bolt.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.l.Lock()
	closed := h.closed
	h.l.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return h.owner.database()
}

func (h *boltHandle) Close() error {
	h.l.Lock()
	defer h.l.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.closed = true
	h.owner.release()
	return nil
}

// PublishSchema writes the schema. Same schema written again returns the
// existing one.
func (h *boltHandle) PublishSchema(ctx context.Context, issuerDID, name, version string, attrs []string) (s *Schema, err error) {
	defer err2.Handle(&err, "publish schema")

	db := try.To1(h.db(ctx))
	s = &Schema{
		ID:        SchemaID(issuerDID, name, version),
		Name:      name,
		Version:   version,
		Attrs:     attrs,
		IssuerDID: issuerDID,
	}
	try.To(db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(schemaBucket))
		if old := b.Get([]byte(s.ID)); old != nil {
			dto.FromJSON(old, s)
			return nil
		}
		s.SeqNo = try.To1(tx.Bucket([]byte(seqBucket)).NextSequence())
		return b.Put([]byte(s.ID), dto.ToJSONBytes(s))
	}))
	glog.V(2).Infoln("schema on ledger:", s.ID, "seq:", s.SeqNo)
	return s, nil
}

func (h *boltHandle) GetSchema(ctx context.Context, id string) (s *Schema, err error) {
	defer err2.Handle(&err, "get schema")

	db := try.To1(h.db(ctx))
	s = &Schema{}
	try.To(get(db, schemaBucket, id, s))
	return s, nil
}

// PublishCredDef writes the cred def for the schema. It's idempotent: same
// issuer, schema and tag returns the existing cred def.
func (h *boltHandle) PublishCredDef(ctx context.Context, issuerDID, issuerVerkey, schemaID, tag string) (cd *CredDef, err error) {
	defer err2.Handle(&err, "publish cred def")

	db := try.To1(h.db(ctx))
	try.To(db.Update(func(tx *bolt.Tx) error {
		var schema Schema
		data := tx.Bucket([]byte(schemaBucket)).Get([]byte(schemaID))
		if data == nil {
			return fmt.Errorf("schema %s: %w", schemaID, ErrNotFound)
		}
		dto.FromJSON(data, &schema)

		cd = &CredDef{
			ID:           CredDefID(issuerDID, schema.SeqNo, tag),
			SchemaID:     schemaID,
			IssuerDID:    issuerDID,
			IssuerVerkey: issuerVerkey,
			Tag:          tag,
		}
		b := tx.Bucket([]byte(credDefBucket))
		if old := b.Get([]byte(cd.ID)); old != nil {
			dto.FromJSON(old, cd)
			return nil
		}
		cd.SeqNo = try.To1(tx.Bucket([]byte(seqBucket)).NextSequence())
		return b.Put([]byte(cd.ID), dto.ToJSONBytes(cd))
	}))
	glog.V(2).Infoln("cred def on ledger:", cd.ID)
	return cd, nil
}

func (h *boltHandle) GetCredDef(ctx context.Context, id string) (cd *CredDef, err error) {
	defer err2.Handle(&err, "get cred def")

	db := try.To1(h.db(ctx))
	cd = &CredDef{}
	try.To(get(db, credDefBucket, id, cd))
	return cd, nil
}

func (h *boltHandle) RegisterNym(ctx context.Context, nym Nym) (err error) {
	defer err2.Handle(&err, "register nym")

	db := try.To1(h.db(ctx))
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(nymBucket))
		if old := b.Get([]byte(nym.DID)); old != nil && nym.Endpoint == "" {
			var o Nym
			dto.FromJSON(old, &o)
			nym.Endpoint = o.Endpoint
		}
		return b.Put([]byte(nym.DID), dto.ToJSONBytes(nym))
	})
}

func (h *boltHandle) GetNym(ctx context.Context, did string) (nym *Nym, err error) {
	defer err2.Handle(&err, "get nym")

	db := try.To1(h.db(ctx))
	nym = &Nym{}
	try.To(get(db, nymBucket, did, nym))
	return nym, nil
}

func (h *boltHandle) SetEndpoint(ctx context.Context, did, endpoint string) (err error) {
	defer err2.Handle(&err, "set endpoint")

	db := try.To1(h.db(ctx))
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(nymBucket))
		data := b.Get([]byte(did))
		if data == nil {
			return fmt.Errorf("nym %s: %w", did, ErrNotFound)
		}
		var nym Nym
		dto.FromJSON(data, &nym)
		nym.Endpoint = endpoint
		return b.Put([]byte(did), dto.ToJSONBytes(nym))
	})
}

func get(db *bolt.DB, bucket, key string, v any) error {
	return db.View(func(tx *bolt.Tx) error {
		d := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if d == nil {
			return fmt.Errorf("%s %s: %w", bucket, key, ErrNotFound)
		}
		dto.FromJSON(d, v)
		return nil
	})
}

// IsNotFound tells if the err is a missing ledger object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
