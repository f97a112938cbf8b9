/*
Package psm includes the persisted protocol state machines of the agent:
connection and credential exchange records with their states and transition
tables, and the supporting records (DID docs, invitations, cred defs and
stored credentials).

Records are stored with the api.Storage as JSON. Nullable fields are pointers
which keeps null and empty string apart over the round trip. Every
read-modify-write of a record must be done while holding the record's lock from
the Locker.
*/
package psm

import (
	"context"
	"errors"
	"time"

	"github.com/findy-network/findy-agent-core/agent/fault"
	"github.com/findy-network/findy-agent-core/agent/storage/api"
	"github.com/findy-network/findy-common-go/dto"
	"github.com/lainio/err2"
)

// Record types aka storage buckets.
const (
	TypeConnection   = "connection"
	TypeCredExchange = "credential_exchange"
	TypeCredDef      = "credential_definition"
	TypeDIDDoc       = "did_doc"
	TypeInvitation   = "invitation"
	TypeCredential   = "credential"
)

// RecordTypes returns all of the record types of the package.
func RecordTypes() []string {
	return []string{
		TypeConnection,
		TypeCredExchange,
		TypeCredDef,
		TypeDIDDoc,
		TypeInvitation,
		TypeCredential,
	}
}

// Record is a persisted record.
type Record interface {
	RecordType() string
	RecordID() string
	Tags() map[string]string
}

// Str returns pointer to the s. It's a helper for the nullable fields.
func Str(s string) *string {
	return &s
}

// Val returns the value of the nullable field or empty string.
func Val(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func now() time.Time {
	return time.Now().UTC()
}

// Save stores the record. The whole previous version is replaced.
func Save(ctx context.Context, s api.Storage, r Record) (err error) {
	defer err2.Handle(&err, func(err error) error {
		return fault.Infra("save "+r.RecordType(), err)
	})

	return s.Save(ctx, api.Item{
		Type:  r.RecordType(),
		ID:    r.RecordID(),
		Value: dto.ToJSONBytes(r),
		Tags:  r.Tags(),
	})
}

// Get reads the record by its ID. Missing record returns an error which is
// api.ErrNotFound.
func Get[T any, PT interface {
	*T
	Record
}](ctx context.Context, s api.Storage, id string) (rec PT, err error) {
	rec = PT(new(T))
	typ := rec.RecordType()
	defer err2.Handle(&err, func(err error) error {
		if errors.Is(err, api.ErrNotFound) {
			return err
		}
		return fault.Infra("get "+typ, err)
	})

	item, err := s.Get(ctx, typ, id)
	if err != nil {
		return nil, err
	}
	dto.FromJSON(item.Value, rec)
	return rec, nil
}

// Query returns the records which tags match the filter.
func Query[T any, PT interface {
	*T
	Record
}](ctx context.Context, s api.Storage, filter api.TagFilter) (recs []PT, err error) {
	typ := PT(new(T)).RecordType()
	defer err2.Handle(&err, func(err error) error {
		return fault.Infra("query "+typ, err)
	})

	items, err := s.Query(ctx, typ, filter)
	if err != nil {
		return nil, err
	}
	recs = make([]PT, 0, len(items))
	for _, item := range items {
		rec := PT(new(T))
		dto.FromJSON(item.Value, rec)
		recs = append(recs, rec)
	}
	return recs, nil
}

// Delete removes the record.
func Delete(ctx context.Context, s api.Storage, r Record) error {
	err := s.Delete(ctx, r.RecordType(), r.RecordID())
	if err != nil && !errors.Is(err, api.ErrNotFound) {
		return fault.Infra("delete "+r.RecordType(), err)
	}
	return err
}

// IsNotFound tells if the err is a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, api.ErrNotFound)
}
