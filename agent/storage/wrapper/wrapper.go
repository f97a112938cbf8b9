/*
Package wrapper implements the agent storage on top of the managed bolt DB of
findy-common-go. Every record type has its own bucket. Keys are hashed and
values encrypted when the storage key is given.
*/
package wrapper

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/findy-network/findy-agent-core/agent/storage/api"
	"github.com/findy-network/findy-common-go/crypto"
	"github.com/findy-network/findy-common-go/crypto/db"
	"github.com/findy-network/findy-common-go/dto"
	"github.com/golang/glog"
	"github.com/lainio/err2"
)

const level7 = 7

type Config struct {
	Key      string // hex encoded storage key, empty means no encryption
	FileName string
	FilePath string
	Types    []string // record types aka buckets
}

// record is the stored form of the api.Item.
type record struct {
	ID    string
	Value []byte
	Tags  map[string]string
}

type StorageProvider struct {
	l sync.RWMutex

	conf    Config
	db      db.Handle
	buckets map[string]byte
	cipher  *crypto.Cipher
}

func New(config Config) *StorageProvider {
	s := &StorageProvider{
		conf:    config,
		buckets: make(map[string]byte),
	}
	var bucketKey byte
	for _, name := range s.conf.Types {
		s.buckets[name] = bucketKey
		bucketKey++
	}
	return s
}

// Open initializes the DB. The file handle is opened lazily by the managed DB.
func (s *StorageProvider) Open() (err error) {
	defer err2.Handle(&err, "storage open")

	s.l.Lock()
	defer s.l.Unlock()

	if s.db != nil {
		glog.Warningf("skipping storage initialization for %s, already open", s.conf.FileName)
		return nil
	}
	if len(s.conf.Types) == 0 {
		return fmt.Errorf("no record types specified")
	}
	if s.conf.Key != "" {
		k, err := hex.DecodeString(s.conf.Key)
		if err != nil {
			return fmt.Errorf("storage key: %w", err)
		}
		s.cipher = crypto.NewCipher(k)
	}

	path := "."
	if s.conf.FilePath != "" {
		path = s.conf.FilePath
	}
	filename := filepath.Join(path, s.conf.FileName+".bolt")

	mgdBuckets := make([][]byte, 0, len(s.conf.Types))
	for range s.conf.Types {
		mgdBuckets = append(mgdBuckets, []byte{byte(len(mgdBuckets))})
	}
	s.db = db.New(db.Cfg{
		Filename:   filename,
		Buckets:    mgdBuckets,
		BackupName: filename + "_backup",
	})
	return nil
}

func (s *StorageProvider) ID() string {
	return s.conf.FileName
}

func (s *StorageProvider) Close() (err error) {
	defer err2.Handle(&err, "storage close")

	s.l.Lock()
	defer s.l.Unlock()

	if s.db == nil {
		glog.Warningf("skipping storage close for %s, already closed", s.conf.FileName)
		return nil
	}
	err = s.db.Close()
	s.db = nil
	return err
}

func (s *StorageProvider) bucket(typ string) (byte, error) {
	b, ok := s.buckets[typ]
	if !ok {
		return 0, fmt.Errorf("record type %s not configured", typ)
	}
	return b, nil
}

func (s *StorageProvider) Save(ctx context.Context, item api.Item) (err error) {
	defer err2.Handle(&err, "storage save")

	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := s.bucket(item.Type)
	if err != nil {
		return err
	}
	glog.V(level7).Infoln("storage save", item.Type, item.ID)
	return s.addData(b, []byte(item.ID), dto.ToGOB(record{
		ID:    item.ID,
		Value: item.Value,
		Tags:  item.Tags,
	}))
}

func (s *StorageProvider) Get(ctx context.Context, typ, id string) (item *api.Item, err error) {
	defer err2.Handle(&err, "storage get")

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := s.bucket(typ)
	if err != nil {
		return nil, err
	}
	data, err := s.getData(b, []byte(id))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, api.ErrNotFound
	}
	var r record
	dto.FromGOB(data, &r)
	return &api.Item{Type: typ, ID: r.ID, Value: r.Value, Tags: r.Tags}, nil
}

// Query scans the bucket of the type. There are no indexes, the tags are
// matched against every record.
func (s *StorageProvider) Query(ctx context.Context, typ string, filter api.TagFilter) (items []api.Item, err error) {
	defer err2.Handle(&err, "storage query")

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := s.bucket(typ)
	if err != nil {
		return nil, err
	}
	items = make([]api.Item, 0)
	_, err = s.getAll(b, func(data []byte) []byte {
		var r record
		dto.FromGOB(data, &r)
		if filter.Match(r.Tags) {
			items = append(items, api.Item{Type: typ, ID: r.ID, Value: r.Value, Tags: r.Tags})
		}
		return data
	})
	return items, err
}

func (s *StorageProvider) Delete(ctx context.Context, typ, id string) (err error) {
	defer err2.Handle(&err, "storage delete")

	if _, err := s.Get(ctx, typ, id); err != nil {
		return err
	}
	b, _ := s.bucket(typ)
	return s.deleteData(b, []byte(id))
}

func (s *StorageProvider) addData(bucketID byte, key, value []byte) (err error) {
	s.l.RLock()
	defer s.l.RUnlock()

	return s.db.AddKeyValueToBucket([]byte{bucketID},
		&db.Data{
			Data: value,
			Read: s.encrypt,
		},
		&db.Data{
			Data: key,
			Read: s.hash,
		},
	)
}

func (s *StorageProvider) getData(bucketID byte, key []byte) (value []byte, err error) {
	s.l.RLock()
	defer s.l.RUnlock()

	data := &db.Data{
		Write: s.decrypt,
		Use: func(d []byte) interface{} {
			value = d
			return nil
		},
	}
	_, err = s.db.GetKeyValueFromBucket([]byte{bucketID},
		&db.Data{
			Data: key,
			Read: s.hash,
		},
		data)
	return value, err
}

func (s *StorageProvider) deleteData(bucketID byte, key []byte) (err error) {
	s.l.RLock()
	defer s.l.RUnlock()

	return s.db.RmKeyValueFromBucket([]byte{bucketID}, &db.Data{
		Data: key,
		Read: s.hash,
	})
}

func (s *StorageProvider) getAll(bucketID byte, transform db.Filter) (res [][]byte, err error) {
	s.l.RLock()
	defer s.l.RUnlock()

	return s.db.GetAllValuesFromBucket([]byte{bucketID}, s.decrypt, transform)
}

func (s *StorageProvider) hash(key []byte) (k []byte) {
	if s.cipher != nil {
		h := md5.Sum(key)
		return h[:]
	}
	return append(key[:0:0], key...)
}

func (s *StorageProvider) encrypt(value []byte) (k []byte) {
	if s.cipher != nil {
		return s.cipher.TryEncrypt(value)
	}
	return append(value[:0:0], value...)
}

func (s *StorageProvider) decrypt(value []byte) (k []byte) {
	if s.cipher != nil {
		return s.cipher.TryDecrypt(value)
	}
	return append(value[:0:0], value...)
}
