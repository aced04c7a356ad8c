// Package snapshot persists exported buffers, keyed by simulation tick.
package snapshot

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/kdindex/export"
	bolt "go.etcd.io/bbolt"
)

const (
	ErrTypeNotFound = "snapshot_not_found"

	defaultOpenTimeout = 2 * time.Second
)

var bucketName = []byte("snapshots")

// Snapshot is the exported content of an index at a given tick.
type Snapshot struct {
	Tick   uint64
	Buffer export.Buffer
}

// Store is a bbolt database of snapshots.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the snapshot database at the given path. Timeout is
// how long to wait for the file lock, a zero timeout picks a default.
func Open(path string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = defaultOpenTimeout
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.New("creating snapshot directory failed").
			WithTag("path", path).
			Wrap(err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, errors.New("opening snapshot database failed").
			WithTag("path", path).
			Wrap(err)
	}

	if err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, errors.New("creating snapshot bucket failed").
			WithTag("path", path).
			Wrap(err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Path() string {
	return s.db.Path()
}

// Put stores the buffer at the given tick, replacing any previous one.
func (s *Store) Put(tick uint64, b export.Buffer) error {
	data, err := b.MarshalBinary()
	if err != nil {
		return errors.New("encoding snapshot failed").
			WithTag("tick", tick).
			Wrap(err)
	}

	if err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(encodeTick(tick), data)
	}); err != nil {
		return errors.New("writing snapshot failed").
			WithTag("tick", tick).
			Wrap(err)
	}
	return nil
}

// Get returns the buffer stored at the given tick.
func (s *Store) Get(tick uint64) (export.Buffer, error) {
	var b export.Buffer

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketName).Get(encodeTick(tick))
		if data == nil {
			return errors.New("snapshot not found").
				WithType(ErrTypeNotFound).
				WithTag("tick", tick)
		}
		return b.UnmarshalBinary(data)
	})
	return b, err
}

// Last returns the snapshot with the highest tick.
func (s *Store) Last() (Snapshot, error) {
	var snap Snapshot

	err := s.db.View(func(tx *bolt.Tx) error {
		k, v := tx.Bucket(bucketName).Cursor().Last()
		if k == nil {
			return errors.New("no snapshot stored").WithType(ErrTypeNotFound)
		}

		snap.Tick = decodeTick(k)
		return snap.Buffer.UnmarshalBinary(v)
	})
	return snap, err
}

// Ticks returns the ticks of the stored snapshots in ascending order.
func (s *Store) Ticks() ([]uint64, error) {
	var ticks []uint64

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, _ []byte) error {
			ticks = append(ticks, decodeTick(k))
			return nil
		})
	})
	return ticks, err
}

// Prune removes the oldest snapshots so that at most keep remain.
func (s *Store) Prune(keep int) (int, error) {
	removed := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)

		var ticks []uint64
		b.ForEach(func(k, _ []byte) error {
			ticks = append(ticks, decodeTick(k))
			return nil
		})

		excess := min(max(len(ticks)-keep, 0), len(ticks))
		for _, tick := range ticks[:excess] {
			if err := b.Delete(encodeTick(tick)); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, errors.New("pruning snapshots failed").
			WithTag("keep", keep).
			Wrap(err)
	}
	return removed, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func encodeTick(tick uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], tick)
	return buf[:]
}

func decodeTick(k []byte) uint64 {
	return binary.BigEndian.Uint64(k)
}
