package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/forgeworks/forge/core"
)

var eventsBucket = []byte("events")

// BoltLog is an EventLog backed by a bbolt file. Entries are keyed by the
// bucket sequence number, so append order is iteration order.
type BoltLog struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the log database at path.
func OpenBolt(path string) (*BoltLog, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(eventsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init event log: %w", err)
	}
	return &BoltLog{db: db}, nil
}

func (l *BoltLog) Append(evt core.Event) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(eventsBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		val, err := json.Marshal(evt)
		if err != nil {
			return err
		}
		return b.Put(key, val)
	})
}

func (l *BoltLog) Events() ([]core.Event, error) {
	var out []core.Event
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(eventsBucket).ForEach(func(_, v []byte) error {
			var evt core.Event
			if err := json.Unmarshal(v, &evt); err != nil {
				return err
			}
			out = append(out, evt)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *BoltLog) Close() error {
	return l.db.Close()
}
