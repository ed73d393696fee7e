package outcome

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/kiosk404/spark/internal/statedir"
)

var bucketLinks = []byte("outcome_links")

// LinkStore is the embedded BoltDB-backed keyed store of outcome links,
// grounded on echoryn's agent-store boltdb package: one bucket, JSON
// values, id-keyed. Links are additionally appended to outcome_links.jsonl
// for the external file-contract surface spec §6 names, with BoltDB
// serving as the queryable-by-id index the bridge cycle and C7 use.
type LinkStore struct {
	db  *bolt.DB
	dir *statedir.Dir
}

// OpenLinkStore opens (creating if necessary) the outcome-link BoltDB file.
func OpenLinkStore(dir *statedir.Dir) (*LinkStore, error) {
	path := dir.OutcomeLinkBoltDB()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create outcome link dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open outcome link db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLinks)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create outcome link bucket: %w", err)
	}
	return &LinkStore{db: db, dir: dir}, nil
}

func (s *LinkStore) Close() error { return s.db.Close() }

// Write persists link both to BoltDB (for id lookups) and appends it to
// the append-only outcome_links.jsonl file the external contract promises.
// Links are immutable and append-only (spec §3 lifecycles).
func (s *LinkStore) Write(link Link) error {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLinks)
		data, err := marshalLink(link)
		if err != nil {
			return err
		}
		return b.Put([]byte(link.ID), data)
	}); err != nil {
		return fmt.Errorf("write outcome link %s: %w", link.ID, err)
	}
	return statedir.AppendJSONL(s.dir.OutcomeLinks(), link)
}

// ByInsightKey returns every link written for the given insight key,
// satisfying P9's round-trip requirement.
func (s *LinkStore) ByInsightKey(key string) ([]Link, error) {
	var out []Link
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLinks)
		return b.ForEach(func(_, v []byte) error {
			l, err := unmarshalLink(v)
			if err != nil {
				return nil
			}
			if l.InsightKey == key {
				out = append(out, l)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("query outcome links by insight: %w", err)
	}
	return out, nil
}

// Recent returns links with At within window of now. The tuner's link
// candidates come from recent_advice.jsonl, not from this method.
func (s *LinkStore) Recent(now time.Time, window time.Duration) ([]Link, error) {
	var out []Link
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLinks)
		return b.ForEach(func(_, v []byte) error {
			l, err := unmarshalLink(v)
			if err != nil {
				return nil
			}
			if now.Sub(l.At) <= window {
				out = append(out, l)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("query recent outcome links: %w", err)
	}
	return out, nil
}
