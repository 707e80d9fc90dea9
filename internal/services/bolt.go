package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/scholarlab/paper-web-ui/internal/models"
)

// BoltDB persists uploaded papers and their chat transcripts in a BoltDB
// file, so a workspace can be reopened after a restart. Papers live in one
// bucket keyed by paper ID; each paper's messages live in their own bucket
// keyed by an insertion sequence, which keeps transcript order stable.
type BoltDB struct {
	db *bolt.DB
}

const papersBucket = "papers"

// NewBoltDB creates a new BoltDB instance with the specified file path. The
// database file is created with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(papersBucket))
		return err
	})

	return BoltDB{db: db}, err
}

// Close releases the underlying database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

func messageBucketName(paperID string) []byte {
	return []byte(fmt.Sprintf("paper-%s", paperID))
}

// Papers retrieves all stored papers, most recently uploaded first.
func (b BoltDB) Papers(context.Context) ([]models.Paper, error) {
	var papers []models.Paper
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(papersBucket))
		if bkt == nil {
			return nil
		}

		return bkt.ForEach(func(_, v []byte) error {
			var paper models.Paper
			if err := json.Unmarshal(v, &paper); err != nil {
				return fmt.Errorf("failed to unmarshal paper: %w", err)
			}
			papers = append(papers, paper)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(papers, func(i, j int) bool {
		return papers[i].UploadedAt.After(papers[j].UploadedAt)
	})
	return papers, nil
}

// Paper retrieves a single paper by ID. A missing paper yields a zero
// value, not an error.
func (b BoltDB) Paper(_ context.Context, paperID string) (models.Paper, error) {
	var paper models.Paper
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(papersBucket))
		if bkt == nil {
			return nil
		}

		v := bkt.Get([]byte(paperID))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &paper)
	})
	return paper, err
}

// AddPaper stores a paper record and creates its message bucket.
func (b BoltDB) AddPaper(_ context.Context, paper models.Paper) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(papersBucket))
		if bkt == nil {
			return nil
		}

		if _, err := tx.CreateBucketIfNotExists(messageBucketName(paper.ID)); err != nil {
			return fmt.Errorf("failed to create message bucket: %w", err)
		}

		v, err := json.Marshal(paper)
		if err != nil {
			return fmt.Errorf("failed to marshal paper: %w", err)
		}

		return bkt.Put([]byte(paper.ID), v)
	})
}

// Messages retrieves the transcript for the specified paper in insertion
// order.
func (b BoltDB) Messages(_ context.Context, paperID string) ([]models.Message, error) {
	var messages []models.Message
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(messageBucketName(paperID))
		if bkt == nil {
			return nil
		}

		return bkt.ForEach(func(_, v []byte) error {
			var message models.Message
			if err := json.Unmarshal(v, &message); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			messages = append(messages, message)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// AddMessage appends a message to the paper's transcript. The message keeps
// its own ID; ordering comes from the bucket sequence.
func (b BoltDB) AddMessage(_ context.Context, paperID string, message models.Message) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(messageBucketName(paperID))
		if err != nil {
			return fmt.Errorf("failed to create message bucket: %w", err)
		}

		seq, err := bkt.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}

		v, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		return bkt.Put([]byte(fmt.Sprintf("%012d", seq)), v)
	})
}

// UpdateMessage rewrites the stored message carrying the same ID, keeping
// its transcript position. If the message doesn't exist, the operation is
// silently ignored.
func (b BoltDB) UpdateMessage(_ context.Context, paperID string, message models.Message) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(messageBucketName(paperID))
		if bkt == nil {
			return nil
		}

		var key []byte
		err := bkt.ForEach(func(k, v []byte) error {
			var stored models.Message
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			if stored.ID == message.ID {
				key = append([]byte(nil), k...)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if key == nil {
			return nil
		}

		v, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		return bkt.Put(key, v)
	})
}

// DeleteMessages drops the paper's whole transcript.
func (b BoltDB) DeleteMessages(_ context.Context, paperID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket(messageBucketName(paperID))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}
