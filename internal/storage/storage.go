// Package storage persists served predictions so they can later be joined
// with actual delivery times for retraining. It uses BoltDB as the
// underlying storage engine.
//
// Records are keyed by zero-padded timestamp so a cursor walks them in
// time order and range queries are a single seek.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"eta-service/internal/common"
)

const predictionsBucket = "predictions"

// PredictionRecord is one served prediction together with its inputs.
type PredictionRecord struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Distance     float64   `json:"distance"`
	HourOfDay    int       `json:"hour_of_day"`
	TrafficLevel int       `json:"traffic_level"`
	Weather      int       `json:"weather"`
	Weight       float64   `json:"weight"`
	ETAMinutes   int       `json:"eta_minutes"`
	Method       string    `json:"method"`
	Confidence   float64   `json:"confidence"`
	ModelVersion string    `json:"model_version,omitempty"`
}

// Store provides persistent storage for prediction records using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the prediction database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, common.DefaultDatabaseFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordPrediction appends a record, assigning an ID and timestamp when
// they are missing. It returns the stored record.
func (s *Store) RecordPrediction(record PredictionRecord) (PredictionRecord, error) {
	if s == nil || s.db == nil {
		return record, errors.New("store is not open")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return record, fmt.Errorf("marshal prediction record: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		return b.Put(recordKey(record.Timestamp, record.ID), data)
	})
	if err != nil {
		return record, fmt.Errorf("store prediction record: %w", err)
	}
	return record, nil
}

// GetPredictionsInRange returns records with start <= timestamp <= end in
// time order. Malformed records are skipped.
func (s *Store) GetPredictionsInRange(start, end time.Time) ([]PredictionRecord, error) {
	var records []PredictionRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()

		startKey := []byte(fmt.Sprintf("%020d", start.UnixNano()))
		// the id suffix sorts after "_" so the end bound must cover it
		endKey := []byte(fmt.Sprintf("%020d_\xff", end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			var record PredictionRecord
			if err := json.Unmarshal(v, &record); err != nil {
				continue
			}
			records = append(records, record)
		}
		return nil
	})

	return records, err
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(predictionsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

func recordKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", ts.UnixNano(), id))
}
