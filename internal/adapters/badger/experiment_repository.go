// Package badger stores experiments as zstd-compressed JSON documents in an
// embedded Badger database.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/emiliopalmerini/mexp/internal/domain"
)

var (
	docPrefix   = []byte("experiment/")
	orderPrefix = []byte("order/")
	seqKey      = []byte("seq/experiments")
)

// Config holds Badger store configuration.
type Config struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
}

// ExperimentRepository keeps one document key per experiment plus an
// order key per first insert so FindAll returns insertion order.
type ExperimentRepository struct {
	db      *badgerdb.DB
	seq     *badgerdb.Sequence
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	newID   func() string
}

// Open opens (or creates) the Badger database described by cfg.
func Open(cfg Config) (*ExperimentRepository, error) {
	opts := badgerdb.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	seq, err := db.GetSequence(seqKey, 100)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open sequence: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = seq.Release()
		_ = db.Close()
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		_ = seq.Release()
		_ = db.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &ExperimentRepository{
		db:      db,
		seq:     seq,
		encoder: encoder,
		decoder: decoder,
		newID:   uuid.NewString,
	}, nil
}

// Close releases the sequence lease and closes the database.
func (r *ExperimentRepository) Close() error {
	r.decoder.Close()
	return errors.Join(r.seq.Release(), r.encoder.Close(), r.db.Close())
}

func (r *ExperimentRepository) FindAll(ctx context.Context) ([]domain.Experiment, error) {
	experiments := []domain.Experiment{}

	err := r.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = orderPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			e, err := r.get(txn, string(id))
			if err != nil {
				return err
			}
			if e != nil {
				experiments = append(experiments, *e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	return experiments, nil
}

func (r *ExperimentRepository) FindByID(ctx context.Context, id string) (*domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *domain.Experiment
	err := r.db.View(func(txn *badgerdb.Txn) error {
		e, err := r.get(txn, id)
		out = e
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return out, nil
}

func (r *ExperimentRepository) Insert(ctx context.Context, experiment domain.Experiment) (*domain.Experiment, error) {
	e := experiment.Clone()
	e.ID = r.newID()
	if err := r.put(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to insert experiment: %w", err)
	}
	return &e, nil
}

func (r *ExperimentRepository) Save(ctx context.Context, experiment domain.Experiment) (*domain.Experiment, error) {
	if experiment.ID == "" {
		return nil, domain.ErrMissingID
	}
	e := experiment.Clone()
	if err := r.put(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to save experiment: %w", err)
	}
	return &e, nil
}

func (r *ExperimentRepository) put(ctx context.Context, e domain.Experiment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode experiment: %w", err)
	}
	value := r.encoder.EncodeAll(doc, make([]byte, 0, len(doc)))

	key := docKey(e.ID)
	exists, err := r.exists(key)
	if err != nil {
		return err
	}
	// The sequence leases through its own transaction, so the order slot is
	// reserved before the write. Concurrent first writes of one id conflict
	// in Badger and the loser gets ErrConflict.
	var order uint64
	if !exists {
		if order, err = r.seq.Next(); err != nil {
			return err
		}
	}

	return r.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(key)
		switch {
		case errors.Is(err, badgerdb.ErrKeyNotFound):
			if exists {
				return fmt.Errorf("experiment %s vanished during save", e.ID)
			}
			if err := txn.Set(orderKey(order), []byte(e.ID)); err != nil {
				return err
			}
		case err != nil:
			return err
		}
		return txn.Set(key, value)
	})
}

func (r *ExperimentRepository) exists(key []byte) (bool, error) {
	err := r.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *ExperimentRepository) get(txn *badgerdb.Txn, id string) (*domain.Experiment, error) {
	item, err := txn.Get(docKey(id))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var e domain.Experiment
	err = item.Value(func(val []byte) error {
		doc, err := r.decoder.DecodeAll(val, nil)
		if err != nil {
			return fmt.Errorf("failed to decompress experiment %s: %w", id, err)
		}
		return json.Unmarshal(doc, &e)
	})
	if err != nil {
		return nil, err
	}
	e.ID = id
	return &e, nil
}

func docKey(id string) []byte {
	return append(append([]byte{}, docPrefix...), id...)
}

func orderKey(n uint64) []byte {
	key := make([]byte, len(orderPrefix)+8)
	copy(key, orderPrefix)
	binary.BigEndian.PutUint64(key[len(orderPrefix):], n)
	return key
}
