// Package kvstore keeps harvest bookkeeping in an embedded badger database,
// for runs without a SurrealDB server.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/gnames/gnsys"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/store"
)

// Key prefixes.
const (
	jobPrefix     = "job/"
	objectPrefix  = "obj/"
	jobObjPrefix  = "jobobj/"
	currentPrefix = "cur/"
	errorPrefix   = "err/"
	errorSeqKey   = "seq/err"
)

// KV is a badger backed store.Store.
type KV struct {
	db     *badger.DB
	errSeq *badger.Sequence
}

var _ store.Store = (*KV)(nil)

// Open opens or creates the store in dir.
func Open(dir string) (*KV, error) {
	if err := gnsys.MakeDir(dir); err != nil {
		slog.Error("Cannot create directory", "error", err, "dir", dir)
		return nil, err
	}

	options := badger.DefaultOptions(dir)
	options.Logger = nil

	bdb, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	seq, err := bdb.GetSequence([]byte(errorSeqKey), 100)
	if err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("error sequence: %w", err)
	}
	return &KV{db: bdb, errSeq: seq}, nil
}

// Close releases the error sequence and closes the database.
func (k *KV) Close(context.Context) error {
	if k.db == nil {
		slog.Warn("key-value store is nil")
		return nil
	}
	if err := k.errSeq.Release(); err != nil {
		slog.Warn("Cannot release sequence", "error", err)
	}
	err := k.db.Close()
	k.db = nil
	return err
}

func getJSON(txn *badger.Txn, key string, v any) (bool, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(val, v)
}

func setJSON(txn *badger.Txn, key string, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), val)
}

// scan calls fn with the key and value of every entry under prefix.
func scan(txn *badger.Txn, prefix string, fn func(key string, val []byte) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(string(item.KeyCopy(nil)), val); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// JOBS
// =============================================================================

// SaveJob creates or replaces a harvest job.
func (k *KV) SaveJob(_ context.Context, job models.HarvestJob) error {
	return k.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, jobPrefix+job.ID, job)
	})
}

// GetJob retrieves a harvest job by ID.
// Returns nil if not found.
func (k *KV) GetJob(_ context.Context, id string) (*models.HarvestJob, error) {
	var job models.HarvestJob
	var found bool
	err := k.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, jobPrefix+id, &job)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns the most recently started jobs.
func (k *KV) ListJobs(_ context.Context, limit int) ([]models.HarvestJob, error) {
	jobs := []models.HarvestJob{}
	err := k.db.View(func(txn *badger.Txn) error {
		return scan(txn, jobPrefix, func(_ string, val []byte) error {
			var job models.HarvestJob
			if err := json.Unmarshal(val, &job); err != nil {
				return err
			}
			jobs = append(jobs, job)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	slices.SortFunc(jobs, func(a, b models.HarvestJob) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// =============================================================================
// OBJECTS
// =============================================================================

func jobObjKey(obj models.HarvestObject) string {
	return jobObjPrefix + obj.JobID + "/" + obj.GUID + "/" + obj.ID
}

// putObject writes obj and keeps the job and current indexes in step.
func putObject(txn *badger.Txn, obj models.HarvestObject) error {
	if err := setJSON(txn, objectPrefix+obj.ID, obj); err != nil {
		return err
	}
	if err := txn.Set([]byte(jobObjKey(obj)), []byte(obj.ID)); err != nil {
		return err
	}

	curKey := []byte(currentPrefix + obj.GUID)
	if obj.Current {
		return txn.Set(curKey, []byte(obj.ID))
	}
	item, err := txn.Get(curKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	cur, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	if string(cur) == obj.ID {
		return txn.Delete(curKey)
	}
	return nil
}

// SaveObject creates or replaces a harvest record. The creation time is set
// once.
func (k *KV) SaveObject(_ context.Context, obj models.HarvestObject) error {
	return k.db.Update(func(txn *badger.Txn) error {
		var prev models.HarvestObject
		found, err := getJSON(txn, objectPrefix+obj.ID, &prev)
		if err != nil {
			return err
		}
		switch {
		case found:
			obj.CreatedAt = prev.CreatedAt
		case obj.CreatedAt.IsZero():
			obj.CreatedAt = time.Now().UTC()
		}
		return putObject(txn, obj)
	})
}

// GetObject retrieves a harvest record by ID.
// Returns nil if not found.
func (k *KV) GetObject(_ context.Context, id string) (*models.HarvestObject, error) {
	var obj models.HarvestObject
	var found bool
	err := k.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, objectPrefix+id, &obj)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &obj, nil
}

// CurrentObject returns the current record of a dataset.
// Returns nil if there is none.
func (k *KV) CurrentObject(ctx context.Context, guid string) (*models.HarvestObject, error) {
	var id string
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(currentPrefix + guid))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		id = string(val)
		return err
	})
	if err != nil || id == "" {
		return nil, err
	}
	return k.GetObject(ctx, id)
}

// ListObjects returns the records of a job ordered by guid.
func (k *KV) ListObjects(_ context.Context, jobID string) ([]models.HarvestObject, error) {
	objs := []models.HarvestObject{}
	err := k.db.View(func(txn *badger.Txn) error {
		return scan(txn, jobObjPrefix+jobID+"/", func(_ string, val []byte) error {
			var obj models.HarvestObject
			found, err := getJSON(txn, objectPrefix+string(val), &obj)
			if err != nil || !found {
				return err
			}
			objs = append(objs, obj)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	return objs, nil
}

// MarkCurrent makes objectID the current record of guid in one transaction.
func (k *KV) MarkCurrent(_ context.Context, objectID, guid, packageID string) error {
	return k.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(currentPrefix + guid))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			prevID, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if string(prevID) != objectID {
				var prev models.HarvestObject
				found, err := getJSON(txn, objectPrefix+string(prevID), &prev)
				if err != nil {
					return err
				}
				if found {
					prev.Current = false
					if err := setJSON(txn, objectPrefix+prev.ID, prev); err != nil {
						return err
					}
				}
			}
		}

		var obj models.HarvestObject
		found, err := getJSON(txn, objectPrefix+objectID, &obj)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("mark current: harvest object %s not found", objectID)
		}
		obj.Current = true
		obj.PackageID = packageID
		return putObject(txn, obj)
	})
}

// SetNotCurrent clears the current flag of a record.
func (k *KV) SetNotCurrent(_ context.Context, objectID string) error {
	return k.db.Update(func(txn *badger.Txn) error {
		var obj models.HarvestObject
		found, err := getJSON(txn, objectPrefix+objectID, &obj)
		if err != nil || !found {
			return err
		}
		obj.Current = false
		return putObject(txn, obj)
	})
}

// =============================================================================
// ERRORS
// =============================================================================

// AddError records a gather or object error.
func (k *KV) AddError(_ context.Context, e models.HarvestError) error {
	n, err := k.errSeq.Next()
	if err != nil {
		return fmt.Errorf("add error: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	key := fmt.Sprintf("%s%s/%020d", errorPrefix, e.JobID, n)
	return k.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, key, e)
	})
}

// ListErrors returns the errors of a job in the order they were recorded.
func (k *KV) ListErrors(_ context.Context, jobID string) ([]models.HarvestError, error) {
	errs := []models.HarvestError{}
	err := k.db.View(func(txn *badger.Txn) error {
		return scan(txn, errorPrefix+jobID+"/", func(_ string, val []byte) error {
			var e models.HarvestError
			if err := json.Unmarshal(val, &e); err != nil {
				return err
			}
			errs = append(errs, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list errors: %w", err)
	}
	return errs, nil
}
