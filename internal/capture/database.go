package capture

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ocrdesk/invoice-capture/internal/overview"
	"github.com/ocrdesk/invoice-capture/internal/zone"
)

const (
	profileBucketName = "profiles"
	queueBucketName   = "queues"
	fieldsBucketName  = "export_fields"
	invoiceBucketName = "invoices"

	fieldsKey = "default"
)

// Profile is a named, reusable zone template plus a reference to its
// preview image in Storage.
type Profile struct {
	Name             string      `json:"name"`
	Zones            []zone.Zone `json:"zones"`
	ImageFilename    string      `json:"imageFilename,omitempty"`
	ImageContentType string      `json:"imageContentType,omitempty"`
	Created          time.Time   `json:"created"`
	Updated          time.Time   `json:"updated"`
}

// Queue is a persisted capture batch: the meta plus one snapshot per
// page. Image blobs are stored separately in Storage.
type Queue struct {
	Name         string                `json:"name"`
	Profile      string                `json:"profile"`
	Created      time.Time             `json:"created"`
	Updated      time.Time             `json:"updated"`
	SystemValues map[string]string     `json:"systemValues"`
	FieldMapping overview.FieldMapping `json:"fieldMapping"`
	Pages        []PageSnapshot        `json:"pages"`
}

// ExportField is one entry of the export-template field registry: the
// set of known property names a zone may be bound to. Only active
// fields are offered in the zone-naming selector; system fields seed a
// batch's system values.
type ExportField struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Active  bool   `json:"active"`
	System  bool   `json:"system"`
	Info    string `json:"info,omitempty"`
	Example string `json:"example,omitempty"`
	Type    string `json:"type,omitempty"`
}

// DB defines the persistence operations of the capture service.
type DB interface {
	SaveProfile(profile *Profile) error
	GetProfile(name string) (*Profile, error)
	ListProfiles() ([]*Profile, error)
	DeleteProfile(name string) error

	SaveQueue(queue *Queue) error
	GetQueue(name string) (*Queue, error)
	ListQueues() ([]*Queue, error)
	DeleteQueue(name string) error

	SaveExportFields(fields []ExportField) error
	GetExportFields() ([]ExportField, error)

	SaveInvoice(record *overview.InvoiceRecord) error
	GetInvoice(id string) (*overview.InvoiceRecord, error)
	ListInvoices() ([]*overview.InvoiceRecord, error)
	DeleteInvoice(id string) error
	DeleteAllInvoices() error

	Close() error
}

// BoltDB implements the DB interface using BoltDB.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens (or creates) the database file and its buckets.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{profileBucketName, queueBucketName, fieldsBucketName, invoiceBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func (b *BoltDB) put(bucket, key string, v any) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling %s record: %w", bucket, err)
		}
		return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
	})
}

func (b *BoltDB) get(bucket, key string, v any) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s not found: %s", bucket, key)
		}
		return json.Unmarshal(data, v)
	})
}

func (b *BoltDB) delete(bucket, key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Delete([]byte(key))
	})
}

// SaveProfile stores a zone template, stamping created/updated times.
func (b *BoltDB) SaveProfile(profile *Profile) error {
	now := time.Now()
	if existing, err := b.GetProfile(profile.Name); err == nil {
		profile.Created = existing.Created
	} else {
		profile.Created = now
	}
	profile.Updated = now
	return b.put(profileBucketName, profile.Name, profile)
}

// GetProfile retrieves a zone template by name.
func (b *BoltDB) GetProfile(name string) (*Profile, error) {
	var profile Profile
	if err := b.get(profileBucketName, name, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListProfiles returns all zone templates, sorted by name.
func (b *BoltDB) ListProfiles() ([]*Profile, error) {
	profiles := make([]*Profile, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(profileBucketName)).ForEach(func(k, v []byte) error {
			var p Profile
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("unmarshaling profile: %w", err)
			}
			profiles = append(profiles, &p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

// DeleteProfile removes a zone template.
func (b *BoltDB) DeleteProfile(name string) error {
	return b.delete(profileBucketName, name)
}

// SaveQueue stores a capture batch, stamping created/updated times.
func (b *BoltDB) SaveQueue(queue *Queue) error {
	now := time.Now()
	if existing, err := b.GetQueue(queue.Name); err == nil {
		queue.Created = existing.Created
	} else {
		queue.Created = now
	}
	queue.Updated = now
	return b.put(queueBucketName, queue.Name, queue)
}

// GetQueue retrieves a capture batch by name.
func (b *BoltDB) GetQueue(name string) (*Queue, error) {
	var queue Queue
	if err := b.get(queueBucketName, name, &queue); err != nil {
		return nil, err
	}
	return &queue, nil
}

// ListQueues returns all capture batches, sorted by name.
func (b *BoltDB) ListQueues() ([]*Queue, error) {
	queues := make([]*Queue, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(queueBucketName)).ForEach(func(k, v []byte) error {
			var q Queue
			if err := json.Unmarshal(v, &q); err != nil {
				return fmt.Errorf("unmarshaling queue: %w", err)
			}
			queues = append(queues, &q)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(queues, func(i, j int) bool { return queues[i].Name < queues[j].Name })
	return queues, nil
}

// DeleteQueue removes a capture batch.
func (b *BoltDB) DeleteQueue(name string) error {
	return b.delete(queueBucketName, name)
}

// SaveExportFields replaces the export-template field registry.
func (b *BoltDB) SaveExportFields(fields []ExportField) error {
	return b.put(fieldsBucketName, fieldsKey, fields)
}

// GetExportFields returns the field registry; an empty registry is not
// an error.
func (b *BoltDB) GetExportFields() ([]ExportField, error) {
	fields := make([]ExportField, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(fieldsBucketName)).Get([]byte(fieldsKey))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &fields)
	})
	if err != nil {
		return nil, fmt.Errorf("loading export fields: %w", err)
	}
	return fields, nil
}

// SaveInvoice stores one propagated invoice record.
func (b *BoltDB) SaveInvoice(record *overview.InvoiceRecord) error {
	return b.put(invoiceBucketName, record.ID, record)
}

// GetInvoice retrieves an invoice record by id.
func (b *BoltDB) GetInvoice(id string) (*overview.InvoiceRecord, error) {
	var record overview.InvoiceRecord
	if err := b.get(invoiceBucketName, id, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListInvoices returns all invoice records ordered by their batch
// position.
func (b *BoltDB) ListInvoices() ([]*overview.InvoiceRecord, error) {
	records := make([]*overview.InvoiceRecord, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(invoiceBucketName)).ForEach(func(k, v []byte) error {
			var r overview.InvoiceRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshaling invoice: %w", err)
			}
			records = append(records, &r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Order < records[j].Order })
	return records, nil
}

// DeleteInvoice removes one invoice record.
func (b *BoltDB) DeleteInvoice(id string) error {
	return b.delete(invoiceBucketName, id)
}

// DeleteAllInvoices clears the overview store.
func (b *BoltDB) DeleteAllInvoices() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(invoiceBucketName)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(invoiceBucketName))
		return err
	})
}

// Close closes the database.
func (b *BoltDB) Close() error {
	return b.db.Close()
}
