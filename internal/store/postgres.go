package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	apperr "engagehub/internal/errors"
)

// documentRecord is the single table backing every collection: the collection
// name and id form the key, created_at is promoted out of the payload so
// ordered scans use a real column, everything else lives in the JSONB data.
type documentRecord struct {
	Collection string    `gorm:"primaryKey;type:varchar(64);index:idx_documents_created,priority:1"`
	ID         string    `gorm:"primaryKey;type:varchar(128)"`
	CreatedAt  time.Time `gorm:"index:idx_documents_created,priority:2"`
	Data       []byte    `gorm:"type:jsonb;not null"`
}

func (documentRecord) TableName() string {
	return "documents"
}

// PostgresStore implements DocumentStore on Postgres JSONB through gorm.
type PostgresStore struct {
	db *gorm.DB
}

// OpenPostgres connects and migrates the documents table.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&documentRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate documents table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an existing gorm handle (used by tests and tooling).
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var rec documentRecord
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&rec).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return &Document{ID: rec.ID, Data: rec.Data}, nil
}

func (s *PostgresStore) Query(ctx context.Context, collection string, filters []Filter, orderBy Order, page Page) ([]Document, error) {
	q := s.db.WithContext(ctx).Model(&documentRecord{}).Where("collection = ?", collection)
	q = applyFilters(q, filters)

	orderCol := "created_at"
	if orderBy.Field != "" && orderBy.Field != "created_at" {
		orderCol = fmt.Sprintf("data->>'%s'", orderBy.Field)
	}
	dir := "ASC"
	if orderBy.Desc {
		dir = "DESC"
	}
	// id tiebreak keeps pagination stable for equal timestamps
	q = q.Order(fmt.Sprintf("%s %s, id %s", orderCol, dir, dir))

	if page.Offset > 0 {
		q = q.Offset(page.Offset)
	}
	if page.Limit > 0 {
		q = q.Limit(page.Limit)
	}

	var recs []documentRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, storeErr(err)
	}
	return toDocuments(recs), nil
}

func (s *PostgresStore) QueryIn(ctx context.Context, collection, field string, values []string) ([]Document, error) {
	if len(values) == 0 {
		return nil, nil
	}
	var recs []documentRecord
	err := s.db.WithContext(ctx).Model(&documentRecord{}).
		Where("collection = ?", collection).
		Where(fmt.Sprintf("data->>'%s' IN ?", field), values).
		Order("created_at ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return toDocuments(recs), nil
}

func (s *PostgresStore) Count(ctx context.Context, collection string, filters []Filter) (int64, error) {
	q := s.db.WithContext(ctx).Model(&documentRecord{}).Where("collection = ?", collection)
	q = applyFilters(q, filters)

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, storeErr(err)
	}
	return count, nil
}

// Insert is a conditional create: an existing (collection, id) pair is left
// untouched and reported as ErrConflict.
func (s *PostgresStore) Insert(ctx context.Context, collection, id string, data []byte) error {
	rec := documentRecord{
		Collection: collection,
		ID:         id,
		CreatedAt:  extractCreatedAt(data),
		Data:       data,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrConflict
	}
	return nil
}

func (s *PostgresStore) UpdateFields(ctx context.Context, collection, id string, partial map[string]any) error {
	patch, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	res := s.db.WithContext(ctx).Exec(
		`UPDATE documents SET data = data || ?::jsonb WHERE collection = ? AND id = ?`,
		string(patch), collection, id,
	)
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// AtomicIncrement bumps a numeric field in a single statement, floors the
// result at zero and returns the stored value.
func (s *PostgresStore) AtomicIncrement(ctx context.Context, collection, id, field string, delta int64) (int64, error) {
	row := s.db.WithContext(ctx).Raw(
		`UPDATE documents
		 SET data = jsonb_set(data, ARRAY[?]::text[],
		     to_jsonb(GREATEST(COALESCE((data->>?)::bigint, 0) + ?, 0)))
		 WHERE collection = ? AND id = ?
		 RETURNING (data->>?)::bigint`,
		field, field, delta, collection, id, field,
	).Row()

	var value int64
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperr.ErrNotFound
		}
		return 0, storeErr(err)
	}
	return value, nil
}

// Delete is a conditional delete: absence is reported as ErrNotFound so
// callers can use it as a compare-and-delete.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	res := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&documentRecord{})
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func applyFilters(q *gorm.DB, filters []Filter) *gorm.DB {
	for _, f := range filters {
		// ->> yields text, so filter values are compared in their JSON
		// text form
		q = q.Where(fmt.Sprintf("data->>'%s' = ?", f.Field), jsonText(f.Value))
	}
	return q
}

func jsonText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func extractCreatedAt(data []byte) time.Time {
	var probe struct {
		CreatedAt time.Time `json:"created_at"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && !probe.CreatedAt.IsZero() {
		return probe.CreatedAt
	}
	return time.Now().UTC()
}

func toDocuments(recs []documentRecord) []Document {
	docs := make([]Document, len(recs))
	for i, r := range recs {
		docs[i] = Document{ID: r.ID, Data: r.Data}
	}
	return docs
}

func storeErr(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.ErrStoreTimeout
	case errors.Is(err, context.Canceled):
		return apperr.ErrStoreTimeout
	default:
		return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
}
