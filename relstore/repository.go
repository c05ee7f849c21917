// Package relstore is the relational adapter: it owns the three tables the
// coordination layer leans on for its only strong guarantees - the global
// username reservation table, the per-kind id counters, and the relation
// join table.
package relstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var (
	// ErrUsernameTaken is returned by Reserve when the reservation row
	// already exists. Mapped from the store's duplicate-key error, never
	// from a read-then-write check.
	ErrUsernameTaken = errors.New("relstore: username already reserved")

	// ErrUnknownKind is returned by Allocate for a kind with no counter row.
	ErrUnknownKind = errors.New("relstore: no id counter for kind")
)

// Relation is one directed, typed edge from a subject entity to an object
// entity.
type Relation struct {
	SubjectID int64
	ObjectID  int64
	Type      string
}

// Open opens a gorm handle for the given driver ("sqlite" or "mysql").
// TranslateError maps mysql duplicate-key violations to
// gorm.ErrDuplicatedKey; the sqlite dialector's translation only recognizes
// the cgo driver's error type, so the modernc driver's constraint errors
// are matched by result code in isDuplicateKey instead.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{TranslateError: true}
	switch driver {
	case "sqlite":
		return gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, cfg)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("relstore: unsupported driver %q", driver)
	}
}

// Repository wraps the gorm handle with the operations the coordination
// layer needs.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Reserve inserts a reservation row for username. A duplicate-key error is
// returned as ErrUsernameTaken; under concurrent callers exactly one insert
// succeeds and the store enforces it.
func (r *Repository) Reserve(ctx context.Context, username string) error {
	m := UsernameModel{Username: username}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("reserve username %q: %w", username, err)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var serr *sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

// Release deletes the reservation row. Releasing an absent username is not
// an error.
func (r *Repository) Release(ctx context.Context, username string) error {
	if err := r.db.WithContext(ctx).Where("username = ?", username).Delete(&UsernameModel{}).Error; err != nil {
		return fmt.Errorf("release username %q: %w", username, err)
	}
	return nil
}

// Allocate increments the counter for kind and returns the new value. The
// increment is a single UPDATE against the stored value, so concurrent
// allocations serialize in the store and never hand out the same id. Values
// are never reused: a failed create downstream leaks the id by design.
func (r *Repository) Allocate(ctx context.Context, kind string) (int64, error) {
	var id int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&IDCounterModel{}).
			Where("kind = ?", kind).
			UpdateColumn("value", gorm.Expr("value + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUnknownKind
		}

		var counter IDCounterModel
		if err := tx.Where("kind = ?", kind).First(&counter).Error; err != nil {
			return err
		}
		id = counter.Value
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnknownKind) {
			return 0, ErrUnknownKind
		}
		return 0, fmt.Errorf("allocate id for %q: %w", kind, err)
	}
	return id, nil
}

// InsertRelations writes all rows in one multi-row insert. The statement is
// all-or-nothing within this store but not coordinated with the document
// store.
func (r *Repository) InsertRelations(ctx context.Context, rows []Relation) error {
	if len(rows) == 0 {
		return nil
	}
	models := make([]RelationModel, 0, len(rows))
	for _, row := range rows {
		models = append(models, RelationModel{
			SubjectID:    row.SubjectID,
			ObjectID:     row.ObjectID,
			RelationType: row.Type,
		})
	}
	if err := r.db.WithContext(ctx).Create(&models).Error; err != nil {
		return fmt.Errorf("insert %d relations: %w", len(rows), err)
	}
	return nil
}

// QueryBySubject returns the subject's relation rows ordered by object id
// descending with the row id as tie-break, optionally filtered by relation
// type. The descending order is part of the read contract: callers dedup
// consecutive object ids against it, and the tie-break keeps the relative
// order of same-object rows deterministic across drivers.
func (r *Repository) QueryBySubject(ctx context.Context, subjectID int64, typeFilter string) ([]Relation, error) {
	q := r.db.WithContext(ctx).Model(&RelationModel{}).Where("subject_id = ?", subjectID)
	if typeFilter != "" {
		q = q.Where("relation_type = ?", typeFilter)
	}

	models := make([]RelationModel, 0)
	if err := q.Order("object_id DESC, id DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("query relations of %d: %w", subjectID, err)
	}

	rows := make([]Relation, 0, len(models))
	for _, m := range models {
		rows = append(rows, Relation{
			SubjectID: m.SubjectID,
			ObjectID:  m.ObjectID,
			Type:      m.RelationType,
		})
	}
	return rows, nil
}

// DeleteBySubject removes all relation rows where subjectID is the subject.
// Rows where it appears as the object are left alone; readers treat those as
// holes to skip.
func (r *Repository) DeleteBySubject(ctx context.Context, subjectID int64) error {
	if err := r.db.WithContext(ctx).Where("subject_id = ?", subjectID).Delete(&RelationModel{}).Error; err != nil {
		return fmt.Errorf("delete relations of %d: %w", subjectID, err)
	}
	return nil
}
