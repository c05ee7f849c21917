// Package memback provides in-memory implementations of the catalog's
// store contracts for tests: they reproduce the observable behavior of the
// real adapters (not-found signals, duplicate detection, descending order)
// without any backing service, and expose failure injection per operation.
package memback

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/palettehq/palette/docstore"
	"github.com/palettehq/palette/relstore"
)

// Docs is an in-memory document store.
type Docs struct {
	mu     sync.Mutex
	tables map[string]map[int64]docstore.Document

	// Failure injection; when set, the operation returns the error.
	FailGet         error
	FailGetUsername error
	FailPut         error
	FailAppendType  error
	FailDelete      error
	FailBatchGet    error
}

func NewDocs() *Docs {
	return &Docs{tables: make(map[string]map[int64]docstore.Document)}
}

// Seed inserts a document directly, bypassing failure injection.
func (d *Docs) Seed(kind string, doc docstore.Document) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.put(kind, doc)
}

func (d *Docs) put(kind string, doc docstore.Document) {
	table, ok := d.tables[kind]
	if !ok {
		table = make(map[int64]docstore.Document)
		d.tables[kind] = table
	}
	table[doc.ID()] = doc
}

// Len reports how many documents a kind's table holds.
func (d *Docs) Len(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tables[kind])
}

func (d *Docs) Get(ctx context.Context, kind, idOrUsername string) (docstore.Document, error) {
	if d.FailGet != nil {
		return nil, d.FailGet
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, doc := range d.tables[kind] {
		if doc.Username() == idOrUsername || formatID(doc.ID()) == idOrUsername {
			return doc, nil
		}
	}
	return nil, docstore.ErrNotFound
}

func (d *Docs) GetByUsername(ctx context.Context, kind, username string) (docstore.Document, error) {
	if d.FailGetUsername != nil {
		return nil, d.FailGetUsername
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, doc := range d.tables[kind] {
		if doc.Username() == username {
			return doc, nil
		}
	}
	return nil, docstore.ErrNotFound
}

func (d *Docs) Put(ctx context.Context, kind string, doc docstore.Document) error {
	if d.FailPut != nil {
		return d.FailPut
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.put(kind, doc)
	return nil
}

func (d *Docs) AppendType(ctx context.Context, kind string, id int64, tag string) error {
	if d.FailAppendType != nil {
		return d.FailAppendType
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.tables[kind][id]
	if !ok {
		return nil
	}
	if doc.HasType(tag) {
		return nil
	}
	tags, _ := doc["type"].([]any)
	doc["type"] = append(tags, tag)
	return nil
}

func (d *Docs) Delete(ctx context.Context, kind string, id int64) error {
	if d.FailDelete != nil {
		return d.FailDelete
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tables[kind], id)
	return nil
}

func (d *Docs) BatchGet(ctx context.Context, kind string, ids []int64, fields ...string) ([]docstore.Document, error) {
	if d.FailBatchGet != nil {
		return nil, d.FailBatchGet
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	docs := make([]docstore.Document, 0, len(ids))
	for _, id := range ids {
		doc, ok := d.tables[kind][id]
		if !ok {
			continue
		}
		if len(fields) == 0 {
			docs = append(docs, doc)
			continue
		}
		projected := make(docstore.Document, len(fields))
		for _, f := range fields {
			if v, ok := doc[f]; ok {
				projected[f] = v
			}
		}
		docs = append(docs, projected)
	}
	return docs, nil
}

// relRow pairs a relation with its insertion sequence so query ordering can
// reproduce the real store's row-id tie-break.
type relRow struct {
	rel relstore.Relation
	seq int64
}

// Rel is an in-memory relational store: reservations, counters, rows.
type Rel struct {
	mu        sync.Mutex
	usernames map[string]bool
	counters  map[string]int64
	rows      []relRow
	nextSeq   int64

	FailReserve  error
	FailAllocate error
	FailInsert   error
	FailQuery    error
	FailDelete   error
}

func NewRel() *Rel {
	return &Rel{
		usernames: make(map[string]bool),
		counters:  map[string]int64{"art": 9999999, "artizen": 9999999},
	}
}

// Reserved reports whether a username reservation row exists.
func (r *Rel) Reserved(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usernames[username]
}

// Rows returns a copy of all relation rows in insertion order.
func (r *Rel) Rows() []relstore.Relation {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := make([]relstore.Relation, 0, len(r.rows))
	for _, row := range r.rows {
		rows = append(rows, row.rel)
	}
	return rows
}

// Counter returns the current counter value for a kind.
func (r *Rel) Counter(kind string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[kind]
}

func (r *Rel) Reserve(ctx context.Context, username string) error {
	if r.FailReserve != nil {
		return r.FailReserve
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.usernames[username] {
		return relstore.ErrUsernameTaken
	}
	r.usernames[username] = true
	return nil
}

func (r *Rel) Release(ctx context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.usernames, username)
	return nil
}

func (r *Rel) Allocate(ctx context.Context, kind string) (int64, error) {
	if r.FailAllocate != nil {
		return 0, r.FailAllocate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.counters[kind]; !ok {
		return 0, relstore.ErrUnknownKind
	}
	r.counters[kind]++
	return r.counters[kind], nil
}

func (r *Rel) InsertRelations(ctx context.Context, rows []relstore.Relation) error {
	if r.FailInsert != nil {
		return r.FailInsert
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rel := range rows {
		r.nextSeq++
		r.rows = append(r.rows, relRow{rel: rel, seq: r.nextSeq})
	}
	return nil
}

func (r *Rel) QueryBySubject(ctx context.Context, subjectID int64, typeFilter string) ([]relstore.Relation, error) {
	if r.FailQuery != nil {
		return nil, r.FailQuery
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := make([]relRow, 0)
	for _, row := range r.rows {
		if row.rel.SubjectID != subjectID {
			continue
		}
		if typeFilter != "" && row.rel.Type != typeFilter {
			continue
		}
		matched = append(matched, row)
	}
	// Same order contract as the real store: object id descending, newest
	// row first among equals.
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].rel.ObjectID != matched[j].rel.ObjectID {
			return matched[i].rel.ObjectID > matched[j].rel.ObjectID
		}
		return matched[i].seq > matched[j].seq
	})
	rows := make([]relstore.Relation, 0, len(matched))
	for _, row := range matched {
		rows = append(rows, row.rel)
	}
	return rows, nil
}

func (r *Rel) DeleteBySubject(ctx context.Context, subjectID int64) error {
	if r.FailDelete != nil {
		return r.FailDelete
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.rows[:0]
	for _, row := range r.rows {
		if row.rel.SubjectID != subjectID {
			kept = append(kept, row)
		}
	}
	r.rows = kept
	return nil
}

// Search is an in-memory search index.
type Search struct {
	mu      sync.Mutex
	indexed map[string]map[int64]map[string]string

	FailIndex  error
	FailRemove error
}

func NewSearch() *Search {
	return &Search{indexed: make(map[string]map[int64]map[string]string)}
}

// Indexed returns the stored fields for one entity, or nil.
func (s *Search) Indexed(kind string, id int64) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexed[kind][id]
}

func (s *Search) Index(ctx context.Context, kind string, id int64, fields map[string]string) error {
	if s.FailIndex != nil {
		return s.FailIndex
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	table, ok := s.indexed[kind]
	if !ok {
		table = make(map[int64]map[string]string)
		s.indexed[kind] = table
	}
	table[id] = fields
	return nil
}

func (s *Search) Remove(ctx context.Context, kind string, id int64) error {
	if s.FailRemove != nil {
		return s.FailRemove
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexed[kind], id)
	return nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
