package catalog

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/palettehq/palette/docstore"
	"github.com/palettehq/palette/internal/memback"
	"github.com/palettehq/palette/relstore"
)

type fixture struct {
	docs   *memback.Docs
	rel    *memback.Rel
	search *memback.Search
	co     *Coordinator
}

func newFixture() *fixture {
	docs := memback.NewDocs()
	rel := memback.NewRel()
	search := memback.NewSearch()
	return &fixture{
		docs:   docs,
		rel:    rel,
		search: search,
		co:     New(docs, rel, search, zap.NewNop().Sugar()),
	}
}

func seedArtizen(f *fixture, id int64, username, name string) {
	f.docs.Seed("artizen", docstore.Document{
		"id":       id,
		"username": username,
		"name":     map[string]any{"default": name},
		"avatar":   "https://img.example/" + username + ".png",
	})
}

func artizenRequest(username, name string) CreateRequest {
	return CreateRequest{
		Username: username,
		Attributes: map[string]any{
			"name": map[string]any{"default": name},
		},
	}
}

func artRequest(username, title string, relations ...RelationInput) CreateRequest {
	return CreateRequest{
		Username: username,
		Attributes: map[string]any{
			"title": map[string]any{"default": title},
		},
		Relations: relations,
	}
}

func TestCreateArtizen(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.co.Create(ctx, "artizen", artizenRequest("monet", "Claude Monet"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.ID != 10000000 {
		t.Errorf("first allocated id = %d, want 10000000", res.ID)
	}
	if res.Username != "monet" {
		t.Errorf("username = %q, want monet", res.Username)
	}
	if !f.rel.Reserved("monet") {
		t.Error("username not reserved")
	}

	doc, err := f.co.Get(ctx, "artizen", "monet")
	if err != nil {
		t.Fatalf("Get after create: %v", err)
	}
	if doc.ID() != 10000000 {
		t.Errorf("stored id = %d, want 10000000", doc.ID())
	}
	if doc.Username() != "monet" {
		t.Errorf("stored username = %q, want monet", doc.Username())
	}

	fields := f.search.Indexed("artizen", 10000000)
	if fields == nil {
		t.Fatal("entity not indexed in mirror")
	}
	if fields["name.default"] != "Claude Monet" {
		t.Errorf("indexed name.default = %q, want Claude Monet", fields["name.default"])
	}
	if fields["id"] != "10000000" {
		t.Errorf("indexed id = %q, want 10000000", fields["id"])
	}
}

func TestCreateArtLinksRelations(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedArtizen(f, 10000001, "louvre", "Louvre")
	seedArtizen(f, 10000002, "monet", "Claude Monet")

	res, err := f.co.Create(ctx, "art", artRequest("sunrise", "Impression, Sunrise",
		RelationInput{Identifier: "louvre", Type: "museum"},
		RelationInput{Identifier: "monet", Type: "artist"},
	))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rows := f.rel.Rows()
	sort.Slice(rows, func(i, j int) bool { return rows[i].ObjectID < rows[j].ObjectID })
	want := []relstore.Relation{
		{SubjectID: res.ID, ObjectID: 10000001, Type: "museum"},
		{SubjectID: res.ID, ObjectID: 10000002, Type: "artist"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("relation rows = %+v, want %+v", rows, want)
	}

	louvre, err := f.co.Get(ctx, "artizen", "louvre")
	if err != nil {
		t.Fatalf("Get louvre: %v", err)
	}
	if !louvre.HasType("museum") {
		t.Error("louvre missing museum tag")
	}
	monet, _ := f.co.Get(ctx, "artizen", "monet")
	if !monet.HasType("artist") {
		t.Error("monet missing artist tag")
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		kind   string
		req    CreateRequest
		fields []string
	}{
		{
			name:   "bad username",
			kind:   "artizen",
			req:    artizenRequest("Bad_Name", "x"),
			fields: []string{"username"},
		},
		{
			name: "client-supplied id",
			kind: "artizen",
			req: CreateRequest{
				Username: "monet",
				Attributes: map[string]any{
					"id":   int64(123),
					"name": map[string]any{"default": "x"},
				},
			},
			fields: []string{"id"},
		},
		{
			name: "body username mismatch",
			kind: "artizen",
			req: CreateRequest{
				Username: "monet",
				Attributes: map[string]any{
					"username": "someone-else",
					"name":     map[string]any{"default": "x"},
				},
			},
			fields: []string{"username"},
		},
		{
			name: "missing default text",
			kind: "artizen",
			req: CreateRequest{
				Username:   "monet",
				Attributes: map[string]any{"name": map[string]any{"fr": "x"}},
			},
			fields: []string{"name.default"},
		},
		{
			name:   "art needs a relation",
			kind:   "art",
			req:    artRequest("sunrise", "Sunrise"),
			fields: []string{"relations"},
		},
		{
			name: "invalid relation entry",
			kind: "art",
			req: artRequest("sunrise", "Sunrise",
				RelationInput{Identifier: "??", Type: "ARTIST"},
			),
			fields: []string{"relations[0].artizen", "relations[0].type"},
		},
		{
			name: "violations accumulate",
			kind: "artizen",
			req: CreateRequest{
				Username:   "X",
				Attributes: map[string]any{},
			},
			fields: []string{"username", "name.default"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.co.Create(context.Background(), tt.kind, tt.req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if !reflect.DeepEqual(verr.Fields, tt.fields) {
				t.Errorf("fields = %v, want %v", verr.Fields, tt.fields)
			}
			if f.docs.Len(tt.kind) != 0 {
				t.Error("validation failure wrote a document")
			}
			if f.rel.Counter(tt.kind) != 9999999 {
				t.Error("validation failure advanced the id counter")
			}
		})
	}
}

func TestCreateRelatedMissing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedArtizen(f, 10000001, "louvre", "Louvre")

	_, err := f.co.Create(ctx, "art", artRequest("sunrise", "Sunrise",
		RelationInput{Identifier: "louvre", Type: "museum"},
		RelationInput{Identifier: "ghost", Type: "artist"},
	))
	var rerr *RelatedNotFoundError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want *RelatedNotFoundError", err)
	}
	if !reflect.DeepEqual(rerr.Missing, []string{"ghost"}) {
		t.Errorf("missing = %v, want [ghost]", rerr.Missing)
	}

	// Precondition failure must leave nothing behind.
	if f.docs.Len("art") != 0 {
		t.Error("document written despite missing related entity")
	}
	if f.rel.Counter("art") != 9999999 {
		t.Error("id allocated despite missing related entity")
	}
	if f.rel.Reserved("sunrise") {
		t.Error("username reserved despite missing related entity")
	}
}

func TestCreateResolverStoreError(t *testing.T) {
	f := newFixture()
	boom := errors.New("store unreachable")
	f.docs.FailGetUsername = boom

	_, err := f.co.Create(context.Background(), "art", artRequest("sunrise", "Sunrise",
		RelationInput{Identifier: "louvre", Type: "museum"},
	))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
	var rerr *RelatedNotFoundError
	if errors.As(err, &rerr) {
		t.Error("store error reported as missing related entity")
	}
	if f.rel.Counter("art") != 9999999 {
		t.Error("id allocated despite resolver failure")
	}
}

func TestCreateUsernameTaken(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.co.Create(ctx, "artizen", artizenRequest("monet", "Claude Monet")); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := f.co.Create(ctx, "artizen", artizenRequest("monet", "Impostor"))
	if !errors.Is(err, ErrUsernameExists) {
		t.Fatalf("err = %v, want ErrUsernameExists", err)
	}
	if got := f.rel.Counter("artizen"); got != 10000000 {
		t.Errorf("counter = %d, want 10000000 (conflict must not allocate)", got)
	}
	if f.docs.Len("artizen") != 1 {
		t.Errorf("document count = %d, want 1", f.docs.Len("artizen"))
	}
}

func TestCreateConcurrentSameUsername(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.co.Create(ctx, "artizen", artizenRequest("monet", "Claude Monet"))
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrUsernameExists):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("successes = %d, want exactly 1", wins)
	}
	if conflicts != workers-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, workers-1)
	}
	if f.docs.Len("artizen") != 1 {
		t.Errorf("document count = %d, want 1", f.docs.Len("artizen"))
	}
}

func TestCreateNoCompensation(t *testing.T) {
	f := newFixture()
	boom := errors.New("document write refused")
	f.docs.FailPut = boom

	_, err := f.co.Create(context.Background(), "artizen", artizenRequest("monet", "Claude Monet"))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped put error", err)
	}

	// Earlier steps stay committed for offline reconciliation.
	if !f.rel.Reserved("monet") {
		t.Error("reservation rolled back, want it kept")
	}
	if got := f.rel.Counter("artizen"); got != 10000000 {
		t.Errorf("counter = %d, want 10000000 (allocation kept)", got)
	}
}

func TestCreateSearchFailureTolerated(t *testing.T) {
	f := newFixture()
	f.search.FailIndex = errors.New("mirror down")

	res, err := f.co.Create(context.Background(), "artizen", artizenRequest("monet", "Claude Monet"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.ID != 10000000 {
		t.Errorf("id = %d, want 10000000", res.ID)
	}
	if f.search.Indexed("artizen", res.ID) != nil {
		t.Error("mirror entry present despite injected failure")
	}
}

func TestCreateUnknownKind(t *testing.T) {
	f := newFixture()
	_, err := f.co.Create(context.Background(), "gallery", artizenRequest("monet", "x"))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
}

func TestRelationsGrouping(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.docs.Seed("art", docstore.Document{
		"id":       int64(10000000),
		"username": "sunrise",
		"title":    map[string]any{"default": "Impression, Sunrise"},
	})
	seedArtizen(f, 10000005, "louvre", "Louvre")
	seedArtizen(f, 10000003, "monet", "Claude Monet")

	// Duplicate (monet, artist) rows: each keeps its own joined copy, the
	// batch fetch just loads the document once.
	rows := []relstore.Relation{
		{SubjectID: 10000000, ObjectID: 10000005, Type: "museum"},
		{SubjectID: 10000000, ObjectID: 10000003, Type: "artist"},
		{SubjectID: 10000000, ObjectID: 10000003, Type: "artist"},
	}
	if err := f.rel.InsertRelations(ctx, rows); err != nil {
		t.Fatal(err)
	}

	groups, err := f.co.Relations(ctx, "art", "sunrise", "")
	if err != nil {
		t.Fatalf("Relations: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if groups[0].Type != "museum" || groups[1].Type != "artist" {
		t.Errorf("group order = [%s %s], want [museum artist]", groups[0].Type, groups[1].Type)
	}
	if len(groups[0].Data) != 1 || groups[0].Data[0].ID() != 10000005 {
		t.Errorf("museum group = %+v, want single louvre entry", groups[0].Data)
	}
	if len(groups[1].Data) != 2 {
		t.Fatalf("artist group has %d entries, want 2 (one per row)", len(groups[1].Data))
	}
	for i, entry := range groups[1].Data {
		if entry.ID() != 10000003 {
			t.Errorf("artist entry %d id = %d, want 10000003", i, entry.ID())
		}
	}

	// Joined objects carry only display attributes.
	if _, ok := groups[1].Data[0]["username"]; ok {
		t.Error("joined object leaked a non-display attribute")
	}
	if _, ok := groups[1].Data[0]["name"]; !ok {
		t.Error("joined object missing display attribute name")
	}
}

func TestRelationsSameObjectDistinctTypes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.docs.Seed("art", docstore.Document{"id": int64(10000000), "username": "judith"})
	seedArtizen(f, 10000009, "nga", "National Gallery")
	seedArtizen(f, 10000003, "caravaggio", "Caravaggio")
	seedArtizen(f, 10000002, "leonardo", "Leonardo")

	// The same object under two relation types keeps both groups; only the
	// batch fetch deduplicates the object id.
	rows := []relstore.Relation{
		{SubjectID: 10000000, ObjectID: 10000009, Type: "museum"},
		{SubjectID: 10000000, ObjectID: 10000009, Type: "exhibition"},
		{SubjectID: 10000000, ObjectID: 10000003, Type: "artist"},
		{SubjectID: 10000000, ObjectID: 10000002, Type: "artist"},
	}
	if err := f.rel.InsertRelations(ctx, rows); err != nil {
		t.Fatal(err)
	}

	groups, err := f.co.Relations(ctx, "art", "judith", "")
	if err != nil {
		t.Fatalf("Relations: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(groups))
	}

	// Rows order object id descending with the newest row first among
	// equals, so the nga rows lead with exhibition ahead of museum.
	wantTypes := []string{"exhibition", "museum", "artist"}
	for i, want := range wantTypes {
		if groups[i].Type != want {
			t.Errorf("groups[%d].Type = %q, want %q", i, groups[i].Type, want)
		}
	}
	if len(groups[0].Data) != 1 || groups[0].Data[0].ID() != 10000009 {
		t.Errorf("exhibition group = %+v, want single nga entry", groups[0].Data)
	}
	if len(groups[1].Data) != 1 || groups[1].Data[0].ID() != 10000009 {
		t.Errorf("museum group = %+v, want single nga entry", groups[1].Data)
	}
	if len(groups[2].Data) != 2 {
		t.Errorf("artist group has %d entries, want 2", len(groups[2].Data))
	}
}

func TestRelationsTypeFilter(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.docs.Seed("art", docstore.Document{"id": int64(10000000), "username": "sunrise"})
	seedArtizen(f, 10000005, "louvre", "Louvre")
	seedArtizen(f, 10000003, "monet", "Claude Monet")
	f.rel.InsertRelations(ctx, []relstore.Relation{
		{SubjectID: 10000000, ObjectID: 10000005, Type: "museum"},
		{SubjectID: 10000000, ObjectID: 10000003, Type: "artist"},
	})

	groups, err := f.co.Relations(ctx, "art", "sunrise", "artist")
	if err != nil {
		t.Fatalf("Relations: %v", err)
	}
	if len(groups) != 1 || groups[0].Type != "artist" {
		t.Fatalf("groups = %+v, want single artist group", groups)
	}
}

func TestRelationsDanglingDropped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.docs.Seed("art", docstore.Document{"id": int64(10000000), "username": "sunrise"})
	seedArtizen(f, 10000003, "monet", "Claude Monet")
	f.rel.InsertRelations(ctx, []relstore.Relation{
		{SubjectID: 10000000, ObjectID: 10000003, Type: "artist"},
		{SubjectID: 10000000, ObjectID: 10000009, Type: "artist"},
	})

	groups, err := f.co.Relations(ctx, "art", "sunrise", "")
	if err != nil {
		t.Fatalf("Relations: %v", err)
	}
	if len(groups) != 1 || len(groups[0].Data) != 1 {
		t.Fatalf("groups = %+v, want artist group with only the live entry", groups)
	}
	if groups[0].Data[0].ID() != 10000003 {
		t.Errorf("surviving entry id = %d, want 10000003", groups[0].Data[0].ID())
	}
}

func TestRelationsEmpty(t *testing.T) {
	f := newFixture()
	f.docs.Seed("artizen", docstore.Document{"id": int64(10000000), "username": "monet"})

	groups, err := f.co.Relations(context.Background(), "artizen", "monet", "")
	if err != nil {
		t.Fatalf("Relations: %v", err)
	}
	if groups == nil || len(groups) != 0 {
		t.Errorf("groups = %#v, want empty non-nil slice", groups)
	}
}

func TestRelationsSubjectMissing(t *testing.T) {
	f := newFixture()
	_, err := f.co.Relations(context.Background(), "art", "ghost", "")
	if !errors.Is(err, ErrSubjectNotFound) {
		t.Fatalf("err = %v, want ErrSubjectNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.co.Create(ctx, "artizen", artizenRequest("monet", "Claude Monet")); err != nil {
		t.Fatal(err)
	}
	art, err := f.co.Create(ctx, "art", artRequest("sunrise", "Sunrise",
		RelationInput{Identifier: "monet", Type: "artist"},
	))
	if err != nil {
		t.Fatal(err)
	}

	if err := f.co.Delete(ctx, "art", "sunrise"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := f.co.Get(ctx, "art", "sunrise"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	for _, row := range f.rel.Rows() {
		if row.SubjectID == art.ID {
			t.Errorf("subject row survived delete: %+v", row)
		}
	}
	if f.rel.Reserved("sunrise") {
		t.Error("username still reserved after delete")
	}
	if f.search.Indexed("art", art.ID) != nil {
		t.Error("mirror entry survived delete")
	}
}

func TestDeleteLeavesObjectRowsDangling(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.co.Create(ctx, "artizen", artizenRequest("monet", "Claude Monet")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.co.Create(ctx, "art", artRequest("sunrise", "Sunrise",
		RelationInput{Identifier: "monet", Type: "artist"},
	)); err != nil {
		t.Fatal(err)
	}

	// Monet is the object of the art's rows, not the subject. Deleting the
	// artizen leaves those rows behind.
	if err := f.co.Delete(ctx, "artizen", "monet"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(f.rel.Rows()) != 1 {
		t.Fatalf("rows = %+v, want the art's dangling row kept", f.rel.Rows())
	}

	// The joined read tolerates the dangling row.
	groups, err := f.co.Relations(ctx, "art", "sunrise", "")
	if err != nil {
		t.Fatalf("Relations: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("groups = %+v, want none (object gone)", groups)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	f := newFixture()
	if err := f.co.Delete(context.Background(), "art", "never-existed"); err != nil {
		t.Fatalf("Delete of absent entity = %v, want nil", err)
	}
}

func TestDeleteUnknownKind(t *testing.T) {
	f := newFixture()
	err := f.co.Delete(context.Background(), "gallery", "monet")
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
}

func TestResolveAllMixed(t *testing.T) {
	f := newFixture()
	seedArtizen(f, 10000001, "louvre", "Louvre")
	seedArtizen(f, 10000002, "monet", "Claude Monet")

	results, err := f.co.resolveAll(context.Background(), "artizen",
		[]string{"monet", "ghost", "louvre"})
	if err != nil {
		t.Fatalf("resolveAll: %v", err)
	}
	want := []Resolution{
		{Username: "monet", ID: 10000002, Found: true},
		{Username: "ghost"},
		{Username: "louvre", ID: 10000001, Found: true},
	}
	if !reflect.DeepEqual(results, want) {
		t.Errorf("results = %+v, want %+v", results, want)
	}
}
