package bookmarks

import (
	"context"
	"errors"
	"testing"

	"markpilot/internal/model"
	"markpilot/internal/storage"
)

func newTestService(t *testing.T) *SQLite {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLite(db)
}

func TestPermanentRoots(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	tree, err := svc.GetTree(ctx)
	if err != nil {
		t.Fatalf("get tree: %v", err)
	}
	if len(tree) != 2 {
		t.Fatalf("len(tree) = %d, want 2 permanent roots", len(tree))
	}
	if tree[0].Title != "Bookmarks Bar" || tree[1].Title != "Other Bookmarks" {
		t.Errorf("roots = %q, %q", tree[0].Title, tree[1].Title)
	}
	for _, root := range tree {
		if !root.IsFolder() {
			t.Errorf("root %q is not a folder", root.Title)
		}
	}
}

func TestCreateAndSubTree(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	folder, err := svc.Create(ctx, CreateParams{ParentID: "1", Title: "Tech"})
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}
	if !folder.IsFolder() {
		t.Fatal("created folder has a URL")
	}

	bm, err := svc.Create(ctx, CreateParams{ParentID: folder.ID, Title: "Go", URL: "https://go.dev"})
	if err != nil {
		t.Fatalf("create bookmark: %v", err)
	}

	sub, err := svc.GetSubTree(ctx, folder.ID)
	if err != nil {
		t.Fatalf("subtree: %v", err)
	}
	if len(sub.Children) != 1 || sub.Children[0].ID != bm.ID {
		t.Errorf("subtree children = %+v", sub.Children)
	}

	// Creating under a bookmark must fail.
	if _, err := svc.Create(ctx, CreateParams{ParentID: bm.ID, Title: "x"}); err == nil {
		t.Error("expected error creating under a bookmark")
	}

	// Creating under a missing parent must fail.
	if _, err := svc.Create(ctx, CreateParams{ParentID: "nope", Title: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestChildOrdering(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	titles := []string{"first", "second", "third"}
	for _, title := range titles {
		if _, err := svc.Create(ctx, CreateParams{ParentID: "1", Title: title, URL: "https://" + title + ".com"}); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}

	sub, err := svc.GetSubTree(ctx, "1")
	if err != nil {
		t.Fatalf("subtree: %v", err)
	}
	for i, want := range titles {
		if sub.Children[i].Title != want {
			t.Errorf("child[%d] = %q, want %q", i, sub.Children[i].Title, want)
		}
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	folder, _ := svc.Create(ctx, CreateParams{ParentID: "1", Title: "Tech"})
	bm, _ := svc.Create(ctx, CreateParams{ParentID: folder.ID, Title: "Go", URL: "https://go.dev"})

	if err := svc.Remove(ctx, folder.ID); !errors.Is(err, ErrNotEmpty) {
		t.Errorf("remove non-empty folder: err = %v, want ErrNotEmpty", err)
	}
	if err := svc.Remove(ctx, bm.ID); err != nil {
		t.Fatalf("remove leaf: %v", err)
	}
	if err := svc.Remove(ctx, folder.ID); err != nil {
		t.Fatalf("remove now-empty folder: %v", err)
	}
	if err := svc.Remove(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("remove missing: err = %v, want ErrNotFound", err)
	}
}

func TestRemoveTree(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	folder, _ := svc.Create(ctx, CreateParams{ParentID: "1", Title: "Tech"})
	nested, _ := svc.Create(ctx, CreateParams{ParentID: folder.ID, Title: "Go"})
	_, _ = svc.Create(ctx, CreateParams{ParentID: nested.ID, Title: "Docs", URL: "https://go.dev/doc"})

	if err := svc.RemoveTree(ctx, folder.ID); err != nil {
		t.Fatalf("remove tree: %v", err)
	}
	if _, err := svc.GetSubTree(ctx, nested.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("descendant survived: err = %v", err)
	}

	tree, _ := svc.GetTree(ctx)
	if len(tree[0].Children) != 0 {
		t.Errorf("root still has children: %+v", tree[0].Children)
	}
}

func TestMove(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	a, _ := svc.Create(ctx, CreateParams{ParentID: "1", Title: "A"})
	b, _ := svc.Create(ctx, CreateParams{ParentID: "1", Title: "B"})
	bm, _ := svc.Create(ctx, CreateParams{ParentID: a.ID, Title: "Go", URL: "https://go.dev"})

	if err := svc.Move(ctx, bm.ID, b.ID); err != nil {
		t.Fatalf("move: %v", err)
	}

	subA, _ := svc.GetSubTree(ctx, a.ID)
	subB, _ := svc.GetSubTree(ctx, b.ID)
	if len(subA.Children) != 0 || len(subB.Children) != 1 {
		t.Errorf("after move: A has %d, B has %d children", len(subA.Children), len(subB.Children))
	}

	if err := svc.Move(ctx, bm.ID, bm.ID); err == nil {
		t.Error("expected error moving into a bookmark")
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, _ = svc.Create(ctx, CreateParams{ParentID: "1", Title: "Go Blog", URL: "https://go.dev/blog"})
	_, _ = svc.Create(ctx, CreateParams{ParentID: "1", Title: "Rust Book", URL: "https://doc.rust-lang.org"})
	_, _ = svc.Create(ctx, CreateParams{ParentID: "1", Title: "Go Folder"}) // folder, never matched

	hits, err := svc.Search(ctx, "go")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Title != "Go Blog" {
		t.Errorf("hits = %+v", hits)
	}

	hits, _ = svc.Search(ctx, "rust-lang")
	if len(hits) != 1 {
		t.Errorf("URL search hits = %+v", hits)
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	bm, _ := svc.Create(ctx, CreateParams{ParentID: "1", Title: "", URL: "https://go.dev"})
	if err := svc.Update(ctx, bm.ID, "Go"); err != nil {
		t.Fatalf("update: %v", err)
	}

	var found *model.BookmarkNode
	sub, _ := svc.GetSubTree(ctx, "1")
	for i := range sub.Children {
		if sub.Children[i].ID == bm.ID {
			found = &sub.Children[i]
		}
	}
	if found == nil || found.Title != "Go" {
		t.Errorf("updated node = %+v", found)
	}

	if err := svc.Update(ctx, "gone", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing: err = %v", err)
	}
}
