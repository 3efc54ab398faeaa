package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"markpilot/internal/bookmarks"
	"markpilot/internal/model"
	"markpilot/internal/progress"
)

// fakeTree is an in-memory bookmarks.Service backed by a parent map.
type fakeTree struct {
	nodes   map[string]*model.BookmarkNode
	parents map[string]string
	order   []string
	nextID  int

	failRemove map[string]error
}

func newFakeTree() *fakeTree {
	f := &fakeTree{
		nodes:      make(map[string]*model.BookmarkNode),
		parents:    make(map[string]string),
		failRemove: make(map[string]error),
	}
	f.nodes["1"] = &model.BookmarkNode{ID: "1", Title: "Bookmarks Bar"}
	f.nodes["2"] = &model.BookmarkNode{ID: "2", Title: "Other Bookmarks"}
	f.order = []string{"1", "2"}
	return f
}

func (f *fakeTree) add(parentID, title, url string) string {
	f.nextID++
	id := "n" + strconv.Itoa(f.nextID)
	f.nodes[id] = &model.BookmarkNode{ID: id, Title: title, URL: url}
	f.parents[id] = parentID
	f.order = append(f.order, id)
	return id
}

func (f *fakeTree) childrenOf(id string) []model.BookmarkNode {
	var out []model.BookmarkNode
	for _, cid := range f.order {
		if f.parents[cid] != id {
			continue
		}
		child := *f.nodes[cid]
		child.Children = f.childrenOf(cid)
		out = append(out, child)
	}
	return out
}

func (f *fakeTree) GetTree(ctx context.Context) ([]model.BookmarkNode, error) {
	var roots []model.BookmarkNode
	for _, id := range []string{"1", "2"} {
		root := *f.nodes[id]
		root.Children = f.childrenOf(id)
		roots = append(roots, root)
	}
	return roots, nil
}

func (f *fakeTree) GetSubTree(ctx context.Context, id string) (*model.BookmarkNode, error) {
	n, ok := f.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s not found", id)
	}
	node := *n
	node.Children = f.childrenOf(id)
	return &node, nil
}

func (f *fakeTree) Create(ctx context.Context, p bookmarks.CreateParams) (*model.BookmarkNode, error) {
	if _, ok := f.nodes[p.ParentID]; !ok {
		return nil, fmt.Errorf("parent %s not found", p.ParentID)
	}
	id := f.add(p.ParentID, p.Title, p.URL)
	return f.nodes[id], nil
}

func (f *fakeTree) Remove(ctx context.Context, id string) error { return f.RemoveTree(ctx, id) }

func (f *fakeTree) RemoveTree(ctx context.Context, id string) error {
	if err := f.failRemove[id]; err != nil {
		return err
	}
	for _, child := range f.childrenOf(id) {
		if err := f.RemoveTree(ctx, child.ID); err != nil {
			return err
		}
	}
	delete(f.nodes, id)
	delete(f.parents, id)
	for i, oid := range f.order {
		if oid == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeTree) Move(ctx context.Context, id, parentID string) error {
	f.parents[id] = parentID
	return nil
}

func (f *fakeTree) Search(ctx context.Context, query string) ([]model.BookmarkNode, error) {
	return nil, nil
}

func (f *fakeTree) Update(ctx context.Context, id, title string) error {
	f.nodes[id].Title = title
	return nil
}

type fakeCategorizer struct {
	categories model.CategoryMap
	err        error
}

func (c *fakeCategorizer) CategorizeBatch(ctx context.Context, batch []model.FlatBookmark) (model.CategoryMap, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make(model.CategoryMap)
	for _, b := range batch {
		if cat, ok := c.categories[b.ID]; ok {
			out[b.ID] = cat
		}
	}
	return out, nil
}

// foldersUnder maps folder title to the sorted URLs it contains.
func foldersUnder(t *testing.T, f *fakeTree, rootID string) map[string][]string {
	t.Helper()
	root, err := f.GetSubTree(context.Background(), rootID)
	if err != nil {
		t.Fatalf("GetSubTree(%s): %v", rootID, err)
	}
	out := make(map[string][]string)
	for _, folder := range root.Children {
		var urls []string
		for _, b := range folder.Children {
			urls = append(urls, b.URL)
		}
		sort.Strings(urls)
		out[folder.Title] = urls
	}
	return out
}

func TestOrganizerRun(t *testing.T) {
	tree := newFakeTree()
	a := tree.add("1", "Go Blog", "https://go.dev/blog")
	b := tree.add("1", "BBC", "https://bbc.com/news")
	tree.add("2", "Old folder", "")
	tree.add("2", "No home", "https://example.org/odd")

	org := NewOrganizer(tree, &fakeCategorizer{categories: model.CategoryMap{
		a: "Tech",
		b: "News",
	}}, 2, 2, progress.Nop{})

	if err := org.Run(context.Background(), []string{"1", "2"}, "2"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := map[string][]string{
		"News":              {"https://bbc.com/news"},
		"Tech":              {"https://go.dev/blog"},
		UncategorizedFolder: {"https://example.org/odd"},
	}
	if diff := cmp.Diff(want, foldersUnder(t, tree, "2")); diff != "" {
		t.Errorf("rebuilt tree mismatch (-want +got):\n%s", diff)
	}

	// The other root must be empty and the permanent roots intact.
	bar, err := tree.GetSubTree(context.Background(), "1")
	if err != nil {
		t.Fatalf("GetSubTree(1): %v", err)
	}
	if len(bar.Children) != 0 {
		t.Errorf("root 1 still has %d children after run", len(bar.Children))
	}
}

func TestOrganizerRunEmptyTree(t *testing.T) {
	tree := newFakeTree()
	tree.add("1", "Folder without bookmarks", "")

	org := NewOrganizer(tree, &fakeCategorizer{}, 10, 2, progress.Nop{})
	if err := org.Run(context.Background(), []string{"1", "2"}, "2"); !errors.Is(err, ErrNoBookmarks) {
		t.Fatalf("Run = %v, want ErrNoBookmarks", err)
	}
	// Nothing may be cleared on the empty-tree bail-out.
	if _, ok := tree.nodes["n1"]; !ok {
		t.Error("folder removed despite no-op run")
	}
}

func TestOrganizerRunCategorizerFailure(t *testing.T) {
	tree := newFakeTree()
	tree.add("1", "Go Blog", "https://go.dev/blog")
	tree.add("1", "BBC", "https://bbc.com/news")

	var sink progress.Buffer
	org := NewOrganizer(tree, &fakeCategorizer{err: errors.New("api down")}, 10, 2, &sink)
	if err := org.Run(context.Background(), []string{"1", "2"}, "2"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Everything lands in the fallback folder when no batch succeeds.
	want := map[string][]string{
		UncategorizedFolder: {"https://bbc.com/news", "https://go.dev/blog"},
	}
	if diff := cmp.Diff(want, foldersUnder(t, tree, "2")); diff != "" {
		t.Errorf("rebuilt tree mismatch (-want +got):\n%s", diff)
	}
}

func TestClearAllSkipsFailingChildren(t *testing.T) {
	tree := newFakeTree()
	locked := tree.add("1", "Locked", "https://locked.example.com")
	tree.add("1", "Removable", "https://ok.example.com")
	tree.failRemove[locked] = errors.New("permission denied")

	var sink progress.Buffer
	org := NewOrganizer(tree, &fakeCategorizer{}, 10, 2, &sink)
	if err := org.ClearAll(context.Background(), []string{"1"}); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	if _, ok := tree.nodes[locked]; !ok {
		t.Error("locked node was removed")
	}
	root, _ := tree.GetSubTree(context.Background(), "1")
	if len(root.Children) != 1 {
		t.Errorf("root has %d children, want only the locked one", len(root.Children))
	}

	errored := false
	for _, ev := range sink.Events() {
		if ev.Kind == progress.KindError {
			errored = true
		}
	}
	if !errored {
		t.Error("no error event published for the failed removal")
	}
}

func TestRebuildDedupsAgain(t *testing.T) {
	tree := newFakeTree()
	org := NewOrganizer(tree, &fakeCategorizer{}, 10, 2, progress.Nop{})

	list := []model.FlatBookmark{
		{ID: "x", Title: "One", URL: "https://example.com/a"},
		{ID: "y", Title: "Dup", URL: "https://example.com/a"},
		{ID: "z", Title: "Two", URL: "https://example.com/b"},
	}
	cats := model.CategoryMap{"x": "Tech", "z": "Tech"}

	if err := org.Rebuild(context.Background(), cats, list, "2"); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	want := map[string][]string{
		"Tech": {"https://example.com/a", "https://example.com/b"},
	}
	if diff := cmp.Diff(want, foldersUnder(t, tree, "2")); diff != "" {
		t.Errorf("rebuilt tree mismatch (-want +got):\n%s", diff)
	}
}
