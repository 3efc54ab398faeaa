package backup

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"markpilot/internal/bookmarks"
	"markpilot/internal/model"
)

// ImportNetscape parses Netscape bookmark HTML, the export format every
// browser writes, and creates its folders and bookmarks under parentID.
// Unlike Import this is additive: nothing is cleared first. Returns the
// number of bookmarks created.
func (b *Backup) ImportNetscape(ctx context.Context, r io.Reader, parentID string) (int, error) {
	forest, err := ParseNetscape(r)
	if err != nil {
		return 0, fmt.Errorf("parse bookmark html: %w", err)
	}

	count := 0
	var place func(parentID string, nodes []model.BookmarkNode) error
	place = func(parentID string, nodes []model.BookmarkNode) error {
		for _, node := range nodes {
			created, err := b.tree.Create(ctx, bookmarks.CreateParams{
				ParentID: parentID,
				Title:    node.Title,
				URL:      node.URL,
			})
			if err != nil {
				return fmt.Errorf("import %q: %w", node.Title, err)
			}
			if node.URL != "" {
				count++
			}
			if err := place(created.ID, node.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := place(parentID, forest); err != nil {
		return count, err
	}
	return count, nil
}

// ParseNetscape parses Netscape bookmark HTML into a forest. The format
// nests <DL> lists where an <H3> names a folder and an <A> a bookmark;
// IDs are left empty, they are assigned on creation.
func ParseNetscape(r io.Reader) ([]model.BookmarkNode, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	root := &model.BookmarkNode{}
	stack := []*model.BookmarkNode{root}
	var pending *model.BookmarkNode

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "h3":
				title := textContent(n)
				if title != "" {
					top := stack[len(stack)-1]
					top.Children = append(top.Children, model.BookmarkNode{Title: title})
					pending = &top.Children[len(top.Children)-1]
				}
				return

			case "a":
				href := attr(n, "href")
				if href == "" {
					return
				}
				title := textContent(n)
				if title == "" {
					title = href
				}
				top := stack[len(stack)-1]
				top.Children = append(top.Children, model.BookmarkNode{Title: title, URL: href})
				return

			case "dl":
				pushed := false
				if pending != nil {
					stack = append(stack, pending)
					pending = nil
					pushed = true
				}
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c)
				}
				if pushed {
					stack = stack[:len(stack)-1]
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return root.Children, nil
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(b.String())
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
