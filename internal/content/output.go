package content

import (
	"context"
	"fmt"

	"github.com/KuchtaVR6/Learnopedia-sub000/internal/lessonpart"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/store"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/util"
)

// MetaOutput is the display projection of one node without its children.
type MetaOutput struct {
	ID           int64             `json:"id"`
	Type         store.ContentKind `json:"type"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Keywords     []string          `json:"keywords"`
	SeqNumber    int64             `json:"seqNumber"`
	DateCreated  string            `json:"dateCreated"`
	DateModified string            `json:"dateModified"`
	Authors      string            `json:"authors"`
	Views        int64             `json:"views"`
	Upvotes      int64             `json:"upvotes"`
	Downvotes    int64             `json:"downvotes"`
}

// FullOutput is a node with its visible descendants, ordered by sequence
// number. Lessons carry parts instead of children.
type FullOutput struct {
	MetaOutput
	Children []FullOutput        `json:"children,omitempty"`
	Parts    []lessonpart.Output `json:"parts,omitempty"`
}

// Meta projects a node for display. Requires a full fetch for the author
// count.
func (m *Manager) Meta(ctx context.Context, n *Node) (MetaOutput, error) {
	if err := m.lock(ctx); err != nil {
		return MetaOutput{}, err
	}
	defer m.unlock()
	return m.meta(ctx, n)
}

func (m *Manager) meta(ctx context.Context, n *Node) (MetaOutput, error) {
	if !n.fullyFetched {
		return MetaOutput{}, ErrNotFetched
	}
	rows, err := m.keywords.For(ctx, n.id)
	if err != nil {
		return MetaOutput{}, err
	}
	words := make([]string, 0, len(rows))
	for _, row := range rows {
		words = append(words, row.Word)
	}

	authors := make(map[int64]struct{})
	for _, a := range n.amendments {
		if !a.Applied() || a.Vetoed() {
			continue
		}
		if id := a.AuthorID(); id != nil {
			authors[*id] = struct{}{}
		}
	}

	return MetaOutput{
		ID:           n.id,
		Type:         n.kind,
		Name:         n.name,
		Description:  n.description,
		Keywords:     words,
		SeqNumber:    n.seqNumber,
		DateCreated:  util.FormatDate(n.createdAt),
		DateModified: util.FormatDate(n.modifiedAt),
		Authors:      util.FormatAuthorCount(len(authors)),
		Views:        n.views,
		Upvotes:      n.upvotes,
		Downvotes:    n.downvotes,
	}, nil
}

// Full projects a node and its whole visible subtree and counts one view
// on the node itself. Hidden nodes are not navigable.
func (m *Manager) Full(ctx context.Context, id int64) (FullOutput, error) {
	if err := m.lock(ctx); err != nil {
		return FullOutput{}, err
	}
	defer m.unlock()
	n, err := m.fetchFull(ctx, id)
	if err != nil {
		return FullOutput{}, err
	}
	if !n.public {
		return FullOutput{}, fmt.Errorf("content %d: %w", id, ErrNotNavigable)
	}
	out, err := m.project(ctx, n)
	if err != nil {
		return FullOutput{}, err
	}
	if err := m.registerView(ctx, n); err != nil {
		return FullOutput{}, err
	}
	return out, nil
}

// Outline projects the subtree without the navigability check and without
// counting a view, for archival snapshots and internal tooling.
func (m *Manager) Outline(ctx context.Context, id int64) (FullOutput, error) {
	if err := m.lock(ctx); err != nil {
		return FullOutput{}, err
	}
	defer m.unlock()
	n, err := m.fetchFull(ctx, id)
	if err != nil {
		return FullOutput{}, err
	}
	return m.project(ctx, n)
}

func (m *Manager) project(ctx context.Context, n *Node) (FullOutput, error) {
	meta, err := m.meta(ctx, n)
	if err != nil {
		return FullOutput{}, err
	}
	out := FullOutput{MetaOutput: meta}

	if n.kind == store.KindLesson {
		parts, err := m.parts(ctx, n.id)
		if err != nil {
			return FullOutput{}, err
		}
		for _, part := range parts {
			out.Parts = append(out.Parts, lessonpart.Display(part))
		}
		return out, nil
	}

	for _, e := range n.children.ordered() {
		child, err := m.fetchFull(ctx, e.id)
		if err != nil {
			return FullOutput{}, err
		}
		if !child.public {
			continue
		}
		sub, err := m.project(ctx, child)
		if err != nil {
			return FullOutput{}, err
		}
		out.Children = append(out.Children, sub)
	}
	return out, nil
}
