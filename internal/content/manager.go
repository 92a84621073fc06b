package content

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/KuchtaVR6/Learnopedia-sub000/internal/cache"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/keyword"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/lessonpart"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/store"
)

// ViewSink receives view count increments. The default sink writes them to
// the record store immediately; deployments under heavy read load swap in
// a staging buffer that flushes periodically.
type ViewSink interface {
	Add(ctx context.Context, contentID, delta int64) error
}

type storeViews struct{ s Store }

func (v storeViews) Add(ctx context.Context, contentID, delta int64) error {
	return v.s.AddContentViews(ctx, contentID, delta)
}

// NewStoreViews returns the pass-through sink backed by the record store.
func NewStoreViews(s Store) ViewSink { return storeViews{s: s} }

// Manager owns the in-memory content graph. Nodes and amendments are
// cached with sliding TTLs; everything durable goes through the Store.
// Every exported operation, reads included, is serialised by a single
// lock: mutators rewrite shared node state in place, so sibling
// invariants like sequence-number uniqueness hold without store-level
// constraints and readers never observe a half-applied amendment.
type Manager struct {
	store      Store
	keywords   *keyword.Registry
	nodes      *cache.Cache[*Node]
	amendments *cache.Cache[Amendment]
	views      ViewSink
	now        func() time.Time

	mu chan struct{} // 1-slot semaphore, context-aware lock
}

func NewManager(s Store, kw *keyword.Registry, nodes *cache.Cache[*Node], amendments *cache.Cache[Amendment], views ViewSink) *Manager {
	if views == nil {
		views = storeViews{s: s}
	}
	m := &Manager{
		store:      s,
		keywords:   kw,
		nodes:      nodes,
		amendments: amendments,
		views:      views,
		now:        time.Now,
		mu:         make(chan struct{}, 1),
	}
	return m
}

func (m *Manager) lock(ctx context.Context) error {
	select {
	case m.mu <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) unlock() { <-m.mu }

// Keywords exposes the registry for read paths such as search boosting.
func (m *Manager) Keywords() *keyword.Registry { return m.keywords }

func notFound(id int64, err error) error {
	if errors.Is(err, store.ErrNoRow) {
		return fmt.Errorf("content %d: %w", id, ErrNotFound)
	}
	return err
}

// FetchPartial resolves the cross-cutting columns of a node without its
// children or history.
func (m *Manager) FetchPartial(ctx context.Context, id int64) (*Node, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.unlock()
	return m.fetchPartial(ctx, id)
}

func (m *Manager) fetchPartial(ctx context.Context, id int64) (*Node, error) {
	return m.nodes.GetOrLoad(ctx, id, func(ctx context.Context, id int64) (*Node, error) {
		row, err := m.store.GetContent(ctx, id)
		if err != nil {
			return nil, notFound(id, err)
		}
		return nodeFromRow(row), nil
	})
}

// FetchFull resolves a node with its ordered child list and complete
// amendment history. Child nodes land in the cache partially fetched.
func (m *Manager) FetchFull(ctx context.Context, id int64) (*Node, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.unlock()
	return m.fetchFull(ctx, id)
}

func (m *Manager) fetchFull(ctx context.Context, id int64) (*Node, error) {
	n, err := m.fetchPartial(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.fullyFetched {
		return n, nil
	}

	children := newChildList(childListKindFor(n.kind))
	if n.kind == store.KindLesson {
		parts, err := m.store.ListLessonParts(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list lesson parts: %w", err)
		}
		for _, part := range parts {
			if part.Hidden {
				continue
			}
			if err := children.put(part.SeqNumber, part.ID); err != nil {
				return nil, fmt.Errorf("lesson %d part %d at %d: %w", id, part.ID, part.SeqNumber, ErrCritical)
			}
		}
	} else {
		rows, err := m.store.ListChildren(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list children: %w", err)
		}
		for _, row := range rows {
			if _, ok := m.nodes.Get(row.ID); !ok {
				m.nodes.Set(row.ID, nodeFromRow(row))
			}
			// Hidden children keep their rows and cache entries but hold
			// no sequence slot.
			if !row.Public {
				continue
			}
			if err := children.put(row.SeqNumber, row.ID); err != nil {
				return nil, fmt.Errorf("content %d child %d at %d: %w", id, row.ID, row.SeqNumber, ErrCritical)
			}
		}
	}

	rows, err := m.store.ListAmendmentsForContent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list amendments: %w", err)
	}
	history := make([]Amendment, 0, len(rows))
	for _, row := range rows {
		a, err := amendmentFromRow(row)
		if err != nil {
			// Legacy rows stay in the table but cannot participate in the
			// live history.
			log.Printf("content: skipping amendment %d: %v", row.ID, err)
			continue
		}
		history = append(history, a)
		m.amendments.Set(row.ID, a)
	}

	n.children = children
	n.amendments = history
	n.fullyFetched = true
	return n, nil
}

// Amendment resolves one amendment by id, through the cache.
func (m *Manager) Amendment(ctx context.Context, id int64) (Amendment, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.unlock()
	return m.amendment(ctx, id)
}

func (m *Manager) amendment(ctx context.Context, id int64) (Amendment, error) {
	return m.amendments.GetOrLoad(ctx, id, func(ctx context.Context, id int64) (Amendment, error) {
		row, err := m.store.GetAmendment(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNoRow) {
				return nil, fmt.Errorf("amendment %d: %w", id, ErrNotFound)
			}
			return nil, err
		}
		return amendmentFromRow(row)
	})
}

// persist inserts the amendment row and stamps the in-memory id.
func (m *Manager) persist(ctx context.Context, a Amendment) error {
	id, err := m.store.InsertAmendment(ctx, a.row())
	if err != nil {
		return fmt.Errorf("insert amendment: %w", err)
	}
	a.base().id = id
	m.amendments.Set(id, a)
	return nil
}

func (m *Manager) markApplied(ctx context.Context, a Amendment) error {
	if err := m.store.MarkAmendmentApplied(ctx, a.ID()); err != nil {
		return fmt.Errorf("mark amendment applied: %w", err)
	}
	a.base().applied = true
	return nil
}

// CreationParams describes a new node proposal. A nil SeqNumber appends
// one stride past the current tail.
type CreationParams struct {
	Kind        store.ContentKind
	ParentID    *int64
	Name        string
	Description string
	SeqNumber   *int64
	Keywords    []store.KeywordSeed
}

// CreateNode validates, persists and applies a creation amendment,
// returning it with the new node id as its target.
func (m *Manager) CreateNode(ctx context.Context, authorID *int64, p CreationParams) (Amendment, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.unlock()

	switch p.Kind {
	case store.KindCourse, store.KindChapter, store.KindLesson:
	default:
		return nil, fmt.Errorf("content kind %q: %w", p.Kind, ErrInvalidArgument)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("name: %w", ErrInvalidArgument)
	}
	if p.Kind == store.KindCourse && p.ParentID != nil {
		return nil, fmt.Errorf("course: %w", ErrHasNoParent)
	}
	if p.Kind != store.KindCourse && p.ParentID == nil {
		return nil, fmt.Errorf("%s: %w", p.Kind, ErrNeedsParent)
	}
	for _, seed := range p.Keywords {
		if err := keyword.ValidateWord(seed.Word); err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrInvalidArgument)
		}
		if err := keyword.ValidateScore(seed.Score); err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrInvalidArgument)
		}
	}

	var parent *Node
	var seq int64
	if p.ParentID != nil {
		var err error
		parent, err = m.fetchFull(ctx, *p.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.kind != parentKindOf(p.Kind) {
			return nil, fmt.Errorf("%s under %s: %w", p.Kind, parent.kind, ErrWrongParent)
		}
		seq = m.chooseSeq(parent, p.SeqNumber)
		if !parent.children.vacant(seq) {
			return nil, fmt.Errorf("sequence number %d: %w", seq, ErrSequenceNumberTaken)
		}
	} else {
		seq = SeqStride
		if p.SeqNumber != nil {
			seq = *p.SeqNumber
		}
	}

	now := m.now()
	detail := store.CreationDetailRow{
		Name:        p.Name,
		Description: p.Description,
		SeqNumber:   seq,
		ContentKind: p.Kind,
		ParentID:    p.ParentID,
		Keywords:    p.Keywords,
	}
	a := newCreationAmendment(authorID, detail, now)
	if err := m.persist(ctx, a); err != nil {
		return nil, err
	}
	if err := m.applyCreation(ctx, a, parent); err != nil {
		return nil, err
	}
	return a, nil
}

func (m *Manager) chooseSeq(parent *Node, requested *int64) int64 {
	if requested != nil {
		return *requested
	}
	entries := parent.children.ordered()
	if len(entries) == 0 {
		return SeqStride
	}
	return entries[len(entries)-1].seq + SeqStride
}

func (m *Manager) applyCreation(ctx context.Context, a *CreationAmendment, parent *Node) error {
	if a.applied {
		return ErrAlreadyApplied
	}
	now := m.now()
	row := store.ContentRow{
		Kind:        a.Detail.ContentKind,
		ParentID:    a.Detail.ParentID,
		Name:        a.Detail.Name,
		Description: a.Detail.Description,
		SeqNumber:   a.Detail.SeqNumber,
		Public:      true,
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	id, specificID, err := m.store.InsertContent(ctx, row)
	if err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	if err := m.store.SetAmendmentTarget(ctx, a.ID(), id); err != nil {
		return fmt.Errorf("set amendment target: %w", err)
	}
	a.targetID = id

	for _, seed := range a.Detail.Keywords {
		if _, err := m.keywords.Attach(ctx, seed.Word, seed.Score, id); err != nil {
			return err
		}
	}

	row.ID = id
	row.SpecificID = specificID
	node := nodeFromRow(row)
	node.children = newChildList(childListKindFor(node.kind))
	node.fullyFetched = true
	node.appendAmendment(a)
	m.nodes.Set(id, node)

	if parent != nil {
		if err := parent.children.put(a.Detail.SeqNumber, id); err != nil {
			return err
		}
		parent.unbalanced = true
	}
	return m.markApplied(ctx, a)
}

// MetaParams carries the descriptive edits of a meta amendment. All fields
// are optional but at least one must be set.
type MetaParams struct {
	NewName           *string
	NewDescription    *string
	AddedKeywords     []store.KeywordSeed
	DeletedKeywordIDs []int64
}

// EditMeta validates, persists and applies a meta amendment against the
// target node.
func (m *Manager) EditMeta(ctx context.Context, authorID *int64, targetID int64, p MetaParams) (Amendment, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.unlock()

	n, err := m.fetchFull(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if p.NewName != nil && *p.NewName == "" {
		return nil, fmt.Errorf("name: %w", ErrInvalidArgument)
	}
	for _, seed := range p.AddedKeywords {
		if err := keyword.ValidateWord(seed.Word); err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrInvalidArgument)
		}
		if err := keyword.ValidateScore(seed.Score); err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrInvalidArgument)
		}
	}
	if len(p.DeletedKeywordIDs) > 0 {
		attached, err := m.keywords.For(ctx, targetID)
		if err != nil {
			return nil, err
		}
		owned := make(map[int64]struct{}, len(attached))
		for _, row := range attached {
			owned[row.ID] = struct{}{}
		}
		for _, id := range p.DeletedKeywordIDs {
			if _, ok := owned[id]; !ok {
				return nil, fmt.Errorf("keyword %d: %w", id, ErrInvalidArgument)
			}
		}
	}

	detail := store.MetaDetailRow{
		NewName:           p.NewName,
		NewDescription:    p.NewDescription,
		AddedKeywords:     p.AddedKeywords,
		DeletedKeywordIDs: p.DeletedKeywordIDs,
	}
	a, err := newMetaAmendment(authorID, targetID, n.kind, detail, m.now())
	if err != nil {
		return nil, err
	}
	if err := m.persist(ctx, a); err != nil {
		return nil, err
	}
	if err := m.applyMeta(ctx, a, n); err != nil {
		return nil, err
	}
	return a, nil
}

func (m *Manager) applyMeta(ctx context.Context, a *MetaAmendment, n *Node) error {
	if a.applied {
		return ErrAlreadyApplied
	}
	now := m.now()
	if a.Detail.NewName != nil || a.Detail.NewDescription != nil {
		if err := m.store.UpdateContentMeta(ctx, n.id, a.Detail.NewName, a.Detail.NewDescription, now); err != nil {
			return fmt.Errorf("update content meta: %w", err)
		}
		if a.Detail.NewName != nil {
			n.name = *a.Detail.NewName
		}
		if a.Detail.NewDescription != nil {
			n.description = *a.Detail.NewDescription
		}
	}
	for _, seed := range a.Detail.AddedKeywords {
		if _, err := m.keywords.Attach(ctx, seed.Word, seed.Score, n.id); err != nil {
			return err
		}
	}
	for _, id := range a.Detail.DeletedKeywordIDs {
		if err := m.keywords.Detach(ctx, id, n.id); err != nil {
			return err
		}
	}
	n.modifiedAt = now
	n.appendAmendment(a)
	return m.markApplied(ctx, a)
}

// Adopt moves contentID under newParentID. The caller's stake in the move
// is weight, which becomes the departure amendment's tariff. The engine
// constructs the mirroring receiver amendment itself and applies the move
// through it. The departure amendment is returned.
func (m *Manager) Adopt(ctx context.Context, authorID *int64, contentID, newParentID int64, weight int64) (Amendment, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.unlock()

	n, err := m.fetchFull(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if n.kind == store.KindCourse {
		return nil, fmt.Errorf("course: %w", ErrHasNoParent)
	}
	if n.parentID == newParentID {
		return nil, fmt.Errorf("already under %d: %w", newParentID, ErrInvalidArgument)
	}
	newParent, err := m.fetchFull(ctx, newParentID)
	if err != nil {
		return nil, err
	}
	if newParent.kind != parentKindOf(n.kind) {
		return nil, fmt.Errorf("%s under %s: %w", n.kind, newParent.kind, ErrWrongParent)
	}
	oldParent, err := m.fetchFull(ctx, n.parentID)
	if err != nil {
		return nil, err
	}
	if weight < 1 {
		weight = 1
	}

	now := m.now()
	departure := newAdoptionAmendment(authorID, contentID, store.AdoptionDetailRow{NewParentID: newParentID}, weight, now)
	receiver := newAdoptionAmendment(authorID, contentID, store.AdoptionDetailRow{NewParentID: newParentID, Receiver: true}, weight, now)
	if err := m.persist(ctx, departure); err != nil {
		return nil, err
	}
	if err := m.persist(ctx, receiver); err != nil {
		return nil, err
	}
	if err := m.getAdopted(ctx, receiver, n, oldParent, newParent); err != nil {
		return nil, err
	}
	if err := m.markApplied(ctx, departure); err != nil {
		return nil, err
	}
	n.appendAmendment(departure)
	return departure, nil
}

// getAdopted performs the reparent for a receiver-side adoption amendment.
// The node keeps its sequence number when that slot is free under the new
// parent, otherwise it takes the first vacant number above it.
func (m *Manager) getAdopted(ctx context.Context, a *AdoptionAmendment, n, oldParent, newParent *Node) error {
	if a.applied {
		return fmt.Errorf("adoption receiver: %w", ErrAlreadyApplied)
	}
	seq := n.seqNumber
	for !newParent.children.vacant(seq) {
		seq++
	}
	oldParent.children.remove(n.id)
	if err := newParent.children.put(seq, n.id); err != nil {
		return err
	}
	newParent.unbalanced = true

	if err := m.store.UpdateParent(ctx, n.id, newParent.id, seq); err != nil {
		return fmt.Errorf("update parent: %w", err)
	}
	n.parentID = newParent.id
	n.seqNumber = seq
	n.modifiedAt = m.now()

	if err := m.purgeListEdits(ctx, oldParent); err != nil {
		return err
	}
	n.appendAmendment(a)
	return m.markApplied(ctx, a)
}

// purgeListEdits vetoes pending list amendments on a node whose child set
// just changed underneath them.
func (m *Manager) purgeListEdits(ctx context.Context, n *Node) error {
	for _, a := range n.amendments {
		if a.Kind() != store.AmendmentList || a.Applied() || a.Vetoed() {
			continue
		}
		if err := m.store.MarkAmendmentVetoed(ctx, a.ID()); err != nil {
			return fmt.Errorf("veto list amendment: %w", err)
		}
		a.base().vetoed = true
	}
	return nil
}

// EditList validates, persists and applies a list amendment: a batch of
// child relocations and hides against one node, followed by a rebalance.
func (m *Manager) EditList(ctx context.Context, authorID *int64, targetID int64, changes []store.ListChangeRow) (Amendment, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.unlock()

	n, err := m.fetchFull(ctx, targetID)
	if err != nil {
		return nil, err
	}
	ok, err := n.CheckPaternity(changes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("list change references a foreign child: %w", ErrNotFound)
	}

	a, err := newListAmendment(authorID, targetID, n.kind, changes, m.now())
	if err != nil {
		return nil, err
	}
	if err := m.persist(ctx, a); err != nil {
		return nil, err
	}
	if err := m.applyList(ctx, a, n); err != nil {
		return nil, err
	}
	return a, nil
}

func (m *Manager) applyList(ctx context.Context, a *ListAmendment, n *Node) error {
	if a.applied {
		return ErrAlreadyApplied
	}
	moved := make(map[int64]int64)
	for _, change := range a.Changes {
		var childID int64
		if change.ChildContentID != nil {
			childID = *change.ChildContentID
		} else if change.LessonPartID != nil {
			childID = *change.LessonPartID
		}
		cur, ok := n.children.seqOf(childID)
		if !ok {
			return fmt.Errorf("child %d: %w", childID, ErrNotFound)
		}

		if change.Delete {
			if err := m.hideChild(ctx, n, childID); err != nil {
				return err
			}
			// A hidden child gives up its sequence slot; only visible
			// siblings take part in the rebalance below.
			n.children.remove(childID)
			continue
		}
		if change.NewSeqNumber == nil || *change.NewSeqNumber == cur {
			continue
		}
		if !n.children.vacant(*change.NewSeqNumber) {
			return fmt.Errorf("sequence number %d: %w", *change.NewSeqNumber, ErrSequenceNumberTaken)
		}
		n.children.remove(childID)
		if err := n.children.put(*change.NewSeqNumber, childID); err != nil {
			return err
		}
		moved[childID] = *change.NewSeqNumber
	}

	if len(moved) > 0 {
		if err := m.persistSeqs(ctx, n, moved); err != nil {
			return err
		}
	}
	n.unbalanced = true
	if err := m.balance(ctx, n); err != nil {
		return err
	}
	n.appendAmendment(a)
	return m.markApplied(ctx, a)
}

// hideChild removes a child from navigation without deleting its record.
func (m *Manager) hideChild(ctx context.Context, n *Node, childID int64) error {
	if n.kind == store.KindLesson {
		if err := m.store.SetLessonPartHidden(ctx, childID, true); err != nil {
			return fmt.Errorf("hide lesson part: %w", err)
		}
		return nil
	}
	if err := m.store.SetContentVisibility(ctx, childID, false); err != nil {
		return fmt.Errorf("hide content: %w", err)
	}
	if child, ok := m.nodes.Get(childID); ok {
		child.public = false
	}
	return nil
}

func (m *Manager) persistSeqs(ctx context.Context, n *Node, changes map[int64]int64) error {
	if n.kind == store.KindLesson {
		if err := m.store.UpdateLessonPartSeqs(ctx, changes); err != nil {
			return fmt.Errorf("update lesson part sequence numbers: %w", err)
		}
		return nil
	}
	if err := m.store.UpdateSequenceNumbers(ctx, changes); err != nil {
		return fmt.Errorf("update sequence numbers: %w", err)
	}
	for id, seq := range changes {
		if child, ok := m.nodes.Get(id); ok {
			child.seqNumber = seq
		}
	}
	return nil
}

// Balance renumbers the children of a node to multiples of the stride,
// preserving order. It is a no-op unless the node is marked unbalanced.
func (m *Manager) Balance(ctx context.Context, id int64) error {
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.unlock()
	n, err := m.fetchFull(ctx, id)
	if err != nil {
		return err
	}
	return m.balance(ctx, n)
}

func (m *Manager) balance(ctx context.Context, n *Node) error {
	if !n.fullyFetched {
		return ErrNotFetched
	}
	if !n.unbalanced {
		return nil
	}
	entries := n.children.ordered()
	changes := make(map[int64]int64)
	rebuilt := make(map[int64]int64, len(entries))
	for i, e := range entries {
		target := int64(SeqStride * (i + 1))
		rebuilt[target] = e.id
		if e.seq != target {
			changes[e.id] = target
		}
	}
	if len(changes) > 0 {
		if err := m.persistSeqs(ctx, n, changes); err != nil {
			return err
		}
	}
	n.children.bySeq = rebuilt
	n.unbalanced = false
	return nil
}

// PartParams describes a part addition. OldLessonPartID, when set, turns
// the addition into a replacement that hides the predecessor.
type PartParams struct {
	SeqNumber       int64
	OldLessonPartID *int64
	Payload         lessonpart.Payload
}

// AddPart validates, persists and applies a part amendment against a
// lesson.
func (m *Manager) AddPart(ctx context.Context, authorID *int64, lessonID int64, p PartParams) (Amendment, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.unlock()

	n, err := m.fetchFull(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if n.kind != store.KindLesson {
		return nil, fmt.Errorf("parts on %s: %w", n.kind, ErrUnsupportedOperation)
	}
	if p.Payload == nil {
		return nil, fmt.Errorf("part payload: %w", ErrInvalidArgument)
	}
	if err := p.Payload.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidArgument)
	}
	if p.OldLessonPartID != nil {
		if _, ok := n.children.seqOf(*p.OldLessonPartID); !ok {
			return nil, fmt.Errorf("lesson part %d: %w", *p.OldLessonPartID, ErrNotFound)
		}
	} else if !n.children.vacant(p.SeqNumber) {
		return nil, fmt.Errorf("sequence number %d: %w", p.SeqNumber, ErrSequenceNumberTaken)
	}

	detail := store.PartDetailRow{SeqNumber: p.SeqNumber, OldLessonPartID: p.OldLessonPartID}
	a := newPartAmendment(authorID, lessonID, detail, m.now())
	if err := m.persist(ctx, a); err != nil {
		return nil, err
	}
	if err := m.applyPart(ctx, a, n, p.Payload); err != nil {
		return nil, err
	}
	return a, nil
}

func (m *Manager) applyPart(ctx context.Context, a *PartAmendment, n *Node, payload lessonpart.Payload) error {
	if a.applied {
		return ErrAlreadyApplied
	}
	if a.Detail.OldLessonPartID != nil {
		old := *a.Detail.OldLessonPartID
		if err := m.store.SetLessonPartHidden(ctx, old, true); err != nil {
			return fmt.Errorf("hide replaced part: %w", err)
		}
		n.children.remove(old)
	}
	if !n.children.vacant(a.Detail.SeqNumber) {
		return fmt.Errorf("sequence number %d: %w", a.Detail.SeqNumber, ErrSequenceNumberTaken)
	}

	row, err := lessonpart.ToRow(lessonpart.Part{
		LessonID:  n.id,
		SeqNumber: a.Detail.SeqNumber,
		Payload:   payload,
	})
	if err != nil {
		return err
	}
	partID, err := m.store.InsertLessonPart(ctx, row)
	if err != nil {
		return fmt.Errorf("insert lesson part: %w", err)
	}
	if err := m.store.SetAmendmentPartID(ctx, a.ID(), partID); err != nil {
		return fmt.Errorf("set amendment part: %w", err)
	}
	a.Detail.LessonPartID = &partID

	if err := n.children.put(a.Detail.SeqNumber, partID); err != nil {
		return err
	}
	n.unbalanced = true
	if err := m.balance(ctx, n); err != nil {
		return err
	}
	n.appendAmendment(a)
	return m.markApplied(ctx, a)
}

// Parts returns the visible, ordered lesson parts of a lesson.
func (m *Manager) Parts(ctx context.Context, lessonID int64) ([]lessonpart.Part, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.unlock()
	return m.parts(ctx, lessonID)
}

func (m *Manager) parts(ctx context.Context, lessonID int64) ([]lessonpart.Part, error) {
	n, err := m.fetchFull(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if n.kind != store.KindLesson {
		return nil, fmt.Errorf("parts on %s: %w", n.kind, ErrUnsupportedOperation)
	}
	rows, err := m.store.ListLessonParts(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("list lesson parts: %w", err)
	}
	parts := make([]lessonpart.Part, 0, len(rows))
	for _, row := range rows {
		if row.Hidden {
			continue
		}
		part, err := lessonpart.FromRow(row)
		if err != nil {
			log.Printf("content: skipping lesson part %d: %v", row.ID, err)
			continue
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// Vote records, changes or withdraws a user's opinion on an amendment.
// Casting the same value twice removes the opinion; any other value
// replaces it.
func (m *Manager) Vote(ctx context.Context, amendmentID, userID int64, value int) error {
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.unlock()
	switch value {
	case store.OpinionPositive, store.OpinionNegative, store.OpinionReport:
	default:
		return fmt.Errorf("opinion value %d: %w", value, ErrInvalidArgument)
	}
	if _, err := m.amendment(ctx, amendmentID); err != nil {
		return err
	}
	current, ok, err := m.store.GetOpinion(ctx, amendmentID, userID)
	if err != nil {
		return fmt.Errorf("get opinion: %w", err)
	}
	if ok && current == value {
		if err := m.store.DeleteOpinion(ctx, amendmentID, userID); err != nil {
			return fmt.Errorf("delete opinion: %w", err)
		}
		return nil
	}
	if err := m.store.UpsertOpinion(ctx, amendmentID, userID, value); err != nil {
		return fmt.Errorf("upsert opinion: %w", err)
	}
	return nil
}

// Veto retires an amendment from reputation accounting. Vetoing is
// one-directional; repeating it is a no-op.
func (m *Manager) Veto(ctx context.Context, amendmentID int64) error {
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.unlock()
	a, err := m.amendment(ctx, amendmentID)
	if err != nil {
		return err
	}
	if a.Vetoed() {
		return nil
	}
	if err := m.store.MarkAmendmentVetoed(ctx, amendmentID); err != nil {
		return fmt.Errorf("veto amendment: %w", err)
	}
	a.base().vetoed = true
	return nil
}

// RegisterView counts one view of a node. The in-memory count moves
// immediately; durability is the sink's concern.
func (m *Manager) RegisterView(ctx context.Context, n *Node) error {
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.unlock()
	return m.registerView(ctx, n)
}

func (m *Manager) registerView(ctx context.Context, n *Node) error {
	n.views++
	if err := m.views.Add(ctx, n.id, 1); err != nil {
		return fmt.Errorf("register view: %w", err)
	}
	return nil
}

// History returns a node's amendment history as a snapshot taken under
// the lock, safe to iterate while mutators keep appending.
func (m *Manager) History(ctx context.Context, id int64) ([]Amendment, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.unlock()
	n, err := m.fetchFull(ctx, id)
	if err != nil {
		return nil, err
	}
	return append([]Amendment(nil), n.amendments...), nil
}

// CourseRoot walks the ancestry of a node up to its course.
func (m *Manager) CourseRoot(ctx context.Context, id int64) (int64, error) {
	if err := m.lock(ctx); err != nil {
		return 0, err
	}
	defer m.unlock()
	for {
		n, err := m.fetchPartial(ctx, id)
		if err != nil {
			return 0, err
		}
		if n.parentID == 0 {
			return n.id, nil
		}
		id = n.parentID
	}
}

// Ping reports record store health.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}
