package content

import (
	"sort"
	"time"

	"github.com/KuchtaVR6/Learnopedia-sub000/internal/store"
)

// SeqStride is the gap left between sibling sequence numbers by a balance
// pass. Inserting between two balanced siblings bisects the gap, so the
// stride supports log2(32) = 5 insertions between the same pair before a
// rebalance is needed.
const SeqStride = 32

// Node is one content tree node. A Node starts Partial (cross-cutting
// columns only) and becomes FullyFetched once its children and amendment
// history are resolved. All mutation goes through the Manager.
type Node struct {
	id          int64
	specificID  int64
	kind        store.ContentKind
	name        string
	description string
	seqNumber   int64
	parentID    int64 // 0 when the node is a course
	public      bool
	views       int64
	upvotes     int64
	downvotes   int64
	createdAt   time.Time
	modifiedAt  time.Time

	fullyFetched bool
	unbalanced   bool
	children     *childList
	amendments   []Amendment
}

func nodeFromRow(row store.ContentRow) *Node {
	n := &Node{
		id:          row.ID,
		specificID:  row.SpecificID,
		kind:        row.Kind,
		name:        row.Name,
		description: row.Description,
		seqNumber:   row.SeqNumber,
		public:      row.Public,
		views:       row.Views,
		upvotes:     row.Upvotes,
		downvotes:   row.Downvotes,
		createdAt:   row.CreatedAt,
		modifiedAt:  row.ModifiedAt,
	}
	if row.ParentID != nil {
		n.parentID = *row.ParentID
	}
	return n
}

func (n *Node) ID() int64              { return n.id }
func (n *Node) SpecificID() int64      { return n.specificID }
func (n *Node) Kind() store.ContentKind { return n.kind }
func (n *Node) Name() string           { return n.name }
func (n *Node) Description() string    { return n.description }
func (n *Node) SeqNumber() int64       { return n.seqNumber }
func (n *Node) Public() bool           { return n.public }
func (n *Node) Views() int64           { return n.views }
func (n *Node) CreatedAt() time.Time   { return n.createdAt }
func (n *Node) ModifiedAt() time.Time  { return n.modifiedAt }
func (n *Node) FullyFetched() bool     { return n.fullyFetched }

// ParentID returns the parent content id, or 0 for a course.
func (n *Node) ParentID() int64 { return n.parentID }

// Amendments returns the append-only history of amendments that ever
// targeted this node. Requires a full fetch.
func (n *Node) Amendments() ([]Amendment, error) {
	if !n.fullyFetched {
		return nil, ErrNotFetched
	}
	return n.amendments, nil
}

// CheckSeqNumberVacant reports whether no child occupies seq.
func (n *Node) CheckSeqNumberVacant(seq int64) (bool, error) {
	if !n.fullyFetched {
		return false, ErrNotFetched
	}
	return n.children.vacant(seq), nil
}

// CheckPaternity verifies that every child referenced by a candidate list
// amendment actually belongs to this node.
func (n *Node) CheckPaternity(changes []store.ListChangeRow) (bool, error) {
	if !n.fullyFetched {
		return false, ErrNotFetched
	}
	for _, change := range changes {
		var childID int64
		switch {
		case change.ChildContentID != nil:
			if n.kind == store.KindLesson {
				return false, ErrUnsupportedOperation
			}
			childID = *change.ChildContentID
		case change.LessonPartID != nil:
			if n.kind != store.KindLesson {
				return false, ErrUnsupportedOperation
			}
			childID = *change.LessonPartID
		default:
			return false, nil
		}
		if _, ok := n.children.seqOf(childID); !ok {
			return false, nil
		}
	}
	return true, nil
}

func (n *Node) appendAmendment(a Amendment) {
	n.amendments = append(n.amendments, a)
}

// childKind distinguishes the two ordered collections a node can own:
// content children (course, chapter) and lesson parts (lesson).
type childKind int

const (
	childContents childKind = iota
	childParts
)

type childEntry struct {
	seq int64
	id  int64
}

// childList is the ordered-by-sequence-number mapping from sequence number
// to child id. Sequence numbers are unique among siblings; gaps are expected.
type childList struct {
	kind  childKind
	bySeq map[int64]int64
}

func newChildList(kind childKind) *childList {
	return &childList{kind: kind, bySeq: make(map[int64]int64)}
}

func (l *childList) vacant(seq int64) bool {
	_, taken := l.bySeq[seq]
	return !taken
}

func (l *childList) put(seq, id int64) error {
	if _, taken := l.bySeq[seq]; taken {
		return ErrSequenceNumberTaken
	}
	l.bySeq[seq] = id
	return nil
}

func (l *childList) remove(id int64) {
	for seq, existing := range l.bySeq {
		if existing == id {
			delete(l.bySeq, seq)
			return
		}
	}
}

func (l *childList) seqOf(id int64) (int64, bool) {
	for seq, existing := range l.bySeq {
		if existing == id {
			return seq, true
		}
	}
	return 0, false
}

func (l *childList) len() int {
	return len(l.bySeq)
}

// ordered returns entries in ascending sequence order.
func (l *childList) ordered() []childEntry {
	entries := make([]childEntry, 0, len(l.bySeq))
	for seq, id := range l.bySeq {
		entries = append(entries, childEntry{seq: seq, id: id})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return entries
}

// childListKindFor maps a node kind to the collection it owns.
func childListKindFor(kind store.ContentKind) childKind {
	if kind == store.KindLesson {
		return childParts
	}
	return childContents
}

// parentKindOf returns the content kind that must sit exactly one level
// above kind, or "" for the root kind.
func parentKindOf(kind store.ContentKind) store.ContentKind {
	switch kind {
	case store.KindChapter:
		return store.KindCourse
	case store.KindLesson:
		return store.KindChapter
	default:
		return ""
	}
}
