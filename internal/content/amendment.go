package content

import (
	"fmt"
	"time"

	"github.com/KuchtaVR6/Learnopedia-sub000/internal/store"
)

// Amendment is one versioned proposal against the content tree. An
// amendment is born unpersisted (negative id), is inserted before it is
// applied, and is applied exactly once. Vetoed amendments stay in history
// but are excluded from reputation.
type Amendment interface {
	// ID panics when the amendment has not been persisted yet. Reading
	// the id of an unpersisted amendment is a programming error, not a
	// recoverable condition.
	ID() int64
	AuthorID() *int64
	TargetID() int64
	Kind() store.AmendmentKind
	Significance() int64
	Tariff() int64
	Cost() int64
	Applied() bool
	Vetoed() bool
	CreatedAt() time.Time

	// row produces the persistable form, detail payload included.
	row() store.AmendmentRow
	base() *amendmentBase
}

type amendmentBase struct {
	id           int64
	authorID     *int64
	targetID     int64 // 0 until a creation amendment lands
	kind         store.AmendmentKind
	significance int64
	tariff       int64
	applied      bool
	vetoed       bool
	createdAt    time.Time
}

func (b *amendmentBase) ID() int64 {
	if b.id < 0 {
		panic("content: amendment id read before persistence")
	}
	return b.id
}

func (b *amendmentBase) AuthorID() *int64          { return b.authorID }
func (b *amendmentBase) TargetID() int64           { return b.targetID }
func (b *amendmentBase) Kind() store.AmendmentKind { return b.kind }
func (b *amendmentBase) Significance() int64       { return b.significance }
func (b *amendmentBase) Tariff() int64             { return b.tariff }
func (b *amendmentBase) Cost() int64               { return b.significance * b.tariff }
func (b *amendmentBase) Applied() bool             { return b.applied }
func (b *amendmentBase) Vetoed() bool              { return b.vetoed }
func (b *amendmentBase) CreatedAt() time.Time      { return b.createdAt }
func (b *amendmentBase) base() *amendmentBase      { return b }

func (b *amendmentBase) rowShell() store.AmendmentRow {
	row := store.AmendmentRow{
		ID:           b.id,
		AuthorID:     b.authorID,
		Kind:         b.kind,
		Significance: b.significance,
		Tariff:       b.tariff,
		Applied:      b.applied,
		Vetoed:       b.vetoed,
		CreatedAt:    b.createdAt,
	}
	if b.targetID != 0 {
		target := b.targetID
		row.ContentID = &target
	}
	return row
}

func newBase(authorID *int64, targetID int64, kind store.AmendmentKind, significance, tariff int64, now time.Time) amendmentBase {
	return amendmentBase{
		id:           -1,
		authorID:     authorID,
		targetID:     targetID,
		kind:         kind,
		significance: significance,
		tariff:       tariff,
		createdAt:    now,
	}
}

// creationSignificance grows with depth: a lesson is worth more than the
// course shell around it.
func creationSignificance(kind store.ContentKind) int64 {
	switch kind {
	case store.KindCourse:
		return 100
	case store.KindChapter:
		return 1000
	default:
		return 10000
	}
}

// metaSignificance is the inverse ladder: renaming a course outweighs
// renaming a lesson.
func metaSignificance(kind store.ContentKind) int64 {
	switch kind {
	case store.KindCourse:
		return 10000
	case store.KindChapter:
		return 1000
	default:
		return 100
	}
}

// childKindOf returns the content kind one level below kind.
func childKindOf(kind store.ContentKind) store.ContentKind {
	switch kind {
	case store.KindCourse:
		return store.KindChapter
	default:
		return store.KindLesson
	}
}

// CreationAmendment proposes a brand new node. Its target id is unknown
// until the node row exists, so it is the only amendment persisted with a
// null content reference and patched afterwards.
type CreationAmendment struct {
	amendmentBase
	Detail store.CreationDetailRow
}

func newCreationAmendment(authorID *int64, detail store.CreationDetailRow, now time.Time) *CreationAmendment {
	return &CreationAmendment{
		amendmentBase: newBase(authorID, 0, store.AmendmentCreation, creationSignificance(detail.ContentKind), 1, now),
		Detail:        detail,
	}
}

func (a *CreationAmendment) row() store.AmendmentRow {
	row := a.rowShell()
	detail := a.Detail
	row.Creation = &detail
	return row
}

// MetaAmendment edits the descriptive surface of a node: name, description
// and keyword set. At least one field must change.
type MetaAmendment struct {
	amendmentBase
	Detail store.MetaDetailRow
}

func metaTariff(d store.MetaDetailRow) int64 {
	var tariff int64
	if d.NewName != nil {
		tariff += 10
	}
	if d.NewDescription != nil {
		tariff += 10
	}
	tariff += int64(len(d.AddedKeywords))
	tariff += int64(10 * len(d.DeletedKeywordIDs))
	return tariff
}

func newMetaAmendment(authorID *int64, targetID int64, targetKind store.ContentKind, detail store.MetaDetailRow, now time.Time) (*MetaAmendment, error) {
	if detail.NewName == nil && detail.NewDescription == nil &&
		len(detail.AddedKeywords) == 0 && len(detail.DeletedKeywordIDs) == 0 {
		return nil, ErrEmptyModification
	}
	return &MetaAmendment{
		amendmentBase: newBase(authorID, targetID, store.AmendmentMeta, metaSignificance(targetKind), metaTariff(detail), now),
		Detail:        detail,
	}, nil
}

func (a *MetaAmendment) row() store.AmendmentRow {
	row := a.rowShell()
	detail := a.Detail
	row.Meta = &detail
	return row
}

// AdoptionAmendment moves a node under a new parent. Every adoption is a
// pair: the departure side carries the caller's weight, the receiver side
// is constructed by the engine with an implicit weight of 1 and performs
// the actual reparent.
type AdoptionAmendment struct {
	amendmentBase
	Detail store.AdoptionDetailRow
}

func newAdoptionAmendment(authorID *int64, targetID int64, detail store.AdoptionDetailRow, weight int64, now time.Time) *AdoptionAmendment {
	tariff := weight
	if detail.Receiver {
		tariff = 1
	}
	return &AdoptionAmendment{
		amendmentBase: newBase(authorID, targetID, store.AmendmentAdoption, 1, tariff, now),
		Detail:        detail,
	}
}

func (a *AdoptionAmendment) row() store.AmendmentRow {
	row := a.rowShell()
	detail := a.Detail
	row.Adoption = &detail
	return row
}

// ListAmendment reorders, relocates or hides the children of a node in a
// single batch.
type ListAmendment struct {
	amendmentBase
	Changes []store.ListChangeRow
}

// listSignificance charges 1 per move and the full creation significance
// of the child level per deletion.
func listSignificance(targetKind store.ContentKind, changes []store.ListChangeRow) int64 {
	var sum int64
	child := childKindOf(targetKind)
	for _, change := range changes {
		if change.Delete {
			sum += creationSignificance(child)
		} else {
			sum++
		}
	}
	return sum
}

func newListAmendment(authorID *int64, targetID int64, targetKind store.ContentKind, changes []store.ListChangeRow, now time.Time) (*ListAmendment, error) {
	if len(changes) == 0 {
		return nil, ErrEmptyModification
	}
	return &ListAmendment{
		amendmentBase: newBase(authorID, targetID, store.AmendmentList, listSignificance(targetKind, changes), 100, now),
		Changes:       changes,
	}, nil
}

func (a *ListAmendment) row() store.AmendmentRow {
	row := a.rowShell()
	row.List = append([]store.ListChangeRow(nil), a.Changes...)
	return row
}

// PartAmendment adds a lesson part, or replaces an existing one by hiding
// the predecessor and installing the successor at the given slot.
type PartAmendment struct {
	amendmentBase
	Detail store.PartDetailRow
}

func newPartAmendment(authorID *int64, lessonID int64, detail store.PartDetailRow, now time.Time) *PartAmendment {
	var tariff int64 = 1
	if detail.OldLessonPartID != nil {
		tariff = 101
	}
	return &PartAmendment{
		amendmentBase: newBase(authorID, lessonID, store.AmendmentPart, 100000, tariff, now),
		Detail:        detail,
	}
}

func (a *PartAmendment) row() store.AmendmentRow {
	row := a.rowShell()
	detail := a.Detail
	row.Part = &detail
	return row
}

// amendmentFromRow reconstructs the typed amendment for a stored row. Rows
// whose kind is recognised but whose detail payload is missing belong to a
// retired format and are reported as legacy.
func amendmentFromRow(row store.AmendmentRow) (Amendment, error) {
	base := amendmentBase{
		id:           row.ID,
		authorID:     row.AuthorID,
		kind:         row.Kind,
		significance: row.Significance,
		tariff:       row.Tariff,
		applied:      row.Applied,
		vetoed:       row.Vetoed,
		createdAt:    row.CreatedAt,
	}
	if row.ContentID != nil {
		base.targetID = *row.ContentID
	}
	switch row.Kind {
	case store.AmendmentCreation:
		if row.Creation == nil {
			return nil, fmt.Errorf("amendment %d: %w", row.ID, ErrLegacyAmendment)
		}
		return &CreationAmendment{amendmentBase: base, Detail: *row.Creation}, nil
	case store.AmendmentMeta:
		if row.Meta == nil {
			return nil, fmt.Errorf("amendment %d: %w", row.ID, ErrLegacyAmendment)
		}
		return &MetaAmendment{amendmentBase: base, Detail: *row.Meta}, nil
	case store.AmendmentAdoption:
		if row.Adoption == nil {
			return nil, fmt.Errorf("amendment %d: %w", row.ID, ErrLegacyAmendment)
		}
		return &AdoptionAmendment{amendmentBase: base, Detail: *row.Adoption}, nil
	case store.AmendmentList:
		if len(row.List) == 0 {
			return nil, fmt.Errorf("amendment %d: %w", row.ID, ErrLegacyAmendment)
		}
		return &ListAmendment{amendmentBase: base, Changes: row.List}, nil
	case store.AmendmentPart:
		if row.Part == nil {
			return nil, fmt.Errorf("amendment %d: %w", row.ID, ErrLegacyAmendment)
		}
		return &PartAmendment{amendmentBase: base, Detail: *row.Part}, nil
	default:
		return nil, fmt.Errorf("amendment %d kind %q: %w", row.ID, row.Kind, ErrLegacyAmendment)
	}
}
