package content

import (
	"context"
	"time"

	"github.com/KuchtaVR6/Learnopedia-sub000/internal/store"
)

// Store is the durable record store the engine runs against. PostgresStore
// implements it for real deployments; store.Memory backs tests and local runs.
type Store interface {
	// Content rows
	InsertContent(ctx context.Context, row store.ContentRow) (id int64, specificID int64, err error)
	GetContent(ctx context.Context, id int64) (store.ContentRow, error)
	ListChildren(ctx context.Context, parentID int64) ([]store.ContentRow, error)
	UpdateContentMeta(ctx context.Context, id int64, name, description *string, modifiedAt time.Time) error
	UpdateSequenceNumbers(ctx context.Context, changes map[int64]int64) error
	UpdateParent(ctx context.Context, id, newParentID, seqNumber int64) error
	SetContentVisibility(ctx context.Context, id int64, public bool) error
	AddContentViews(ctx context.Context, id, delta int64) error

	// Keywords
	ListKeywords(ctx context.Context) ([]store.KeywordRow, error)
	InsertKeyword(ctx context.Context, word string, score int, contentID *int64) (int64, error)
	SetKeywordOwner(ctx context.Context, keywordID int64, contentID *int64) error

	// Lesson parts
	InsertLessonPart(ctx context.Context, row store.LessonPartRow) (int64, error)
	GetLessonPart(ctx context.Context, id int64) (store.LessonPartRow, error)
	ListLessonParts(ctx context.Context, lessonContentID int64) ([]store.LessonPartRow, error)
	UpdateLessonPartSeqs(ctx context.Context, changes map[int64]int64) error
	SetLessonPartHidden(ctx context.Context, id int64, hidden bool) error

	// Amendments and opinions
	InsertAmendment(ctx context.Context, row store.AmendmentRow) (int64, error)
	GetAmendment(ctx context.Context, id int64) (store.AmendmentRow, error)
	ListAmendmentsForContent(ctx context.Context, contentID int64) ([]store.AmendmentRow, error)
	SetAmendmentTarget(ctx context.Context, amendmentID, contentID int64) error
	SetAmendmentPartID(ctx context.Context, amendmentID, lessonPartID int64) error
	MarkAmendmentApplied(ctx context.Context, id int64) error
	MarkAmendmentVetoed(ctx context.Context, id int64) error
	GetOpinion(ctx context.Context, amendmentID, userID int64) (int, bool, error)
	UpsertOpinion(ctx context.Context, amendmentID, userID int64, value int) error
	DeleteOpinion(ctx context.Context, amendmentID, userID int64) error
	ListOpinions(ctx context.Context, amendmentID int64) ([]store.OpinionRow, error)

	// Identity boundary
	GetUser(ctx context.Context, id int64) (store.UserRow, error)
	EnsureUserByNickname(ctx context.Context, nickname string) (store.UserRow, error)

	Ping(ctx context.Context) error
}
