package store

import "time"

// ContentKind identifies the level of a content node in the tree.
type ContentKind string

const (
	KindCourse  ContentKind = "course"
	KindChapter ContentKind = "chapter"
	KindLesson  ContentKind = "lesson"
)

// ContentRow is the flat projection of one content node: the cross-cutting
// columns from contents joined with the structural parent key held by the
// per-kind table.
type ContentRow struct {
	ID          int64
	SpecificID  int64
	Kind        ContentKind
	ParentID    *int64
	Name        string
	Description string
	SeqNumber   int64
	Public      bool
	Views       int64
	Upvotes     int64
	Downvotes   int64
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

type KeywordRow struct {
	ID        int64
	Word      string
	Score     int
	ContentID *int64 // nil means the keyword sits in the unattached pool
}

// KeywordSeed is a keyword referenced by an amendment before it has a row.
type KeywordSeed struct {
	Word  string
	Score int
}

type LessonPartKind string

const (
	PartParagraph  LessonPartKind = "paragraph"
	PartEmbeddable LessonPartKind = "embeddable"
	PartQuiz       LessonPartKind = "quiz"
)

type LessonPartRow struct {
	ID        int64
	LessonID  int64 // global content id of the owning lesson
	SeqNumber int64
	Hidden    bool
	Kind      LessonPartKind

	Paragraph  *ParagraphRow
	Embeddable *EmbeddableRow
	Quiz       *QuizQuestionRow
}

type ParagraphRow struct {
	BasicText    string
	AdvancedText *string
}

type EmbeddableRow struct {
	URI       string
	MediaKind string
}

type QuizQuestionRow struct {
	Question string
	QuizKind string
	Answers  []QuizAnswerRow
}

type QuizAnswerRow struct {
	ID       int64
	Content  string
	Correct  bool
	Feedback *string
}

type AmendmentKind string

const (
	AmendmentCreation AmendmentKind = "creation"
	AmendmentMeta     AmendmentKind = "meta"
	AmendmentAdoption AmendmentKind = "adoption"
	AmendmentList     AmendmentKind = "list"
	AmendmentPart     AmendmentKind = "part"
)

// AmendmentRow carries the master columns plus exactly one populated detail,
// matching the per-variant detail tables.
type AmendmentRow struct {
	ID           int64
	AuthorID     *int64
	ContentID    *int64 // nil: a creation that has not produced its target yet
	Kind         AmendmentKind
	Significance int64
	Tariff       int64
	Applied      bool
	Vetoed       bool
	CreatedAt    time.Time

	Creation *CreationDetailRow
	Meta     *MetaDetailRow
	Adoption *AdoptionDetailRow
	List     []ListChangeRow
	Part     *PartDetailRow
}

type CreationDetailRow struct {
	Name        string
	Description string
	SeqNumber   int64
	ContentKind ContentKind
	ParentID    *int64
	Keywords    []KeywordSeed
}

type MetaDetailRow struct {
	NewName           *string
	NewDescription    *string
	AddedKeywords     []KeywordSeed
	DeletedKeywordIDs []int64
}

type AdoptionDetailRow struct {
	NewParentID int64
	Receiver    bool
}

type ListChangeRow struct {
	ChildContentID *int64
	LessonPartID   *int64
	NewSeqNumber   *int64
	Delete         bool
}

type PartDetailRow struct {
	LessonPartID    *int64
	SeqNumber       int64
	OldLessonPartID *int64
}

const (
	OpinionPositive = 1
	OpinionNegative = -1
	OpinionReport   = -2
)

// OpinionRow is one user's current opinion on one amendment.
// Value is 1 (positive), -1 (negative) or -2 (report).
type OpinionRow struct {
	AmendmentID int64
	UserID      int64
	Value       int
	CreatedAt   time.Time
}

type UserRow struct {
	ID        int64
	Nickname  string
	CreatedAt time.Time
}
