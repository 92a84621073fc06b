package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/KuchtaVR6/Learnopedia-sub000/internal/archive"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/auth"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/content"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/identity"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/lessonpart"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/search"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/store"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/util"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/views"
)

// Session identifies an authenticated caller.
type Session struct {
	UserID   int64
	Nickname string
}

// Service is the application facade over the content engine. Search,
// archive and the views buffer are optional; the core engine works
// without them.
type Service struct {
	manager     *content.Manager
	store       content.Store
	searchSvc   *search.Service
	archiveSvc  *archive.Service
	identity    *identity.Resolver
	viewsBuffer *views.RedisBuffer
	jwtSecret   []byte
	accessTTL   time.Duration
}

func NewService(manager *content.Manager, st content.Store, searchSvc *search.Service, archiveSvc *archive.Service, resolver *identity.Resolver, viewsBuffer *views.RedisBuffer, jwtSecret []byte, accessTTL time.Duration) *Service {
	return &Service{
		manager:     manager,
		store:       st,
		searchSvc:   searchSvc,
		archiveSvc:  archiveSvc,
		identity:    resolver,
		viewsBuffer: viewsBuffer,
		jwtSecret:   jwtSecret,
		accessTTL:   accessTTL,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.manager.Ping(ctx)
}

// Login resolves or creates a user for the nickname and issues an access
// token.
func (s *Service) Login(ctx context.Context, nickname string) (string, Session, error) {
	if nickname == "" {
		return "", Session{}, invalidBody("nickname is required")
	}
	user, err := s.identity.Login(ctx, nickname)
	if err != nil {
		return "", Session{}, err
	}
	token, err := auth.IssueToken(s.jwtSecret, auth.Claims{
		Sub:      user.ID,
		Nickname: user.Nickname,
		JTI:      util.NewID("jti"),
		Exp:      time.Now().Add(s.accessTTL).Unix(),
	})
	if err != nil {
		return "", Session{}, err
	}
	return token, Session{UserID: user.ID, Nickname: user.Nickname}, nil
}

// SessionFromToken validates an access token.
func (s *Service) SessionFromToken(_ context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken(s.jwtSecret, token)
	if err != nil {
		return Session{}, err
	}
	return Session{UserID: claims.Sub, Nickname: claims.Nickname}, nil
}

// AmendmentView is the display projection of one amendment. Detail
// carries the variant-specific payload: what the amendment actually
// proposed.
type AmendmentView struct {
	ID           int64  `json:"id"`
	Type         string `json:"type"`
	TargetID     int64  `json:"targetId,omitempty"`
	Author       string `json:"author"`
	Significance int64  `json:"significance"`
	Tariff       int64  `json:"tariff"`
	Cost         int64  `json:"cost"`
	Applied      bool   `json:"applied"`
	Vetoed       bool   `json:"vetoed"`
	CreatedAt    string `json:"createdAt"`
	Detail       any    `json:"detail,omitempty"`
}

// CreationDetail shows what a creation amendment proposed.
type CreationDetail struct {
	Type        string         `json:"type"`
	ParentID    *int64         `json:"parentId,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	SeqNumber   int64          `json:"seqNumber"`
	Keywords    []KeywordInput `json:"keywords,omitempty"`
}

// MetaDetail shows the deltas of a meta amendment.
type MetaDetail struct {
	NewName           *string        `json:"newName,omitempty"`
	NewDescription    *string        `json:"newDescription,omitempty"`
	AddedKeywords     []KeywordInput `json:"addedKeywords,omitempty"`
	DeletedKeywordIDs []int64        `json:"deletedKeywordIds,omitempty"`
}

// AdoptionDetail shows where an adoption moved its target.
type AdoptionDetail struct {
	NewParentID int64 `json:"newParentId"`
	Receiver    bool  `json:"receiver"`
}

// ListDetail shows the child moves and hides of a list amendment.
type ListDetail struct {
	Changes []ListChangeInput `json:"changes"`
}

// PartDetail shows the slot of a part amendment and, when resolvable,
// the installed lesson part itself.
type PartDetail struct {
	SeqNumber       int64              `json:"seqNumber"`
	OldLessonPartID *int64             `json:"oldLessonPartId,omitempty"`
	LessonPartID    *int64             `json:"lessonPartId,omitempty"`
	Part            *lessonpart.Output `json:"part,omitempty"`
}

func keywordInputs(seeds []store.KeywordSeed) []KeywordInput {
	if len(seeds) == 0 {
		return nil
	}
	inputs := make([]KeywordInput, 0, len(seeds))
	for _, seed := range seeds {
		inputs = append(inputs, KeywordInput{Word: seed.Word, Score: seed.Score})
	}
	return inputs
}

func (s *Service) amendmentDetail(ctx context.Context, a content.Amendment) any {
	switch a := a.(type) {
	case *content.CreationAmendment:
		return CreationDetail{
			Type:        string(a.Detail.ContentKind),
			ParentID:    a.Detail.ParentID,
			Name:        a.Detail.Name,
			Description: a.Detail.Description,
			SeqNumber:   a.Detail.SeqNumber,
			Keywords:    keywordInputs(a.Detail.Keywords),
		}
	case *content.MetaAmendment:
		return MetaDetail{
			NewName:           a.Detail.NewName,
			NewDescription:    a.Detail.NewDescription,
			AddedKeywords:     keywordInputs(a.Detail.AddedKeywords),
			DeletedKeywordIDs: a.Detail.DeletedKeywordIDs,
		}
	case *content.AdoptionAmendment:
		return AdoptionDetail{NewParentID: a.Detail.NewParentID, Receiver: a.Detail.Receiver}
	case *content.ListAmendment:
		changes := make([]ListChangeInput, 0, len(a.Changes))
		for _, change := range a.Changes {
			changes = append(changes, ListChangeInput{
				ChildContentID: change.ChildContentID,
				LessonPartID:   change.LessonPartID,
				NewSeqNumber:   change.NewSeqNumber,
				Delete:         change.Delete,
			})
		}
		return ListDetail{Changes: changes}
	case *content.PartAmendment:
		detail := PartDetail{
			SeqNumber:       a.Detail.SeqNumber,
			OldLessonPartID: a.Detail.OldLessonPartID,
			LessonPartID:    a.Detail.LessonPartID,
		}
		if a.Detail.LessonPartID != nil {
			if row, err := s.store.GetLessonPart(ctx, *a.Detail.LessonPartID); err == nil {
				if part, err := lessonpart.FromRow(row); err == nil {
					out := lessonpart.Display(part)
					detail.Part = &out
				}
			} else {
				log.Printf("app: resolve lesson part %d: %v", *a.Detail.LessonPartID, err)
			}
		}
		return detail
	default:
		return nil
	}
}

func (s *Service) amendmentView(ctx context.Context, a content.Amendment) (AmendmentView, error) {
	author, err := s.identity.DisplayName(ctx, a.AuthorID())
	if err != nil {
		return AmendmentView{}, err
	}
	return AmendmentView{
		ID:           a.ID(),
		Type:         string(a.Kind()),
		TargetID:     a.TargetID(),
		Author:       author,
		Significance: a.Significance(),
		Tariff:       a.Tariff(),
		Cost:         a.Cost(),
		Applied:      a.Applied(),
		Vetoed:       a.Vetoed(),
		CreatedAt:    util.FormatDate(a.CreatedAt()),
		Detail:       s.amendmentDetail(ctx, a),
	}, nil
}

// afterAmendment propagates an applied amendment into the search index
// and the course archive. Both are best-effort side channels; failures
// are logged, never surfaced.
func (s *Service) afterAmendment(ctx context.Context, a content.Amendment, actor string) {
	target := a.TargetID()
	if target == 0 {
		return
	}
	if s.searchSvc != nil {
		// Children hidden by a list amendment stop being navigable and
		// must leave the index with them.
		if list, ok := a.(*content.ListAmendment); ok {
			for _, change := range list.Changes {
				if change.Delete && change.ChildContentID != nil {
					s.searchSvc.DeleteContent(*change.ChildContentID)
				}
			}
		}
		if record, err := s.contentRecord(ctx, target); err == nil {
			s.searchSvc.IndexContent(record)
		} else {
			log.Printf("app: build search record for %d: %v", target, err)
		}
	}
	if s.archiveSvc != nil {
		s.archiveSnapshot(ctx, a, target, actor)
	}
}

func (s *Service) contentRecord(ctx context.Context, id int64) (search.ContentRecord, error) {
	meta, err := s.GetContentMeta(ctx, id)
	if err != nil {
		return search.ContentRecord{}, err
	}
	return search.ContentRecord{
		ID:          meta.ID,
		Kind:        string(meta.Type),
		Name:        meta.Name,
		Description: meta.Description,
		Keywords:    meta.Keywords,
	}, nil
}

func (s *Service) archiveSnapshot(ctx context.Context, a content.Amendment, target int64, actor string) {
	courseID, err := s.manager.CourseRoot(ctx, target)
	if err != nil {
		log.Printf("app: resolve course root for %d: %v", target, err)
		return
	}
	outline, err := s.manager.Outline(ctx, courseID)
	if err != nil {
		log.Printf("app: outline course %d: %v", courseID, err)
		return
	}
	raw, err := json.Marshal(outline)
	if err != nil {
		log.Printf("app: marshal outline %d: %v", courseID, err)
		return
	}
	snapshot := archive.Snapshot{CourseID: courseID, Name: outline.Name, Outline: raw}
	if err := s.archiveSvc.EnsureCourseRepo(courseID, snapshot, actor); err != nil {
		log.Printf("app: ensure course repo %d: %v", courseID, err)
		return
	}
	message := fmt.Sprintf("Apply %s amendment %d", a.Kind(), a.ID())
	if _, err := s.archiveSvc.CommitSnapshot(courseID, snapshot, actor, message); err != nil {
		log.Printf("app: archive course %d: %v", courseID, err)
	}
}

// GetContent returns the full subtree of a node and counts a view.
func (s *Service) GetContent(ctx context.Context, id int64) (content.FullOutput, error) {
	return s.manager.Full(ctx, id)
}

// GetContentMeta returns the display metadata of a node without counting
// a view.
func (s *Service) GetContentMeta(ctx context.Context, id int64) (content.MetaOutput, error) {
	n, err := s.manager.FetchFull(ctx, id)
	if err != nil {
		return content.MetaOutput{}, err
	}
	return s.manager.Meta(ctx, n)
}

// KeywordInput is one keyword in a request body.
type KeywordInput struct {
	Word  string `json:"word"`
	Score int    `json:"score"`
}

func keywordSeeds(inputs []KeywordInput) []store.KeywordSeed {
	seeds := make([]store.KeywordSeed, 0, len(inputs))
	for _, in := range inputs {
		seeds = append(seeds, store.KeywordSeed{Word: in.Word, Score: in.Score})
	}
	return seeds
}

// CreateContentRequest proposes a new node.
type CreateContentRequest struct {
	Type        string         `json:"type"`
	ParentID    *int64         `json:"parentId"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	SeqNumber   *int64         `json:"seqNumber"`
	Keywords    []KeywordInput `json:"keywords"`
}

func (s *Service) CreateContent(ctx context.Context, session Session, req CreateContentRequest) (AmendmentView, error) {
	author := session.UserID
	a, err := s.manager.CreateNode(ctx, &author, content.CreationParams{
		Kind:        store.ContentKind(req.Type),
		ParentID:    req.ParentID,
		Name:        req.Name,
		Description: req.Description,
		SeqNumber:   req.SeqNumber,
		Keywords:    keywordSeeds(req.Keywords),
	})
	if err != nil {
		return AmendmentView{}, err
	}
	s.afterAmendment(ctx, a, session.Nickname)
	return s.amendmentView(ctx, a)
}

// EditMetaRequest edits the descriptive surface of a node.
type EditMetaRequest struct {
	Name              *string        `json:"name"`
	Description       *string        `json:"description"`
	AddedKeywords     []KeywordInput `json:"addedKeywords"`
	DeletedKeywordIDs []int64        `json:"deletedKeywordIds"`
}

func (s *Service) EditMeta(ctx context.Context, session Session, contentID int64, req EditMetaRequest) (AmendmentView, error) {
	author := session.UserID
	a, err := s.manager.EditMeta(ctx, &author, contentID, content.MetaParams{
		NewName:           req.Name,
		NewDescription:    req.Description,
		AddedKeywords:     keywordSeeds(req.AddedKeywords),
		DeletedKeywordIDs: req.DeletedKeywordIDs,
	})
	if err != nil {
		return AmendmentView{}, err
	}
	s.afterAmendment(ctx, a, session.Nickname)
	return s.amendmentView(ctx, a)
}

// AdoptRequest moves a node under a new parent. Weight is the stake the
// caller puts behind the move.
type AdoptRequest struct {
	NewParentID int64 `json:"newParentId"`
	Weight      int64 `json:"weight"`
}

func (s *Service) Adopt(ctx context.Context, session Session, contentID int64, req AdoptRequest) (AmendmentView, error) {
	author := session.UserID
	a, err := s.manager.Adopt(ctx, &author, contentID, req.NewParentID, req.Weight)
	if err != nil {
		return AmendmentView{}, err
	}
	s.afterAmendment(ctx, a, session.Nickname)
	return s.amendmentView(ctx, a)
}

// ListChangeInput is one entry of a list amendment.
type ListChangeInput struct {
	ChildContentID *int64 `json:"childContentId"`
	LessonPartID   *int64 `json:"lessonPartId"`
	NewSeqNumber   *int64 `json:"newSeqNumber"`
	Delete         bool   `json:"delete"`
}

func (s *Service) EditList(ctx context.Context, session Session, contentID int64, inputs []ListChangeInput) (AmendmentView, error) {
	changes := make([]store.ListChangeRow, 0, len(inputs))
	for _, in := range inputs {
		changes = append(changes, store.ListChangeRow{
			ChildContentID: in.ChildContentID,
			LessonPartID:   in.LessonPartID,
			NewSeqNumber:   in.NewSeqNumber,
			Delete:         in.Delete,
		})
	}
	author := session.UserID
	a, err := s.manager.EditList(ctx, &author, contentID, changes)
	if err != nil {
		return AmendmentView{}, err
	}
	s.afterAmendment(ctx, a, session.Nickname)
	return s.amendmentView(ctx, a)
}

// AnswerInput is one quiz answer in a part request.
type AnswerInput struct {
	Content  string  `json:"content"`
	Correct  bool    `json:"correct"`
	Feedback *string `json:"feedback"`
}

// PartRequest adds or replaces one lesson part.
type PartRequest struct {
	Type            string  `json:"type"`
	SeqNumber       int64   `json:"seqNumber"`
	OldLessonPartID *int64  `json:"oldLessonPartId"`
	BasicText       string  `json:"basicText"`
	AdvancedText    *string `json:"advancedText"`
	URI             string  `json:"uri"`
	MediaType       string  `json:"mediaType"`
	Question        string  `json:"question"`
	QuizType        string  `json:"quizType"`
	Answers         []AnswerInput `json:"answers"`
}

func (r PartRequest) payload() (lessonpart.Payload, error) {
	switch store.LessonPartKind(r.Type) {
	case store.PartParagraph:
		return lessonpart.Paragraph{BasicText: r.BasicText, AdvancedText: r.AdvancedText}, nil
	case store.PartEmbeddable:
		return lessonpart.Embeddable{URI: r.URI, MediaKind: r.MediaType}, nil
	case store.PartQuiz:
		q := lessonpart.QuizQuestion{Question: r.Question, QuizKind: r.QuizType}
		for _, in := range r.Answers {
			q.Answers = append(q.Answers, lessonpart.Answer{Content: in.Content, Correct: in.Correct, Feedback: in.Feedback})
		}
		return q, nil
	default:
		return nil, invalidBody(fmt.Sprintf("unknown part type %q", r.Type))
	}
}

func (s *Service) AddPart(ctx context.Context, session Session, lessonID int64, req PartRequest) (AmendmentView, error) {
	payload, err := req.payload()
	if err != nil {
		return AmendmentView{}, err
	}
	author := session.UserID
	a, err := s.manager.AddPart(ctx, &author, lessonID, content.PartParams{
		SeqNumber:       req.SeqNumber,
		OldLessonPartID: req.OldLessonPartID,
		Payload:         payload,
	})
	if err != nil {
		return AmendmentView{}, err
	}
	s.afterAmendment(ctx, a, session.Nickname)
	return s.amendmentView(ctx, a)
}

// GetAmendment returns the display projection of one amendment.
func (s *Service) GetAmendment(ctx context.Context, id int64) (AmendmentView, error) {
	a, err := s.manager.Amendment(ctx, id)
	if err != nil {
		return AmendmentView{}, err
	}
	return s.amendmentView(ctx, a)
}

// ListContentAmendments returns the amendment history of a node.
func (s *Service) ListContentAmendments(ctx context.Context, contentID int64) ([]AmendmentView, error) {
	history, err := s.manager.History(ctx, contentID)
	if err != nil {
		return nil, err
	}
	out := make([]AmendmentView, 0, len(history))
	for _, a := range history {
		view, err := s.amendmentView(ctx, a)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// Vote records or withdraws an opinion on an amendment.
func (s *Service) Vote(ctx context.Context, session Session, amendmentID int64, value int) error {
	return s.manager.Vote(ctx, amendmentID, session.UserID, value)
}

// Veto retires an amendment from reputation accounting.
func (s *Service) Veto(ctx context.Context, amendmentID int64) error {
	return s.manager.Veto(ctx, amendmentID)
}

// Supports returns the stake-weighted voting picture of an amendment.
func (s *Service) Supports(ctx context.Context, amendmentID int64, requester *int64) (content.Supports, error) {
	return s.manager.AmendmentSupports(ctx, amendmentID, requester)
}

// Reputation returns a user's per-level share over a node's ancestry.
func (s *Service) Reputation(ctx context.Context, contentID, userID int64) ([]content.LevelShare, error) {
	return s.manager.ContentShareOfUser(ctx, contentID, userID)
}

// Search runs a full text query over the content index.
func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.searchSvc == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.searchSvc.Search(ctx, q)
}

// CourseHistory lists archived revisions of a course.
func (s *Service) CourseHistory(ctx context.Context, courseID int64, limit int) ([]archive.CommitInfo, error) {
	if s.archiveSvc == nil {
		return []archive.CommitInfo{}, nil
	}
	if _, err := s.manager.FetchPartial(ctx, courseID); err != nil {
		return nil, err
	}
	return s.archiveSvc.History(courseID, limit)
}

// FlushViews drains the staged view counters into the record store.
func (s *Service) FlushViews(ctx context.Context) error {
	if s.viewsBuffer == nil {
		return nil
	}
	return s.viewsBuffer.Flush(ctx)
}
