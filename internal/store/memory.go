package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is a stateful in-memory record store with the same semantics as
// PostgresStore. It backs tests and local runs without a database.
type Memory struct {
	mu sync.Mutex

	nextContentID  int64
	nextSpecificID map[ContentKind]int64
	contents       map[int64]ContentRow

	nextKeywordID int64
	keywords      map[int64]KeywordRow

	nextPartID int64
	parts      map[int64]LessonPartRow

	nextAmendmentID int64
	amendments      map[int64]AmendmentRow

	opinions map[[2]int64]OpinionRow

	nextUserID int64
	users      map[int64]UserRow
}

func NewMemory() *Memory {
	return &Memory{
		nextSpecificID: make(map[ContentKind]int64),
		contents:       make(map[int64]ContentRow),
		keywords:       make(map[int64]KeywordRow),
		parts:          make(map[int64]LessonPartRow),
		amendments:     make(map[int64]AmendmentRow),
		opinions:       make(map[[2]int64]OpinionRow),
		users:          make(map[int64]UserRow),
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) InsertContent(_ context.Context, row ContentRow) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextContentID++
	m.nextSpecificID[row.Kind]++
	row.ID = m.nextContentID
	row.SpecificID = m.nextSpecificID[row.Kind]
	if row.ParentID != nil {
		parent := *row.ParentID
		row.ParentID = &parent
	}
	m.contents[row.ID] = row
	return row.ID, row.SpecificID, nil
}

func (m *Memory) GetContent(_ context.Context, id int64) (ContentRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.contents[id]
	if !ok {
		return ContentRow{}, fmt.Errorf("content %d: %w", id, ErrNoRow)
	}
	return row, nil
}

func (m *Memory) ListChildren(_ context.Context, parentID int64) ([]ContentRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ContentRow
	for _, row := range m.contents {
		if row.ParentID != nil && *row.ParentID == parentID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeqNumber < out[j].SeqNumber })
	return out, nil
}

func (m *Memory) UpdateContentMeta(_ context.Context, id int64, name, description *string, modifiedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.contents[id]
	if !ok {
		return fmt.Errorf("content %d: %w", id, ErrNoRow)
	}
	if name != nil {
		row.Name = *name
	}
	if description != nil {
		row.Description = *description
	}
	row.ModifiedAt = modifiedAt
	m.contents[id] = row
	return nil
}

func (m *Memory) UpdateSequenceNumbers(_ context.Context, changes map[int64]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, seq := range changes {
		row, ok := m.contents[id]
		if !ok {
			return fmt.Errorf("content %d: %w", id, ErrNoRow)
		}
		row.SeqNumber = seq
		m.contents[id] = row
	}
	return nil
}

func (m *Memory) UpdateParent(_ context.Context, id, newParentID, seqNumber int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.contents[id]
	if !ok {
		return fmt.Errorf("content %d: %w", id, ErrNoRow)
	}
	parent := newParentID
	row.ParentID = &parent
	row.SeqNumber = seqNumber
	row.ModifiedAt = time.Now()
	m.contents[id] = row
	return nil
}

func (m *Memory) SetContentVisibility(_ context.Context, id int64, public bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.contents[id]
	if !ok {
		return fmt.Errorf("content %d: %w", id, ErrNoRow)
	}
	row.Public = public
	m.contents[id] = row
	return nil
}

func (m *Memory) AddContentViews(_ context.Context, id, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.contents[id]
	if !ok {
		return fmt.Errorf("content %d: %w", id, ErrNoRow)
	}
	row.Views += delta
	m.contents[id] = row
	return nil
}

func (m *Memory) ListKeywords(context.Context) ([]KeywordRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]KeywordRow, 0, len(m.keywords))
	for _, row := range m.keywords {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) InsertKeyword(_ context.Context, word string, score int, contentID *int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextKeywordID++
	row := KeywordRow{ID: m.nextKeywordID, Word: word, Score: score}
	if contentID != nil {
		owner := *contentID
		row.ContentID = &owner
	}
	m.keywords[row.ID] = row
	return row.ID, nil
}

func (m *Memory) SetKeywordOwner(_ context.Context, keywordID int64, contentID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.keywords[keywordID]
	if !ok {
		return fmt.Errorf("keyword %d: %w", keywordID, ErrNoRow)
	}
	if contentID == nil {
		row.ContentID = nil
	} else {
		owner := *contentID
		row.ContentID = &owner
	}
	m.keywords[keywordID] = row
	return nil
}

func (m *Memory) InsertLessonPart(_ context.Context, row LessonPartRow) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPartID++
	row.ID = m.nextPartID
	if row.Quiz != nil {
		for i := range row.Quiz.Answers {
			row.Quiz.Answers[i].ID = int64(i + 1)
		}
	}
	m.parts[row.ID] = row
	return row.ID, nil
}

func (m *Memory) GetLessonPart(_ context.Context, id int64) (LessonPartRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.parts[id]
	if !ok {
		return LessonPartRow{}, fmt.Errorf("lesson part %d: %w", id, ErrNoRow)
	}
	return row, nil
}

func (m *Memory) ListLessonParts(_ context.Context, lessonContentID int64) ([]LessonPartRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LessonPartRow
	for _, row := range m.parts {
		if row.LessonID == lessonContentID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeqNumber < out[j].SeqNumber })
	return out, nil
}

func (m *Memory) UpdateLessonPartSeqs(_ context.Context, changes map[int64]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, seq := range changes {
		row, ok := m.parts[id]
		if !ok {
			return fmt.Errorf("lesson part %d: %w", id, ErrNoRow)
		}
		row.SeqNumber = seq
		m.parts[id] = row
	}
	return nil
}

func (m *Memory) SetLessonPartHidden(_ context.Context, id int64, hidden bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.parts[id]
	if !ok {
		return fmt.Errorf("lesson part %d: %w", id, ErrNoRow)
	}
	row.Hidden = hidden
	m.parts[id] = row
	return nil
}

func (m *Memory) InsertAmendment(_ context.Context, row AmendmentRow) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAmendmentID++
	row.ID = m.nextAmendmentID
	m.amendments[row.ID] = row
	return row.ID, nil
}

func (m *Memory) GetAmendment(_ context.Context, id int64) (AmendmentRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.amendments[id]
	if !ok {
		return AmendmentRow{}, fmt.Errorf("amendment %d: %w", id, ErrNoRow)
	}
	return row, nil
}

func (m *Memory) ListAmendmentsForContent(_ context.Context, contentID int64) ([]AmendmentRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AmendmentRow
	for _, row := range m.amendments {
		if row.ContentID != nil && *row.ContentID == contentID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SetAmendmentTarget(_ context.Context, amendmentID, contentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.amendments[amendmentID]
	if !ok {
		return fmt.Errorf("amendment %d: %w", amendmentID, ErrNoRow)
	}
	target := contentID
	row.ContentID = &target
	m.amendments[amendmentID] = row
	return nil
}

func (m *Memory) SetAmendmentPartID(_ context.Context, amendmentID, lessonPartID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.amendments[amendmentID]
	if !ok {
		return fmt.Errorf("amendment %d: %w", amendmentID, ErrNoRow)
	}
	if row.Part == nil {
		return fmt.Errorf("amendment %d has no part detail: %w", amendmentID, ErrNoRow)
	}
	detail := *row.Part
	part := lessonPartID
	detail.LessonPartID = &part
	row.Part = &detail
	m.amendments[amendmentID] = row
	return nil
}

func (m *Memory) MarkAmendmentApplied(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.amendments[id]
	if !ok {
		return fmt.Errorf("amendment %d: %w", id, ErrNoRow)
	}
	row.Applied = true
	m.amendments[id] = row
	return nil
}

func (m *Memory) MarkAmendmentVetoed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.amendments[id]
	if !ok {
		return fmt.Errorf("amendment %d: %w", id, ErrNoRow)
	}
	row.Vetoed = true
	m.amendments[id] = row
	return nil
}

func (m *Memory) GetOpinion(_ context.Context, amendmentID, userID int64) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.opinions[[2]int64{amendmentID, userID}]
	if !ok {
		return 0, false, nil
	}
	return row.Value, true, nil
}

func (m *Memory) UpsertOpinion(_ context.Context, amendmentID, userID int64, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opinions[[2]int64{amendmentID, userID}] = OpinionRow{
		AmendmentID: amendmentID,
		UserID:      userID,
		Value:       value,
		CreatedAt:   time.Now(),
	}
	return nil
}

func (m *Memory) DeleteOpinion(_ context.Context, amendmentID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.opinions, [2]int64{amendmentID, userID})
	return nil
}

func (m *Memory) ListOpinions(_ context.Context, amendmentID int64) ([]OpinionRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OpinionRow
	for key, row := range m.opinions {
		if key[0] == amendmentID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *Memory) GetUser(_ context.Context, id int64) (UserRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.users[id]
	if !ok {
		return UserRow{}, fmt.Errorf("user %d: %w", id, ErrNoRow)
	}
	return row, nil
}

func (m *Memory) EnsureUserByNickname(_ context.Context, nickname string) (UserRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.users {
		if row.Nickname == nickname {
			return row, nil
		}
	}
	m.nextUserID++
	row := UserRow{ID: m.nextUserID, Nickname: nickname, CreatedAt: time.Now()}
	m.users[row.ID] = row
	return row, nil
}

// SearchContents mirrors the Postgres full text fallback with a naive
// substring match, enough for tests.
func (m *Memory) SearchContents(_ context.Context, query string, limit int) ([]ContentRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(query)
	var out []ContentRow
	for _, row := range m.contents {
		if !row.Public {
			continue
		}
		if strings.Contains(strings.ToLower(row.Name), needle) ||
			strings.Contains(strings.ToLower(row.Description), needle) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
