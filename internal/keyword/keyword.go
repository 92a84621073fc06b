// Package keyword maintains the keyword registry: validated search words
// attached to content nodes, scored 1 to 100. Detached keywords return to
// an unattached pool and are reused by word before new rows are created.
package keyword

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"unicode"

	"github.com/KuchtaVR6/Learnopedia-sub000/internal/store"
)

const (
	MinWordLen = 3
	MaxWordLen = 20
	MinScore   = 1
	MaxScore   = 100
)

var (
	ErrInvalidWord  = errors.New("keyword must be 3-20 lowercase letters")
	ErrInvalidScore = errors.New("keyword score must be between 1 and 100")
	ErrWrongOwner   = errors.New("keyword does not belong to this content")
	ErrNotFound     = errors.New("keyword not found")
)

// ValidateWord enforces the canonical keyword shape: lowercase letters
// only, no digits, punctuation or whitespace.
func ValidateWord(word string) error {
	runes := []rune(word)
	if len(runes) < MinWordLen || len(runes) > MaxWordLen {
		return fmt.Errorf("%q: %w", word, ErrInvalidWord)
	}
	for _, r := range runes {
		if !unicode.IsLetter(r) || !unicode.IsLower(r) {
			return fmt.Errorf("%q: %w", word, ErrInvalidWord)
		}
	}
	return nil
}

func ValidateScore(score int) error {
	if score < MinScore || score > MaxScore {
		return fmt.Errorf("score %d: %w", score, ErrInvalidScore)
	}
	return nil
}

// Store is the slice of persistence the registry needs.
type Store interface {
	ListKeywords(ctx context.Context) ([]store.KeywordRow, error)
	InsertKeyword(ctx context.Context, word string, score int, contentID *int64) (int64, error)
	SetKeywordOwner(ctx context.Context, keywordID int64, contentID *int64) error
}

// Registry is the in-memory index over all keyword rows. It loads lazily
// with one full scan on first use and is kept consistent by the engine,
// which routes every attach and detach through it.
type Registry struct {
	store Store

	once    sync.Once
	loadErr error

	mu        sync.RWMutex
	byID      map[int64]store.KeywordRow
	byContent map[int64]map[int64]struct{} // content id -> keyword ids
	pool      map[string][]int64          // unattached keyword ids by word
}

func NewRegistry(s Store) *Registry {
	return &Registry{
		store:     s,
		byID:      make(map[int64]store.KeywordRow),
		byContent: make(map[int64]map[int64]struct{}),
		pool:      make(map[string][]int64),
	}
}

func (r *Registry) ensure(ctx context.Context) error {
	r.once.Do(func() {
		rows, err := r.store.ListKeywords(ctx)
		if err != nil {
			r.loadErr = fmt.Errorf("load keyword registry: %w", err)
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, row := range rows {
			r.index(row)
		}
	})
	return r.loadErr
}

// index records a row in all lookup maps. Caller holds the write lock.
func (r *Registry) index(row store.KeywordRow) {
	r.byID[row.ID] = row
	if row.ContentID == nil {
		r.pool[row.Word] = append(r.pool[row.Word], row.ID)
		return
	}
	set, ok := r.byContent[*row.ContentID]
	if !ok {
		set = make(map[int64]struct{})
		r.byContent[*row.ContentID] = set
	}
	set[row.ID] = struct{}{}
}

// Attach binds a keyword with the given word and score to contentID. A
// pooled row with the same word is reused; otherwise a new row is inserted.
func (r *Registry) Attach(ctx context.Context, word string, score int, contentID int64) (store.KeywordRow, error) {
	if err := ValidateWord(word); err != nil {
		return store.KeywordRow{}, err
	}
	if err := ValidateScore(score); err != nil {
		return store.KeywordRow{}, err
	}
	if err := r.ensure(ctx); err != nil {
		return store.KeywordRow{}, err
	}

	r.mu.Lock()
	var reuseID int64 = -1
	if ids := r.pool[word]; len(ids) > 0 {
		reuseID = ids[len(ids)-1]
		r.pool[word] = ids[:len(ids)-1]
	}
	r.mu.Unlock()

	if reuseID >= 0 {
		if err := r.store.SetKeywordOwner(ctx, reuseID, &contentID); err != nil {
			r.mu.Lock()
			r.pool[word] = append(r.pool[word], reuseID)
			r.mu.Unlock()
			return store.KeywordRow{}, fmt.Errorf("reattach keyword: %w", err)
		}
		r.mu.Lock()
		row := r.byID[reuseID]
		row.Score = score
		row.ContentID = &contentID
		r.byID[reuseID] = row
		set, ok := r.byContent[contentID]
		if !ok {
			set = make(map[int64]struct{})
			r.byContent[contentID] = set
		}
		set[reuseID] = struct{}{}
		r.mu.Unlock()
		return row, nil
	}

	id, err := r.store.InsertKeyword(ctx, word, score, &contentID)
	if err != nil {
		return store.KeywordRow{}, fmt.Errorf("insert keyword: %w", err)
	}
	row := store.KeywordRow{ID: id, Word: word, Score: score, ContentID: &contentID}
	r.mu.Lock()
	r.index(row)
	r.mu.Unlock()
	return row, nil
}

// Detach releases keywordID from contentID back into the pool. The row is
// kept so the word can be reattached later without a new insert.
func (r *Registry) Detach(ctx context.Context, keywordID, contentID int64) error {
	if err := r.ensure(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	row, ok := r.byID[keywordID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("keyword %d: %w", keywordID, ErrNotFound)
	}
	if row.ContentID == nil || *row.ContentID != contentID {
		r.mu.Unlock()
		return fmt.Errorf("keyword %d: %w", keywordID, ErrWrongOwner)
	}
	r.mu.Unlock()

	if err := r.store.SetKeywordOwner(ctx, keywordID, nil); err != nil {
		return fmt.Errorf("detach keyword: %w", err)
	}

	r.mu.Lock()
	row.ContentID = nil
	r.byID[keywordID] = row
	if set := r.byContent[contentID]; set != nil {
		delete(set, keywordID)
	}
	r.pool[row.Word] = append(r.pool[row.Word], keywordID)
	r.mu.Unlock()
	return nil
}

// For returns the keywords attached to contentID, sorted by descending
// score then word.
func (r *Registry) For(ctx context.Context, contentID int64) ([]store.KeywordRow, error) {
	if err := r.ensure(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows := make([]store.KeywordRow, 0, len(r.byContent[contentID]))
	for id := range r.byContent[contentID] {
		rows = append(rows, r.byID[id])
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].Word < rows[j].Word
	})
	return rows, nil
}

// Lookup maps a word to the content ids carrying it and their scores, used
// by search to boost keyword matches.
func (r *Registry) Lookup(ctx context.Context, word string) (map[int64]int, error) {
	if err := r.ensure(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	hits := make(map[int64]int)
	for _, row := range r.byID {
		if row.Word == word && row.ContentID != nil {
			hits[*row.ContentID] = row.Score
		}
	}
	return hits, nil
}
