// Package lessonpart models the polymorphic teaching units inside a
// lesson: paragraphs, embedded media and quiz questions.
package lessonpart

import (
	"errors"
	"fmt"

	"github.com/KuchtaVR6/Learnopedia-sub000/internal/store"
)

var (
	ErrEmptyBody      = errors.New("lesson part body must not be empty")
	ErrNoAnswers      = errors.New("quiz question needs at least one answer")
	ErrNoCorrect      = errors.New("quiz question needs at least one correct answer")
	ErrUnknownKind    = errors.New("unknown lesson part kind")
	ErrMissingPayload = errors.New("lesson part row has no payload")
)

// Payload is the kind-specific body of a part.
type Payload interface {
	PartKind() store.LessonPartKind
	Validate() error
}

// Paragraph is a block of lesson text with an optional advanced variant
// shown on demand.
type Paragraph struct {
	BasicText    string
	AdvancedText *string
}

func (Paragraph) PartKind() store.LessonPartKind { return store.PartParagraph }

func (p Paragraph) Validate() error {
	if p.BasicText == "" {
		return fmt.Errorf("paragraph: %w", ErrEmptyBody)
	}
	return nil
}

// Embeddable references external media by URI.
type Embeddable struct {
	URI       string
	MediaKind string
}

func (Embeddable) PartKind() store.LessonPartKind { return store.PartEmbeddable }

func (e Embeddable) Validate() error {
	if e.URI == "" {
		return fmt.Errorf("embeddable: %w", ErrEmptyBody)
	}
	return nil
}

// Answer is one option of a quiz question.
type Answer struct {
	ID       int64
	Content  string
	Correct  bool
	Feedback *string
}

// QuizQuestion is a question with a fixed answer set. Kind selects the
// widget: single choice, multiple choice or free text.
type QuizQuestion struct {
	Question string
	QuizKind string
	Answers  []Answer
}

func (QuizQuestion) PartKind() store.LessonPartKind { return store.PartQuiz }

func (q QuizQuestion) Validate() error {
	if q.Question == "" {
		return fmt.Errorf("quiz: %w", ErrEmptyBody)
	}
	if len(q.Answers) == 0 {
		return fmt.Errorf("quiz %q: %w", q.Question, ErrNoAnswers)
	}
	for _, a := range q.Answers {
		if a.Correct {
			return nil
		}
	}
	return fmt.Errorf("quiz %q: %w", q.Question, ErrNoCorrect)
}

// Part is one placed unit inside a lesson's ordered part list.
type Part struct {
	ID        int64
	LessonID  int64
	SeqNumber int64
	Hidden    bool
	Payload   Payload
}

// FromRow rebuilds the typed part for a stored row.
func FromRow(row store.LessonPartRow) (Part, error) {
	part := Part{
		ID:        row.ID,
		LessonID:  row.LessonID,
		SeqNumber: row.SeqNumber,
		Hidden:    row.Hidden,
	}
	switch row.Kind {
	case store.PartParagraph:
		if row.Paragraph == nil {
			return Part{}, fmt.Errorf("part %d: %w", row.ID, ErrMissingPayload)
		}
		part.Payload = Paragraph{BasicText: row.Paragraph.BasicText, AdvancedText: row.Paragraph.AdvancedText}
	case store.PartEmbeddable:
		if row.Embeddable == nil {
			return Part{}, fmt.Errorf("part %d: %w", row.ID, ErrMissingPayload)
		}
		part.Payload = Embeddable{URI: row.Embeddable.URI, MediaKind: row.Embeddable.MediaKind}
	case store.PartQuiz:
		if row.Quiz == nil {
			return Part{}, fmt.Errorf("part %d: %w", row.ID, ErrMissingPayload)
		}
		q := QuizQuestion{Question: row.Quiz.Question, QuizKind: row.Quiz.QuizKind}
		for _, a := range row.Quiz.Answers {
			q.Answers = append(q.Answers, Answer{ID: a.ID, Content: a.Content, Correct: a.Correct, Feedback: a.Feedback})
		}
		part.Payload = q
	default:
		return Part{}, fmt.Errorf("part %d kind %q: %w", row.ID, row.Kind, ErrUnknownKind)
	}
	return part, nil
}

// ToRow produces the persistable form of a part.
func ToRow(part Part) (store.LessonPartRow, error) {
	if part.Payload == nil {
		return store.LessonPartRow{}, fmt.Errorf("part %d: %w", part.ID, ErrMissingPayload)
	}
	if err := part.Payload.Validate(); err != nil {
		return store.LessonPartRow{}, err
	}
	row := store.LessonPartRow{
		ID:        part.ID,
		LessonID:  part.LessonID,
		SeqNumber: part.SeqNumber,
		Hidden:    part.Hidden,
		Kind:      part.Payload.PartKind(),
	}
	switch p := part.Payload.(type) {
	case Paragraph:
		row.Paragraph = &store.ParagraphRow{BasicText: p.BasicText, AdvancedText: p.AdvancedText}
	case Embeddable:
		row.Embeddable = &store.EmbeddableRow{URI: p.URI, MediaKind: p.MediaKind}
	case QuizQuestion:
		quiz := &store.QuizQuestionRow{Question: p.Question, QuizKind: p.QuizKind}
		for _, a := range p.Answers {
			quiz.Answers = append(quiz.Answers, store.QuizAnswerRow{ID: a.ID, Content: a.Content, Correct: a.Correct, Feedback: a.Feedback})
		}
		row.Quiz = quiz
	}
	return row, nil
}

// AnswerOutput hides correctness from the reader-facing shape; feedback is
// revealed only after answering.
type AnswerOutput struct {
	ID       int64   `json:"id"`
	Content  string  `json:"content"`
	Correct  bool    `json:"correct"`
	Feedback *string `json:"feedback,omitempty"`
}

// Output is the display projection of a part.
type Output struct {
	ID        int64                `json:"id"`
	SeqNumber int64                `json:"seqNumber"`
	Kind      store.LessonPartKind `json:"type"`

	BasicText    *string `json:"basicText,omitempty"`
	AdvancedText *string `json:"advancedText,omitempty"`

	URI       *string `json:"uri,omitempty"`
	MediaKind *string `json:"mediaType,omitempty"`

	Question *string        `json:"question,omitempty"`
	QuizKind *string        `json:"quizType,omitempty"`
	Answers  []AnswerOutput `json:"answers,omitempty"`
}

// Display projects a part for API responses.
func Display(part Part) Output {
	out := Output{ID: part.ID, SeqNumber: part.SeqNumber, Kind: part.Payload.PartKind()}
	switch p := part.Payload.(type) {
	case Paragraph:
		text := p.BasicText
		out.BasicText = &text
		out.AdvancedText = p.AdvancedText
	case Embeddable:
		uri, media := p.URI, p.MediaKind
		out.URI = &uri
		out.MediaKind = &media
	case QuizQuestion:
		question, kind := p.Question, p.QuizKind
		out.Question = &question
		out.QuizKind = &kind
		for _, a := range p.Answers {
			out.Answers = append(out.Answers, AnswerOutput{ID: a.ID, Content: a.Content, Correct: a.Correct, Feedback: a.Feedback})
		}
	}
	return out
}
