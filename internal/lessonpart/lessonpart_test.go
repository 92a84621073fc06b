package lessonpart

import (
	"errors"
	"testing"

	"github.com/KuchtaVR6/Learnopedia-sub000/internal/store"
)

func strPtr(s string) *string { return &s }

func TestParagraphValidate(t *testing.T) {
	if err := (Paragraph{BasicText: "intro"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Paragraph{}).Validate(); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
}

func TestEmbeddableValidate(t *testing.T) {
	if err := (Embeddable{URI: "https://example.org/clip", MediaKind: "video"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Embeddable{MediaKind: "video"}).Validate(); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
}

func TestQuizQuestionValidate(t *testing.T) {
	ok := QuizQuestion{
		Question: "What is 2+2?",
		QuizKind: "single",
		Answers: []Answer{
			{Content: "3"},
			{Content: "4", Correct: true},
		},
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := (QuizQuestion{QuizKind: "single"}).Validate(); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
	noAnswers := QuizQuestion{Question: "Why?", QuizKind: "single"}
	if err := noAnswers.Validate(); !errors.Is(err, ErrNoAnswers) {
		t.Fatalf("expected ErrNoAnswers, got %v", err)
	}
	noCorrect := QuizQuestion{
		Question: "Why?",
		QuizKind: "single",
		Answers:  []Answer{{Content: "because"}},
	}
	if err := noCorrect.Validate(); !errors.Is(err, ErrNoCorrect) {
		t.Fatalf("expected ErrNoCorrect, got %v", err)
	}
}

func TestRowRoundTripQuiz(t *testing.T) {
	part := Part{
		ID:        5,
		LessonID:  9,
		SeqNumber: 32,
		Payload: QuizQuestion{
			Question: "Pick one",
			QuizKind: "single",
			Answers: []Answer{
				{ID: 1, Content: "yes", Correct: true, Feedback: strPtr("right")},
				{ID: 2, Content: "no"},
			},
		},
	}

	row, err := ToRow(part)
	if err != nil {
		t.Fatalf("ToRow: %v", err)
	}
	if row.Kind != store.PartQuiz || row.Quiz == nil {
		t.Fatalf("expected quiz row, got %+v", row)
	}
	if len(row.Quiz.Answers) != 2 {
		t.Fatalf("expected 2 answers, got %d", len(row.Quiz.Answers))
	}

	back, err := FromRow(row)
	if err != nil {
		t.Fatalf("FromRow: %v", err)
	}
	quiz, ok := back.Payload.(QuizQuestion)
	if !ok {
		t.Fatalf("expected QuizQuestion payload, got %T", back.Payload)
	}
	if quiz.Question != "Pick one" || len(quiz.Answers) != 2 || !quiz.Answers[0].Correct {
		t.Fatalf("unexpected payload %+v", quiz)
	}
}

func TestToRowRejectsInvalidPayload(t *testing.T) {
	if _, err := ToRow(Part{Payload: Paragraph{}}); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
	if _, err := ToRow(Part{}); !errors.Is(err, ErrMissingPayload) {
		t.Fatalf("expected ErrMissingPayload, got %v", err)
	}
}

func TestFromRowRejectsMissingPayload(t *testing.T) {
	_, err := FromRow(store.LessonPartRow{ID: 3, Kind: store.PartParagraph})
	if !errors.Is(err, ErrMissingPayload) {
		t.Fatalf("expected ErrMissingPayload, got %v", err)
	}
	_, err = FromRow(store.LessonPartRow{ID: 4, Kind: "hologram"})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestDisplayProjectsByKind(t *testing.T) {
	para := Display(Part{ID: 1, SeqNumber: 32, Payload: Paragraph{BasicText: "hello", AdvancedText: strPtr("detail")}})
	if para.Kind != store.PartParagraph || para.BasicText == nil || *para.BasicText != "hello" {
		t.Fatalf("unexpected paragraph output %+v", para)
	}
	if para.AdvancedText == nil || *para.AdvancedText != "detail" {
		t.Fatalf("expected advanced text carried, got %+v", para)
	}

	embed := Display(Part{ID: 2, SeqNumber: 64, Payload: Embeddable{URI: "https://example.org", MediaKind: "image"}})
	if embed.Kind != store.PartEmbeddable || embed.URI == nil || *embed.URI != "https://example.org" {
		t.Fatalf("unexpected embeddable output %+v", embed)
	}

	quiz := Display(Part{ID: 3, SeqNumber: 96, Payload: QuizQuestion{
		Question: "Pick",
		QuizKind: "multiple",
		Answers:  []Answer{{ID: 1, Content: "a", Correct: true}},
	}})
	if quiz.Kind != store.PartQuiz || quiz.Question == nil || len(quiz.Answers) != 1 {
		t.Fatalf("unexpected quiz output %+v", quiz)
	}
}
