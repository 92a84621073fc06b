package content

import (
	"context"
	"testing"

	"github.com/KuchtaVR6/Learnopedia-sub000/internal/store"
)

func TestContentShareOfUserWalksRootFirst(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	course := mustCreate(t, m, int64Ptr(1), CreationParams{Kind: store.KindCourse, Name: "Algebra"})
	courseID := course.TargetID()
	chapter := mustCreate(t, m, int64Ptr(2), CreationParams{Kind: store.KindChapter, Name: "Basics", ParentID: &courseID})
	chapterID := chapter.TargetID()
	lesson := mustCreate(t, m, int64Ptr(1), CreationParams{Kind: store.KindLesson, Name: "Intro", ParentID: &chapterID})

	shares, err := m.ContentShareOfUser(ctx, lesson.TargetID(), 1)
	if err != nil {
		t.Fatalf("ContentShareOfUser: %v", err)
	}
	if len(shares) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(shares))
	}
	want := []LevelShare{
		{Level: store.KindCourse, Maximum: 100, Owned: 100},
		{Level: store.KindChapter, Maximum: 1000, Owned: 0},
		{Level: store.KindLesson, Maximum: 10000, Owned: 10000},
	}
	for i := range want {
		if shares[i] != want[i] {
			t.Fatalf("level %d: expected %+v, got %+v", i, want[i], shares[i])
		}
	}
}

func TestContentShareIgnoresVetoedAmendments(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	course := mustCreate(t, m, int64Ptr(1), CreationParams{Kind: store.KindCourse, Name: "Algebra"})
	courseID := course.TargetID()
	meta, err := m.EditMeta(ctx, int64Ptr(2), courseID, MetaParams{NewName: stringPtr("Algebra II")})
	if err != nil {
		t.Fatalf("EditMeta: %v", err)
	}
	if err := m.Veto(ctx, meta.ID()); err != nil {
		t.Fatalf("Veto: %v", err)
	}

	shares, err := m.ContentShareOfUser(ctx, courseID, 2)
	if err != nil {
		t.Fatalf("ContentShareOfUser: %v", err)
	}
	if len(shares) != 1 {
		t.Fatalf("expected 1 level, got %d", len(shares))
	}
	if shares[0].Maximum != 100 || shares[0].Owned != 0 {
		t.Fatalf("expected vetoed stake excluded, got %+v", shares[0])
	}
}

func TestContentShareCountsAnonymousTowardMaximumOnly(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	course := mustCreate(t, m, nil, CreationParams{Kind: store.KindCourse, Name: "Algebra"})
	shares, err := m.ContentShareOfUser(ctx, course.TargetID(), 1)
	if err != nil {
		t.Fatalf("ContentShareOfUser: %v", err)
	}
	if shares[0].Maximum != 100 || shares[0].Owned != 0 {
		t.Fatalf("expected authorless stake in maximum only, got %+v", shares[0])
	}
}

func TestAmendmentSupportsWeighsVotesByStake(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	course := mustCreate(t, m, int64Ptr(1), CreationParams{Kind: store.KindCourse, Name: "Algebra"})
	courseID := course.TargetID()
	meta, err := m.EditMeta(ctx, int64Ptr(2), courseID, MetaParams{NewName: stringPtr("Algebra II")})
	if err != nil {
		t.Fatalf("EditMeta: %v", err)
	}

	// User 1 holds 100 of the course stake, user 2 holds 10000.
	if err := m.Vote(ctx, meta.ID(), 1, store.OpinionPositive); err != nil {
		t.Fatalf("Vote user 1: %v", err)
	}
	if err := m.Vote(ctx, meta.ID(), 2, store.OpinionNegative); err != nil {
		t.Fatalf("Vote user 2: %v", err)
	}
	// User 3 holds nothing; their vote moves no weight.
	if err := m.Vote(ctx, meta.ID(), 3, store.OpinionReport); err != nil {
		t.Fatalf("Vote user 3: %v", err)
	}

	requester := int64(1)
	supports, err := m.AmendmentSupports(ctx, meta.ID(), &requester)
	if err != nil {
		t.Fatalf("AmendmentSupports: %v", err)
	}
	if len(supports.Levels) != 1 {
		t.Fatalf("expected one level, got %d", len(supports.Levels))
	}
	level := supports.Levels[0]
	if level.Level != store.KindCourse || level.Maximum != 10100 {
		t.Fatalf("unexpected level %+v", level)
	}
	if level.Positives != 100 || level.Negatives != 10000 || level.Reports != 0 {
		t.Fatalf("expected 100/10000/0, got %d/%d/%d", level.Positives, level.Negatives, level.Reports)
	}
	if supports.UserOpinion != store.OpinionPositive {
		t.Fatalf("expected requester opinion 1, got %d", supports.UserOpinion)
	}
}

func TestAmendmentSupportsShowsMaximaWithoutVotes(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, chapterID, _ := buildCourse(t, m, int64Ptr(1))
	meta, err := m.EditMeta(ctx, int64Ptr(1), chapterID, MetaParams{NewName: stringPtr("Renamed")})
	if err != nil {
		t.Fatalf("EditMeta: %v", err)
	}

	supports, err := m.AmendmentSupports(ctx, meta.ID(), nil)
	if err != nil {
		t.Fatalf("AmendmentSupports: %v", err)
	}
	if len(supports.Levels) != 2 {
		t.Fatalf("expected course and chapter levels, got %d", len(supports.Levels))
	}
	if supports.Levels[0].Level != store.KindCourse || supports.Levels[0].Maximum != 100 {
		t.Fatalf("unexpected course level %+v", supports.Levels[0])
	}
	if supports.Levels[1].Level != store.KindChapter || supports.Levels[1].Maximum == 0 {
		t.Fatalf("unexpected chapter level %+v", supports.Levels[1])
	}
	if supports.UserOpinion != 0 {
		t.Fatalf("expected no requester opinion, got %d", supports.UserOpinion)
	}
}
