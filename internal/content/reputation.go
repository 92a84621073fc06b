package content

import (
	"context"
	"fmt"

	"github.com/KuchtaVR6/Learnopedia-sub000/internal/store"
)

// LevelShare is a user's stake at one level of a node's ancestry: the
// significance the user authored against the total significance ever
// applied there.
type LevelShare struct {
	Level   store.ContentKind `json:"level"`
	Maximum int64             `json:"maximum"`
	Owned   int64             `json:"owned"`
}

// ContentShareOfUser walks from the node to its root course and reports
// the user's share at every level, root first. Vetoed and unapplied
// amendments carry no weight; amendments by deleted users count toward
// the maximum only.
func (m *Manager) ContentShareOfUser(ctx context.Context, contentID, userID int64) ([]LevelShare, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.unlock()
	return m.contentShare(ctx, contentID, userID)
}

func (m *Manager) contentShare(ctx context.Context, contentID, userID int64) ([]LevelShare, error) {
	var shares []LevelShare
	id := contentID
	for id != 0 {
		n, err := m.fetchFull(ctx, id)
		if err != nil {
			return nil, err
		}
		share := LevelShare{Level: n.kind}
		for _, a := range n.amendments {
			if !a.Applied() || a.Vetoed() {
				continue
			}
			share.Maximum += a.Significance()
			if author := a.AuthorID(); author != nil && *author == userID {
				share.Owned += a.Significance()
			}
		}
		shares = append([]LevelShare{share}, shares...)
		id = n.parentID
	}
	return shares, nil
}

// Support is the aggregated stake behind one opinion bucket at one level.
type Support struct {
	Level     store.ContentKind `json:"level"`
	Maximum   int64             `json:"maximum"`
	Positives int64             `json:"positives"`
	Negatives int64             `json:"negatives"`
	Reports   int64             `json:"reports"`
}

// Supports is the stake-weighted voting picture of one amendment.
// UserOpinion is the requesting user's own opinion, 0 when absent.
type Supports struct {
	Levels      []Support `json:"levels"`
	UserOpinion int       `json:"userOpinion"`
}

// AmendmentSupports tallies every voter's per-level stake on the
// amendment's target ancestry into positive, negative and report buckets.
// Levels with no applied significance are omitted.
func (m *Manager) AmendmentSupports(ctx context.Context, amendmentID int64, requestingUser *int64) (Supports, error) {
	if err := m.lock(ctx); err != nil {
		return Supports{}, err
	}
	defer m.unlock()
	a, err := m.amendment(ctx, amendmentID)
	if err != nil {
		return Supports{}, err
	}
	target := a.TargetID()
	if target == 0 {
		return Supports{}, fmt.Errorf("amendment %d has no target: %w", amendmentID, ErrNotFound)
	}

	opinions, err := m.store.ListOpinions(ctx, amendmentID)
	if err != nil {
		return Supports{}, fmt.Errorf("list opinions: %w", err)
	}

	// Seed the buckets from the ancestry itself so the maxima show even
	// before anyone votes. A user id of 0 owns nothing.
	baseline, err := m.contentShare(ctx, target, 0)
	if err != nil {
		return Supports{}, err
	}
	var levels []Support
	index := make(map[store.ContentKind]int)
	for _, share := range baseline {
		if share.Maximum == 0 {
			continue
		}
		index[share.Level] = len(levels)
		levels = append(levels, Support{Level: share.Level, Maximum: share.Maximum})
	}

	for _, opinion := range opinions {
		shares, err := m.contentShare(ctx, target, opinion.UserID)
		if err != nil {
			return Supports{}, err
		}
		for _, share := range shares {
			i, ok := index[share.Level]
			if !ok {
				continue
			}
			switch opinion.Value {
			case store.OpinionPositive:
				levels[i].Positives += share.Owned
			case store.OpinionNegative:
				levels[i].Negatives += share.Owned
			case store.OpinionReport:
				levels[i].Reports += share.Owned
			}
		}
	}

	out := Supports{Levels: levels}
	if requestingUser != nil {
		value, ok, err := m.store.GetOpinion(ctx, amendmentID, *requestingUser)
		if err != nil {
			return Supports{}, fmt.Errorf("get opinion: %w", err)
		}
		if ok {
			out.UserOpinion = value
		}
	}
	return out, nil
}
