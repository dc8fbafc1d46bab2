package feed

import (
	"context"
	"errors"
	"math"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/cheese-challenge/internal/domain"
	"github.com/park285/cheese-challenge/internal/store"
	"github.com/park285/cheese-challenge/pkg/challengedto"
)

var now = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T) *Service {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := store.New(rdb)
	ctx := context.Background()

	day := 24 * time.Hour
	challenges := []*domain.Challenge{
		{ID: "c-past", Title: "Old swim", StartDate: now.Add(-10 * day), EndDate: now.Add(-day), Participants: []string{"u1"}, CreatedAt: now.Add(-20 * day)},
		{ID: "c-live", Title: "Morning run", Introduce: "run every day", StartDate: now.Add(-day), EndDate: now.Add(day), Participants: []string{"u1", "u2"}, CreatedAt: now.Add(-5 * day)},
		{ID: "c-next", Title: "Reading", StartDate: now.Add(3 * day), EndDate: now.Add(10 * day), Participants: []string{"u2"}, CreatedAt: now.Add(-day)},
	}
	missions := []*domain.Mission{
		{ID: 1, Title: "Steps", Description: "walk and run", StartTime: now.Add(-2 * day), EndTime: now.Add(2 * day)},
		{ID: 2, Title: "Pushups", StartTime: now.Add(day), EndTime: now.Add(2 * day)},
	}
	pipe := rdb.TxPipeline()
	for _, c := range challenges {
		if err := st.QueueSaveChallenge(ctx, pipe, c); err != nil {
			t.Fatalf("QueueSaveChallenge: %v", err)
		}
	}
	for _, m := range missions {
		if err := st.QueueSaveMission(ctx, pipe, m); err != nil {
			t.Fatalf("QueueSaveMission: %v", err)
		}
		if err := st.QueueSaveParticipation(ctx, pipe, &domain.Participation{MissionID: m.ID, UserID: "u1", JoinedAt: now}, true); err != nil {
			t.Fatalf("QueueSaveParticipation: %v", err)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return New(st, func() time.Time { return now })
}

func TestForUserFilters(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	cases := []struct {
		filter Filter
		want   []string
	}{
		{FilterAll, []string{"c-past", "m1", "c-live", "m2"}},
		{FilterOngoing, []string{"m1", "c-live"}},
		{FilterUpcoming, []string{"m2"}},
	}
	for _, tc := range cases {
		items, err := s.ForUser(ctx, "u1", tc.filter)
		if err != nil {
			t.Fatalf("ForUser(%s): %v", tc.filter, err)
		}
		var got []string
		for _, it := range items {
			got = append(got, label(it))
		}
		if len(got) != len(tc.want) {
			t.Fatalf("ForUser(%s) = %v, want %v", tc.filter, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("ForUser(%s) = %v, want %v", tc.filter, got, tc.want)
			}
		}
	}

	items, _ := s.ForUser(ctx, "u1", FilterOngoing)
	live := items[1]
	if live.Kind != domain.FeedGroup || *live.CurrentMember != 2 || !live.IsStarted || live.IsFinished {
		t.Fatalf("group item = %+v", live)
	}
	if ev := items[0]; ev.Kind != domain.FeedEvent || ev.CurrentMember != nil || ev.MaxMember != nil {
		t.Fatalf("event item = %+v", ev)
	}
}

func TestSearchPaginates(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	p, err := s.Search(ctx, "RUN", "u2", 1, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if p.Total != 2 || p.TotalPages != 2 || !p.HasNext || len(p.Items) != 1 {
		t.Fatalf("page 1 = %+v", p)
	}
	if first := p.Items[0]; first.ChallengeID != "c-live" || !first.IsParticipating {
		t.Fatalf("newest start first, got %+v", first)
	}
	p, _ = s.Search(ctx, "run", "u2", 2, 1)
	if len(p.Items) != 1 || p.Items[0].MissionID != 1 || p.Items[0].IsParticipating || p.HasNext {
		t.Fatalf("page 2 = %+v", p)
	}
	p, _ = s.Search(ctx, "run", "u2", 5, 1)
	if len(p.Items) != 0 || p.Total != 2 {
		t.Fatalf("page past the end = %+v", p)
	}
	if _, err := s.Search(ctx, " ", "", 1, 10); !errors.Is(err, challengedto.ErrInvalidArgs) {
		t.Fatalf("blank keyword: %v", err)
	}
}

func TestSearchHugePageAndLimit(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	p, err := s.Search(ctx, "run", "u2", math.MaxInt, math.MaxInt)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if p.Limit != MaxSearchLimit || p.Total != 2 || p.TotalPages != 1 || len(p.Items) != 0 || p.HasNext {
		t.Fatalf("huge page = %+v", p)
	}
	p, err = s.Search(ctx, "run", "u2", 1, math.MaxInt)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(p.Items) != 2 || p.HasNext {
		t.Fatalf("huge limit = %+v", p)
	}
}

func TestParseFilter(t *testing.T) {
	if f, err := ParseFilter(""); err != nil || f != FilterAll {
		t.Fatalf("default = %v %v", f, err)
	}
	if f, err := ParseFilter("ongoing"); err != nil || f != FilterOngoing {
		t.Fatalf("ongoing = %v %v", f, err)
	}
	if _, err := ParseFilter("done"); !errors.Is(err, challengedto.ErrInvalidArgs) {
		t.Fatalf("unknown filter: %v", err)
	}
}

func label(it domain.FeedItem) string {
	if it.Kind == domain.FeedEvent {
		return "m" + strconv.FormatInt(it.MissionID, 10)
	}
	return it.ChallengeID
}
