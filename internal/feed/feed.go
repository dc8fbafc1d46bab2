// Package feed merges a user's challenges and missions into one list.
package feed

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-challenge/internal/domain"
	"github.com/park285/cheese-challenge/internal/obslog"
	"github.com/park285/cheese-challenge/internal/store"
	"github.com/park285/cheese-challenge/pkg/challengedto"
)

// Filter narrows the feed by derived status.
type Filter string

const (
	FilterAll      Filter = "ALL"
	FilterOngoing  Filter = "ONGOING"
	FilterUpcoming Filter = "UPCOMING"
)

func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToUpper(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterOngoing, FilterUpcoming:
		return f, nil
	}
	return "", challengedto.ErrInvalidArgs.WithMessage(fmt.Sprintf("unknown feed filter %q", s))
}

func (f Filter) keep(start, end, now time.Time) bool {
	switch f {
	case FilterOngoing:
		return !start.After(now) && !end.Before(now)
	case FilterUpcoming:
		return start.After(now)
	}
	return true
}

// SearchItem is a feed item annotated with the searcher's membership.
type SearchItem struct {
	domain.FeedItem
	IsParticipating bool
}

type Page struct {
	Items      []SearchItem
	Total      int
	Page       int
	Limit      int
	TotalPages int
	HasNext    bool
}

type Service struct {
	store *store.Store
	now   func() time.Time
}

func New(st *store.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: st, now: now}
}

// ForUser lists the challenges and missions userID takes part in, ascending by start.
func (s *Service) ForUser(ctx context.Context, userID string, filter Filter) ([]domain.FeedItem, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, challengedto.ErrInvalidArgs
	}
	if filter == "" {
		filter = FilterAll
	}
	now := s.now()

	cids, err := s.store.ChallengeIDsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	challenges, err := s.store.LoadChallenges(ctx, cids)
	if err != nil {
		return nil, err
	}
	mids, err := s.store.MissionIDsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	missions, err := s.store.LoadMissions(ctx, mids)
	if err != nil {
		return nil, err
	}

	items := make([]domain.FeedItem, 0, len(challenges)+len(missions))
	for _, c := range challenges {
		if c.HasParticipant(userID) && filter.keep(c.StartDate, c.EndDate, now) {
			items = append(items, domain.ChallengeFeedItem(c, now))
		}
	}
	for _, m := range missions {
		if filter.keep(m.StartTime, m.EndTime, now) {
			items = append(items, domain.MissionFeedItem(m, now))
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].SortKey < items[j].SortKey })
	return items, nil
}

// MaxSearchLimit caps the page size Search honours.
const MaxSearchLimit = 100

// Search matches keyword against titles and descriptions of every challenge
// and mission, newest start first, one page at a time.
func (s *Service) Search(ctx context.Context, keyword, userID string, page, limit int) (*Page, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" || page < 1 || limit < 1 {
		return nil, challengedto.ErrInvalidArgs
	}
	limit = min(limit, MaxSearchLimit)
	now := s.now()

	cids, err := s.store.ChallengesCreatedSince(ctx, time.Time{}, 0)
	if err != nil {
		return nil, err
	}
	challenges, err := s.store.LoadChallenges(ctx, cids)
	if err != nil {
		return nil, err
	}
	mids, err := s.store.MissionIDs(ctx)
	if err != nil {
		return nil, err
	}
	missions, err := s.store.LoadMissions(ctx, mids)
	if err != nil {
		return nil, err
	}
	joined := map[int64]bool{}
	if userID != "" {
		mine, err := s.store.MissionIDsByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, id := range mine {
			joined[id] = true
		}
	}

	var items []SearchItem
	for _, c := range challenges {
		if matches(keyword, c.Title, c.Introduce) {
			items = append(items, SearchItem{FeedItem: domain.ChallengeFeedItem(c, now), IsParticipating: c.HasParticipant(userID)})
		}
	}
	for _, m := range missions {
		if matches(keyword, m.Title, m.Description) {
			items = append(items, SearchItem{FeedItem: domain.MissionFeedItem(m, now), IsParticipating: joined[m.ID]})
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].SortKey > items[j].SortKey })

	p := &Page{Total: len(items), Page: page, Limit: limit, Items: []SearchItem{}}
	p.TotalPages = (p.Total + limit - 1) / limit
	if page <= p.TotalPages {
		from := (page - 1) * limit
		to := min(from+limit, len(items))
		p.Items = items[from:to]
		p.HasNext = to < len(items)
	}
	obslog.L().Debug("feed_search", zap.String("keyword", keyword), zap.Int("total", p.Total), zap.Int("page", page))
	return p, nil
}

func matches(keyword string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), keyword) {
			return true
		}
	}
	return false
}
