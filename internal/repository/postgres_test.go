package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-challenge/internal/domain"
)

func newMockRepo(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func TestEnsureSchema(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUser(t *testing.T) {
	repo, mock := newMockRepo(t)
	birth := time.Date(1995, 4, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "nickname", "profile_image", "birth_date", "gender"}).
			AddRow("u1", "cheese", "https://img/u1.png", birth, "female"))

	u, err := repo.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "cheese", u.Nickname)
	assert.Equal(t, domain.GenderFemale, u.Gender)
	assert.True(t, u.BirthDate.Equal(birth))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "nickname", "profile_image", "birth_date", "gender"}))

	u, err := repo.GetUser(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestGetUsersWithoutBirthDate(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ANY($1)")).
		WithArgs(pq.Array([]string{"u1", "u2"})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "nickname", "profile_image", "birth_date", "gender"}).
			AddRow("u1", "a", "", nil, "NONE").
			AddRow("u2", "b", "", nil, "MALE"))

	users, err := repo.GetUsers(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.False(t, users["u1"].HasBirthDate())
	assert.Equal(t, domain.GenderMale, users["u2"].Gender)
}

func TestActivityTimesExcludesRejected(t *testing.T) {
	repo, mock := newMockRepo(t)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 14)
	t1 := from.Add(26 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("verification_status <> $5")).
		WithArgs("c1", "u1", from, to, VerificationRejected).
		WillReturnRows(sqlmock.NewRows([]string{"submitted_at"}).AddRow(t1))

	got, err := repo.ActivityTimes(context.Background(), "c1", "u1", from, to)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Equal(t1))
}

func TestArchiveChallenge(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO challenge_settlements")).
		WithArgs("c1", "run", int64(100), int64(300), int64(150),
			pq.Array([]string{"u1", "u2", "u3"}), pq.Array([]string{"u1", "u3"}), sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ArchiveChallenge(context.Background(), ChallengeSettlement{
		ChallengeID:  "c1",
		Title:        "run",
		Stake:        100,
		Pool:         300,
		RewardEach:   150,
		Participants: []string{"u1", "u2", "u3"},
		Succeeded:    []string{"u1", "u3"},
		Achievements: map[string]int{"u1": 100, "u2": 40, "u3": 100},
		SettledAt:    now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveMissionWrapsError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO mission_settlements")).
		WillReturnError(assert.AnError)

	err := repo.ArchiveMission(context.Background(), MissionSettlement{MissionID: 7, Title: "steps"})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "insert mission settlement")
}

func TestMemoryActivityFiltersRejectedAndWindow(t *testing.T) {
	m := NewMemory()
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m.AddActivity("c1", "u1", from.Add(2*time.Hour), "approved")
	m.AddActivity("c1", "u1", from.Add(time.Hour), "pending")
	m.AddActivity("c1", "u1", from.Add(3*time.Hour), "REJECTED")
	m.AddActivity("c1", "u1", from.Add(-time.Hour), "approved")

	got, err := m.ActivityTimes(context.Background(), "c1", "u1", from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Before(got[1]))

	require.NoError(t, m.ArchiveMission(context.Background(), MissionSettlement{MissionID: 1, Reward: 10}))
	require.NoError(t, m.ArchiveMission(context.Background(), MissionSettlement{MissionID: 1, Reward: 99}))
	rec, ok := m.MissionSettlement(1)
	require.True(t, ok)
	assert.Equal(t, int64(10), rec.Reward)
}
