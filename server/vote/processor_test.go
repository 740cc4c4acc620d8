package vote

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-arena/server/models"
	"llm-arena/server/rating"
)

const (
	gpt    = "openai/gpt-4o-mini"
	claude = "anthropic/claude-3.5-sonnet"
)

type battleRow struct {
	model1, model2 string
	outcome        models.Outcome
	winner         string
	user           string
	voted          bool
}

// memStore is an in-memory Store. InTx holds one lock for the whole
// transaction and restores a snapshot when fn fails.
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	rows       map[int64]models.Model
	battles    map[int64]battleRow
	history    []models.RatingChange
	failEnsure error
}

func newMemStore(ids ...string) *memStore {
	s := &memStore{rows: map[int64]models.Model{}, battles: map[int64]battleRow{}}
	for _, id := range ids {
		s.insert(models.Model{ModelID: id, Name: id, Elo: models.DefaultElo})
	}
	return s
}

func (s *memStore) insert(m models.Model) models.Model {
	s.nextID++
	m.ID = s.nextID
	s.rows[m.ID] = m
	return m
}

func (s *memStore) addBattle(model1, model2 string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.battles) + 1)
	s.battles[id] = battleRow{model1: model1, model2: model2}
	return id
}

func (s *memStore) find(owner, modelID string) (models.Model, bool) {
	for _, m := range s.rows {
		if m.ModelID == modelID && m.Owner() == owner {
			return m, true
		}
	}
	return models.Model{}, false
}

func (s *memStore) get(owner, modelID string) models.Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, _ := s.find(owner, modelID)
	return m
}

func (s *memStore) InTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make(map[int64]models.Model, len(s.rows))
	for k, v := range s.rows {
		rows[k] = v
	}
	battles := make(map[int64]battleRow, len(s.battles))
	for k, v := range s.battles {
		battles[k] = v
	}
	history, nextID := len(s.history), s.nextID

	if err := fn(memTx{s}); err != nil {
		s.rows, s.battles, s.history, s.nextID = rows, battles, s.history[:history], nextID
		return err
	}
	return nil
}

type memTx struct{ s *memStore }

func (t memTx) FinalizeBattle(ctx context.Context, f models.Finalization) error {
	b, ok := t.s.battles[f.BattleID]
	switch {
	case !ok:
		return models.ErrBattleNotFound
	case b.voted:
		return models.ErrAlreadyVoted
	case b.model1 != f.Model1 || b.model2 != f.Model2:
		return models.ErrBattleMismatch
	}
	b.voted, b.outcome, b.winner, b.user = true, f.Outcome, f.Winner, f.UserID
	t.s.battles[f.BattleID] = b
	return nil
}

func (t memTx) LockModels(ctx context.Context, owner string, ids ...string) ([]models.Model, error) {
	out := make([]models.Model, 0, len(ids))
	for _, id := range ids {
		m, ok := t.s.find(owner, id)
		if !ok {
			return nil, errors.Wrapf(models.ErrModelNotFound, "%q", id)
		}
		out = append(out, m)
	}
	return out, nil
}

func (t memTx) EnsurePersonal(ctx context.Context, owner string, templates ...models.Model) error {
	if t.s.failEnsure != nil {
		return t.s.failEnsure
	}
	for _, tmpl := range templates {
		if _, ok := t.s.find(owner, tmpl.ModelID); ok {
			continue
		}
		o := owner
		t.s.insert(models.Model{ModelID: tmpl.ModelID, Name: tmpl.Name, Elo: models.DefaultElo, UserID: &o})
	}
	return nil
}

func (t memTx) Increment(ctx context.Context, rowID int64, c models.Counters) error {
	m, ok := t.s.rows[rowID]
	if !ok {
		return models.ErrModelNotFound
	}
	t.s.rows[rowID] = m.Add(c)
	return nil
}

func (t memTx) SetElo(ctx context.Context, rowID int64, elo float64) error {
	m, ok := t.s.rows[rowID]
	if !ok {
		return models.ErrModelNotFound
	}
	m.Elo = elo
	t.s.rows[rowID] = m
	return nil
}

func (t memTx) AppendRating(ctx context.Context, c models.RatingChange) error {
	t.s.history = append(t.s.history, c)
	return nil
}

func newTestProcessor(s Store) *Processor {
	p := NewProcessor(s, rating.New())
	p.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestCastDecisive(t *testing.T) {
	s := newMemStore(gpt, claude)
	id := s.addBattle(gpt, claude)

	r, err := newTestProcessor(s).Cast(context.Background(), "user-1", models.VoteRequest{
		BattleID: id, Result: models.ResultModel1, Model1: gpt, Model2: claude,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeModel1Win, r.Outcome)
	assert.True(t, r.PersonalUpdated)

	require.Len(t, r.Global, 2)
	assert.InDelta(t, 1516, r.Global[0].Elo, 1e-9)
	assert.InDelta(t, 16, r.Global[0].EloDelta, 1e-9)
	assert.Equal(t, 1, r.Global[0].Wins)
	assert.InDelta(t, 1484, r.Global[1].Elo, 1e-9)
	assert.Equal(t, 1, r.Global[1].Losses)
	assert.Equal(t, r.Global, r.Personal)

	g := s.get("", gpt)
	assert.Equal(t, 1, g.Wins)
	assert.InDelta(t, 1516, g.Elo, 1e-9)
	p := s.get("user-1", claude)
	assert.Equal(t, 1, p.Losses)
	assert.InDelta(t, 1484, p.Elo, 1e-9)

	b := s.battles[id]
	assert.True(t, b.voted)
	assert.Equal(t, gpt, b.winner)
	assert.Equal(t, "user-1", b.user)
	assert.Len(t, s.history, 4)
}

func TestCastSecondModelWins(t *testing.T) {
	s := newMemStore(gpt, claude)
	id := s.addBattle(gpt, claude)

	r, err := newTestProcessor(s).Cast(context.Background(), "user-1", models.VoteRequest{
		BattleID: id, Result: models.ResultModel2, Model1: gpt, Model2: claude,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeModel2Win, r.Outcome)
	assert.InDelta(t, 1484, s.get("", gpt).Elo, 1e-9)
	assert.InDelta(t, 1516, s.get("", claude).Elo, 1e-9)
	assert.Equal(t, claude, s.battles[id].winner)
}

func TestCastNonDecisive(t *testing.T) {
	tests := []struct {
		result  models.Result
		outcome models.Outcome
		check   func(t *testing.T, m models.Model)
	}{
		{models.ResultDraw, models.OutcomeDraw, func(t *testing.T, m models.Model) { assert.Equal(t, 1, m.Draws) }},
		{models.ResultInvalid, models.OutcomeInvalid, func(t *testing.T, m models.Model) { assert.Equal(t, 1, m.Invalid) }},
	}
	for _, tt := range tests {
		t.Run(string(tt.result), func(t *testing.T) {
			s := newMemStore(gpt, claude)
			id := s.addBattle(gpt, claude)

			r, err := newTestProcessor(s).Cast(context.Background(), "user-1", models.VoteRequest{
				BattleID: id, Result: tt.result, Model1: gpt, Model2: claude,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, r.Outcome)
			for _, owner := range []string{"", "user-1"} {
				for _, m := range []string{gpt, claude} {
					rec := s.get(owner, m)
					tt.check(t, rec)
					assert.Equal(t, 1, rec.Games())
					assert.Equal(t, models.DefaultElo, rec.Elo)
				}
			}
			assert.Empty(t, s.battles[id].winner)
			assert.Empty(t, s.history)
		})
	}
}

func TestCastRejectsSecondVote(t *testing.T) {
	s := newMemStore(gpt, claude)
	id := s.addBattle(gpt, claude)
	p := newTestProcessor(s)
	req := models.VoteRequest{BattleID: id, Result: models.ResultModel1, Model1: gpt, Model2: claude}

	_, err := p.Cast(context.Background(), "user-1", req)
	require.NoError(t, err)

	req.Result = models.ResultModel2
	_, err = p.Cast(context.Background(), "user-1", req)
	assert.ErrorIs(t, err, models.ErrAlreadyVoted)

	g := s.get("", gpt)
	assert.Equal(t, 1, g.Wins)
	assert.Equal(t, 0, g.Losses)
	assert.InDelta(t, 1516, g.Elo, 1e-9)
	assert.Equal(t, 1, s.get("user-1", gpt).Games())
	assert.Equal(t, models.OutcomeModel1Win, s.battles[id].outcome)
}

func TestCastMissingGlobalModelRollsBack(t *testing.T) {
	s := newMemStore(gpt)
	id := s.addBattle(gpt, claude)

	_, err := newTestProcessor(s).Cast(context.Background(), "user-1", models.VoteRequest{
		BattleID: id, Result: models.ResultModel1, Model1: gpt, Model2: claude,
	})
	assert.ErrorIs(t, err, models.ErrModelNotFound)
	assert.False(t, s.battles[id].voted)
	assert.Zero(t, s.get("", gpt).Games())
	_, ok := s.find("user-1", gpt)
	assert.False(t, ok)
}

func TestCastPersonalFailureKeepsGlobal(t *testing.T) {
	s := newMemStore(gpt, claude)
	s.failEnsure = errors.New("connection reset")
	id := s.addBattle(gpt, claude)

	r, err := newTestProcessor(s).Cast(context.Background(), "user-1", models.VoteRequest{
		BattleID: id, Result: models.ResultModel1, Model1: gpt, Model2: claude,
	})
	require.NoError(t, err)
	assert.False(t, r.PersonalUpdated)
	assert.Nil(t, r.Personal)
	assert.Len(t, r.Global, 2)
	assert.True(t, s.battles[id].voted)
	assert.Equal(t, 1, s.get("", gpt).Wins)
	_, ok := s.find("user-1", gpt)
	assert.False(t, ok)
}

func TestCastValidation(t *testing.T) {
	tests := []struct {
		name string
		user string
		req  models.VoteRequest
		want error
	}{
		{"no user", "", models.VoteRequest{BattleID: 1, Result: models.ResultDraw, Model1: gpt, Model2: claude}, models.ErrUnauthorized},
		{"bad result", "u", models.VoteRequest{BattleID: 1, Result: "tie", Model1: gpt, Model2: claude}, models.ErrInvalidResult},
		{"no battle", "u", models.VoteRequest{Result: models.ResultDraw, Model1: gpt, Model2: claude}, models.ErrInvalidRequest},
		{"same model", "u", models.VoteRequest{BattleID: 1, Result: models.ResultDraw, Model1: gpt, Model2: gpt}, models.ErrInvalidRequest},
		{"missing model", "u", models.VoteRequest{BattleID: 1, Result: models.ResultDraw, Model1: gpt}, models.ErrInvalidRequest},
		{"unknown battle", "u", models.VoteRequest{BattleID: 99, Result: models.ResultDraw, Model1: gpt, Model2: claude}, models.ErrBattleNotFound},
		{"mismatch", "u", models.VoteRequest{BattleID: 1, Result: models.ResultDraw, Model1: claude, Model2: gpt}, models.ErrBattleMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newMemStore(gpt, claude)
			s.addBattle(gpt, claude)
			_, err := newTestProcessor(s).Cast(context.Background(), tt.user, tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, s.battles[1].voted)
			assert.Zero(t, s.get("", gpt).Games())
		})
	}
}

func TestCastPersonalTrajectoriesAreSeparate(t *testing.T) {
	s := newMemStore(gpt, claude)
	p := newTestProcessor(s)
	ctx := context.Background()

	_, err := p.Cast(ctx, "alice", models.VoteRequest{BattleID: s.addBattle(gpt, claude), Result: models.ResultModel1, Model1: gpt, Model2: claude})
	require.NoError(t, err)
	_, err = p.Cast(ctx, "bob", models.VoteRequest{BattleID: s.addBattle(gpt, claude), Result: models.ResultModel2, Model1: gpt, Model2: claude})
	require.NoError(t, err)

	assert.InDelta(t, 1516, s.get("alice", gpt).Elo, 1e-9)
	assert.InDelta(t, 1484, s.get("alice", claude).Elo, 1e-9)
	assert.InDelta(t, 1484, s.get("bob", gpt).Elo, 1e-9)
	assert.InDelta(t, 1516, s.get("bob", claude).Elo, 1e-9)

	g1, g2 := s.get("", gpt), s.get("", claude)
	assert.InDelta(t, 1498.53, g1.Elo, 0.01)
	assert.InDelta(t, 1501.47, g2.Elo, 0.01)
	assert.InDelta(t, 3000, g1.Elo+g2.Elo, 1e-9)
	assert.Equal(t, 1, g1.Wins)
	assert.Equal(t, 1, g1.Losses)
}

func TestCastColdStartBeforeDelta(t *testing.T) {
	s := newMemStore(gpt, claude)
	owner := "user-1"
	s.insert(models.Model{ModelID: gpt, Name: gpt, Elo: 1550, Wins: 3, UserID: &owner})
	id := s.addBattle(gpt, claude)

	r, err := newTestProcessor(s).Cast(context.Background(), owner, models.VoteRequest{
		BattleID: id, Result: models.ResultModel2, Model1: gpt, Model2: claude,
	})
	require.NoError(t, err)
	require.Len(t, r.Personal, 2)

	pc := s.get(owner, claude)
	assert.Equal(t, 1, pc.Wins)
	assert.InDelta(t, 1518.29, pc.Elo, 0.01)
	pg := s.get(owner, gpt)
	assert.Equal(t, 3, pg.Wins)
	assert.Equal(t, 1, pg.Losses)
	assert.InDelta(t, 3050, pg.Elo+pc.Elo, 1e-9)
}

func TestCastConcurrentVotes(t *testing.T) {
	s := newMemStore(gpt, claude)
	p := newTestProcessor(s)
	const n = 20
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = s.addBattle(gpt, claude)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Cast(context.Background(), fmt.Sprintf("user-%d", i%3), models.VoteRequest{
				BattleID: ids[i], Result: models.ResultModel1, Model1: gpt, Model2: claude,
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	g1, g2 := s.get("", gpt), s.get("", claude)
	assert.Equal(t, n, g1.Wins)
	assert.Equal(t, n, g2.Losses)
	assert.InDelta(t, 3000, g1.Elo+g2.Elo, 1e-6)

	total := 0
	for u := 0; u < 3; u++ {
		total += s.get(fmt.Sprintf("user-%d", u), gpt).Wins
	}
	assert.Equal(t, n, total)
}
