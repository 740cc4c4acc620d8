package battle

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-arena/server/models"
)

type fakeResponder struct {
	mu    sync.Mutex
	calls []string
	fail  string
}

func (f *fakeResponder) Respond(ctx context.Context, model, question string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, model)
	f.mu.Unlock()
	if model == f.fail {
		return "", errors.New("boom")
	}
	return model + " says hi to " + question, nil
}

type fakeStore struct {
	created []models.NewBattle
	err     error
}

func (f *fakeStore) CreateBattle(ctx context.Context, b models.NewBattle) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.created = append(f.created, b)
	return int64(len(f.created)), nil
}

type setCatalog map[string]bool

func (c setCatalog) Contains(id string) bool { return c[id] }

var catalog = setCatalog{"a/one": true, "b/two": true}

func TestSubmit(t *testing.T) {
	st, rs := &fakeStore{}, &fakeResponder{}
	svc := NewService(st, rs, catalog, 0)

	resp, err := svc.Submit(context.Background(), models.BattleRequest{Model1: "a/one", Model2: " b/two ", Question: " why? "})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.BattleID)
	assert.Equal(t, "a/one says hi to why?", resp.Response1)
	assert.Equal(t, "b/two says hi to why?", resp.Response2)
	assert.ElementsMatch(t, []string{"a/one", "b/two"}, rs.calls)

	require.Len(t, st.created, 1)
	assert.Equal(t, "b/two", st.created[0].Model2)
	assert.Equal(t, resp.Response1, st.created[0].Response1)
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name string
		req  models.BattleRequest
		want error
	}{
		{"missing question", models.BattleRequest{Model1: "a/one", Model2: "b/two"}, models.ErrInvalidRequest},
		{"same model", models.BattleRequest{Model1: "a/one", Model2: "a/one", Question: "q"}, models.ErrInvalidRequest},
		{"too long", models.BattleRequest{Model1: "a/one", Model2: "b/two", Question: strings.Repeat("x", MaxQuestionLen+1)}, models.ErrInvalidRequest},
		{"unknown model", models.BattleRequest{Model1: "a/one", Model2: "c/three", Question: "q"}, models.ErrModelNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, rs := &fakeStore{}, &fakeResponder{}
			_, err := NewService(st, rs, catalog, 0).Submit(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, rs.calls)
			assert.Empty(t, st.created)
		})
	}
}

func TestSubmitUpstreamFailureStoresNothing(t *testing.T) {
	st, rs := &fakeStore{}, &fakeResponder{fail: "b/two"}
	_, err := NewService(st, rs, catalog, 0).Submit(context.Background(), models.BattleRequest{Model1: "a/one", Model2: "b/two", Question: "q"})
	assert.ErrorIs(t, err, models.ErrUpstream)
	assert.Empty(t, st.created)
}

func TestSubmitStoreFailure(t *testing.T) {
	st := &fakeStore{err: models.ErrTransient}
	_, err := NewService(st, &fakeResponder{}, catalog, 0).Submit(context.Background(), models.BattleRequest{Model1: "a/one", Model2: "b/two", Question: "q"})
	assert.ErrorIs(t, err, models.ErrTransient)
}

func TestSubmitRateLimited(t *testing.T) {
	st := &fakeStore{}
	svc := NewService(st, &fakeResponder{}, catalog, 1)
	req := models.BattleRequest{Model1: "a/one", Model2: "b/two", Question: "q"}

	_, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrRateLimited)
	assert.Len(t, st.created, 1)
}
