package service

import (
	"context"
	"testing"

	"referralpay/internal/model"
	"referralpay/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveChain_StopsAtThreeLevels(t *testing.T) {
	env := newTestEnv(t)
	env.seedChain(t)
	graph := NewReferralGraph(env.db)

	chain, err := graph.ResolveChain(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []Ancestor{{UserID: 4, Level: 1}, {UserID: 3, Level: 2}, {UserID: 2, Level: 3}}, chain)
}

func TestResolveChain_ShortChains(t *testing.T) {
	env := newTestEnv(t)
	env.seedChain(t)
	graph := NewReferralGraph(env.db)

	chain, err := graph.ResolveChain(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, chain)

	chain, err = graph.ResolveChain(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []Ancestor{{UserID: 1, Level: 1}}, chain)
}

func TestResolveChain_DetectsCycle(t *testing.T) {
	env := newTestEnv(t)
	testutil.SeedUser(t, env.db, 10, 11)
	testutil.SeedUser(t, env.db, 11, 10)
	graph := NewReferralGraph(env.db)

	_, err := graph.ResolveChain(context.Background(), 10)
	assert.ErrorIs(t, err, ErrCycleDetected)
}

func TestResolveChain_SelfReference(t *testing.T) {
	env := newTestEnv(t)
	testutil.SeedUser(t, env.db, 20, 20)
	graph := NewReferralGraph(env.db)

	_, err := graph.ResolveChain(context.Background(), 20)
	assert.ErrorIs(t, err, ErrCycleDetected)
}

func TestResolveChain_MissingAncestorEndsChain(t *testing.T) {
	env := newTestEnv(t)
	testutil.SeedUser(t, env.db, 30, 0)
	testutil.SeedUser(t, env.db, 31, 30)
	require.NoError(t, env.db.Model(&model.User{}).Where("id = ?", 30).Update("referred_by", 999).Error)
	graph := NewReferralGraph(env.db)

	chain, err := graph.ResolveChain(context.Background(), 31)
	require.NoError(t, err)
	assert.Equal(t, []Ancestor{{UserID: 30, Level: 1}}, chain)
}

func TestResolveChain_UnknownUser(t *testing.T) {
	env := newTestEnv(t)
	graph := NewReferralGraph(env.db)

	_, err := graph.ResolveChain(context.Background(), 404)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestResolveAncestors_IgnoresCycleBeyondDepth(t *testing.T) {
	env := newTestEnv(t)
	testutil.SeedUser(t, env.db, 10, 11)
	testutil.SeedUser(t, env.db, 11, 12)
	testutil.SeedUser(t, env.db, 12, 10)
	graph := NewReferralGraph(env.db)

	chain, err := graph.ResolveAncestors(context.Background(), 10, 2)
	require.NoError(t, err)
	assert.Equal(t, []Ancestor{{UserID: 11, Level: 1}, {UserID: 12, Level: 2}}, chain)

	_, err = graph.ResolveChain(context.Background(), 10)
	assert.ErrorIs(t, err, ErrCycleDetected)
}
