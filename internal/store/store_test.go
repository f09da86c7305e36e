package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/wardrobe/internal/db"
	"github.com/hpungsan/wardrobe/internal/outfit"
)

func setup(t *testing.T) (*Store, *sql.DB, string) {
	t.Helper()
	dir := t.TempDir()
	database, err := db.Init(dir)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database, "default tmpl", nil), database, dir
}

func TestLoad_DefaultsAndSameInstance(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)

	st, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "default tmpl", st.PromptTemplate)
	assert.False(t, st.AutoUpdate)
	assert.Empty(t, st.Characters)
	for _, k := range outfit.BaseKeys() {
		assert.Equal(t, outfit.Unknown, st.User.Outfit[k])
	}

	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Same(t, st, again)
}

func TestUpdate_PersistsAcrossStores(t *testing.T) {
	ctx := context.Background()
	s, database, _ := setup(t)

	err := s.Update(ctx, func(st *outfit.State) error {
		st.AddCustomField("gloves")
		cs := st.EnsureCharacter("9")
		cs.Outfit[outfit.Headwear] = "beret"
		cs.Location = "library"
		return nil
	})
	require.NoError(t, err)

	fresh := New(database, "default tmpl", nil)
	st, err := fresh.Load(ctx)
	require.NoError(t, err)
	require.Contains(t, st.Characters, "9")
	assert.Equal(t, "beret", st.Characters["9"].Outfit[outfit.Headwear])
	assert.Equal(t, "library", st.Characters["9"].Location)
	assert.Equal(t, outfit.Unknown, st.User.Outfit["gloves"])
}

func TestUpdate_RollsBackOnCallbackError(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)

	st, err := s.Load(ctx)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.Update(ctx, func(st *outfit.State) error {
		st.User.Outfit[outfit.Topwear] = "half written"
		st.AutoUpdate = true
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, outfit.Unknown, st.User.Outfit[outfit.Topwear])
	assert.False(t, st.AutoUpdate)

	again, _ := s.Load(ctx)
	assert.Same(t, st, again)
}

func TestUpdate_RollsBackOnPersistError(t *testing.T) {
	ctx := context.Background()
	s, database, _ := setup(t)

	st, err := s.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, database.Close())

	err = s.Update(ctx, func(st *outfit.State) error {
		st.User.Location = "nowhere"
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, "", st.User.Location)
}

func TestSnapshot_IsIndependent(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	snap.User.Outfit[outfit.Footwear] = "sandals"

	st, _ := s.Load(ctx)
	assert.Equal(t, outfit.Unknown, st.User.Outfit[outfit.Footwear])
}

func TestLoad_BackfillsAndFillsTemplate(t *testing.T) {
	ctx := context.Background()
	_, database, _ := setup(t)

	old := outfit.NewState("")
	old.CustomFields = []string{"scarf"}
	require.NoError(t, db.SaveState(ctx, database, old))

	st, err := New(database, "fallback", nil).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fallback", st.PromptTemplate)
	assert.Equal(t, outfit.Unknown, st.User.Outfit["scarf"])
}

func TestPersist(t *testing.T) {
	ctx := context.Background()
	s, database, _ := setup(t)

	require.NoError(t, s.Persist(ctx))

	loaded, err := db.LoadState(ctx, database)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "default tmpl", loaded.PromptTemplate)
}
