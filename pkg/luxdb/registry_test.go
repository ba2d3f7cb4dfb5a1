package luxdb_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abubalo/luxdb/pkg/luxdb"
)

func Test_Registry_Add_Then_Get_Returns_Same_Instance(t *testing.T) {
	t.Parallel()

	r := luxdb.NewRegistry()
	db := openTestDB(t, nil)

	require.NoError(t, r.Add("users.json", db))

	got, ok := r.Get("users.json")
	require.True(t, ok)
	assert.Same(t, db, got)
	assert.Equal(t, 1, r.Len())
}

func Test_Registry_Get_Normalizes_Paths(t *testing.T) {
	t.Parallel()

	r := luxdb.NewRegistry()
	db := openTestDB(t, nil)

	require.NoError(t, r.Add("./data/users.json", db))

	_, ok := r.Get("data/users.json")
	assert.True(t, ok, "clean and unclean forms of a path must hit the same entry")
}

func Test_Registry_Add_Fails_When_Path_Already_Registered(t *testing.T) {
	t.Parallel()

	r := luxdb.NewRegistry()

	require.NoError(t, r.Add("users.json", openTestDB(t, nil)))

	err := r.Add("users.json", openTestDB(t, nil))
	assert.Error(t, err)
	assert.Equal(t, 1, r.Len())
}

func Test_Registry_Remove_Closes_Store(t *testing.T) {
	t.Parallel()

	r := luxdb.NewRegistry()
	db := openTestDB(t, nil)

	require.NoError(t, r.Add("users.json", db))
	require.NoError(t, r.Remove("users.json"))

	_, ok := r.Get("users.json")
	assert.False(t, ok)

	err := db.Insert(t.Context(), account{ID: "a1"})
	assert.ErrorIs(t, err, luxdb.ErrClosed, "remove must close the evicted store")
}

func Test_Registry_Remove_Is_NoOp_For_Unknown_Path(t *testing.T) {
	t.Parallel()

	r := luxdb.NewRegistry()

	assert.NoError(t, r.Remove("never-added.json"))
}

func Test_Registry_Clear_Closes_Every_Store(t *testing.T) {
	t.Parallel()

	r := luxdb.NewRegistry()
	first := openTestDB(t, nil)
	second := openTestDB(t, nil)

	require.NoError(t, r.Add("a.json", first))
	require.NoError(t, r.Add("b.json", second))

	require.NoError(t, r.Clear())
	assert.Equal(t, 0, r.Len())

	assert.ErrorIs(t, first.Insert(t.Context(), account{ID: "x"}), luxdb.ErrClosed)
	assert.ErrorIs(t, second.Insert(t.Context(), account{ID: "x"}), luxdb.ErrClosed)
}

func Test_OpenShared_Reuses_Instance_Per_Path(t *testing.T) {
	t.Parallel()

	r := luxdb.NewRegistry()
	cfg := luxdb.Config[account]{Path: filepath.Join(t.TempDir(), "accounts.json")}

	first, err := luxdb.OpenShared(r, cfg)
	require.NoError(t, err)

	t.Cleanup(func() { _ = r.Clear() })

	second, err := luxdb.OpenShared(r, cfg)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, r.Len())
}

func Test_OpenShared_Fails_When_Record_Type_Differs(t *testing.T) {
	t.Parallel()

	type other struct {
		Key string `json:"key"`
	}

	r := luxdb.NewRegistry()
	path := filepath.Join(t.TempDir(), "accounts.json")

	_, err := luxdb.OpenShared(r, luxdb.Config[account]{Path: path})
	require.NoError(t, err)

	t.Cleanup(func() { _ = r.Clear() })

	_, err = luxdb.OpenShared(r, luxdb.Config[other]{Path: path})
	assert.Error(t, err)
}
