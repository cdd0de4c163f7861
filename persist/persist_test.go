package persist_test

import (
	"errors"
	"testing"

	"github.com/on-the-ground/effect_ive_store/config"
	"github.com/on-the-ground/effect_ive_store/effect"
	"github.com/on-the-ground/effect_ive_store/persist"
	"github.com/on-the-ground/effect_ive_store/reducer"
	"github.com/on-the-ground/effect_ive_store/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type todoState struct {
	Items []string `json:"items" yaml:"items"`
	Done  int      `json:"done" yaml:"done"`
}

func addItem(s *todoState, item string) effect.Effect[string] {
	s.Items = append(s.Items, item)
	return nil
}

func newStorage(t *testing.T) *persist.MemDBStorage {
	t.Helper()
	storage, err := persist.NewMemDBStorage()
	require.NoError(t, err)
	return storage
}

func TestCodecs_RoundTripState(t *testing.T) {
	want := todoState{Items: []string{"milk", "eggs"}, Done: 1}
	for _, name := range []string{"json", "yaml"} {
		t.Run(name, func(t *testing.T) {
			codec, err := persist.CodecByName[todoState](name)
			require.NoError(t, err)
			assert.Equal(t, name, codec.Name())

			data, err := codec.Encode(want)
			require.NoError(t, err)
			got, err := codec.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := persist.CodecByName[todoState]("xml")
	assert.ErrorIs(t, err, persist.ErrUnknownCodec)
}

func TestMemDBStorage_VersionsAndDelete(t *testing.T) {
	storage := newStorage(t)

	_, err := storage.Load("k")
	assert.ErrorIs(t, err, persist.ErrNotFound)

	require.NoError(t, storage.Save("k", []byte("v1")))
	require.NoError(t, storage.Save("k", []byte("v2")))
	snap, err := storage.Snapshot("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), snap.Data)
	assert.Equal(t, uint64(2), snap.Version)

	swapped, err := storage.CompareAndSwap("k", 1, []byte("stale"))
	require.NoError(t, err)
	assert.False(t, swapped)
	swapped, err = storage.CompareAndSwap("k", 2, []byte("v3"))
	require.NoError(t, err)
	assert.True(t, swapped)

	data, err := storage.Load("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v3"), data)

	require.NoError(t, storage.Delete("k"))
	assert.ErrorIs(t, storage.Delete("k"), persist.ErrNotFound)
}

func TestPersister_SaveAndRestore(t *testing.T) {
	p := persist.NewPersister[todoState](newStorage(t), persist.WithCodec[todoState](persist.YAMLCodec[todoState]{}))

	_, ok := p.Restore()
	assert.False(t, ok)

	require.NoError(t, p.Save(todoState{Items: []string{"a"}}))
	got, ok := p.Restore()
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, got.Items)

	require.NoError(t, p.Clear())
	require.NoError(t, p.Clear())
	_, ok = p.Restore()
	assert.False(t, ok)
}

type failingStorage struct{}

func (failingStorage) Load(string) ([]byte, error) { return []byte("{not json"), nil }
func (failingStorage) Save(string, []byte) error   { return errors.New("disk full") }
func (failingStorage) Delete(string) error         { return nil }

func TestPersister_FailuresGoToErrorHandler(t *testing.T) {
	var reported []error
	p := persist.NewPersister[todoState](failingStorage{},
		persist.WithErrorHandler[todoState](func(err error) { reported = append(reported, err) }))

	assert.Error(t, p.Save(todoState{}))
	_, ok := p.Restore()
	assert.False(t, ok)
	require.Len(t, reported, 2)
	assert.ErrorContains(t, reported[0], "disk full")
	assert.ErrorContains(t, reported[1], "decode json")
}

func TestMiddleware_SavesStateAfterReduce(t *testing.T) {
	p := persist.NewPersister[todoState](newStorage(t), persist.WithKey[todoState]("todos"))
	s, err := store.New(todoState{}, reducer.Func[todoState, string](addItem),
		store.WithMiddleware(persist.Middleware[todoState, string](p, func(a string) bool { return a != "draft" })))
	require.NoError(t, err)
	defer s.Close()

	s.Send("milk")
	got, ok := p.Restore()
	require.True(t, ok)
	assert.Equal(t, []string{"milk"}, got.Items)

	s.Send("draft")
	got, _ = p.Restore()
	assert.Equal(t, []string{"milk"}, got.Items)
}

func TestObserver_BootstrapsNextStore(t *testing.T) {
	opt, err := persist.FromConfig[todoState](config.Default())
	require.NoError(t, err)
	storage := newStorage(t)
	p := persist.NewPersister(storage, opt)

	first, err := store.New(todoState{}, reducer.Func[todoState, string](addItem),
		store.WithObserver(persist.Observer[todoState, string](p)))
	require.NoError(t, err)
	first.Send("a")
	first.Send("b")
	require.NoError(t, first.Close())

	restored, ok := p.Restore()
	require.True(t, ok)
	second, err := store.New(restored, reducer.Func[todoState, string](addItem))
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, []string{"a", "b"}, second.State().Items)
}
