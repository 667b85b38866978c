package repositories

import (
	"testing"

	"github.com/stretchr/testify/require"

	"smartdoor-relay/entities"
)

func TestLogStore_BoundedWithMonotonicIDs(t *testing.T) {
	s := NewMemLogStore(3)
	var last int64
	for i := 0; i < 5; i++ {
		e, _ := s.Append(entities.LogEntry{Time: t0, Kind: entities.KindSystem, Message: "m"})
		require.Greater(t, e.ID, last)
		last = e.ID
	}
	require.Equal(t, 3, s.Len())

	hist := s.History()
	require.Equal(t, int64(3), hist[0].ID)
	require.Equal(t, int64(5), hist[2].ID)

	since := s.Since(4)
	require.Len(t, since, 1)
	require.Equal(t, int64(5), since[0].ID)
}

func TestLogStore_AttachStorageKeyDropsInline(t *testing.T) {
	s := NewMemLogStore(3)
	e, _ := s.Append(entities.LogEntry{
		Time:  t0,
		Kind:  entities.KindSuccess,
		Media: entities.Media{Inline: "data:image/jpeg;base64,AAAA"},
	})

	require.True(t, s.AttachStorageKey(e.ID, "logs/k.jpg"))
	got := s.History()[0]
	require.Empty(t, got.Media.Inline)
	require.Equal(t, "logs/k.jpg", got.Media.StorageKey)

	require.False(t, s.AttachStorageKey(999, "x"))
}

func TestFaceStore_BoundedRegistry(t *testing.T) {
	s := NewMemFaceStore(2)
	require.False(t, s.Put(entities.Face{PersonName: "alice", FeatureHex: "aa"}))
	require.False(t, s.Put(entities.Face{PersonName: "bob", FeatureHex: "bb"}))
	// re-register moves alice to newest
	require.False(t, s.Put(entities.Face{PersonName: "alice", FeatureHex: "a2"}))
	require.True(t, s.Put(entities.Face{PersonName: "carol", FeatureHex: "cc"}))

	_, ok := s.Get("bob")
	require.False(t, ok)
	f, ok := s.Get("alice")
	require.True(t, ok)
	require.Equal(t, "a2", f.FeatureHex)

	list := s.List()
	require.Len(t, list, 2)
	require.Equal(t, "alice", list[0].PersonName)
	require.Equal(t, "carol", list[1].PersonName)

	require.True(t, s.Delete("alice"))
	require.False(t, s.Delete("alice"))
	require.Equal(t, 1, s.Len())
}
