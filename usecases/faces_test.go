package usecases

import (
	"testing"

	"github.com/stretchr/testify/require"

	"smartdoor-relay/clock"
	"smartdoor-relay/repositories"
)

func TestFaces(t *testing.T) {
	uc := NewFacesUseCase(repositories.NewMemFaceStore(10), clock.NewFake(t0))

	_, err := uc.Register("", "abcd", "")
	require.ErrorIs(t, err, ErrValidation)
	_, err = uc.Register("alice", "zz", "")
	require.ErrorIs(t, err, ErrValidation)

	face, err := uc.Register("alice", "0a0b", "")
	require.NoError(t, err)
	require.Equal(t, t0, face.RegisteredAt)
	bob, err := uc.Register("bob", "ff", "")
	require.NoError(t, err)
	require.Len(t, uc.List(), 2)
	// same second, distinct ids
	require.NotEqual(t, face.FaceID(), bob.FaceID())

	_, raw, err := uc.Download("alice")
	require.NoError(t, err)
	require.Equal(t, []byte{0x0a, 0x0b}, raw)

	_, _, err = uc.Download("carol")
	require.ErrorIs(t, err, ErrNotFound)

	plan := uc.Sync([]string{"bob", "dave"})
	require.Equal(t, []string{"alice"}, plan.ToDownload)
	require.Equal(t, []string{"dave"}, plan.ToUpload)
	require.Equal(t, 1, plan.Synced)
	require.Equal(t, 2, plan.Total)

	require.NoError(t, uc.Delete("alice"))
	require.ErrorIs(t, uc.Delete("alice"), ErrNotFound)
}
