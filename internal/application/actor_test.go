package application

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestOfflineActorID_KnownValue(t *testing.T) {
	require.Equal(t, "b50ad385-829d-3141-a216-7e7d7539ba7f", OfflineActorID("Notch").String())
}

func TestOfflineActorID_IsVersion3(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		name := rapid.StringMatching(`[A-Za-z0-9_]{3,16}`).Draw(r, "name")
		id := OfflineActorID(name)
		require.Equal(r, uuid.Version(3), id.Version())
		require.Equal(r, uuid.RFC4122, id.Variant())
		require.Equal(r, id, OfflineActorID(name), "deterministic")
	})
}

func TestResolveActorID(t *testing.T) {
	require.Equal(t, "steve", ResolveActorID(" Steve ", false))
	require.Equal(t, OfflineActorID("Steve").String(), ResolveActorID("Steve", true))
	require.Equal(t, "b50ad385-829d-3141-a216-7e7d7539ba7f",
		ResolveActorID("B50AD385-829D-3141-A216-7E7D7539BA7F", true), "uuids pass through")
}
