package application

import (
	"crypto/md5" //nolint:gosec // G501: offline ids are name-based version 3 UUIDs, not a security boundary
	"strings"

	"github.com/google/uuid"
)

// offlinePrefix is hashed with the player name to derive an offline id.
const offlinePrefix = "OfflinePlayer:"

// OfflineActorID returns the name-based version 3 UUID a server in offline
// mode assigns to name. The name is hashed without a namespace.
func OfflineActorID(name string) uuid.UUID {
	sum := md5.Sum([]byte(offlinePrefix + name)) //nolint:gosec // see import
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.UUID(sum)
}

// ResolveActorID maps shell input to an actor id. UUID input is
// canonicalized; a name becomes its offline UUID in offline mode and is
// lowercased otherwise.
func ResolveActorID(input string, offline bool) string {
	input = strings.TrimSpace(input)
	if id, err := uuid.Parse(input); err == nil {
		return id.String()
	}
	if offline {
		return OfflineActorID(input).String()
	}
	return strings.ToLower(input)
}
