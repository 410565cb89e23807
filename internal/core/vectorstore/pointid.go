package vectorstore

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// pointNamespace is the fixed UUIDv5 namespace for derived point ids. Changing
// it would orphan every stored point on the next re-run.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://vectorsync/points"))

// PointID canonicalizes a logical key into a valid point id. Unsigned integers
// and UUIDs pass through; anything else maps deterministically through UUIDv5.
func PointID(key string) string {
	if n, err := strconv.ParseUint(key, 10, 64); err == nil {
		return strconv.FormatUint(n, 10)
	}
	if id, err := uuid.Parse(key); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(pointNamespace, []byte(key)).String()
}

// ChunkKey is the logical identity of a chunk inside a collection.
func ChunkKey(collection string, chunkIndex int) string {
	return fmt.Sprintf("%s:%d", collection, chunkIndex)
}
