package hashindex

import "hash/fnv"

// bucketHash hashes a variable name to a bucket index (spec.md §4.6:
// "hashes each name with a well-mixed 32-bit hash"). FNV-1a, the same
// non-cryptographic hash the teacher's old segment-map package used for
// shard routing (hashindex/shard.go), carried over as the bucket-routing
// function here.
func bucketHash(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}
