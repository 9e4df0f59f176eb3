package util

import "runtime"

// ShardCount resolves a requested shard count:
//   - n == 0 -> 1 (a single, globally ordered partition)
//   - n < 0  -> nextPow2(2*GOMAXPROCS), clamped to [1..256]
//   - n > 0  -> n rounded up to a power of two
func ShardCount(n int) int {
	switch {
	case n == 0:
		return 1
	case n > 0:
		return int(NextPow2(uint64(n)))
	}
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	return min(int(NextPow2(uint64(p*2))), 256)
}

// ShardIndex maps a 64-bit hash to a shard index.
// Uses a mask for power-of-two counts and modulo otherwise.
func ShardIndex(hash uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	if IsPowerOfTwo(uint64(shards)) {
		return int(hash & uint64(shards-1))
	}
	return int(hash % uint64(shards))
}
