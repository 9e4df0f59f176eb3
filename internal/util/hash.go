// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"fmt"
	"hash/maphash"
	"math"
	"reflect"
)

// Hasher is implemented by values that supply their own 64-bit identity.
// Resource descriptions with slices or maps inside implement it to become
// bindable.
type Hasher interface {
	Hash64() uint64
}

// seed keys the maphash fallback; comparable hashes are stable for the
// life of the process only.
var seed = maphash.MakeSeed()

// Fnv64a hashes common value types using 64-bit FNV-1a.
// Supported: Hasher, string, []byte, [16|32|64]byte, all int/uint widths,
// float32/64, bool, uintptr, fmt.Stringer. Other comparable values go
// through hash/maphash. Anything else panics; use Hash for caller input.
func Fnv64a[K any](k K) uint64 {
	h, ok := Hash(k)
	if !ok {
		panic(fmt.Sprintf("util.Fnv64a: unsupported type %T; implement util.Hasher or convert to string", k))
	}
	return h
}

// Hash is Fnv64a reporting unhashable values instead of panicking.
func Hash[K any](k K) (uint64, bool) {
	if h, ok := fnv64a(any(k)); ok {
		return h, true
	}
	return hashComparable(any(k))
}

// hashComparable hashes v with maphash. It fails for non-comparable types
// and for comparable ones holding an unhashable dynamic value.
func hashComparable(v any) (h uint64, ok bool) {
	if t := reflect.TypeOf(v); t == nil || !t.Comparable() {
		return 0, false
	}
	defer func() {
		if recover() != nil {
			h, ok = 0, false
		}
	}()
	return maphash.Comparable(seed, v), true
}

func fnv64a(k any) (uint64, bool) {
	switch v := k.(type) {
	case Hasher:
		return v.Hash64(), true
	case string:
		return fnv64aFromBytes([]byte(v)), true
	case []byte:
		return fnv64aFromBytes(v), true
	case [16]byte:
		return fnv64aFromBytes(v[:]), true
	case [32]byte:
		return fnv64aFromBytes(v[:]), true
	case [64]byte:
		return fnv64aFromBytes(v[:]), true

	// Integer-like keys: hash little-endian bytes of the value.
	case uint8:
		return fnv64aFromUint64(uint64(v)), true
	case uint16:
		return fnv64aFromUint64(uint64(v)), true
	case uint32:
		return fnv64aFromUint64(uint64(v)), true
	case uint64:
		return fnv64aFromUint64(v), true
	case uint:
		return fnv64aFromUint64(uint64(v)), true
	case uintptr:
		return fnv64aFromUint64(uint64(v)), true
	case int8:
		return fnv64aFromUint64(uint64(uint8(v))), true
	case int16:
		return fnv64aFromUint64(uint64(uint16(v))), true
	case int32:
		return fnv64aFromUint64(uint64(uint32(v))), true
	case int64:
		return fnv64aFromUint64(uint64(v)), true
	case int:
		return fnv64aFromUint64(uint64(v)), true
	case float32:
		return fnv64aFromUint64(uint64(math.Float32bits(v))), true
	case float64:
		return fnv64aFromUint64(math.Float64bits(v)), true
	case bool:
		if v {
			return fnv64aFromUint64(1), true
		}
		return fnv64aFromUint64(0), true

	// Fallback for pseudo-keys via String() (avoid if you can).
	case fmt.Stringer:
		return fnv64aFromBytes([]byte(v.String())), true
	}
	return 0, false
}

// Combine folds a second hash into h (FNV-1a over its bytes).
func Combine(h, other uint64) uint64 {
	for i := 0; i < 8; i++ {
		h ^= uint64(byte(other))
		h *= fnvPrime64
		other >>= 8
	}
	return h
}

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)

func fnv64aFromBytes(b []byte) uint64 {
	h := uint64(fnvOffset64)
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime64
	}
	return h
}

func fnv64aFromUint64(u uint64) uint64 {
	return Combine(fnvOffset64, u)
}
