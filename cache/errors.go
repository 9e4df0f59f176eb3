package cache

import "errors"

var (
	// ErrExists is returned by Insert and Bind when the key is resident.
	ErrExists = errors.New("cache: key already resident")

	// ErrNotFound is returned when a key is not resident, or is resident but
	// its policy can no longer hand out a handle for it.
	ErrNotFound = errors.New("cache: key not found")

	// ErrTypeMismatch is returned by Lookup when the stored value has a
	// different type than requested.
	ErrTypeMismatch = errors.New("cache: type mismatch")

	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache: closed")

	// ErrUnhashable is returned by Bind for values that have no stable hash:
	// non-comparable types that neither are listed by util.Fnv64a nor
	// implement util.Hasher.
	ErrUnhashable = errors.New("cache: value is not hashable")

	// ErrNoLoader is returned by GetOrLoad when neither the call nor Options
	// supplies a Loader.
	ErrNoLoader = errors.New("cache: no Loader provided")
)
