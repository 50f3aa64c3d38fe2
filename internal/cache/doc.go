// Package cache keeps decoded chunk audio in a memory LRU backed by a
// zstd-compressed disk store, so narrating unchanged text again does not
// call the speech service.
package cache
