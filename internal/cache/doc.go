// Package cache provides a two-level cache for phonemizer output.
// It combines an in-memory LRU (L1) with a zstd-compressed disk store (L2)
// that survives restarts, so re-runs over the same corpus skip repeated G2P calls.
package cache
