// Package g2p converts transcripts to phoneme strings.
//
// Two Client implementations exist. InProcess owns a Model that is loaded
// once per worker slot and segments text into sentences and tokens itself.
// Remote posts text to an HTTP phonemizer service. Both report failures
// through a typed Result instead of panicking or returning a bare error,
// so the caller can apply a per-status policy.
package g2p
