//go:build race || !(amd64 || 386 || s390x)

package opt

// IsTSO_ on weakly ordered targets, and under the race detector,
// stable-window copies fall back to word-sized atomic loads/stores.
const IsTSO_ = false
