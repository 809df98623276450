//go:build !race && (amd64 || 386 || s390x)

package opt

// IsTSO_ reports whether the target guarantees total store order, in
// which case a plain typed copy inside a stable sequence window cannot
// be torn at word granularity.
const IsTSO_ = true
