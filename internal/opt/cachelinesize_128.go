//go:build rcux_cachelinesize_128 && !rcux_cachelinesize_64

package opt

// CacheLineSize_ forced to 128 bytes via build tag.
const CacheLineSize_ = 128
