package rcux

// ContractError reports a misuse of the reference discipline: a view
// used outside the phase that issued it, a handle promoted or freed
// twice, or a reference crossing into another write. Violations are
// unrecoverable and are raised with panic at the offending call site.
type ContractError string

// Error implements error.
func (e ContractError) Error() string { return string(e) }

const (
	errRefEscaped     = ContractError("rcux: read reference used outside its critical section")
	errWriteRefStale  = ContractError("rcux: write reference used outside its write")
	errWrongWrite     = ContractError("rcux: reference does not belong to this write")
	errNilDeref       = ContractError("rcux: dereference through the empty reference")
	errAllocPhase     = ContractError("rcux: allocator used outside Setup")
	errPublisherPhase = ContractError("rcux: publisher used outside WhileReadersExist")
	errCollectorPhase = ContractError("rcux: collector used outside Teardown")
	errDoublePromote  = ContractError("rcux: handle already promoted")
	errDoubleDemote   = ContractError("rcux: node already demoted")
	errDoubleFree     = ContractError("rcux: handle already freed")
	errFreedHandle    = ContractError("rcux: handle was freed")
	errRootClosed     = ContractError("rcux: root used after Close")
)
