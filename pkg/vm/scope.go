// Package vm provides variable storage for the ACS virtual machine.
package vm

// Scope identifies one of the three variable stores.
type Scope int

const (
	ScopeScript Scope = iota // per-instance locals
	ScopeMap                 // reset on every map load
	ScopeWorld               // kept across maps, reset on new game
)

func (s Scope) String() string {
	switch s {
	case ScopeScript:
		return "script"
	case ScopeMap:
		return "map"
	case ScopeWorld:
		return "world"
	}
	return "unknown"
}

// VarStore is a fixed-size array of integer variables.
// Accesses outside the array fail instead of growing it.
type VarStore struct {
	vals []int32
}

// NewVarStore creates a store of n zeroed variables.
func NewVarStore(n int) *VarStore {
	if n < 0 {
		n = 0
	}
	return &VarStore{vals: make([]int32, n)}
}

// Get returns variable i.
func (v *VarStore) Get(i int32) (int32, bool) {
	if i < 0 || int(i) >= len(v.vals) {
		return 0, false
	}
	return v.vals[i], true
}

// Set assigns variable i. It returns false if i is out of range.
func (v *VarStore) Set(i int32, x int32) bool {
	if i < 0 || int(i) >= len(v.vals) {
		return false
	}
	v.vals[i] = x
	return true
}

// Len returns the number of variables.
func (v *VarStore) Len() int {
	return len(v.vals)
}

// Reset zeroes every variable.
func (v *VarStore) Reset() {
	clear(v.vals)
}

// Values returns a copy of the variables.
func (v *VarStore) Values() []int32 {
	out := make([]int32, len(v.vals))
	copy(out, v.vals)
	return out
}

// load replaces the contents from vals. Extra values are ignored and
// missing ones are zeroed.
func (v *VarStore) load(vals []int32) {
	v.Reset()
	copy(v.vals, vals)
}
