//go:build apr_debug

package memsys

// assertPool enforces the Fatal (assertion) conditions from spec.md §7,
// compiled in only under the apr_debug build tag, mirroring
// apr_sms_assert's APR_ASSERT_MEMORY-gated checks.
func assertPool(p *Pool) {
	if p.policy.Malloc == nil {
		panic("memsys: pool has no Malloc")
	}
	if !p.policy.valid() {
		panic("memsys: pool policy is a half-implementation (need Free, or both Reset and Destroy)")
	}
}
