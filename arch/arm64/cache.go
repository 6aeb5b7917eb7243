package arm64

// defined in arm64.s
func enableCache()
func disableCache()
func flushTLB()

// EnableCache activates the instruction and data caches (cache_enable).
func (cpu *CPU) EnableCache() { enableCache() }

// DisableCache disables the instruction and data caches (cache_disable).
func (cpu *CPU) DisableCache() { disableCache() }

// FlushTLB invalidates the Translation Lookaside Buffer, used after any
// change to the live translation tables (flush_tlb).
func (cpu *CPU) FlushTLB() { flushTLB() }
