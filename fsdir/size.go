package fsdir

// composeSize64 combines a high/low DWORD pair into a 64-bit byte count,
// the fix for ap_dir_entry_size's `(nFileSizeHigh * MAXDWORD) +
// nFileSizeLow`: multiplying by MAXDWORD (0xFFFFFFFF, not 0x100000000)
// silently corrupts every size with a nonzero high word. The correct
// composition shifts the high word into place instead of scaling it.
func composeSize64(high, low uint32) int64 {
	return int64(uint64(high)<<32 | uint64(low))
}
