package elf

// The binary format provides no symbol-count field for either hash layout;
// the count is inferred by finding the highest-addressed chain and walking
// it to its terminator, O(buckets + chain length) rather than O(symbols).

// sysvHashCount reads the chain count of a legacy SysV hash table. The
// chain-count field is 64 bits wide on Alpha and s390 inside a 64-bit
// container and 32 bits everywhere else; that machine/width branch is a
// quirk of the format and is preserved exactly.
func sysvHashCount(buf []byte, off uint64, machine uint16, container Container) (int, error) {
	c := &cursor{buf: buf, off: int(off), stage: StageHashTable}

	// bucket count
	if err := c.skip(4); err != nil {
		return 0, err
	}

	if (machine == EMFakeAlpha || machine == EMS390) && container == Container64 {
		nchain, err := c.uint64()
		if err != nil {
			return 0, err
		}

		return int(nchain), nil
	}

	nchain, err := c.uint32()
	if err != nil {
		return 0, err
	}

	return int(nchain), nil
}

// gnuHashCount infers the symbol-table length from a GNU-style hash table.
func gnuHashCount(buf []byte, off uint64, container Container) (int, error) {
	c := &cursor{buf: buf, off: int(off), stage: StageHashTable}

	buckets, err := c.uint32()
	if err != nil {
		return 0, err
	}

	minChain, err := c.uint32()
	if err != nil {
		return 0, err
	}

	bloomSize, err := c.uint32()
	if err != nil {
		return 0, err
	}

	if buckets == 0 || minChain == 0 || bloomSize == 0 {
		return 0, &GNUHashError{Buckets: buckets, MinChain: minChain, BloomSize: bloomSize}
	}

	bloomWord := 4
	if container == Container64 {
		bloomWord = 8
	}

	// skip the shift word and the bloom filter region to reach the buckets
	if err := c.skip(4 + int(bloomSize)*bloomWord); err != nil {
		return 0, err
	}

	bucketsOff := c.off

	// find the last referenced chain
	maxChain := uint32(0)

	for b := uint32(0); b < buckets; b++ {
		chain, err := c.uint32()
		if err != nil {
			return 0, err
		}

		if maxChain < chain {
			maxChain = chain
		}
	}

	// every bucket below the declared minimum: the symbol table is empty,
	// which is a valid state, not an error
	if maxChain < minChain {
		return 0, nil
	}

	// walk the chain holding the maximum index to its terminator
	c.off = bucketsOff + int(buckets)*4 + int(maxChain-minChain)*4

	for {
		hash, err := c.uint32()
		if err != nil {
			return 0, err
		}

		maxChain++

		if hash&1 != 0 {
			return int(maxChain), nil
		}
	}
}
