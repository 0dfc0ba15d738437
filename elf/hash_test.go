package elf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func putU32(buf *[]byte, vs ...uint32) {
	for _, v := range vs {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		*buf = append(*buf, b[:]...)
	}
}

func TestGNUHashCount(t *testing.T) {
	t.Run("chain of three entries", func(t *testing.T) {
		var buf []byte
		putU32(&buf, 2, 1, 1) // buckets, min chain, bloom size
		putU32(&buf, 0)       // shift

		// one 64-bit bloom word, then buckets; the highest chain index is 1
		buf = append(buf, make([]byte, 8)...)
		putU32(&buf, 0, 1)

		// chain words for symbols 1 and 2; the low bit terminates
		putU32(&buf, 0x00c0ffee&^uint32(1), 0x0000000d)

		n, err := gnuHashCount(buf, 0, Container64)
		require.NoError(t, err)
		require.Equal(t, 3, n)
	})

	t.Run("32-bit container uses 4-byte bloom words", func(t *testing.T) {
		var buf []byte
		putU32(&buf, 1, 1, 1)
		putU32(&buf, 0)
		putU32(&buf, 0)    // one 32-bit bloom word
		putU32(&buf, 1)    // single bucket
		putU32(&buf, 0x3)  // terminator immediately

		n, err := gnuHashCount(buf, 0, Container32)
		require.NoError(t, err)
		require.Equal(t, 2, n)
	})

	t.Run("zero header fields are malformed", func(t *testing.T) {
		var buf []byte
		putU32(&buf, 2, 0, 1, 0)

		_, err := gnuHashCount(buf, 0, Container64)
		require.Error(t, err)

		ghe, ok := err.(*GNUHashError)
		require.True(t, ok)
		require.Equal(t, uint32(2), ghe.Buckets)
		require.Equal(t, uint32(0), ghe.MinChain)
		require.Equal(t, uint32(1), ghe.BloomSize)
	})

	t.Run("all buckets below the minimum chain is an empty table", func(t *testing.T) {
		var buf []byte
		putU32(&buf, 2, 5, 1)
		putU32(&buf, 0)
		buf = append(buf, make([]byte, 8)...)
		putU32(&buf, 0, 0) // both buckets empty

		n, err := gnuHashCount(buf, 0, Container64)
		require.NoError(t, err)
		require.Equal(t, 0, n)
	})

	t.Run("truncated table is end of binary", func(t *testing.T) {
		var buf []byte
		putU32(&buf, 2, 1, 1)

		_, err := gnuHashCount(buf, 0, Container64)
		_, ok := err.(*EndOfBinaryError)
		require.True(t, ok)
	})
}

func TestSysvHashCount(t *testing.T) {
	t.Run("chain count is 32 bits on common machines", func(t *testing.T) {
		var buf []byte
		putU32(&buf, 4, 17)

		n, err := sysvHashCount(buf, 0, EMX8664, Container64)
		require.NoError(t, err)
		require.Equal(t, 17, n)
	})

	t.Run("s390 in a 64-bit container reads a 64-bit chain count", func(t *testing.T) {
		var buf []byte
		putU32(&buf, 4)       // bucket count
		putU32(&buf, 9, 0)    // nchain as a little-endian u64

		n, err := sysvHashCount(buf, 0, EMS390, Container64)
		require.NoError(t, err)
		require.Equal(t, 9, n)
	})

	t.Run("s390 in a 32-bit container stays 32 bits", func(t *testing.T) {
		var buf []byte
		putU32(&buf, 4, 9)

		n, err := sysvHashCount(buf, 0, EMS390, Container32)
		require.NoError(t, err)
		require.Equal(t, 9, n)
	})
}
