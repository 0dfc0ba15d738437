package elf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorShortReads(t *testing.T) {
	// every fixed-width read against a buffer one byte too short must fail
	// with an end-of-binary error, never panic or read out of bounds
	cases := []struct {
		name string
		need int
		read func(c *cursor) error
	}{
		{"uint8", 1, func(c *cursor) error { _, err := c.uint8(); return err }},
		{"uint16", 2, func(c *cursor) error { _, err := c.uint16(); return err }},
		{"uint32", 4, func(c *cursor) error { _, err := c.uint32(); return err }},
		{"uint64", 8, func(c *cursor) error { _, err := c.uint64(); return err }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &cursor{buf: make([]byte, tc.need-1), stage: StageProgramHeader}

			err := tc.read(c)
			require.Error(t, err)

			eob, ok := err.(*EndOfBinaryError)
			require.True(t, ok)
			require.Equal(t, StageProgramHeader, eob.Stage)
			require.Equal(t, tc.need, eob.Need)
			require.Equal(t, 0, c.off, "a failed read must not advance")
		})
	}
}

func TestCursorAdvances(t *testing.T) {
	c := &cursor{buf: []byte{1, 0, 2, 0, 0, 0, 3}, stage: StageHeader}

	v16, err := c.uint16()
	require.NoError(t, err)
	require.Equal(t, uint16(1), v16)

	v32, err := c.uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(2), v32)

	v8, err := c.uint8()
	require.NoError(t, err)
	require.Equal(t, uint8(3), v8)

	_, err = c.uint8()
	require.Error(t, err)
}

func TestCursorSkipPastEnd(t *testing.T) {
	c := &cursor{buf: make([]byte, 4), stage: StageHashTable}

	require.NoError(t, c.skip(4))
	require.Error(t, c.skip(1))
}
