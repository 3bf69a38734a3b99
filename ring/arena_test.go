package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReserveShrinkRelease(t *testing.T) {
	a := NewArena(1024)

	r, err := a.Reserve(512)
	require.NoError(t, err)
	require.Len(t, r.Bytes, 512)
	require.EqualValues(t, 512, a.Used())

	require.NoError(t, a.ShrinkLast(r, 100))
	require.EqualValues(t, 100, a.Used())

	require.NoError(t, a.Release(r))
	require.EqualValues(t, 0, a.Used())
	require.EqualValues(t, 1024, a.Free())
}

func TestReserveFailsWhenFull(t *testing.T) {
	a := NewArena(1024)

	_, err := a.Reserve(1024)
	require.NoError(t, err)

	_, err = a.Reserve(1)
	require.ErrorIs(t, err, ErrNoSpace)
}

func TestReleaseMustBeFIFO(t *testing.T) {
	a := NewArena(1024)

	r1, err := a.Reserve(100)
	require.NoError(t, err)
	r2, err := a.Reserve(100)
	require.NoError(t, err)

	err = a.Release(r2)
	require.Error(t, err, "releasing out of FIFO order must fail")

	require.NoError(t, a.Release(r1))
	require.NoError(t, a.Release(r2))
}

func TestShrinkMustPrecedeNextReserve(t *testing.T) {
	a := NewArena(1024)

	r1, err := a.Reserve(100)
	require.NoError(t, err)
	_, err = a.Reserve(100)
	require.NoError(t, err)

	err = a.ShrinkLast(r1, 10)
	require.Error(t, err, "shrinking anything but the most recent reservation must fail")
}

func TestWraparoundWastesTailPaddingNotContent(t *testing.T) {
	a := NewArena(100)

	r1, err := a.Reserve(60)
	require.NoError(t, err)
	require.NoError(t, a.ShrinkLast(r1, 60))
	require.NoError(t, a.Release(r1))

	// Head sits at 60; a 50-byte reservation doesn't fit before the
	// physical end (100), so it must wrap to offset 0, wasting the
	// remaining 40 bytes until they're accounted for again.
	r2, err := a.Reserve(50)
	require.NoError(t, err)
	require.Len(t, r2.Bytes, 50)

	_, err = a.Reserve(1)
	require.ErrorIs(t, err, ErrNoSpace, "the wasted wraparound padding must count against capacity")
}

func TestLiveReservationSumNeverExceedsCapacity(t *testing.T) {
	a := NewArena(256)
	var regions []Region

	for {
		r, err := a.Reserve(64)
		if err != nil {
			require.ErrorIs(t, err, ErrNoSpace)
			break
		}
		regions = append(regions, r)
		require.LessOrEqual(t, a.Used(), a.Capacity())
	}
}
