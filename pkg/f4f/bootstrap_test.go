package f4f

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"m7s.live/hds/pkg"
)

func TestBootstrapLayout(t *testing.T) {
	b := Bootstrap{Duration: 2.5, Fragments: Fragments{{0, 2.5}}}
	data, err := b.Encode()
	require.NoError(t, err)
	want := []byte{
		0x00, 0x00, 0x00, 0x6a, 'a', 'b', 's', 't',
		0x00, 0x00, 0x00, 0x00, // version, flags
		0x00, 0x00, 0x00, 0x0e, // BootstrapinfoVersion
		0x00,                   // profile, live, update
		0x00, 0x00, 0x03, 0xe8, // timescale
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x09, 0xc4,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00,
		0x01,
		0x00, 0x00, 0x00, 0x19, 'a', 's', 'r', 't',
		0x00, 0x00, 0x00, 0x00,
		0x00,
		0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x01, // FirstSegment
		0x00, 0x00, 0x00, 0x01, // FragmentsPerSegment
		0x01,
		0x00, 0x00, 0x00, 0x25, 'a', 'f', 'r', 't',
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x03, 0xe8,
		0x00,
		0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x01, // FirstFragment
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x09, 0xc4,
	}
	require.Equal(t, want, data)
}

// 每一层盒子的长度都等于负载加 8
func TestBootstrapBoxLengths(t *testing.T) {
	var fragments Fragments
	for i := 0; i < 50; i++ {
		fragments = append(fragments, Fragment{Start: float64(i) * 3.2, Duration: 3.2})
	}
	fragments = append(fragments, Fragment{Start: 160, Duration: 0})
	data, err := (&Bootstrap{Duration: 160, Fragments: fragments}).Encode()
	require.NoError(t, err)
	require.Equal(t, uint32(len(data)), binary.BigEndian.Uint32(data))

	asrt := 8 + 34 + 1
	require.Equal(t, "asrt", string(data[asrt+4:asrt+8]))
	asrtSize := int(binary.BigEndian.Uint32(data[asrt:]))
	require.Equal(t, 25, asrtSize)
	afrt := asrt + asrtSize + 1
	require.Equal(t, "afrt", string(data[afrt+4:afrt+8]))
	require.Equal(t, len(data)-afrt, int(binary.BigEndian.Uint32(data[afrt:])))
	require.Equal(t, 8+13+51*16+1, len(data)-afrt)

	info, err := DecodeBootstrap(data)
	require.NoError(t, err)
	require.Equal(t, uint32(BootstrapInfoVersion), info.Version)
	require.Equal(t, uint32(Timescale), info.Timescale)
	require.Equal(t, uint64(160000), info.CurrentMediaTime)
	require.Equal(t, []SegmentRun{{1, 51}}, info.SegmentRuns)
	require.Len(t, info.FragmentRuns, 51)
	for i, run := range info.FragmentRuns[:50] {
		require.Equal(t, uint32(i+1), run.FirstFragment)
		require.Equal(t, uint64(i*3200), run.Timestamp)
		require.Equal(t, uint32(3200), run.Duration)
		require.False(t, run.Discontinuity)
	}
	last := info.FragmentRuns[50]
	require.Equal(t, FragmentRun{FirstFragment: 51, Timestamp: 160000, Discontinuity: true}, last)
}

func TestBootstrapEmpty(t *testing.T) {
	data, err := (&Bootstrap{Duration: 12.345}).Encode()
	require.NoError(t, err)
	info, err := DecodeBootstrap(data)
	require.NoError(t, err)
	require.Equal(t, uint64(12345), info.CurrentMediaTime)
	require.Equal(t, []SegmentRun{{1, 0}}, info.SegmentRuns)
	require.Empty(t, info.FragmentRuns)
	require.Equal(t, uint32(Timescale), info.FragmentTimescale)
}

// 超过 2^32 毫秒的时间不能回绕
func TestBootstrapLongTimes(t *testing.T) {
	fragments := Fragments{{0, 3e6}, {3e6, 3e6}, {6e6, 1e6}}
	data, err := (&Bootstrap{Duration: 7e6, Fragments: fragments}).Encode()
	require.NoError(t, err)
	info, err := DecodeBootstrap(data)
	require.NoError(t, err)
	require.Equal(t, uint64(7e9), info.CurrentMediaTime)
	require.Equal(t, uint64(6e9), info.FragmentRuns[2].Timestamp)
	require.Equal(t, uint32(1e9), info.FragmentRuns[2].Duration)
}

func TestBootstrapRejectsInnerZeroDuration(t *testing.T) {
	_, err := (&Bootstrap{Duration: 6, Fragments: Fragments{{0, 0}, {0, 6}}}).Encode()
	var ie *pkg.InvariantError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, pkg.ZeroDurationFragment, ie.Kind)
}

func TestDecodeBootstrapCorrupt(t *testing.T) {
	data, err := (&Bootstrap{Duration: 3, Fragments: Fragments{{0, 3}}}).Encode()
	require.NoError(t, err)

	_, err = DecodeBootstrap(data[:len(data)-1])
	require.ErrorIs(t, err, pkg.ErrInvariant)

	_, err = DecodeBootstrap(append(append([]byte{}, data...), 0))
	require.ErrorIs(t, err, pkg.ErrInvariant)

	bad := append([]byte{}, data...)
	copy(bad[4:], "moov")
	_, err = DecodeBootstrap(bad)
	require.Error(t, err)

	// afrt 长度比实际内容多一个字节
	bad = append([]byte{}, data...)
	afrt := 8 + 34 + 1 + 25 + 1
	binary.BigEndian.PutUint32(bad[afrt:], binary.BigEndian.Uint32(bad[afrt:])+1)
	_, err = DecodeBootstrap(bad)
	require.ErrorIs(t, err, pkg.ErrInvariant)
}
