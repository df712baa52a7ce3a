package f4f

import (
	"encoding/binary"
	"fmt"
	"math"

	"m7s.live/hds/pkg"
	"m7s.live/hds/pkg/flv"
	"m7s.live/hds/pkg/util"
)

const (
	BootstrapInfoVersion = 14
	Timescale            = 1000
)

// Bootstrap 由完整的分片列表计算出的 abst 盒子
type Bootstrap struct {
	Duration  float64 // 秒
	Fragments Fragments
}

// Encode 生成 abst{asrt,afrt}，时间单位为毫秒
func (b *Bootstrap) Encode() ([]byte, error) {
	last := len(b.Fragments) - 1
	for i, f := range b.Fragments {
		if flv.Milliseconds(f.Duration) == 0 && i != last {
			return nil, pkg.NewInvariantError(pkg.ZeroDurationFragment, i, "only the last of %d fragments may have zero duration", len(b.Fragments))
		}
	}
	var buf util.Buffer
	abst := buf.BeginBox("abst")
	buf.WriteUint32(0) // version + flags
	buf.WriteUint32(BootstrapInfoVersion)
	buf.WriteByte(0) // profile, live, update
	buf.WriteUint32(Timescale)
	buf.WriteUint64(milliseconds(b.Duration))
	buf.WriteUint64(0) // SmpteTimeCodeOffset
	buf.WriteByte(0)   // MovieIdentifier
	buf.WriteByte(0)   // ServerEntryCount
	buf.WriteByte(0)   // QualityEntryCount
	buf.WriteByte(0)   // DrmData
	buf.WriteByte(0)   // MetaData

	buf.WriteByte(1)
	asrt := buf.BeginBox("asrt")
	buf.WriteUint32(0)
	buf.WriteByte(0)
	buf.WriteUint32(1)
	buf.WriteUint32(Segment)
	buf.WriteUint32(uint32(len(b.Fragments)))
	buf.EndBox(asrt)

	buf.WriteByte(1)
	afrt := buf.BeginBox("afrt")
	buf.WriteUint32(0)
	buf.WriteUint32(Timescale)
	buf.WriteByte(0)
	buf.WriteUint32(uint32(len(b.Fragments)))
	for i, f := range b.Fragments {
		duration := flv.Milliseconds(f.Duration)
		buf.WriteUint32(uint32(i + 1))
		buf.WriteUint64(milliseconds(f.Start))
		buf.WriteUint32(duration)
		if duration == 0 {
			buf.WriteByte(0) // DiscontinuityIndicator
		}
	}
	buf.EndBox(afrt)
	buf.EndBox(abst)

	if err := checkBox(buf, "abst"); err != nil {
		return nil, err
	}
	return buf, nil
}

// milliseconds 64 位的时间字段不能借用标签时间戳的 32 位换算
func milliseconds(seconds float64) uint64 {
	if seconds <= 0 {
		return 0
	}
	return uint64(math.Round(seconds * 1000))
}

func checkBox(data []byte, tag string) error {
	if len(data) < 8 || string(data[4:8]) != tag {
		return pkg.NewInvariantError(pkg.BoxLength, 0, "missing %s box", tag)
	}
	if size := binary.BigEndian.Uint32(data); int(size) != len(data) {
		return pkg.NewInvariantError(pkg.BoxLength, 0, "%s declares %d bytes, has %d", tag, size, len(data))
	}
	return nil
}

type SegmentRun struct {
	FirstSegment        uint32
	FragmentsPerSegment uint32
}

type FragmentRun struct {
	FirstFragment uint32
	Timestamp     uint64
	Duration      uint32
	Discontinuity bool
}

// BootstrapInfo abst 的解码结果
type BootstrapInfo struct {
	Version           uint32
	Profile           byte
	Timescale         uint32
	CurrentMediaTime  uint64
	SegmentRuns       []SegmentRun
	FragmentTimescale uint32
	FragmentRuns      []FragmentRun
}

func readBox(b *util.Buffer, tag string) (util.Buffer, error) {
	if !b.CanReadN(8) {
		return nil, fmt.Errorf("f4f: short %s box", tag)
	}
	size := b.ReadUint32()
	if got := string(b.ReadN(4)); got != tag {
		return nil, fmt.Errorf("f4f: got box %q, want %q", got, tag)
	}
	if size < 8 || !b.CanReadN(int(size-8)) {
		return nil, pkg.NewInvariantError(pkg.BoxLength, 0, "%s declares %d bytes, %d available", tag, size, b.Len()+8)
	}
	return b.ReadN(int(size - 8)), nil
}

func skipString(b *util.Buffer) error {
	for b.CanRead() {
		if b.ReadByte() == 0 {
			return nil
		}
	}
	return fmt.Errorf("f4f: unterminated string")
}

func need(b *util.Buffer, n int, what string) error {
	if !b.CanReadN(n) {
		return fmt.Errorf("f4f: short %s", what)
	}
	return nil
}

// DecodeBootstrap 解析 Encode 生成的盒子树，每一层都校验长度
func DecodeBootstrap(data []byte) (info *BootstrapInfo, err error) {
	b := util.Buffer(data)
	abst, err := readBox(&b, "abst")
	if err != nil {
		return
	}
	if b.Len() != 0 {
		return nil, pkg.NewInvariantError(pkg.BoxLength, 0, "%d trailing bytes after abst", b.Len())
	}
	if err = need(&abst, 29, "abst header"); err != nil {
		return
	}
	info = &BootstrapInfo{}
	abst.ReadUint32()
	info.Version = abst.ReadUint32()
	info.Profile = abst.ReadByte() >> 6
	info.Timescale = abst.ReadUint32()
	info.CurrentMediaTime = abst.ReadUint64()
	abst.ReadUint64()
	if err = skipString(&abst); err != nil {
		return nil, err
	}
	for _, what := range []string{"server entries", "quality entries"} {
		if err = need(&abst, 1, what); err != nil {
			return nil, err
		}
		for n := abst.ReadByte(); n > 0; n-- {
			if err = skipString(&abst); err != nil {
				return nil, err
			}
		}
	}
	if err = skipString(&abst); err != nil {
		return nil, err
	}
	if err = skipString(&abst); err != nil {
		return nil, err
	}
	if err = need(&abst, 1, "segment run table count"); err != nil {
		return nil, err
	}
	for n := abst.ReadByte(); n > 0; n-- {
		var asrt util.Buffer
		if asrt, err = readBox(&abst, "asrt"); err != nil {
			return nil, err
		}
		if err = need(&asrt, 5, "asrt header"); err != nil {
			return nil, err
		}
		asrt.ReadUint32()
		for q := asrt.ReadByte(); q > 0; q-- {
			if err = skipString(&asrt); err != nil {
				return nil, err
			}
		}
		if err = need(&asrt, 4, "asrt entry count"); err != nil {
			return nil, err
		}
		count := asrt.ReadUint32()
		if asrt.Len() != int(count)*8 {
			return nil, pkg.NewInvariantError(pkg.BoxLength, 0, "asrt has %d bytes for %d entries", asrt.Len(), count)
		}
		for ; count > 0; count-- {
			info.SegmentRuns = append(info.SegmentRuns, SegmentRun{asrt.ReadUint32(), asrt.ReadUint32()})
		}
	}
	if err = need(&abst, 1, "fragment run table count"); err != nil {
		return nil, err
	}
	for n := abst.ReadByte(); n > 0; n-- {
		var afrt util.Buffer
		if afrt, err = readBox(&abst, "afrt"); err != nil {
			return nil, err
		}
		if err = need(&afrt, 9, "afrt header"); err != nil {
			return nil, err
		}
		afrt.ReadUint32()
		info.FragmentTimescale = afrt.ReadUint32()
		for q := afrt.ReadByte(); q > 0; q-- {
			if err = skipString(&afrt); err != nil {
				return nil, err
			}
		}
		if err = need(&afrt, 4, "afrt entry count"); err != nil {
			return nil, err
		}
		for count := afrt.ReadUint32(); count > 0; count-- {
			if err = need(&afrt, 16, "afrt entry"); err != nil {
				return nil, err
			}
			run := FragmentRun{FirstFragment: afrt.ReadUint32(), Timestamp: afrt.ReadUint64(), Duration: afrt.ReadUint32()}
			if run.Duration == 0 {
				if err = need(&afrt, 1, "discontinuity indicator"); err != nil {
					return nil, err
				}
				afrt.ReadByte()
				run.Discontinuity = true
			}
			info.FragmentRuns = append(info.FragmentRuns, run)
		}
		if afrt.Len() != 0 {
			return nil, pkg.NewInvariantError(pkg.BoxLength, 0, "%d trailing bytes in afrt", afrt.Len())
		}
	}
	if abst.Len() != 0 {
		return nil, pkg.NewInvariantError(pkg.BoxLength, 0, "%d trailing bytes in abst", abst.Len())
	}
	return info, nil
}
