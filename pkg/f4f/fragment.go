package f4f

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"m7s.live/hds/pkg"
	"m7s.live/hds/pkg/flv"
	"m7s.live/hds/pkg/util"
)

const (
	MdatHeaderSize   = 8
	TemplateSuffix   = ".template"
	contiguityMargin = 0.001
)

// Fragment 已关闭分片的时间信息，单位秒。Duration 为 0 仅允许出现在最后一个分片，表示时长未知
type Fragment struct {
	Start    float64
	Duration float64
}

func (f Fragment) End() float64 {
	return f.Start + f.Duration
}

type Fragments []Fragment

// Validate 检查分片序列：首尾相接，且零时长只能出现在末尾
func (fs Fragments) Validate() error {
	for i, f := range fs {
		if f.Duration < 0 {
			return pkg.NewInvariantError(pkg.ZeroDurationFragment, i, "negative duration %g", f.Duration)
		}
		if f.Duration == 0 && i != len(fs)-1 {
			return pkg.NewInvariantError(pkg.ZeroDurationFragment, i, "only the last of %d fragments may have zero duration", len(fs))
		}
		if i > 0 {
			if prev := fs[i-1]; math.Abs(prev.End()-f.Start) > contiguityMargin {
				return pkg.NewInvariantError(pkg.NonContiguous, i, "previous ends at %g, starts at %g", prev.End(), f.Start)
			}
		}
	}
	return nil
}

// Chunk 一个关闭的分片及其缓冲，缓冲的所有权随 Chunk 转移给 Sink
type Chunk struct {
	Fragment
	Segment  int
	Index    int
	Records  int
	Template bool
	Data     util.Buffer
	// FullSize 完整模式下负载的长度，模板模式下用于 mdat 头部
	FullSize int
}

func FragmentName(segment, index int) string {
	return fmt.Sprintf("Seg%d-Frag%d", segment, index)
}

func (c *Chunk) Name() string {
	if c.Template {
		return FragmentName(c.Segment, c.Index) + TemplateSuffix
	}
	return FragmentName(c.Segment, c.Index)
}

// WriteTo 写出 [u32 长度+8]["mdat"][记录]
func (c *Chunk) WriteTo(w io.Writer) (n int64, err error) {
	var header [MdatHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(c.FullSize+MdatHeaderSize))
	copy(header[4:], "mdat")
	var m int
	if m, err = w.Write(header[:]); err != nil {
		return int64(m), err
	}
	n = int64(m)
	m, err = w.Write(c.Data)
	n += int64(m)
	return
}

func readMdatHeader(data []byte) (size uint32, body util.Buffer, err error) {
	if len(data) < MdatHeaderSize || string(data[4:8]) != "mdat" {
		return 0, nil, fmt.Errorf("f4f: missing mdat header")
	}
	return binary.BigEndian.Uint32(data), util.Buffer(data[MdatHeaderSize:]), nil
}

// ReadFragment 解析完整分片文件中的全部标签记录
func ReadFragment(data []byte) (tags []flv.Tag, err error) {
	size, body, err := readMdatHeader(data)
	if err != nil {
		return nil, err
	}
	if int(size) != len(data) {
		return nil, pkg.NewInvariantError(pkg.BoxLength, 0, "mdat declares %d bytes, file has %d", size, len(data))
	}
	for body.CanRead() {
		tag, err := flv.ReadTag(&body)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return
}
