// Package mp4test writes small progressive MP4 files for tests.
package mp4test

import (
	"m7s.live/hds/pkg/util"
)

var (
	// SPS baseline 3.0，poc type 2，20x15 宏块即 320x240，无裁剪无 VUI
	SPS       = []byte{0x67, 0x42, 0xc0, 0x1e, 0xda, 0x0a, 0x0f, 0xc8}
	PPS       = []byte{0x68, 0xce, 0x3c, 0x80}
	AACConfig = []byte{0x12, 0x10} // AAC LC, 44100Hz, stereo
)

type Track struct {
	Timescale       uint32
	Delta           uint32
	Sizes           []uint32
	SamplesPerChunk int
	SyncSamples     []uint32 // 为空时不写 stss
	CompositionTime uint32
	// Marker 样本数据第一个字节，其后依次为样本序号
	Marker byte
	chunks []uint32
}

func (t *Track) sampleData(i int) []byte {
	data := make([]byte, t.Sizes[i])
	data[0] = t.Marker
	for j := 1; j < len(data); j++ {
		data[j] = byte(i)
	}
	return data
}

// Default 10 帧 25fps 视频（第 1、6 帧为关键帧）加 8 个 AAC 帧
func Default() *File {
	video := &Track{Timescale: 1000, Delta: 40, SamplesPerChunk: 5, SyncSamples: []uint32{1, 6}, CompositionTime: 80, Marker: 0xee}
	for i := 0; i < 10; i++ {
		video.Sizes = append(video.Sizes, uint32(100+i))
	}
	audio := &Track{Timescale: 44100, Delta: 1024, SamplesPerChunk: 4, Marker: 0xaa}
	for i := 0; i < 8; i++ {
		audio.Sizes = append(audio.Sizes, uint32(10+i))
	}
	return &File{Timescale: 1000, Duration: 400, Width: 320, Height: 240, Video: video, Audio: audio}
}

// File 生成 [ftyp][mdat][moov]，视频和音频按 chunk 交错存放
type File struct {
	Timescale uint32
	Duration  uint32
	Width     uint16
	Height    uint16
	Video     *Track
	Audio     *Track
}

// SampleData 第 i 个样本应有的内容
func (f *File) SampleData(video bool, i int) []byte {
	if video {
		return f.Video.sampleData(i)
	}
	return f.Audio.sampleData(i)
}

func (f *File) Bytes() []byte {
	var b util.Buffer
	ftyp := b.BeginBox("ftyp")
	b.WriteString("isom")
	b.WriteUint32(0x200)
	b.WriteString("isomavc1")
	b.EndBox(ftyp)

	mdat := b.BeginBox("mdat")
	tracks := []*Track{f.Video, f.Audio}
	for _, t := range tracks {
		if t != nil {
			t.chunks = nil
		}
	}
	next := make([]int, 2)
	for more := true; more; {
		more = false
		for i, t := range tracks {
			if t == nil || next[i] >= len(t.Sizes) {
				continue
			}
			more = true
			t.chunks = append(t.chunks, uint32(b.Len()))
			for j := 0; j < t.SamplesPerChunk && next[i] < len(t.Sizes); j++ {
				b.Write(t.sampleData(next[i]))
				next[i]++
			}
		}
	}
	b.EndBox(mdat)

	moov := b.BeginBox("moov")
	mvhd := b.BeginBox("mvhd")
	b.WriteUint32(0)
	b.WriteUint64(0)
	b.WriteUint32(f.Timescale)
	b.WriteUint32(f.Duration)
	b.WriteUint32(0x00010000)
	b.WriteUint16(0x0100)
	b.Write(make([]byte, 10))
	writeMatrix(&b)
	b.Write(make([]byte, 24))
	b.WriteUint32(3)
	b.EndBox(mvhd)
	if f.Video != nil {
		f.writeTrak(&b, f.Video, 1, true)
	}
	if f.Audio != nil {
		f.writeTrak(&b, f.Audio, 2, false)
	}
	b.EndBox(moov)
	return b
}

func writeMatrix(b *util.Buffer) {
	for _, v := range []uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000} {
		b.WriteUint32(v)
	}
}

func (f *File) writeTrak(b *util.Buffer, t *Track, id uint32, video bool) {
	trak := b.BeginBox("trak")
	tkhd := b.BeginBox("tkhd")
	b.WriteUint32(3) // enabled, in movie
	b.WriteUint64(0)
	b.WriteUint32(id)
	b.WriteUint32(0)
	b.WriteUint32(f.Duration)
	b.WriteUint64(0)
	b.WriteUint32(0) // layer, alternate group
	if video {
		b.WriteUint32(0)
	} else {
		b.WriteUint32(0x01000000)
	}
	writeMatrix(b)
	if video {
		b.WriteUint32(uint32(f.Width) << 16)
		b.WriteUint32(uint32(f.Height) << 16)
	} else {
		b.WriteUint64(0)
	}
	b.EndBox(tkhd)

	mdia := b.BeginBox("mdia")
	mdhd := b.BeginBox("mdhd")
	b.WriteUint32(0)
	b.WriteUint64(0)
	b.WriteUint32(t.Timescale)
	b.WriteUint32(t.Delta * uint32(len(t.Sizes)))
	b.WriteUint16(0x55c4) // und
	b.WriteUint16(0)
	b.EndBox(mdhd)
	hdlr := b.BeginBox("hdlr")
	b.WriteUint32(0)
	b.WriteUint32(0)
	if video {
		b.WriteString("vide")
	} else {
		b.WriteString("soun")
	}
	b.Write(make([]byte, 12))
	b.WriteString("handler\x00")
	b.EndBox(hdlr)

	minf := b.BeginBox("minf")
	if video {
		vmhd := b.BeginBox("vmhd")
		b.WriteUint32(1)
		b.Write(make([]byte, 8))
		b.EndBox(vmhd)
	} else {
		smhd := b.BeginBox("smhd")
		b.WriteUint32(0)
		b.WriteUint32(0)
		b.EndBox(smhd)
	}
	stbl := b.BeginBox("stbl")
	stsd := b.BeginBox("stsd")
	b.WriteUint32(0)
	b.WriteUint32(1)
	if video {
		f.writeAvc1(b)
	} else {
		writeMp4a(b)
	}
	b.EndBox(stsd)

	stts := b.BeginBox("stts")
	b.WriteUint32(0)
	b.WriteUint32(1)
	b.WriteUint32(uint32(len(t.Sizes)))
	b.WriteUint32(t.Delta)
	b.EndBox(stts)

	if len(t.SyncSamples) > 0 {
		stss := b.BeginBox("stss")
		b.WriteUint32(0)
		b.WriteUint32(uint32(len(t.SyncSamples)))
		for _, nr := range t.SyncSamples {
			b.WriteUint32(nr)
		}
		b.EndBox(stss)
	}
	if t.CompositionTime > 0 {
		ctts := b.BeginBox("ctts")
		b.WriteUint32(0)
		b.WriteUint32(1)
		b.WriteUint32(uint32(len(t.Sizes)))
		b.WriteUint32(t.CompositionTime)
		b.EndBox(ctts)
	}

	stsc := b.BeginBox("stsc")
	b.WriteUint32(0)
	b.WriteUint32(1)
	b.WriteUint32(1)
	b.WriteUint32(uint32(t.SamplesPerChunk))
	b.WriteUint32(1)
	b.EndBox(stsc)

	stsz := b.BeginBox("stsz")
	b.WriteUint32(0)
	b.WriteUint32(0)
	b.WriteUint32(uint32(len(t.Sizes)))
	for _, size := range t.Sizes {
		b.WriteUint32(size)
	}
	b.EndBox(stsz)

	stco := b.BeginBox("stco")
	b.WriteUint32(0)
	b.WriteUint32(uint32(len(t.chunks)))
	for _, offset := range t.chunks {
		b.WriteUint32(offset)
	}
	b.EndBox(stco)

	b.EndBox(stbl)
	b.EndBox(minf)
	b.EndBox(mdia)
	b.EndBox(trak)
}

// AVCConfig avcC 中的 AVCDecoderConfigurationRecord
func AVCConfig() []byte {
	var b util.Buffer
	b.Write([]byte{0x01, SPS[1], SPS[2], SPS[3], 0xff, 0xe1})
	b.WriteUint16(uint16(len(SPS)))
	b.Write(SPS)
	b.WriteByte(1)
	b.WriteUint16(uint16(len(PPS)))
	b.Write(PPS)
	return b
}

func (f *File) writeAvc1(b *util.Buffer) {
	avc1 := b.BeginBox("avc1")
	b.Write(make([]byte, 6))
	b.WriteUint16(1) // data reference index
	b.Write(make([]byte, 16))
	b.WriteUint16(f.Width)
	b.WriteUint16(f.Height)
	b.WriteUint32(0x00480000)
	b.WriteUint32(0x00480000)
	b.WriteUint32(0)
	b.WriteUint16(1)
	b.Write(make([]byte, 32))
	b.WriteUint16(0x0018)
	b.WriteUint16(0xffff)
	b.WriteBox("avcC", AVCConfig())
	b.EndBox(avc1)
}

func writeMp4a(b *util.Buffer) {
	mp4a := b.BeginBox("mp4a")
	b.Write(make([]byte, 6))
	b.WriteUint16(1)
	b.Write(make([]byte, 8))
	b.WriteUint16(2)  // channels
	b.WriteUint16(16) // sample size
	b.WriteUint32(0)
	b.WriteUint32(44100 << 16)

	var dsi, dcd, es util.Buffer
	dsi.WriteByte(0x05)
	dsi.WriteByte(byte(len(AACConfig)))
	dsi.Write(AACConfig)
	dcd.WriteByte(0x04)
	dcd.WriteByte(byte(13 + dsi.Len()))
	dcd.WriteByte(0x40) // MPEG-4 audio
	dcd.WriteByte(0x15) // audio stream
	dcd.WriteUint24(0)
	dcd.WriteUint32(128000)
	dcd.WriteUint32(128000)
	dcd.Write(dsi)
	es.WriteByte(0x03)
	es.WriteByte(byte(3 + dcd.Len() + 3))
	es.WriteUint16(2)
	es.WriteByte(0)
	es.Write(dcd)
	es.Write([]byte{0x06, 0x01, 0x02})

	esds := b.BeginBox("esds")
	b.WriteUint32(0)
	b.Write(es)
	b.EndBox(esds)
	b.EndBox(mp4a)
}
