package flv

import (
	"errors"
	"fmt"
	"math"

	"m7s.live/hds/pkg/util"
)

const (
	// FLV Tag Type
	FLV_TAG_TYPE_AUDIO  = 0x08
	FLV_TAG_TYPE_VIDEO  = 0x09
	FLV_TAG_TYPE_SCRIPT = 0x12
)

const (
	TagHeaderSize       = 11
	PreviousTagSizeSize = 4
	VideoDataHeaderSize = 5 // 帧类型/编码 1 字节 + AVCPacketType 1 字节 + CompositionTime 3 字节
	AudioDataHeaderSize = 2 // SoundFormat 1 字节 + AACPacketType 1 字节
	TemplateRefSize     = 8 // 模板记录中替代样本数据的源文件偏移

	FrameTypeKey   = 1
	FrameTypeInter = 2
	CodecIDAVC     = 7

	// AAC, 44kHz, 16bit, stereo
	SoundHeaderAAC = 0xaf

	PacketTypeSequenceHeader = 0x00
	PacketTypeRaw            = 0x01
)

var ErrShortTag = errors.New("flv: short tag")

func WriteFLVTag(t uint8, ts, dataSize uint32, b []byte) {
	b[0] = t
	b[1], b[2], b[3] = byte(dataSize>>16), byte(dataSize>>8), byte(dataSize)
	b[4], b[5], b[6], b[7] = byte(ts>>16), byte(ts>>8), byte(ts), byte(ts>>24)
}

// Milliseconds 秒转毫秒，四舍五入
func Milliseconds(seconds float64) uint32 {
	if seconds <= 0 {
		return 0
	}
	return uint32(math.Round(seconds * 1000))
}

// CompositionTime 以 timescale 为单位的 cts 偏移转为毫秒，截断为有符号 24 位
func CompositionTime(offset int64, timescale uint32) uint32 {
	if timescale == 0 {
		return 0
	}
	return uint32(offset*1000/int64(timescale)) & 0xFFFFFF
}

// Header 一条标签记录中除负载外的全部字段
type Header struct {
	Video           bool
	Keyframe        bool
	PacketType      byte
	Timestamp       uint32
	CompositionTime uint32
}

func (h Header) TagType() byte {
	if h.Video {
		return FLV_TAG_TYPE_VIDEO
	}
	return FLV_TAG_TYPE_AUDIO
}

func (h Header) DataHeaderSize() int {
	if h.Video {
		return VideoDataHeaderSize
	}
	return AudioDataHeaderSize
}

// TagSize 负载为 payloadSize 时整条记录（不含尾部 PreviousTagSize）的长度
func (h Header) TagSize(payloadSize int) int {
	return TagHeaderSize + h.DataHeaderSize() + payloadSize
}

func (h Header) appendHeader(b *util.Buffer, payloadSize int) {
	dataSize := uint32(h.DataHeaderSize() + payloadSize)
	WriteFLVTag(h.TagType(), h.Timestamp, dataSize, b.Malloc(8))
	b.WriteUint24(0) // stream id
	if h.Video {
		frameType := byte(FrameTypeInter)
		if h.Keyframe {
			frameType = FrameTypeKey
		}
		b.WriteByte(frameType<<4 | CodecIDAVC)
		b.WriteByte(h.PacketType)
		b.WriteUint24(h.CompositionTime)
	} else {
		b.WriteByte(SoundHeaderAAC)
		b.WriteByte(h.PacketType)
	}
}

// AppendTag 追加一条完整记录，返回写入的字节数
func AppendTag(b *util.Buffer, h Header, payload []byte) int {
	tagSize := h.TagSize(len(payload))
	h.appendHeader(b, len(payload))
	b.Write(payload)
	b.WriteUint32(uint32(tagSize))
	return tagSize + PreviousTagSizeSize
}

// AppendTemplateTag 追加一条模板记录：头部与完整记录一致，负载替换为源文件偏移。
// 返回写入的字节数以及对应完整记录的字节数
func AppendTemplateTag(b *util.Buffer, h Header, size uint32, offset int64) (written, full int) {
	tagSize := h.TagSize(int(size))
	h.appendHeader(b, int(size))
	b.WriteUint64(uint64(offset))
	b.WriteUint32(uint32(tagSize))
	return TagHeaderSize + h.DataHeaderSize() + TemplateRefSize + PreviousTagSizeSize, tagSize + PreviousTagSizeSize
}

// AppendSequenceHeader 追加解码配置记录（AVCDecoderConfigurationRecord / AudioSpecificConfig）
func AppendSequenceHeader(b *util.Buffer, video bool, config []byte) int {
	return AppendTag(b, Header{Video: video, Keyframe: true, PacketType: PacketTypeSequenceHeader}, config)
}

type Tag struct {
	Header
	Payload []byte
	// Offset 模板记录中的源文件偏移，Payload 为空时有效
	Offset  int64
	Size    uint32
	TagSize uint32
}

func (t Tag) IsSequenceHeader() bool {
	return t.PacketType == PacketTypeSequenceHeader
}

func readHeader(b *util.Buffer) (h Header, dataSize uint32, err error) {
	if !b.CanReadN(TagHeaderSize) {
		return h, 0, ErrShortTag
	}
	tagType := b.ReadByte()
	switch tagType {
	case FLV_TAG_TYPE_VIDEO:
		h.Video = true
	case FLV_TAG_TYPE_AUDIO:
	default:
		return h, 0, fmt.Errorf("flv: unexpected tag type %d", tagType)
	}
	dataSize = b.ReadUint24()
	h.Timestamp = b.ReadUint24()
	h.Timestamp |= uint32(b.ReadByte()) << 24
	b.ReadUint24()
	headerSize := uint32(h.DataHeaderSize())
	if dataSize < headerSize || !b.CanReadN(int(headerSize)) {
		return h, 0, ErrShortTag
	}
	if h.Video {
		frame := b.ReadByte()
		h.Keyframe = frame>>4 == FrameTypeKey
		h.PacketType = b.ReadByte()
		h.CompositionTime = b.ReadUint24()
	} else {
		b.ReadByte()
		h.PacketType = b.ReadByte()
	}
	return h, dataSize - headerSize, nil
}

func readTrailer(b *util.Buffer, t *Tag) error {
	if !b.CanReadN(PreviousTagSizeSize) {
		return ErrShortTag
	}
	t.TagSize = b.ReadUint32()
	if want := uint32(t.Header.TagSize(int(t.Size))); t.TagSize != want {
		return fmt.Errorf("flv: tag size %d, want %d", t.TagSize, want)
	}
	return nil
}

// ReadTag 从 b 中读取一条完整记录
func ReadTag(b *util.Buffer) (t Tag, err error) {
	if t.Header, t.Size, err = readHeader(b); err != nil {
		return
	}
	if !b.CanReadN(int(t.Size)) {
		return t, ErrShortTag
	}
	t.Payload = b.ReadN(int(t.Size))
	err = readTrailer(b, &t)
	return
}

// ReadTemplateTag 从 b 中读取一条模板记录，序列头的负载保持内联
func ReadTemplateTag(b *util.Buffer) (t Tag, err error) {
	if t.Header, t.Size, err = readHeader(b); err != nil {
		return
	}
	if t.IsSequenceHeader() {
		if !b.CanReadN(int(t.Size)) {
			return t, ErrShortTag
		}
		t.Payload = b.ReadN(int(t.Size))
	} else {
		if !b.CanReadN(TemplateRefSize) {
			return t, ErrShortTag
		}
		t.Offset = int64(b.ReadUint64())
	}
	err = readTrailer(b, &t)
	return
}
