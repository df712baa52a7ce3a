package codec

import (
	"fmt"

	"github.com/deepch/vdk/codec/aacparser"
	"github.com/deepch/vdk/codec/h264parser"
)

type FourCC [4]byte

var (
	FourCC_H264 = FourCC{'a', 'v', 'c', '1'}
	FourCC_MP4A = FourCC{'m', 'p', '4', 'a'}
)

func (f FourCC) String() string {
	return string(f[:])
}

type ICodecCtx interface {
	FourCC() FourCC
	GetInfo() string
}

type (
	H264Ctx struct {
		h264parser.CodecData
	}
	AACCtx struct {
		aacparser.CodecData
	}
)

var (
	_ ICodecCtx = (*H264Ctx)(nil)
	_ ICodecCtx = (*AACCtx)(nil)
)

func NewH264Ctx(record []byte) (*H264Ctx, error) {
	data, err := h264parser.NewCodecDataFromAVCDecoderConfRecord(record)
	if err != nil {
		return nil, fmt.Errorf("avcC: %w", err)
	}
	return &H264Ctx{data}, nil
}

func (*H264Ctx) FourCC() FourCC {
	return FourCC_H264
}

func (ctx *H264Ctx) GetInfo() string {
	return fmt.Sprintf("profile: %d, resolution: %dx%d", ctx.RecordInfo.AVCProfileIndication, ctx.Width(), ctx.Height())
}

func NewAACCtx(config []byte) (*AACCtx, error) {
	data, err := aacparser.NewCodecDataFromMPEG4AudioConfigBytes(config)
	if err != nil {
		return nil, fmt.Errorf("esds: %w", err)
	}
	return &AACCtx{data}, nil
}

func (*AACCtx) FourCC() FourCC {
	return FourCC_MP4A
}

func (ctx *AACCtx) GetChannels() int {
	return ctx.ChannelLayout().Count()
}

func (ctx *AACCtx) GetSampleRate() int {
	return ctx.SampleRate()
}

func (ctx *AACCtx) GetInfo() string {
	return fmt.Sprintf("sample rate: %d, channels: %d, object type: %d", ctx.SampleRate(), ctx.GetChannels(), ctx.Config.ObjectType)
}
