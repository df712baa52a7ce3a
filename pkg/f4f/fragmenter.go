package f4f

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"m7s.live/hds/pkg"
	"m7s.live/hds/pkg/flv"
	"m7s.live/hds/pkg/util"
)

const Segment = 1

type SequenceHeaderMode int

const (
	// SequenceHeaderOnce 解码配置只写入第一个分片
	SequenceHeaderOnce SequenceHeaderMode = iota
	// SequenceHeaderEveryFragment 每个分片开头都带解码配置，可独立解码
	SequenceHeaderEveryFragment
)

func (m SequenceHeaderMode) String() string {
	if m == SequenceHeaderEveryFragment {
		return "every"
	}
	return "once"
}

var ErrFragmentDuration = errors.New("fragment duration must be positive")

// Sink 接收关闭的分片，Chunk 的缓冲归 Sink 所有
type Sink interface {
	WriteFragment(ctx context.Context, chunk *Chunk) error
}

type SinkFunc func(ctx context.Context, chunk *Chunk) error

func (f SinkFunc) WriteFragment(ctx context.Context, chunk *Chunk) error {
	return f(ctx, chunk)
}

type Options struct {
	FragmentDuration float64 // 秒
	SequenceHeaders  SequenceHeaderMode
	Template         bool
	Logger           *slog.Logger
}

type Fragmenter struct {
	Options
	media     Media
	source    Source
	sink      Sink
	index     int
	oldTs     float64
	limitTs   float64
	buf       util.Buffer
	fullSize  int
	records   int // 当前缓冲中的样本记录数，不含序列头
	fragments Fragments
}

// NewFragmenter 模板模式下不读取样本数据，source 可以为 nil
func NewFragmenter(media Media, source Source, sink Sink, opts Options) *Fragmenter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Fragmenter{Options: opts, media: media, source: source, sink: sink}
}

// Run 按关键帧和时间上限切分全部样本，返回分片时间列表
func (f *Fragmenter) Run(ctx context.Context) (Fragments, error) {
	if f.FragmentDuration <= 0 {
		return nil, ErrFragmentDuration
	}
	if !f.Template && f.source == nil {
		return nil, pkg.ErrNoSource
	}
	f.index, f.oldTs, f.limitTs = 1, 0, f.FragmentDuration
	f.fragments = nil
	f.reset(true)
	n := f.media.SampleCount()
	for i := 0; i < n; i++ {
		if i&0xff == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		sample := f.media.Sample(i)
		if now := sample.Timestamp; sample.Video && sample.Keyframe && now >= f.limitTs {
			emitted, err := f.close(ctx, now-f.oldTs, false)
			if err != nil {
				return nil, err
			}
			f.oldTs, f.limitTs = now, now+f.FragmentDuration
			if emitted {
				f.reset(f.SequenceHeaders == SequenceHeaderEveryFragment)
			}
		}
		if err := f.encode(sample); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	if _, err := f.close(ctx, max(f.media.Duration()-f.oldTs, 0), true); err != nil {
		return nil, err
	}
	if err := f.fragments.Validate(); err != nil {
		return nil, err
	}
	return f.fragments, nil
}

func (f *Fragmenter) reset(sequenceHeaders bool) {
	f.buf, f.fullSize, f.records = nil, 0, 0
	if !sequenceHeaders {
		return
	}
	if f.media.HasVideo() {
		f.fullSize += flv.AppendSequenceHeader(&f.buf, true, f.media.VideoConfig())
	}
	if f.media.HasAudio() {
		f.fullSize += flv.AppendSequenceHeader(&f.buf, false, f.media.AudioConfig())
	}
}

func (f *Fragmenter) encode(sample Sample) error {
	h := flv.Header{
		Video:      sample.Video,
		Keyframe:   sample.Keyframe,
		PacketType: flv.PacketTypeRaw,
		Timestamp:  flv.Milliseconds(sample.Timestamp),
	}
	if sample.Video {
		h.CompositionTime = flv.CompositionTime(sample.CompositionOffset, sample.Timescale)
	}
	if f.Template {
		_, full := flv.AppendTemplateTag(&f.buf, h, sample.Size, sample.Offset)
		f.fullSize += full
	} else {
		payload, err := f.source.Slice(sample.Offset, sample.Size)
		if err != nil {
			return err
		}
		f.fullSize += flv.AppendTag(&f.buf, h, payload)
	}
	f.records++
	return nil
}

// close 没有样本记录的缓冲不产生分片，也不占用分片序号，序列头留给下一个分片。
// 有样本时最后一次关闭的缓冲不可能为空
func (f *Fragmenter) close(ctx context.Context, duration float64, final bool) (bool, error) {
	if f.records == 0 {
		if n := f.media.SampleCount(); final && n > 0 {
			return false, pkg.NewInvariantError(pkg.EmptyFinalBuffer, f.index, "%d samples left nothing to flush", n)
		}
		f.Logger.Debug("skip empty fragment", "start", f.oldTs)
		return false, nil
	}
	chunk := &Chunk{
		Fragment: Fragment{Start: f.oldTs, Duration: duration},
		Segment:  Segment,
		Index:    f.index,
		Records:  f.records,
		Template: f.Template,
		Data:     f.buf,
		FullSize: f.fullSize,
	}
	f.buf = nil
	if err := f.sink.WriteFragment(ctx, chunk); err != nil {
		return false, err
	}
	f.Logger.Debug("fragment closed", "name", chunk.Name(), "start", chunk.Start, "duration", chunk.Duration, "records", chunk.Records, "size", chunk.FullSize)
	f.fragments = append(f.fragments, chunk.Fragment)
	f.index++
	return true, nil
}
