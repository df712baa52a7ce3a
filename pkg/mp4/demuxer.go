// Package mp4 reads the sample tables of a progressive MP4 file and exposes
// them as an f4f.Media.
package mp4

import (
	"bytes"
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Eyevinn/mp4ff/mp4"
	"m7s.live/hds/pkg"
	"m7s.live/hds/pkg/codec"
	"m7s.live/hds/pkg/f4f"
	"m7s.live/hds/pkg/util"
)

type Track struct {
	Video     bool
	Timescale uint32
	Config    []byte
	Codec     codec.ICodecCtx // 解析失败时为 nil
	Samples   []f4f.Sample
	Bytes     int64
}

// Demuxer 取第一条 avc1 视频轨和第一条 mp4a 音频轨，样本按时间戳稳定合并
type Demuxer struct {
	Logger       *slog.Logger
	Video, Audio *Track
	samples      []f4f.Sample
	duration     float64
	info         f4f.MediaInfo
}

var _ f4f.Media = (*Demuxer)(nil)

func NewDemuxer(logger *slog.Logger) *Demuxer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Demuxer{Logger: logger}
}

// Open 映射源文件并解析 moov，返回的 Mapping 由调用者关闭
func Open(path string, logger *slog.Logger) (*Demuxer, *util.Mapping, error) {
	mapping, err := util.OpenMapping(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", pkg.ErrNoSource, path, err)
	}
	d := NewDemuxer(logger)
	if err = d.Demux(mapping.Bytes()); err != nil {
		mapping.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, mapping, nil
}

// findBox 顺序扫描同一层的盒子头，返回第一个 tag 盒子的负载
func findBox(data []byte, tag string) ([]byte, bool) {
	for b := util.Buffer(data); b.CanReadN(8); {
		size, header := uint64(b.ReadUint32()), uint64(8)
		typ := string(b.ReadN(4))
		switch size {
		case 0:
			size = uint64(b.Len()) + header
		case 1:
			if !b.CanReadN(8) {
				return nil, false
			}
			size, header = b.ReadUint64(), 16
		}
		if size < header || size-header > uint64(b.Len()) {
			return nil, false
		}
		payload := b.ReadN(int(size - header))
		if typ == tag {
			return payload, true
		}
	}
	return nil, false
}

// Demux mp4ff 不接受没有 trak 的 moov，先检查盒子结构
func (d *Demuxer) Demux(data []byte) (err error) {
	moovBox, ok := findBox(data, "moov")
	if !ok {
		return fmt.Errorf("%w: missing moov", pkg.ErrNoTracks)
	}
	if _, ok = findBox(moovBox, "trak"); !ok {
		return fmt.Errorf("%w: moov has no trak", pkg.ErrNoTracks)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", pkg.ErrMalformed, r)
		}
	}()
	file, err := mp4.DecodeFile(bytes.NewReader(data), mp4.WithDecodeMode(mp4.DecModeLazyMdat))
	if err != nil {
		return err
	}
	if file.IsFragmented() {
		return pkg.ErrFragmented
	}
	moov := file.Moov
	if moov == nil || moov.Mvhd == nil {
		return fmt.Errorf("%w: missing moov", pkg.ErrNoTracks)
	}
	if moov.Mvhd.Timescale > 0 {
		d.duration = float64(moov.Mvhd.Duration) / float64(moov.Mvhd.Timescale)
	}
	for _, trak := range moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
			continue
		}
		stbl := trak.Mdia.Minf.Stbl
		switch trak.Mdia.Hdlr.HandlerType {
		case "vide":
			if d.Video != nil || stbl.Stsd == nil || stbl.Stsd.AvcX == nil || stbl.Stsd.AvcX.AvcC == nil {
				continue
			}
			var config bytes.Buffer
			if err = stbl.Stsd.AvcX.AvcC.DecConfRec.Encode(&config); err != nil {
				return err
			}
			if d.Video, err = newTrack(trak, true, config.Bytes()); err != nil {
				return fmt.Errorf("video track: %w", err)
			}
			if trak.Tkhd != nil {
				d.info.Width = int(trak.Tkhd.Width >> 16)
				d.info.Height = int(trak.Tkhd.Height >> 16)
			}
			if ctx, err := codec.NewH264Ctx(d.Video.Config); err == nil {
				d.Video.Codec = ctx
				d.info.PWidth, d.info.PHeight = ctx.Width(), ctx.Height()
				// tkhd 没有显示尺寸时用编码尺寸
				if d.info.Width == 0 || d.info.Height == 0 {
					d.info.Width, d.info.Height = d.info.PWidth, d.info.PHeight
				}
				d.Logger.Debug("video track", "codec", ctx.FourCC(), "info", ctx.GetInfo())
			} else {
				d.Logger.Warn("parse video config", "err", err)
			}
		case "soun":
			if d.Audio != nil || stbl.Stsd == nil || stbl.Stsd.Mp4a == nil || stbl.Stsd.Mp4a.Esds == nil {
				continue
			}
			config := stbl.Stsd.Mp4a.Esds.DecConfigDescriptor.DecSpecificInfo.DecConfig
			if d.Audio, err = newTrack(trak, false, config); err != nil {
				return fmt.Errorf("audio track: %w", err)
			}
			if ctx, err := codec.NewAACCtx(config); err == nil {
				d.Audio.Codec = ctx
				d.info.SampleRate, d.info.Channels = ctx.GetSampleRate(), ctx.GetChannels()
				d.Logger.Debug("audio track", "codec", ctx.FourCC(), "info", ctx.GetInfo())
			} else {
				d.Logger.Warn("parse audio config", "err", err)
			}
		default:
			d.Logger.Debug("skip track", "handler", trak.Mdia.Hdlr.HandlerType)
		}
	}
	if d.Video == nil && d.Audio == nil {
		return pkg.ErrNoTracks
	}
	d.merge()
	return nil
}

// newTrack 按 chunk 展开样本表：stsc 给出样本所在 chunk，同一 chunk 内的样本连续存放
func newTrack(trak *mp4.TrakBox, video bool, config []byte) (track *Track, err error) {
	stbl := trak.Mdia.Minf.Stbl
	track = &Track{Video: video, Timescale: trak.Mdia.Mdhd.Timescale, Config: config}
	if track.Timescale == 0 {
		return nil, fmt.Errorf("zero timescale")
	}
	if stbl.Stsz == nil || stbl.Stsc == nil || stbl.Stts == nil || (stbl.Stco == nil && stbl.Co64 == nil) {
		return nil, fmt.Errorf("incomplete sample table")
	}
	chunkOffset := func(chunkNr int) (int64, error) {
		if stbl.Co64 != nil {
			if chunkNr > len(stbl.Co64.ChunkOffset) {
				return 0, fmt.Errorf("chunk %d out of co64 range", chunkNr)
			}
			return int64(stbl.Co64.ChunkOffset[chunkNr-1]), nil
		}
		if chunkNr > len(stbl.Stco.ChunkOffset) {
			return 0, fmt.Errorf("chunk %d out of stco range", chunkNr)
		}
		return int64(stbl.Stco.ChunkOffset[chunkNr-1]), nil
	}
	count := int(stbl.Stsz.SampleNumber)
	track.Samples = make([]f4f.Sample, 0, count)
	var dts uint64
	var offset int64
	var prevSize uint32
	prevChunk := 0
	nr := 1
	for i, run := range stbl.Stts.SampleCount {
		delta := stbl.Stts.SampleTimeDelta[i]
		for j := uint32(0); j < run && nr <= count; j++ {
			chunkNr, _, err := stbl.Stsc.ChunkNrFromSampleNr(nr)
			if err != nil {
				return nil, err
			}
			if chunkNr != prevChunk {
				if offset, err = chunkOffset(chunkNr); err != nil {
					return nil, err
				}
				prevChunk = chunkNr
			} else {
				offset += int64(prevSize)
			}
			size := stbl.Stsz.GetSampleSize(nr)
			sample := f4f.Sample{
				Timestamp: float64(dts) / float64(track.Timescale),
				Video:     video,
				Keyframe:  !video || stbl.Stss == nil || stbl.Stss.IsSyncSample(uint32(nr)),
				Timescale: track.Timescale,
				Size:      size,
				Offset:    offset,
			}
			if video && stbl.Ctts != nil {
				sample.CompositionOffset = int64(stbl.Ctts.GetCompositionTimeOffset(uint32(nr)))
			}
			track.Samples = append(track.Samples, sample)
			track.Bytes += int64(size)
			prevSize = size
			dts += uint64(delta)
			nr++
		}
	}
	if len(track.Samples) != count {
		return nil, fmt.Errorf("stts covers %d of %d samples", len(track.Samples), count)
	}
	return track, nil
}

func (d *Demuxer) merge() {
	var total int64
	d.samples = d.samples[:0]
	for _, track := range []*Track{d.Video, d.Audio} {
		if track != nil {
			d.samples = append(d.samples, track.Samples...)
			total += track.Bytes
		}
	}
	slices.SortStableFunc(d.samples, func(a, b f4f.Sample) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	if d.duration > 0 {
		d.info.Bitrate = int(float64(total*8) / d.duration)
	}
}

func (d *Demuxer) SampleCount() int        { return len(d.samples) }
func (d *Demuxer) Sample(i int) f4f.Sample { return d.samples[i] }
func (d *Demuxer) HasVideo() bool          { return d.Video != nil }
func (d *Demuxer) HasAudio() bool          { return d.Audio != nil }
func (d *Demuxer) Duration() float64       { return d.duration }
func (d *Demuxer) Info() f4f.MediaInfo     { return d.info }

func (d *Demuxer) VideoConfig() []byte {
	if d.Video == nil {
		return nil
	}
	return d.Video.Config
}

func (d *Demuxer) AudioConfig() []byte {
	if d.Audio == nil {
		return nil
	}
	return d.Audio.Config
}
