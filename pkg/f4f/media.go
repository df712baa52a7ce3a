// Package f4f packages a demuxed sample stream into HTTP Dynamic Streaming
// fragments, the bootstrap info box and the F4M manifest.
package f4f

// Sample 一个可解码单元，时间戳以秒为单位且在整个流中单调不减
type Sample struct {
	Timestamp         float64
	Video             bool
	Keyframe          bool
	CompositionOffset int64 // 以 Timescale 为单位，仅视频
	Timescale         uint32
	Size              uint32
	Offset            int64 // 在源文件中的字节偏移
}

type MediaInfo struct {
	Width, Height   int
	PWidth, PHeight int
	Bitrate         int // bit/s
	SampleRate      int
	Channels        int
}

// Media 解复用器对外暴露的只读视图
type Media interface {
	SampleCount() int
	Sample(i int) Sample
	HasVideo() bool
	HasAudio() bool
	VideoConfig() []byte
	AudioConfig() []byte
	Duration() float64
	Info() MediaInfo
}

// Source 样本数据所在的只读字节视图
type Source interface {
	Slice(offset int64, size uint32) ([]byte, error)
}

// StaticMedia 内存中的 Media 实现，Video/Audio 为空表示没有对应轨道
type StaticMedia struct {
	Samples       []Sample
	Video, Audio  []byte
	TotalDuration float64
	MediaInfo
}

var _ Media = (*StaticMedia)(nil)

func (m *StaticMedia) SampleCount() int    { return len(m.Samples) }
func (m *StaticMedia) Sample(i int) Sample { return m.Samples[i] }
func (m *StaticMedia) HasVideo() bool      { return m.Video != nil }
func (m *StaticMedia) HasAudio() bool      { return m.Audio != nil }
func (m *StaticMedia) VideoConfig() []byte { return m.Video }
func (m *StaticMedia) AudioConfig() []byte { return m.Audio }
func (m *StaticMedia) Duration() float64   { return m.TotalDuration }
func (m *StaticMedia) Info() MediaInfo     { return m.MediaInfo }
