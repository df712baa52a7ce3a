// Package hds packages progressive MP4 files into HTTP Dynamic Streaming
// fragments, bootstrap info and F4M manifests.
package hds

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"m7s.live/hds/pkg/f4f"
	"m7s.live/hds/pkg/mp4"
)

// Job 一个源文件的打包任务
type Job struct {
	Source      string
	Dir         string // 分片输出目录
	URL         string // 清单中 media 的 url
	StreamID    string
	BootstrapID string
}

type Result struct {
	Job
	Duration  float64
	Info      f4f.MediaInfo
	Fragments f4f.Fragments
	Bootstrap []byte
	sink      *FileSink
}

// Remove 删除该任务写入的分片
func (r *Result) Remove() error {
	if r == nil || r.sink == nil {
		return nil
	}
	return r.sink.Remove()
}

type Packager struct {
	*slog.Logger
	Config
}

func NewPackager(conf Config, logger *slog.Logger) *Packager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Packager{Logger: logger, Config: conf}
}

// Package 解析源文件、写出分片并生成 bootstrap，失败时已写入的分片会被删除
func (p *Packager) Package(ctx context.Context, job Job) (result *Result, err error) {
	logger := p.With("src", job.Source)
	media, mapping, err := mp4.Open(job.Source, logger)
	if err != nil {
		return nil, err
	}
	defer mapping.Close()
	info := media.Info()
	logger.Info("source parsed",
		"samples", media.SampleCount(),
		"video", media.HasVideo(),
		"audio", media.HasAudio(),
		"width", info.Width,
		"height", info.Height,
		"pwidth", info.PWidth,
		"pheight", info.PHeight,
		"bitrate", info.Bitrate,
		"samplerate", info.SampleRate,
		"channels", info.Channels,
		"duration", media.Duration(),
	)
	if media.SampleCount() == 0 {
		logger.Warn("no samples, manifest will reference an empty fragment list")
	}

	sink, err := NewFileSink(job.Dir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if removeErr := sink.Remove(); removeErr != nil {
				logger.Error("remove fragments", "err", removeErr)
			}
		}
	}()
	opts := p.Options()
	opts.Logger = logger
	start := time.Now()
	fragments, err := f4f.NewFragmenter(media, mapping, sink, opts).Run(ctx)
	if err != nil {
		return nil, err
	}
	bootstrap, err := (&f4f.Bootstrap{Duration: media.Duration(), Fragments: fragments}).Encode()
	if err != nil {
		return nil, err
	}
	logger.Info("fragments written", "count", len(fragments), "dir", job.Dir, "template", p.Template, "elapsed", time.Since(start))
	return &Result{
		Job:       job,
		Duration:  media.Duration(),
		Info:      info,
		Fragments: fragments,
		Bootstrap: bootstrap,
		sink:      sink,
	}, nil
}

// SingleJob docroot/basedir/fragments 布局，清单位于 docroot/basedir
func (p *Packager) SingleJob(source string) (job Job, manifestPath string) {
	base := filepath.Join(p.DocRoot, p.BaseDir)
	return Job{
		Source:      source,
		Dir:         filepath.Join(base, p.Fragments),
		URL:         p.Fragments + "/",
		StreamID:    p.VideoID,
		BootstrapID: p.BootstrapID,
	}, filepath.Join(base, p.Manifest)
}

// Run 打包单个源文件并发布清单
func (p *Packager) Run(ctx context.Context, source string) error {
	job, manifestPath := p.SingleJob(source)
	result, err := p.Package(ctx, job)
	if err != nil {
		return err
	}
	manifest := f4f.NewManifest(p.VideoID, result.Duration)
	manifest.AddMedia(job.StreamID, job.URL, job.BootstrapID, result.Bootstrap, result.Info)
	if err = PublishManifest(manifestPath, manifest); err != nil {
		if removeErr := result.Remove(); removeErr != nil {
			p.Error("remove fragments", "dir", job.Dir, "err", removeErr)
		}
		return err
	}
	p.Info("manifest published", "path", manifestPath)
	return nil
}
