package hds

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"m7s.live/hds/pkg"
	"m7s.live/hds/pkg/f4f"
)

// BatchJobs 每个源文件的分片写入清单旁的 <文件名>.d 目录，文件名相同的源会写到同一目录，直接拒绝
func (p *Packager) BatchJobs(sources []string) ([]Job, error) {
	dir := filepath.Dir(p.Manifest)
	jobs := make([]Job, len(sources))
	seen := make(map[string]string, len(sources))
	for i, source := range sources {
		name := filepath.Base(source) + ".d"
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("sources %s and %s both write to %s", prev, source, name)
		}
		seen[name] = source
		jobs[i] = Job{
			Source:      source,
			Dir:         filepath.Join(dir, name),
			URL:         name,
			StreamID:    strings.TrimSuffix(filepath.Base(source), filepath.Ext(source)),
			BootstrapID: p.BootstrapID,
		}
		if len(sources) > 1 {
			jobs[i].BootstrapID = fmt.Sprintf("%s%d", p.BootstrapID, i+1)
		}
	}
	return jobs, nil
}

// RunBatch 并发打包多个独立的源文件，全部成功后按源文件顺序生成一个清单。
// 任一文件失败则取消其余任务并删除所有已写入的分片
func (p *Packager) RunBatch(ctx context.Context, sources []string) (err error) {
	if len(sources) == 0 {
		return pkg.ErrNoSource
	}
	jobs, err := p.BatchJobs(sources)
	if err != nil {
		return
	}
	results := make([]*Result, len(jobs))
	defer func() {
		if err != nil {
			for _, r := range results {
				if removeErr := r.Remove(); removeErr != nil {
					p.Error("remove fragments", "dir", r.Dir, "err", removeErr)
				}
			}
		}
	}()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.Workers, 1))
	for i, job := range jobs {
		g.Go(func() (err error) {
			results[i], err = p.Package(gctx, job)
			return
		})
	}
	if err = g.Wait(); err != nil {
		return
	}
	var duration float64
	for _, r := range results {
		duration = max(duration, r.Duration)
	}
	manifest := f4f.NewManifest(p.VideoID, duration)
	for _, r := range results {
		manifest.AddMedia(r.StreamID, r.URL, r.BootstrapID, r.Bootstrap, r.Info)
	}
	if err = PublishManifest(p.Manifest, manifest); err != nil {
		return
	}
	p.Info("manifest published", "path", p.Manifest, "sources", len(sources))
	return nil
}
