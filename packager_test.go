package hds

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"m7s.live/hds/pkg"
	"m7s.live/hds/pkg/f4f"
	"m7s.live/hds/pkg/mp4/mp4test"
	"m7s.live/hds/pkg/util"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func writeSource(t *testing.T, dir, name string) (string, []byte) {
	t.Helper()
	data := mp4test.Default().Bytes()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path, data
}

func newPackager(t *testing.T, overrides map[string]any) *Packager {
	t.Helper()
	conf, err := LoadConfig(nil, overrides)
	require.NoError(t, err)
	return NewPackager(conf, discard)
}

func readManifest(t *testing.T, path string) *f4f.Manifest {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	manifest, err := f4f.ParseManifest(data)
	require.NoError(t, err)
	return manifest
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	src, _ := writeSource(t, dir, "video.mp4")
	p := newPackager(t, map[string]any{"docroot": dir, "basedir": "vod", "fragmentduration": "200ms"})
	require.NoError(t, p.Run(context.Background(), src))

	for _, name := range []string{"Seg1-Frag1", "Seg1-Frag2"} {
		data, err := os.ReadFile(filepath.Join(dir, "vod", "samples", name))
		require.NoError(t, err)
		tags, err := f4f.ReadFragment(data)
		require.NoError(t, err)
		require.NotEmpty(t, tags)
	}
	require.NoFileExists(t, filepath.Join(dir, "vod", "samples", "Seg1-Frag3"))

	manifest := readManifest(t, filepath.Join(dir, "vod", "manifest.f4m"))
	require.Equal(t, "some_video", manifest.ID)
	require.Equal(t, "recorded", manifest.StreamType)
	require.InDelta(t, 0.4, manifest.Duration, 1e-9)
	require.Len(t, manifest.Media, 1)
	require.Equal(t, "samples/", manifest.Media[0].URL)
	require.Equal(t, "bt", manifest.Media[0].BootstrapInfoID)
	require.Equal(t, 320, manifest.Media[0].Width)

	data, ok, err := manifest.BootstrapBytes("bt")
	require.NoError(t, err)
	require.True(t, ok)
	info, err := f4f.DecodeBootstrap(data)
	require.NoError(t, err)
	require.Equal(t, uint64(400), info.CurrentMediaTime)
	require.Equal(t, []f4f.FragmentRun{
		{FirstFragment: 1, Timestamp: 0, Duration: 200},
		{FirstFragment: 2, Timestamp: 200, Duration: 200},
	}, info.FragmentRuns)
}

func TestRunLogsSourceInfo(t *testing.T) {
	dir := t.TempDir()
	src, _ := writeSource(t, dir, "video.mp4")
	conf, err := LoadConfig(nil, map[string]any{"docroot": dir})
	require.NoError(t, err)
	var out bytes.Buffer
	p := NewPackager(conf, slog.New(slog.NewTextHandler(&out, nil)))
	require.NoError(t, p.Run(context.Background(), src))
	for _, attr := range []string{"width=320", "pwidth=320", "pheight=240", "samplerate=44100", "channels=2"} {
		require.Contains(t, out.String(), attr)
	}
}

func TestRunTemplate(t *testing.T) {
	dir := t.TempDir()
	src, source := writeSource(t, dir, "video.mp4")
	full := newPackager(t, map[string]any{"docroot": dir, "fragments": "full", "manifest": "full.f4m", "fragmentduration": "200ms"})
	require.NoError(t, full.Run(context.Background(), src))
	tpl := newPackager(t, map[string]any{"docroot": dir, "fragments": "tpl", "manifest": "tpl.f4m", "fragmentduration": "200ms", "template": true, "seqheaders": "every"})
	require.NoError(t, tpl.Run(context.Background(), src))

	require.NoFileExists(t, filepath.Join(dir, "tpl", "Seg1-Frag1"))
	fullFirst, err := os.ReadFile(filepath.Join(dir, "full", "Seg1-Frag1"))
	require.NoError(t, err)
	template, err := os.ReadFile(filepath.Join(dir, "tpl", "Seg1-Frag1.template"))
	require.NoError(t, err)
	assembled, err := f4f.AssembleTemplate(template, sourceView(source))
	require.NoError(t, err)
	// 第一个分片在两种序列头模式下相同
	require.Equal(t, fullFirst, assembled)

	template, err = os.ReadFile(filepath.Join(dir, "tpl", "Seg1-Frag2.template"))
	require.NoError(t, err)
	assembled, err = f4f.AssembleTemplate(template, sourceView(source))
	require.NoError(t, err)
	tags, err := f4f.ReadFragment(assembled)
	require.NoError(t, err)
	require.True(t, tags[0].IsSequenceHeader())
	require.Equal(t, mp4test.AVCConfig(), tags[0].Payload)

	a, b := readManifest(t, filepath.Join(dir, "full.f4m")), readManifest(t, filepath.Join(dir, "tpl.f4m"))
	require.Equal(t, a.BootstrapInfo[0].Data, b.BootstrapInfo[0].Data)
}

func TestRunMissingSource(t *testing.T) {
	dir := t.TempDir()
	p := newPackager(t, map[string]any{"docroot": dir})
	err := p.Run(context.Background(), filepath.Join(dir, "missing.mp4"))
	require.ErrorIs(t, err, pkg.ErrNoSource)
	require.NoFileExists(t, filepath.Join(dir, "manifest.f4m"))
}

func TestRunBatch(t *testing.T) {
	dir := t.TempDir()
	a, _ := writeSource(t, dir, "a.mp4")
	b, _ := writeSource(t, dir, "b.mp4")
	manifestPath := filepath.Join(dir, "out", "manifest.f4m")
	p := newPackager(t, map[string]any{"manifest": manifestPath, "fragmentduration": "3s", "workers": 2})
	require.NoError(t, p.RunBatch(context.Background(), []string{a, b}))

	require.FileExists(t, filepath.Join(dir, "out", "a.mp4.d", "Seg1-Frag1"))
	require.FileExists(t, filepath.Join(dir, "out", "b.mp4.d", "Seg1-Frag1"))
	manifest := readManifest(t, manifestPath)
	require.Len(t, manifest.Media, 2)
	require.Len(t, manifest.BootstrapInfo, 2)
	require.Equal(t, f4f.ManifestMedia{StreamID: "a", URL: "a.mp4.d", BootstrapInfoID: "bt1", Width: 320, Height: 240, Bitrate: manifest.Media[0].Bitrate}, manifest.Media[0])
	require.Equal(t, "b", manifest.Media[1].StreamID)
	require.Equal(t, "bt2", manifest.BootstrapInfo[1].ID)
	for _, bt := range []string{"bt1", "bt2"} {
		data, ok, err := manifest.BootstrapBytes(bt)
		require.NoError(t, err)
		require.True(t, ok)
		info, err := f4f.DecodeBootstrap(data)
		require.NoError(t, err)
		require.Len(t, info.FragmentRuns, 1)
	}
}

// 任一源文件失败时不发布清单，已写入的分片全部删除
func TestRunBatchFailure(t *testing.T) {
	dir := t.TempDir()
	a, _ := writeSource(t, dir, "a.mp4")
	manifestPath := filepath.Join(dir, "manifest.f4m")
	p := newPackager(t, map[string]any{"manifest": manifestPath, "workers": 1})
	err := p.RunBatch(context.Background(), []string{a, filepath.Join(dir, "missing.mp4")})
	require.ErrorIs(t, err, pkg.ErrNoSource)
	require.NoFileExists(t, manifestPath)
	require.NoFileExists(t, filepath.Join(dir, "a.mp4.d", "Seg1-Frag1"))

	require.ErrorIs(t, p.RunBatch(context.Background(), nil), pkg.ErrNoSource)
}

func TestBatchJobsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	a, _ := writeSource(t, dir, "a.mp4")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "other"), 0755))
	b, _ := writeSource(t, filepath.Join(dir, "other"), "a.mp4")
	manifestPath := filepath.Join(dir, "manifest.f4m")
	p := newPackager(t, map[string]any{"manifest": manifestPath})

	_, err := p.BatchJobs([]string{a, b})
	require.ErrorContains(t, err, "a.mp4.d")
	require.Error(t, p.RunBatch(context.Background(), []string{a, b}))
	require.NoDirExists(t, filepath.Join(dir, "a.mp4.d"))
	require.NoFileExists(t, manifestPath)

	jobs, err := p.BatchJobs([]string{a})
	require.NoError(t, err)
	require.Equal(t, Job{Source: a, Dir: filepath.Join(dir, "a.mp4.d"), URL: "a.mp4.d", StreamID: "a", BootstrapID: "bt"}, jobs[0])
}

// 清单写入失败时删除本次写入的分片
func TestRunManifestFailure(t *testing.T) {
	dir := t.TempDir()
	src, _ := writeSource(t, dir, "video.mp4")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blocker"), nil, 0644))
	p := newPackager(t, map[string]any{"docroot": dir, "manifest": filepath.Join("blocker", "manifest.f4m")})
	require.Error(t, p.Run(context.Background(), src))
	require.NoFileExists(t, filepath.Join(dir, "samples", "Seg1-Frag1"))
}

func TestRunCanceled(t *testing.T) {
	dir := t.TempDir()
	src, _ := writeSource(t, dir, "video.mp4")
	p := newPackager(t, map[string]any{"docroot": dir})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Run(ctx, src), context.Canceled)
	require.NoFileExists(t, filepath.Join(dir, "manifest.f4m"))
}

func TestPublishManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "manifest.f4m")
	manifest := f4f.NewManifest("id", 1)
	require.NoError(t, PublishManifest(path, manifest))
	require.NoError(t, PublishManifest(path, manifest))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "manifest.f4m", entries[0].Name())

	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	require.Error(t, PublishManifest(filepath.Join(blocker, "manifest.f4m"), manifest))
	_, err = NewFileSink(filepath.Join(blocker, "samples"))
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	conf, err := LoadConfig(nil, nil)
	require.NoError(t, err)
	require.Equal(t, "some_video", conf.VideoID)
	require.Equal(t, "manifest.f4m", conf.Manifest)
	require.Equal(t, 10*time.Second, conf.FragmentDuration)
	require.Equal(t, "samples", conf.Fragments)
	require.Equal(t, "bt", conf.BootstrapID)
	require.Equal(t, "info", conf.Log.Level)
	require.Equal(t, f4f.Options{FragmentDuration: 10}, conf.Options())

	t.Setenv("HDS_VIDEOID", "from_env")
	conf, err = LoadConfig([]byte("seqheaders: every\nlog:\n  level: debug\n"), map[string]any{"fragmentduration": 3 * time.Second})
	require.NoError(t, err)
	require.Equal(t, "from_env", conf.VideoID)
	require.Equal(t, f4f.SequenceHeaderEveryFragment, conf.Options().SequenceHeaders)
	require.Equal(t, "debug", conf.Log.Level)
	require.InDelta(t, 3.0, conf.Options().FragmentDuration, 1e-9)

	_, err = LoadConfig([]byte("seqheaders: sometimes\n"), nil)
	require.Error(t, err)
	_, err = LoadConfig(nil, map[string]any{"workers": 0})
	require.Error(t, err)
}

type sourceView []byte

func (s sourceView) Slice(offset int64, size uint32) ([]byte, error) {
	return util.NewMapping(s).Slice(offset, size)
}
