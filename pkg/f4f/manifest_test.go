package f4f

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManifest(t *testing.T) {
	m := newMedia(9, true, true).keyframes(100, 0, 3.5, 7.1)
	fragments, _ := run(t, m, Options{FragmentDuration: 3})
	bootstrap, err := (&Bootstrap{Duration: 9, Fragments: fragments}).Encode()
	require.NoError(t, err)

	manifest := NewManifest("some_video", 9)
	manifest.AddMedia("some_video", "samples", "bt", bootstrap, MediaInfo{Width: 640, Height: 360, Bitrate: 800000})
	var out bytes.Buffer
	_, err = manifest.WriteTo(&out)
	require.NoError(t, err)
	text := out.String()
	require.Contains(t, text, `<manifest xmlns="http://ns.adobe.com/f4m/1.0">`)
	require.Contains(t, text, "<id>some_video</id>")
	require.Contains(t, text, "<streamType>recorded</streamType>")
	require.Contains(t, text, "<duration>9</duration>")
	require.Contains(t, text, `<bootstrapInfo profile="named" id="bt">`)
	require.Contains(t, text, `<media streamId="some_video" url="samples" bootstrapinfoId="bt" width="640" height="360" bitrate="800">`)

	parsed, err := ParseManifest(out.Bytes())
	require.NoError(t, err)
	require.Equal(t, manifest.ID, parsed.ID)
	require.Equal(t, manifest.Media, parsed.Media)
	data, ok, err := parsed.BootstrapBytes("bt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, bootstrap, data)
	info, err := DecodeBootstrap(data)
	require.NoError(t, err)
	require.Len(t, info.FragmentRuns, 3)

	_, ok, _ = parsed.BootstrapBytes("missing")
	require.False(t, ok)
}

func TestManifestEscapes(t *testing.T) {
	manifest := NewManifest(`a"b<c`, 1.5)
	manifest.AddMedia(`a"b<c`, "x&y", "bt", []byte{1}, MediaInfo{})
	out, err := manifest.Marshal()
	require.NoError(t, err)
	require.Contains(t, string(out), "<id>a&#34;b&lt;c</id>")
	require.Contains(t, string(out), `streamId="a&#34;b&lt;c" url="x&amp;y"`)
	require.NotContains(t, string(out), "width=")

	parsed, err := ParseManifest(out)
	require.NoError(t, err)
	require.Equal(t, `a"b<c`, parsed.Media[0].StreamID)
	require.Equal(t, "x&y", parsed.Media[0].URL)
}

// 没有样本时清单照常生成，afrt 为空
func TestManifestWithoutFragments(t *testing.T) {
	fragments, _ := run(t, newMedia(42, true, false), Options{FragmentDuration: 10})
	bootstrap, err := (&Bootstrap{Duration: 42, Fragments: fragments}).Encode()
	require.NoError(t, err)
	manifest := NewManifest("empty", 42)
	manifest.AddMedia("empty", "samples", "bt", bootstrap, MediaInfo{})
	out, err := manifest.Marshal()
	require.NoError(t, err)
	require.Contains(t, string(out), "<duration>42</duration>")
	parsed, err := ParseManifest(out)
	require.NoError(t, err)
	data, _, err := parsed.BootstrapBytes("bt")
	require.NoError(t, err)
	info, err := DecodeBootstrap(data)
	require.NoError(t, err)
	require.Empty(t, info.FragmentRuns)
}
