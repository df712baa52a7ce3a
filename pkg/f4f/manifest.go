package f4f

import (
	"encoding/base64"
	"encoding/xml"
	"io"
)

const (
	ManifestNamespace  = "http://ns.adobe.com/f4m/1.0"
	StreamTypeRecorded = "recorded"
)

type ManifestBootstrap struct {
	Profile string `xml:"profile,attr"`
	ID      string `xml:"id,attr"`
	Data    string `xml:",chardata"`
}

type ManifestMedia struct {
	StreamID        string `xml:"streamId,attr"`
	URL             string `xml:"url,attr"`
	BootstrapInfoID string `xml:"bootstrapinfoId,attr"`
	Width           int    `xml:"width,attr,omitempty"`
	Height          int    `xml:"height,attr,omitempty"`
	Bitrate         int    `xml:"bitrate,attr,omitempty"` // kbit/s
}

// Manifest F4M 文档，所有文本字段由 encoding/xml 转义
type Manifest struct {
	XMLName       xml.Name            `xml:"http://ns.adobe.com/f4m/1.0 manifest"`
	ID            string              `xml:"id"`
	StreamType    string              `xml:"streamType"`
	Duration      float64             `xml:"duration"`
	BootstrapInfo []ManifestBootstrap `xml:"bootstrapInfo"`
	Media         []ManifestMedia     `xml:"media"`
}

func NewManifest(id string, duration float64) *Manifest {
	return &Manifest{ID: id, StreamType: StreamTypeRecorded, Duration: duration}
}

// AddMedia 追加一对 bootstrapInfo/media，url 为分片所在目录
func (m *Manifest) AddMedia(streamID, url, bootstrapID string, bootstrap []byte, info MediaInfo) {
	m.BootstrapInfo = append(m.BootstrapInfo, ManifestBootstrap{
		Profile: "named",
		ID:      bootstrapID,
		Data:    base64.StdEncoding.EncodeToString(bootstrap),
	})
	m.Media = append(m.Media, ManifestMedia{
		StreamID:        streamID,
		URL:             url,
		BootstrapInfoID: bootstrapID,
		Width:           info.Width,
		Height:          info.Height,
		Bitrate:         info.Bitrate / 1000,
	})
}

func (m *Manifest) Marshal() ([]byte, error) {
	out, err := xml.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(append([]byte(xml.Header), out...), '\n'), nil
}

func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	out, err := m.Marshal()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(out)
	return int64(n), err
}

func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// BootstrapBytes 按 id 取出内嵌的 abst 盒子
func (m *Manifest) BootstrapBytes(id string) ([]byte, bool, error) {
	for _, b := range m.BootstrapInfo {
		if b.ID == id {
			data, err := base64.StdEncoding.DecodeString(b.Data)
			return data, true, err
		}
	}
	return nil, false, nil
}
