package f4f

import (
	"fmt"

	"m7s.live/hds/pkg"
	"m7s.live/hds/pkg/flv"
	"m7s.live/hds/pkg/util"
)

// ReadTemplate 解析模板分片，普通样本只带源文件偏移
func ReadTemplate(template []byte) (fullSize uint32, tags []flv.Tag, err error) {
	fullSize, body, err := readMdatHeader(template)
	if err != nil {
		return
	}
	for body.CanRead() {
		var tag flv.Tag
		if tag, err = flv.ReadTemplateTag(&body); err != nil {
			return
		}
		tags = append(tags, tag)
	}
	return
}

// AssembleTemplate 用源文件数据补全模板，结果与完整模式的分片逐字节一致
func AssembleTemplate(template []byte, source Source) ([]byte, error) {
	fullSize, tags, err := ReadTemplate(template)
	if err != nil {
		return nil, err
	}
	out := make(util.Buffer, 0, fullSize)
	out.WriteUint32(fullSize)
	out.WriteString("mdat")
	for i, tag := range tags {
		payload := tag.Payload
		if !tag.IsSequenceHeader() {
			if payload, err = source.Slice(tag.Offset, tag.Size); err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
		}
		flv.AppendTag(&out, tag.Header, payload)
	}
	if out.Len() != int(fullSize) {
		return nil, pkg.NewInvariantError(pkg.BoxLength, 0, "template declares %d bytes, assembled %d", fullSize, out.Len())
	}
	return out, nil
}
