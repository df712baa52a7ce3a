package util

import (
	"fmt"
)

// Mapping 只读的源文件内存视图，所有访问都做边界检查
type Mapping struct {
	data   []byte
	closer func() error
}

func NewMapping(data []byte) *Mapping {
	return &Mapping{data: data}
}

func (m *Mapping) Len() int {
	return len(m.data)
}

// Bytes 返回底层只读数据，调用者不得修改
func (m *Mapping) Bytes() []byte {
	return m.data
}

// Slice 返回 [offset, offset+size) 区间，不复制
func (m *Mapping) Slice(offset int64, size uint32) ([]byte, error) {
	end := offset + int64(size)
	if offset < 0 || end > int64(len(m.data)) {
		return nil, fmt.Errorf("mapping: range [%d,%d) out of bounds (len %d)", offset, end, len(m.data))
	}
	return m.data[offset:end:end], nil
}

func (m *Mapping) Close() (err error) {
	if m.closer != nil {
		err = m.closer()
		m.closer = nil
	}
	m.data = nil
	return
}
