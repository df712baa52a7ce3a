package util

import (
	"encoding/binary"
	"fmt"
	"io"
)

type Integer interface {
	~int | ~int16 | ~int32 | ~int64 | ~uint | ~uint16 | ~uint32 | ~uint64
}

func PutBE[T Integer](b []byte, num T) []byte {
	for i, n := 0, len(b); i < n; i++ {
		b[i] = byte(num >> ((n - i - 1) << 3))
	}
	return b
}

func ReadBE[T Integer](b []byte) (num T) {
	num = 0
	for i, n := 0, len(b); i < n; i++ {
		num += T(b[i]) << ((n - i - 1) << 3)
	}
	return
}

// Buffer 自动扩容的大端写入缓冲，同时支持顺序读取
type Buffer []byte

func (b *Buffer) Read(buf []byte) (n int, err error) {
	if !b.CanReadN(len(buf)) {
		n = copy(buf, *b)
		*b = (*b)[n:]
		return n, io.EOF
	}
	ret := b.ReadN(len(buf))
	copy(buf, ret)
	return len(ret), err
}

func (b *Buffer) ReadN(n int) Buffer {
	l := b.Len()
	if n > l {
		n = l
	}
	r := (*b)[:n]
	*b = (*b)[n:l]
	return r
}

func (b *Buffer) ReadUint64() uint64 {
	return binary.BigEndian.Uint64(b.ReadN(8))
}
func (b *Buffer) ReadUint32() uint32 {
	return binary.BigEndian.Uint32(b.ReadN(4))
}
func (b *Buffer) ReadUint24() uint32 {
	return ReadBE[uint32](b.ReadN(3))
}
func (b *Buffer) ReadUint16() uint16 {
	return binary.BigEndian.Uint16(b.ReadN(2))
}
func (b *Buffer) ReadByte() byte {
	return b.ReadN(1)[0]
}
func (b *Buffer) WriteUint64(v uint64) {
	binary.BigEndian.PutUint64(b.Malloc(8), v)
}
func (b *Buffer) WriteUint32(v uint32) {
	binary.BigEndian.PutUint32(b.Malloc(4), v)
}
func (b *Buffer) WriteUint24(v uint32) {
	PutBE(b.Malloc(3), v&0xFFFFFF)
}
func (b *Buffer) WriteUint16(v uint16) {
	binary.BigEndian.PutUint16(b.Malloc(2), v)
}
func (b *Buffer) WriteByte(v byte) error {
	b.Malloc(1)[0] = v
	return nil
}
func (b *Buffer) WriteString(a string) {
	*b = append(*b, a...)
}
func (b *Buffer) Write(a []byte) (n int, err error) {
	*b = append(*b, a...)
	return len(a), nil
}

// WriteBox 写入 4 字节长度 + 4 字节类型的盒子，长度包含头部 8 字节
func (b *Buffer) WriteBox(tag string, payload []byte) {
	if len(tag) != 4 {
		panic(fmt.Sprintf("box tag %q must be 4 bytes", tag))
	}
	b.WriteUint32(uint32(len(payload) + 8))
	b.WriteString(tag)
	b.Write(payload)
}

// BeginBox 预留盒子头部，返回的位置交给 EndBox 回填长度
func (b *Buffer) BeginBox(tag string) int {
	if len(tag) != 4 {
		panic(fmt.Sprintf("box tag %q must be 4 bytes", tag))
	}
	start := b.Len()
	b.WriteUint32(0)
	b.WriteString(tag)
	return start
}

func (b *Buffer) EndBox(start int) {
	binary.BigEndian.PutUint32((*b)[start:], uint32(b.Len()-start))
}

func (b Buffer) Clone() (result Buffer) {
	return append(result, b...)
}

func (b Buffer) Bytes() []byte {
	return b
}

func (b Buffer) Len() int {
	return len(b)
}

func (b Buffer) CanRead() bool {
	return b.CanReadN(1)
}

func (b Buffer) CanReadN(n int) bool {
	return b.Len() >= n
}
func (b Buffer) Cap() int {
	return cap(b)
}
func (b Buffer) SubBuf(start int, length int) Buffer {
	return b[start : start+length]
}

// Malloc 扩大原来的buffer的长度，返回新增的buffer
func (b *Buffer) Malloc(count int) Buffer {
	l := b.Len()
	newL := l + count
	if newL > b.Cap() {
		n := make(Buffer, newL, max(newL, 2*b.Cap()))
		copy(n, *b)
		*b = n
	} else {
		*b = b.SubBuf(0, newL)
	}
	return b.SubBuf(l, count)
}

func (b *Buffer) Reset() {
	*b = b.SubBuf(0, 0)
}
