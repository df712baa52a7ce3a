//go:build !unix

package util

import "os"

// OpenMapping 非 unix 平台直接读入内存
func OpenMapping(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewMapping(data), nil
}
