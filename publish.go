package hds

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"m7s.live/hds/pkg/f4f"
)

// FileSink 把分片写入 Dir，记录已写入的文件以便中止时清理
type FileSink struct {
	Dir   string
	Files []string
}

func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create fragment dir %s: %w", dir, err)
	}
	return &FileSink{Dir: dir}, nil
}

func (s *FileSink) WriteFragment(_ context.Context, chunk *f4f.Chunk) (err error) {
	path := filepath.Join(s.Dir, chunk.Name())
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("write fragment %s: %w", path, err)
	}
	s.Files = append(s.Files, path)
	_, err = chunk.WriteTo(file)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write fragment %s: %w", path, err)
	}
	return nil
}

// Remove 删除本次写入的全部分片
func (s *FileSink) Remove() error {
	var errs []error
	for _, path := range s.Files {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	s.Files = nil
	return errors.Join(errs...)
}

// PublishManifest 先写临时文件再改名，清单要么完整出现要么不出现
func PublishManifest(path string, manifest *f4f.Manifest) (err error) {
	data, err := manifest.Marshal()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create manifest dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err == nil {
		err = tmp.Chmod(0644)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return nil
}
