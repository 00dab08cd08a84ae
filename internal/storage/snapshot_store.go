// internal/storage/snapshot_store.go
package storage

import (
	"context"
	"errors"
	"os"
)

// AutosaveKey 自动保存快照的固定键名
const AutosaveKey = "storyboard_autosave_v1"

// ErrSnapshotNotFound 没有已保存的快照
var ErrSnapshotNotFound = errors.New("autosave snapshot not found")

// SnapshotStore 保存单个自动保存快照的键值存储
type SnapshotStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Delete(ctx context.Context) error
}

// FileSnapshotStore 基于 FileStorage 的快照存储
type FileSnapshotStore struct {
	files *FileStorage
	dir   string
	name  string
}

// NewFileSnapshotStore 快照写入 <BaseDir>/autosave/storyboard_autosave_v1.json
func NewFileSnapshotStore(files *FileStorage) *FileSnapshotStore {
	return &FileSnapshotStore{
		files: files,
		dir:   "autosave",
		name:  AutosaveKey + ".json",
	}
}

// Load 读取快照
func (s *FileSnapshotStore) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.files.LoadTextFile(s.dir, s.name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSnapshotNotFound
	}
	return data, err
}

// Save 覆盖写入快照
func (s *FileSnapshotStore) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.files.SaveTextFile(s.dir, s.name, data)
}

// Delete 删除快照，不存在时视为成功
func (s *FileSnapshotStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.files.DeleteFile(s.dir, s.name)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
