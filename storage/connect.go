package storage

import (
	"go.uber.org/zap"

	"smartdoor-relay/confs"
)

// headroom for direct uploads on top of one object per log entry
const memoryHeadroom = 256

// Connect picks the object store from configuration: R2 when credentials
// are present, otherwise an in-memory store. The memory store holds at least
// maxEvents objects so that no entry still in the log loses its image.
func Connect(cfg confs.StorageConfig, maxEvents int, log *zap.Logger) (ObjectStore, error) {
	if !cfg.Enabled() {
		capacity := maxEvents + memoryHeadroom
		log.Warn("object storage not configured, keeping media in memory",
			zap.Int("capacity", capacity))
		return NewMemoryStore(capacity), nil
	}

	store, err := NewS3Store(cfg)
	if err != nil {
		return nil, err
	}
	log.Info("R2 client initialized", zap.String("bucket", cfg.Bucket))
	return store, nil
}
