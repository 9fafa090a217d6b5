// Package resultbackend defines the byte-storage contract for process
// outputs. The Job itself only ever holds a content identifier and
// size (see domain.Result); actual bytes live here, addressable by
// job id and output name so large outputs never bloat persisted job
// state.
package resultbackend

import (
	"context"
	"io"
)

// ResultReader exposes read/seek/size so the chunked result endpoint
// can stream without buffering the whole payload.
type ResultReader interface {
	io.Reader
	io.Seeker
	Size(ctx context.Context) (int64, error)
	Close() error
}

// Backend is implemented by internal/resultbackend/redisbackend.
type Backend interface {
	// PutJobResult stores data under (jobID, outputName) and returns a
	// content identifier plus size.
	PutJobResult(ctx context.Context, jobID, outputName string, data []byte) (contentID string, size int64, err error)

	// GetJobResult returns a streaming reader over the bytes stored
	// for (jobID, outputName).
	GetJobResult(ctx context.Context, jobID, outputName string) (ResultReader, error)
}
