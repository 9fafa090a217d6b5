// Package redisbackend stores result bytes in Redis strings, one per
// (job id, output name) pair, with read/seek/size served through
// GETRANGE/STRLEN so readers never pull the whole value at once.
package redisbackend

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	goredis "github.com/redis/go-redis/v9"

	"github.com/opengeo/wpys-go/internal/errs"
	"github.com/opengeo/wpys-go/internal/resultbackend"
)

// Options configures a Redis-backed result backend.
type Options struct {
	Addr           string
	Password       string
	DB             int
	ExpirationTime time.Duration
	HasExpiration  bool
}

type Backend struct {
	rdb  *goredis.Client
	opts Options
}

var _ resultbackend.Backend = (*Backend)(nil)

func New(opts Options) (*Backend, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errs.Wrap(errs.KindBackend, "redis ping failed", err)
	}
	return &Backend{rdb: rdb, opts: opts}, nil
}

func (b *Backend) Close() error { return b.rdb.Close() }

func key(jobID, outputName string) string { return "result:" + jobID + ":" + outputName }

func withRetry(ctx context.Context, fn func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(fn, policy); err != nil {
		return errs.Wrap(errs.KindBackend, "redis operation failed", err)
	}
	return nil
}

func (b *Backend) PutJobResult(ctx context.Context, jobID, outputName string, data []byte) (string, int64, error) {
	k := key(jobID, outputName)
	err := withRetry(ctx, func() error {
		pipe := b.rdb.TxPipeline()
		pipe.Set(ctx, k, data, 0)
		if b.opts.HasExpiration {
			pipe.Expire(ctx, k, b.opts.ExpirationTime)
		}
		_, e := pipe.Exec(ctx)
		return e
	})
	if err != nil {
		return "", 0, err
	}
	return k, int64(len(data)), nil
}

func (b *Backend) GetJobResult(ctx context.Context, jobID, outputName string) (resultbackend.ResultReader, error) {
	k := key(jobID, outputName)
	var size int64
	err := withRetry(ctx, func() error {
		var e error
		size, e = b.rdb.StrLen(ctx, k).Result()
		return e
	})
	if err != nil {
		return nil, err
	}
	if size == 0 {
		exists, err := b.rdb.Exists(ctx, k).Result()
		if err != nil {
			return nil, errs.Wrap(errs.KindBackend, "redis exists failed", err)
		}
		if exists == 0 {
			return nil, errs.New(errs.KindNotFound, "no result "+outputName+" for job "+jobID)
		}
	}
	return &reader{ctx: ctx, rdb: b.rdb, key: k, size: size}, nil
}

// reader implements resultbackend.ResultReader over a Redis string
// value via GETRANGE.
type reader struct {
	ctx    context.Context
	rdb    *goredis.Client
	key    string
	offset int64
	size   int64
}

func (r *reader) Read(p []byte) (int, error) {
	if r.offset >= r.size {
		return 0, io.EOF
	}
	end := r.offset + int64(len(p)) - 1
	if end >= r.size {
		end = r.size - 1
	}
	var data string
	err := withRetry(r.ctx, func() error {
		var e error
		data, e = r.rdb.GetRange(r.ctx, r.key, r.offset, end).Result()
		return e
	})
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	r.offset += int64(n)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (r *reader) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		r.offset = offset
	case io.SeekCurrent:
		r.offset += offset
	case io.SeekEnd:
		r.offset = r.size + offset
	default:
		return 0, errors.New("invalid whence")
	}
	return r.offset, nil
}

func (r *reader) Size(ctx context.Context) (int64, error) { return r.size, nil }

func (r *reader) Close() error { return nil }
