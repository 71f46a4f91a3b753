package resource

import (
	"fmt"
	"sync"

	"github.com/oriath-net/gooz"
)

// BlockCodec creates decompression contexts for a vendor block codec.
type BlockCodec interface {
	NewContext() (BlockContext, error)
}

// BlockContext is one decompression context. A context is used by a single
// goroutine at a time and reset between payloads.
type BlockContext interface {
	Reset() error
	Decompress(src, dst []byte) (int, error)
	Close() error
}

// GoozCodec decodes Oodle Kraken, Mermaid, Selkie and Leviathan blocks.
type GoozCodec struct{}

func (GoozCodec) NewContext() (BlockContext, error) {
	return goozContext{}, nil
}

// gooz keeps no state between calls, so a context only needs to exist.
type goozContext struct{}

func (goozContext) Reset() error { return nil }

func (goozContext) Decompress(src, dst []byte) (int, error) {
	n, err := gooz.Decompress(src, dst)
	if err != nil {
		return n, fmt.Errorf("oodle decompress: %w", err)
	}
	return n, nil
}

func (goozContext) Close() error { return nil }

// contextPool manages reusable block contexts to avoid per-payload setup.
type contextPool struct {
	codec BlockCodec
	pool  sync.Pool
}

func newContextPool(codec BlockCodec) *contextPool {
	return &contextPool{codec: codec}
}

// get returns a context and a release function the caller must call when done.
// If an error is returned, no release function needs to be called.
func (p *contextPool) get() (BlockContext, func(), error) {
	if v := p.pool.Get(); v != nil {
		if ctx, ok := v.(BlockContext); ok {
			if err := ctx.Reset(); err == nil {
				return ctx, p.releaser(ctx), nil
			}
			_ = ctx.Close()
		}
	}

	ctx, err := p.codec.NewContext()
	if err != nil {
		return nil, nil, fmt.Errorf("creating block context: %w", err)
	}
	return ctx, p.releaser(ctx), nil
}

func (p *contextPool) releaser(ctx BlockContext) func() {
	return func() {
		if err := ctx.Reset(); err != nil {
			_ = ctx.Close()
			return
		}
		p.pool.Put(ctx)
	}
}
