package download

import (
	"context"
	"io"
)

type readResult struct {
	n   int
	err error
}

// ContextRead calls r.Read() with respect to the given context. If the
// context finishes first, the in-flight read is abandoned to its goroutine.
func ContextRead(ctx context.Context, r io.Reader, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ch := make(chan readResult, 1)
	go func() {
		n, err := r.Read(p)
		ch <- readResult{n, err}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		return res.n, res.err
	}
}

// ContextReader is an io.Reader that stops reading once its context is done.
type ContextReader struct {
	ctx context.Context
	r   io.Reader
}

func NewContextReader(ctx context.Context, r io.Reader) *ContextReader {
	return &ContextReader{
		ctx: ctx,
		r:   r,
	}
}

// Read implements io.Reader#Read(), respecting the ContextReader's embedded
// context.
func (cr *ContextReader) Read(p []byte) (int, error) {
	return ContextRead(cr.ctx, cr.r, p)
}
