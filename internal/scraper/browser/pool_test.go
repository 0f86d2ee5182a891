package browser

import (
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
)

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()
	assert.Equal(t, 3, cfg.MaxPages)
	assert.Equal(t, 60*time.Second, cfg.PageTimeout)
	assert.True(t, cfg.Headless)
}

func TestPool_AcquireClosed(t *testing.T) {
	p := &Pool{pagePool: make(chan *rod.Page), closed: true}

	_, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)

	_, err = p.Render(context.Background(), "https://example.com", "")
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_AcquireHonoursContext(t *testing.T) {
	p := &Pool{pagePool: make(chan *rod.Page)}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
