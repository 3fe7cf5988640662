package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	t.Parallel()

	r := &Recorder{}
	ctx := context.Background()

	require.NoError(t, r.PublishEvent(ctx, TopicProduct, "p1", map[string]any{"type": "product_created", "stock": 5}))
	require.NoError(t, r.PublishEvent(ctx, TopicCart, "u1", map[string]any{"type": "cart_updated"}))
	require.NoError(t, r.PublishEvent(ctx, TopicProduct, "p1", map[string]any{"type": "product_updated"}))

	assert.Len(t, r.Events(), 3)
	assert.Equal(t, "product_updated", r.Last(TopicProduct)["type"])
	assert.EqualValues(t, 5, r.Events()[0].Event["stock"])
	assert.Nil(t, r.Last(TopicInvoice))

	r.Err = errors.New("down")
	assert.Error(t, r.PublishEvent(ctx, TopicUser, "u", map[string]any{}))
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.PublishEvent(context.Background(), TopicUser, "k", struct{}{}))
}

func TestProducer_MarshalError(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"})
	defer p.Close()

	err := p.PublishEvent(context.Background(), TopicProduct, "k", map[string]any{"bad": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal event")
}

func TestEmit_SwallowsErrors(t *testing.T) {
	rec := &Recorder{}
	Emit(context.Background(), rec, TopicProduct, "k", map[string]any{"type": "product_created"})
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, "product_created", rec.Last(TopicProduct)["type"])

	rec.Err = errors.New("broker down")
	Emit(context.Background(), rec, TopicProduct, "k", map[string]any{"type": "product_updated"})
	assert.Len(t, rec.Events(), 1)

	Emit(context.Background(), nil, TopicProduct, "k", map[string]any{"type": "ignored"})
}
