package event

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sync"
)

// Publisher delivers envelopes to a bus.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, env Envelope) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// PublishAll publishes envs in order, stopping at the first error.
func PublishAll(ctx context.Context, pub Publisher, envs []Envelope) error {
	for i, env := range envs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := pub.Publish(ctx, env); err != nil {
			return fmt.Errorf("publish %s (run=%s, #%d): %w", env.Topic, env.RunID, i, err)
		}
	}
	return nil
}

// MemoryPublisher records envelopes in memory. Safe for concurrent use.
type MemoryPublisher struct {
	mu   sync.Mutex
	envs []Envelope
}

// Publish records env.
func (p *MemoryPublisher) Publish(_ context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return nil
}

// Envelopes returns a copy of everything published so far.
func (p *MemoryPublisher) Envelopes() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.envs)
}

// Topic returns published envelopes for one topic.
func (p *MemoryPublisher) Topic(t Topic) []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Envelope
	for _, env := range p.envs {
		if env.Topic == t {
			out = append(out, env)
		}
	}
	return out
}

// WriterPublisher writes one JSON object per line.
type WriterPublisher struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriterPublisher creates a publisher writing JSON lines to w.
func NewWriterPublisher(w io.Writer) *WriterPublisher {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &WriterPublisher{enc: enc}
}

// Publish writes env as a single line.
func (p *WriterPublisher) Publish(_ context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enc.Encode(env); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

// Multi fans out to several publishers in order.
func Multi(pubs ...Publisher) Publisher {
	return PublisherFunc(func(ctx context.Context, env Envelope) error {
		for _, p := range pubs {
			if err := p.Publish(ctx, env); err != nil {
				return err
			}
		}
		return nil
	})
}
