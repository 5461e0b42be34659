package trigger

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel kicks travel on.
const DefaultChannel = "prism:projector:kick"

// RedisBus fans kicks out across horizontally scaled workers via Redis
// pub/sub, so an ingest on any instance wakes a projector somewhere without
// the instances knowing about each other.
type RedisBus struct {
	rdb     redis.UniversalClient
	channel string
	pubsub  *redis.PubSub
	kicks   chan struct{}
	done    chan struct{}
}

// NewRedisBus creates a bus on the given channel (empty uses
// DefaultChannel) and starts the subscriber.
func NewRedisBus(ctx context.Context, rdb redis.UniversalClient, channel string) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}

	b := &RedisBus{
		rdb:     rdb,
		channel: channel,
		pubsub:  rdb.Subscribe(ctx, channel),
		kicks:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	go b.forward()

	return b
}

// forward drains the subscription into the coalescing kick channel.
func (b *RedisBus) forward() {
	ch := b.pubsub.Channel()
	for {
		select {
		case <-b.done:
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			select {
			case b.kicks <- struct{}{}:
			default:
			}
		}
	}
}

// Kick implements Bus.
func (b *RedisBus) Kick(ctx context.Context) error {
	if err := b.rdb.Publish(ctx, b.channel, "kick").Err(); err != nil {
		return fmt.Errorf("trigger: publish kick: %w", err)
	}
	return nil
}

// Kicks implements Bus.
func (b *RedisBus) Kicks() <-chan struct{} { return b.kicks }

// Close implements Bus.
func (b *RedisBus) Close() error {
	close(b.done)
	return b.pubsub.Close()
}
