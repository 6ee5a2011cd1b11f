package threadloop

import "context"

// PollSource is the minimal Go-native stand-in for the original's
// loop-context file-descriptor/timer multiplexer (design note §9: the
// "Loop context" glossary entry). Poll blocks until an external wakeup
// arrives or ctx is cancelled (worker shutdown via Stop); a real
// embedding could implement this over epoll/kqueue timers instead.
type PollSource interface {
	Poll(ctx context.Context) error
}

// Waker is implemented by a PollSource that can be woken from outside
// the blocking Poll call; ThreadLoop.Schedule uses it to make a queued
// closure visible to the worker without a separate signalling channel.
type Waker interface {
	Wakeup()
}

// ChannelPoll is the default PollSource: a buffered wakeup channel. It
// has no notion of timers; a host that needs periodic dispatch should
// wrap this or supply its own PollSource.
type ChannelPoll struct {
	wake chan struct{}
}

// NewChannelPoll constructs a ready-to-use ChannelPoll.
func NewChannelPoll() *ChannelPoll {
	return &ChannelPoll{wake: make(chan struct{}, 1)}
}

// Poll implements PollSource.
func (p *ChannelPoll) Poll(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.wake:
		return nil
	}
}

// Wakeup implements Waker.
func (p *ChannelPoll) Wakeup() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}
