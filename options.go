package spsc

import "github.com/joeycumines/go-spsc/internal/queue"

// packetOptions holds configuration for the StreamPacket constructor.
type packetOptions struct {
	queueChunkSize int
}

func defaultPacketOptions() packetOptions {
	return packetOptions{
		queueChunkSize: queue.DefaultChunkSize,
	}
}

// Option configures a packet at construction time.
type Option interface {
	apply(*packetOptions)
}

type optionFunc func(*packetOptions)

func (f optionFunc) apply(o *packetOptions) { f(o) }

// WithQueueChunkSize overrides the Stream packet's queue chunk size (§6.B
// fixes this at 128 by design; this exists so embedders are not forced to
// fork the package to tune it, the same rationale eventloop's options.go
// gives for its own tunables). NewOneshotPacket takes no options, since a
// OneshotPacket carries no queue.
func WithQueueChunkSize(n int) Option {
	return optionFunc(func(o *packetOptions) {
		if n > 0 {
			o.queueChunkSize = n
		}
	})
}

func resolveOptions(opts []Option) packetOptions {
	cfg := defaultPacketOptions()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(&cfg)
	}
	return cfg
}
