package epoll

import "github.com/joeycumines/logiface"

// Option configures an Instance at Create.
type Option func(*options)

type options struct {
	log        *logiface.Logger[logiface.Event]
	interrupts bool
}

// WithLogger sets the logger used for debug output. A nil logger, the
// default, disables logging.
func WithLogger(log *logiface.Logger[logiface.Event]) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithInterrupts makes Wait return ErrInterrupted when the kernel reports
// EINTR, instead of retrying with the remaining timeout. Go programs receive
// runtime signals routinely, so the default is to retry.
func WithInterrupts() Option {
	return func(o *options) {
		o.interrupts = true
	}
}

func resolveOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
