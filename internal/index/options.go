package index

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/site-search/internal/clock/system"
	"github.com/JakeFAU/site-search/internal/crawler"
	"github.com/JakeFAU/site-search/internal/hash/sha256"
)

// Option customizes an Inverted index.
type Option func(*options)

type options struct {
	tokenizer *Tokenizer
	logger    *zap.Logger
	clock     crawler.Clock
	hasher    crawler.Hasher
	prefix    string
}

func defaultOptions() options {
	return options{
		tokenizer: NewTokenizer(nil),
		logger:    zap.NewNop(),
		clock:     system.New(),
		hasher:    sha256.New(),
		prefix:    "indexes",
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithStopwords replaces the English stopword list. Passing no words disables
// stopword removal.
func WithStopwords(words ...string) Option {
	return func(o *options) {
		if words == nil {
			words = []string{}
		}
		o.tokenizer = NewTokenizer(words)
	}
}

// WithTokenizer shares an existing tokenizer.
func WithTokenizer(t *Tokenizer) Option {
	return func(o *options) {
		if t != nil {
			o.tokenizer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the clock used to stamp builds.
func WithClock(clock crawler.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithHasher overrides the snapshot digest.
func WithHasher(hasher crawler.Hasher) Option {
	return func(o *options) {
		if hasher != nil {
			o.hasher = hasher
		}
	}
}

// WithSnapshotPrefix sets the key prefix snapshots are stored under.
func WithSnapshotPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}
