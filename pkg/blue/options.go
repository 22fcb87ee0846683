package blue

import (
	"log/slog"

	"github.com/samcharles93/bluefile/internal/logger"
)

// DefaultBlockSize is the number of bytes read or written per block.
const DefaultBlockSize = 16 * 1024

// ExtendedHeaderMode selects how the extended header is returned by reads.
type ExtendedHeaderMode int

const (
	// ExtNone skips the extended header except for keywords the data
	// section itself needs (SUBREC_DEF, T4INDEX).
	ExtNone ExtendedHeaderMode = iota
	// ExtFlat returns keywords as an ordered tag/value list; structure
	// markers stay visible.
	ExtFlat
	// ExtStructured folds structure markers into nested values.
	ExtStructured
)

// Option configures a single read or write call. Options that do not apply
// to a call are ignored.
type Option func(*options)

type options struct {
	hasRange   bool
	start, end int64
	hasFrames  bool
	fstart     int
	fend       int

	blockSize int
	policy    StringPolicy
	ext       ExtendedHeaderMode
	deriveT6  bool

	appendData bool
	noTruncate bool
	atElement  int64
	structured bool

	log        logger.Logger
	resolver   DetachedResolver
	detachName string
}

func newOptions(opts []Option) *options {
	o := &options{
		blockSize: DefaultBlockSize,
		policy:    DefaultStringPolicy,
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithRange trims reads to elements start..end, 1-based and inclusive. An
// end of 0 reads to the last element.
func WithRange(start, end int64) Option {
	return func(o *options) {
		o.hasRange, o.start, o.end = true, start, end
	}
}

// WithFrames trims each class 2 frame to atoms fstart..fend, 1-based and
// inclusive. An fend of 0 keeps the rest of the frame.
func WithFrames(fstart, fend int) Option {
	return func(o *options) {
		o.hasFrames, o.fstart, o.fend = true, fstart, fend
	}
}

// WithBlockSize sets the I/O block size. It is rounded down to a whole
// scalar before use.
func WithBlockSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.blockSize = n
		}
	}
}

// WithStringPolicy sets how fixed-width strings are trimmed.
func WithStringPolicy(p StringPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithExtendedHeader makes reads return the extended header.
func WithExtendedHeader(mode ExtendedHeaderMode) Option {
	return func(o *options) { o.ext = mode }
}

// WithDerivedSubrecordOffsets decodes class 6 rows using offsets summed from
// subrecord widths instead of the offsets stored in SUBREC_DEF.
func WithDerivedSubrecordOffsets() Option {
	return func(o *options) { o.deriveT6 = true }
}

// WithAppend appends data to an existing file instead of replacing it.
func WithAppend() Option {
	return func(o *options) { o.appendData = true }
}

// WithNoTruncate keeps bytes past the written data instead of truncating.
func WithNoTruncate() Option {
	return func(o *options) { o.noTruncate = true }
}

// WithStartElement writes appended data over the file starting at element n
// (1-based) rather than after the last element.
func WithStartElement(n int64) Option {
	return func(o *options) { o.atElement = n }
}

// WithStructuredKeywords writes nested keyword values as structured keywords.
func WithStructuredKeywords() Option {
	return func(o *options) { o.structured = true }
}

// WithLogger routes codec warnings to l.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = logger.FromSlog(l) }
}

// WithDetachedResolver locates detached data held in external storage areas.
func WithDetachedResolver(r DetachedResolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithDetachName overrides the detached data path.
func WithDetachName(name string) Option {
	return func(o *options) { o.detachName = name }
}
