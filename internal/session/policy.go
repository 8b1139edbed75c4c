package session

import (
	"fmt"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/mqfetch/internal/errors"
	"github.com/Iron-Ham/mqfetch/internal/protocol"
	"github.com/Iron-Ham/mqfetch/internal/util"
)

// Default policy limits.
const (
	DefaultMinPriority = 1
	DefaultMaxPriority = 20
	DefaultChunkSize   = protocol.MaxChunkSize
)

// Policy decides which requests a worker serves and how it streams them.
type Policy struct {
	MinPriority  int
	MaxPriority  int
	ChunkSize    int
	AllowedPaths []string

	matchers []glob.Glob
}

// NewPolicy compiles the allowed path patterns. An empty pattern list allows
// every path. Patterns use '/' as the separator, so '*' stays within one
// directory and '**' crosses directories.
func NewPolicy(minPriority, maxPriority, chunkSize int, allowedPaths []string) (*Policy, error) {
	if minPriority > maxPriority {
		return nil, errors.NewValidationError("minimum priority exceeds maximum").
			WithField("min_priority").WithValue(minPriority)
	}
	if chunkSize <= 0 || chunkSize > protocol.MaxChunkSize {
		return nil, errors.NewValidationError(fmt.Sprintf("chunk size must be between 1 and %d", protocol.MaxChunkSize)).
			WithField("chunk_size").WithValue(chunkSize)
	}

	p := &Policy{
		MinPriority:  minPriority,
		MaxPriority:  maxPriority,
		ChunkSize:    chunkSize,
		AllowedPaths: allowedPaths,
	}
	for _, pattern := range allowedPaths {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.NewValidationError("invalid allowed path pattern").
				WithField("allowed_paths").WithValue(pattern).WithCause(err)
		}
		p.matchers = append(p.matchers, g)
	}
	return p, nil
}

// DefaultPolicy accepts priorities 1 through 20 on any path.
func DefaultPolicy() *Policy {
	return &Policy{
		MinPriority: DefaultMinPriority,
		MaxPriority: DefaultMaxPriority,
		ChunkSize:   DefaultChunkSize,
	}
}

// CheckPriority reports ErrInvalidPriority for values outside the range.
func (p *Policy) CheckPriority(priority int) error {
	if priority < p.MinPriority || priority > p.MaxPriority {
		return errors.ErrInvalidPriority
	}
	return nil
}

// Allowed reports whether path matches one of the allowed patterns.
func (p *Policy) Allowed(path string) bool {
	if len(p.matchers) == 0 {
		return true
	}
	for _, g := range p.matchers {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// chunkSize clamps the configured size to the protocol limit.
func (p *Policy) chunkSize() int {
	if p.ChunkSize <= 0 || p.ChunkSize > protocol.MaxChunkSize {
		return protocol.MaxChunkSize
	}
	return p.ChunkSize
}

// Notices sent to clients. Each ends with a newline because clients print
// them verbatim.

func (p *Policy) invalidPriorityNotice() string {
	return notice("invalid priority; %d <= priority <= %d", p.MinPriority, p.MaxPriority)
}

func accessDeniedNotice(path string) string {
	return notice("access denied: %s", path)
}

func openFailedNotice(err error) string {
	return notice("failed to open file: %v", err)
}

func priorityFailedNotice(err error) string {
	return notice("failed to set priority: %v", err)
}

func readFailedNotice(err error) string {
	return notice("failed to read file: %v", err)
}

// notice formats a line that fits in a single PrintNotice. Long paths in
// the message are cut short rather than dropping the newline.
func notice(format string, args ...any) string {
	return util.TruncateBytes(fmt.Sprintf(format, args...), protocol.MaxNoticeLen-1) + "\n"
}
