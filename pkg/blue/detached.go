package blue

import (
	"fmt"
	"path/filepath"
	"strings"
)

const detachedExt = ".det"

// DetachedResolver maps a header in an external storage area (detached > 1)
// to the path of its data file.
type DetachedResolver interface {
	Resolve(headerPath string, detached int32) (string, error)
}

// ResolverFunc adapts a function to DetachedResolver.
type ResolverFunc func(headerPath string, detached int32) (string, error)

func (f ResolverFunc) Resolve(headerPath string, detached int32) (string, error) {
	return f(headerPath, detached)
}

// SiblingPath returns the detached data path next to a header file.
func SiblingPath(headerPath string) string {
	return strings.TrimSuffix(headerPath, filepath.Ext(headerPath)) + detachedExt
}

// detachedPath resolves where h keeps its data. An empty path with a nil
// error means the data is embedded in the header file.
func detachedPath(headerPath string, h *Header, o *options) (string, error) {
	switch {
	case h.Detached == 0:
		return "", nil
	case o.detachName != "":
		return o.detachName, nil
	case h.Detached == 1 || h.Detached == -1:
		return SiblingPath(headerPath), nil
	case o.resolver != nil:
		p, err := o.resolver.Resolve(headerPath, h.Detached)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrUnresolvedDetachedPath, err)
		}
		return p, nil
	default:
		return "", fmt.Errorf("%w: detached=%d for %s", ErrUnresolvedDetachedPath, h.Detached, headerPath)
	}
}
