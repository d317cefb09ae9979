// Package platform selects a concrete PlatformClient backend by kind.
package platform

import (
	"fmt"
	"time"

	"github.com/squadctf/ctfsync/internal/adapter/driven/ctfd"
	"github.com/squadctf/ctfsync/internal/adapter/driven/rctf"
	"github.com/squadctf/ctfsync/internal/domain/model"
	"github.com/squadctf/ctfsync/internal/domain/port/driven"
)

// NewClient constructs the backend for the given platform kind. The kind is
// fixed at competition creation and never switched afterwards.
func NewClient(kind model.PlatformKind, baseURL string, timeout time.Duration) (driven.PlatformClient, error) {
	switch kind {
	case model.PlatformCTFd:
		return ctfd.NewClient(baseURL, timeout), nil
	case model.PlatformRCTF:
		return rctf.NewClient(baseURL, timeout), nil
	default:
		return nil, fmt.Errorf("%w: unsupported platform kind %q", model.ErrNoPlatform, kind)
	}
}
