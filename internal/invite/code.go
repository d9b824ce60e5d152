// Package invite mints the opaque tokens that identify one relay roster.
package invite

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const suffixLen = 6

// NewCode returns a short invite code: base36 creation time plus a random
// suffix. Codes are not guaranteed unique here; the caller persists under a
// unique index and retries on collision.
func NewCode() string {
	prefix := strconv.FormatInt(time.Now().Unix(), 36)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLen]
	return strings.ToUpper(prefix + suffix)
}
