package chatview

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks ids generated on the client for optimistic messages.
const TempIDPrefix = "temp-"

// NewTempID returns a temporary message id built from now and a random
// suffix: temp-<unix millis base36>-<8 hex chars>. The result only contains
// characters accepted as an Idempotency-Key.
func NewTempID(now time.Time) string {
	rnd := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return TempIDPrefix + strconv.FormatInt(now.UnixMilli(), 36) + "-" + rnd
}

// IsTempID reports whether id was produced by NewTempID.
func IsTempID(id string) bool { return strings.HasPrefix(id, TempIDPrefix) }
