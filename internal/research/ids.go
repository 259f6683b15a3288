package research

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const sessionIDLayout = "20060102_150405"

// sessionIDPattern accepts RS_YYYYMMDD_HHMMSS with an optional six-hex suffix.
// IDs without the suffix were issued before same-second collisions were handled.
var sessionIDPattern = regexp.MustCompile(`^RS_\d{8}_\d{6}(_[0-9a-f]{6})?$`)

// NewSessionID returns a sortable session identifier for a session created at now.
func NewSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("RS_%s_%s", now.Format(sessionIDLayout), suffix)
}

// ValidSessionID reports whether id is a well-formed session identifier.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// Sanitize turns a display name into a path segment. Characters other than
// ASCII letters, digits, underscores, hyphens and whitespace are dropped, then
// each run of hyphens and whitespace collapses into a single underscore.
//
//	Sanitize("Growth Trends!!") == "Growth_Trends"
//
// An empty result means the name cannot be used as a path segment.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	inRun := false
	for _, r := range name {
		switch {
		case r == '-' || unicode.IsSpace(r):
			inRun = true
		case r == '_' || isASCIIAlnum(r):
			if inRun {
				b.WriteByte('_')
				inRun = false
			}
			b.WriteRune(r)
		}
	}
	if inRun {
		b.WriteByte('_')
	}
	return b.String()
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
