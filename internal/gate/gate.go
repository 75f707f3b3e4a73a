package gate

import "strings"

// restrictedPrefixes are browser-internal schemes whose content cannot be read.
var restrictedPrefixes = []string{
	"chrome://",
	"chrome-extension://",
	"devtools://",
	"edge://",
	"about:",
	"chrome-search://",
}

// IsRestricted reports whether url points at a page the host cannot inspect.
// The test is a case-sensitive prefix match on the url as given.
func IsRestricted(url string) bool {
	for _, p := range restrictedPrefixes {
		if strings.HasPrefix(url, p) {
			return true
		}
	}
	return false
}

func RestrictedPrefixes() []string {
	out := make([]string, len(restrictedPrefixes))
	copy(out, restrictedPrefixes)
	return out
}
