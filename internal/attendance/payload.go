package attendance

import (
	"net/url"
	"strings"
	"unicode"
)

// ParseClassID extracts the class id from a scanned code: an absolute URL whose
// last path segment is the id.
func ParseClassID(payload string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(payload))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	path := u.Path
	i := strings.LastIndex(path, "/")
	id := path[i+1:]
	if id == "" || strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		return "", false
	}
	return id, true
}

// CodeURL is the payload encoded in a class's QR code.
func CodeURL(baseURL, classID string) string {
	return strings.TrimRight(baseURL, "/") + "/class/" + url.PathEscape(classID)
}

// MatchRoster finds the roster entry for studentID, first by exact match and
// then ignoring surrounding and inner whitespace on both sides.
func MatchRoster(roster []RosterEntry, studentID string) (RosterEntry, bool) {
	for _, r := range roster {
		if r.StudentID == studentID {
			return r, true
		}
	}
	trimmed := strings.TrimSpace(studentID)
	compact := stripSpace(studentID)
	for _, r := range roster {
		if strings.TrimSpace(r.StudentID) == trimmed || stripSpace(r.StudentID) == compact {
			return r, true
		}
	}
	return RosterEntry{}, false
}

// NormalizeStudentID is the comparison key used when merging roster and events.
func NormalizeStudentID(id string) string {
	return stripSpace(id)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
