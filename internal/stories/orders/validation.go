package orders

import (
	"regexp"
)

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9._]{1,30}$`)
	postURLRe  = regexp.MustCompile(`^https?://(www\.)?(instagram\.com|instagr\.am)/p/([A-Za-z0-9_-]+)/?(\?.*)?$`)
)

func ValidUsername(username string) bool {
	return usernameRe.MatchString(username)
}

// ParsePostURL returns the post id of an Instagram post link.
func ParsePostURL(raw string) (string, bool) {
	m := postURLRe.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[3], true
}
