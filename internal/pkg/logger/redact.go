package logger

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	urlRegex   = regexp.MustCompile(`https?://[^\s"'<>]+`)
)

// secretParams are query keys whose values are masked in logged URLs.
var secretParams = []string{"token", "key", "secret", "sig", "signature", "api_key", "apikey", "password"}

func redactValue(key, val string) string {
	key = strings.ToLower(key)
	if strings.Contains(key, "email") {
		return RedactEmail(val)
	}
	val = urlRegex.ReplaceAllStringFunc(val, RedactURL)
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactURL masks credential-looking query values and any userinfo.
// "https://x.com/p?api_key=abc&tag=aff" → "https://x.com/p?api_key=***&tag=aff"
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	changed := false
	if u.User != nil {
		u.User = url.User("***")
		changed = true
	}
	q := u.Query()
	for k := range q {
		if isSecretParam(k) {
			q.Set(k, "***")
			changed = true
		}
	}
	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func isSecretParam(k string) bool {
	k = strings.ToLower(k)
	for _, s := range secretParams {
		if k == s || strings.HasSuffix(k, "_"+s) {
			return true
		}
	}
	return false
}
