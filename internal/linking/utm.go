package linking

import (
	"fmt"
	"net/url"
)

// MergeUTM appends params to rawURL's query string. Existing parameters are
// kept; when a key already exists the value from params replaces it.
func MergeUTM(rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse link url: %w", err)
	}
	if len(params) == 0 {
		return u.String(), nil
	}
	q := u.Query()
	for k, v := range params {
		if k == "" {
			continue
		}
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
