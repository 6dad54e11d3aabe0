package media

import "regexp"

// imgRef matches an img= parameter holding an absolute http(s) URL. The URL
// ends at the next '&', whitespace or quote.
var imgRef = regexp.MustCompile(`img=(https?://[^\s&"']+)`)

// ExtractImageURL returns the first img= URL embedded in an ad payload.
func ExtractImageURL(payload string) (string, bool) {
	m := imgRef.FindStringSubmatch(payload)
	if m == nil {
		return "", false
	}
	return m[1], true
}
