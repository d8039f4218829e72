package utils

import (
	"net/url"
	"path"
)

// PathExtension returns the extension of the URL path including the dot,
// ignoring query and fragment. It is empty when the path has none.
func PathExtension(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return path.Ext(u.Path)
}

func IsAbsoluteURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}

// Redact drops the query string and userinfo so signed enclosure links
// can be logged.
func Redact(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return urlStr // return original URL in case of error
	}

	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = ""
		return u.String() + "?…"
	}
	return u.String()
}
