package auth

import "strings"

// NormalizeUsername strips a domain suffix some front ends (FTP bridges in
// particular) append to the user name: everything from the first '@' on is
// dropped. Names without '@' are returned unchanged.
func NormalizeUsername(raw string) string {
	if i := strings.IndexByte(raw, '@'); i >= 0 {
		return raw[:i]
	}
	return raw
}
