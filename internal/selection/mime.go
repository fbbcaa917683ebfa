// SPDX-License-Identifier: MPL-2.0

package selection

import "strings"

// mimeMatch reports whether a concrete media type satisfies an accepted
// pattern. Patterns may be exact ("image/png"), subtype wildcards
// ("image/*"), or the full wildcard ("*/*"). Any media type parameters on
// either side are ignored; comparison is case-insensitive per RFC 2045.
func mimeMatch(pattern, format string) bool {
	pType, pSub := splitMime(pattern)
	fType, fSub := splitMime(format)
	if pType != "*" && pType != fType {
		return false
	}
	if pSub != "*" && pSub != fSub {
		return false
	}
	return true
}

// splitMime returns the lowercased type and subtype of a media type string,
// stripping parameters. A missing subtype is treated as the wildcard.
func splitMime(mime string) (string, string) {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	typ, sub, ok := strings.Cut(mime, "/")
	if !ok {
		return typ, "*"
	}
	return typ, sub
}
