// Package devpath implements the slash-separated path algebra used to key
// nodes in the device tree. Paths have an optional leading slash; the empty
// path denotes the tree root.
package devpath

import "strings"

// Split breaks p into its first segment (Head) and the remainder (Tail).
// A leading slash on p is stripped before splitting. If p (after stripping)
// contains no further slash, Tail is empty. Split("") returns ("", "").
func Split(p string) (head, tail string) {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "", ""
	}
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i], strings.TrimPrefix(p[i+1:], "/")
	}
	return p, ""
}

// Join is the inverse of Split for a single step: it reconstructs a path
// from a head and tail, omitting the separator when tail is empty.
func Join(head, tail string) string {
	if tail == "" {
		return head
	}
	return head + "/" + tail
}

// CommonHead reports whether a and b share the same first segment, and
// returns that segment along with each path's remaining tail.
func CommonHead(a, b string) (head, tailA, tailB string, shared bool) {
	ha, ta := Split(a)
	hb, tb := Split(b)
	if ha == "" || ha != hb {
		return "", "", "", false
	}
	return ha, ta, tb, true
}
