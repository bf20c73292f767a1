package export

import "strings"

const (
	// Separator joins an interface name and a function name.
	Separator = "#"
	// PostReturnPrefix prefixes the core symbol of a post-return hook.
	PostReturnPrefix = "cabi_post_"
)

// QualifiedName returns "iface#fn", or fn alone when iface is empty.
func QualifiedName(iface, fn string) string {
	if iface == "" {
		return fn
	}
	return iface + Separator + fn
}

// SplitName splits a qualified name at its last separator.
func SplitName(qualified string) (iface, fn string) {
	if i := strings.LastIndex(qualified, Separator); i >= 0 {
		return qualified[:i], qualified[i+1:]
	}
	return "", qualified
}

// PostReturnName returns the core symbol of the post-return hook paired
// with qualified.
func PostReturnName(qualified string) string {
	return PostReturnPrefix + qualified
}

// IsPostReturnSymbol reports whether symbol names a post-return hook and
// returns the qualified name it belongs to.
func IsPostReturnSymbol(symbol string) (string, bool) {
	if !strings.HasPrefix(symbol, PostReturnPrefix) || len(symbol) == len(PostReturnPrefix) {
		return "", false
	}
	return symbol[len(PostReturnPrefix):], true
}
