// Package discovery turns a CLI mode into an ordered list of file paths.
//
// Three modes are supported: an explicit comma-separated list, a recursive
// directory walk filtered by a name pattern, and the set of files changed in
// the git index or working tree. Order is deterministic and duplicates are
// removed, first occurrence wins.
package discovery
