// Package gitctx queries the local git repository.
//
// It shells out to git to list files changed in the index (staged) or the
// working tree (unstaged), filtered to added, copied, modified, and renamed
// entries, and to collect repository metadata for report headers.
package gitctx
