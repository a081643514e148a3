// Package redact scrubs file content before it is sent to the model server.
//
// Two layers apply. Path policy replaces the whole content of files that
// should never leave the machine (.env files, private keys, SSH identities,
// git config). Secret scanning replaces regex matches for common credential
// shapes with [REDACTED].
package redact
