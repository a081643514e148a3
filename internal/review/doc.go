// Package review orchestrates model-backed reviews of source files.
//
// An [Orchestrator] walks an ordered list of paths through a per-file state
// machine: the model is selected, the prompt built, the backend invoked, and
// the reply normalized into a [Result] with four collections (issues,
// simplifications, deferred items, observations). A failure in any state is
// recorded as a [*FileError] on that file's [FileReport] and the batch
// continues.
//
// Multi-run mode repeats the pipeline per file and records every attempt as a
// [RunRecord]. Validation mode summarizes those runs and scores how
// consistently each item reappeared using fuzzy title matching.
//
// Model replies are untrusted. [Normalize] accepts bare JSON or JSON wrapped
// in a markdown fence, and reports anything else as a
// [*MalformedResponseError] carrying a bounded prefix of the raw text.
//
// Rules packs (rules.go) add focus areas and required checks to the prompt.
package review
