// Package output renders a review report.
//
// Three formats are supported: markdown (the default, one section per file),
// text (a compact terminal summary styled with lipgloss), and json (the full
// report). [WriteReport] writes to a file when a path is given and to stdout
// otherwise.
package output
