// Package registry loads the model registry document (models.json).
//
// The registry lists known models with a coarse speed class, maps task labels
// such as "security" or "quick-review" to concrete model names, and names a
// default model. A [Registry] is immutable once parsed; [Loader] performs the
// one side-effecting step (locating and reading the file) and caches the first
// successful result.
//
// Search order when no explicit path is configured:
//  1. ./models.json (current working directory)
//  2. models.json next to the running executable
package registry
