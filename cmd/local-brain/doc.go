// Local-brain is a CLI for reviewing source files with models served by a
// local Ollama instance.
//
// It resolves a model from --model, --task, MODEL_NAME or the models.json
// default, swaps slow models for a fast one on multi-file batches, and prints
// a markdown review per file.
//
// Usage:
//
//	local-brain --files main.go,util.go          # review specific files
//	local-brain --dir src --pattern "*.{go,rs}"   # review a directory
//	local-brain --git-diff --task quick-review    # review changed files
//	local-brain --files a.go --runs 3 --validation-mode
//	local-brain models doctor                     # check Ollama and the model
package main
