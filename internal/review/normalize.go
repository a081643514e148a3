package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrEmptyResponse is returned by Normalize for blank model output.
var ErrEmptyResponse = errors.New("model returned an empty response")

// errNoKnownKeys rejects JSON objects that carry none of the result collections.
var errNoKnownKeys = errors.New("object has none of issues, simplifications, deferred, observations")

// prefixLimit bounds the raw text quoted in a MalformedResponseError.
const prefixLimit = 200

// MalformedResponseError reports model output that could not be parsed.
type MalformedResponseError struct {
	// Prefix is the start of the raw text.
	Prefix string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v (response starts: %q)", e.Err, e.Prefix)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Normalize parses raw model output into a Result. Bare JSON is tried first;
// on failure a surrounding markdown fence is stripped and the parse retried
// once.
func Normalize(raw string) (Result, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Result{}, ErrEmptyResponse
	}

	res, err := parseResult(trimmed)
	if err == nil {
		return res, nil
	}
	if inner := ExtractFromFence(trimmed); inner != trimmed {
		res, err = parseResult(inner)
		if err == nil {
			return res, nil
		}
	}
	return Result{}, &MalformedResponseError{Prefix: truncate(trimmed, prefixLimit), Err: err}
}

// ExtractFromFence strips a leading ``` or ```json line and a trailing ```
// line. Input that does not start with a fence is returned unchanged.
func ExtractFromFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	nl := strings.IndexByte(t, '\n')
	if nl < 0 {
		// single line: ```json {...}```
		t = strings.TrimPrefix(t, "```")
		t = strings.TrimPrefix(t, "json")
		t = strings.TrimSuffix(t, "```")
		return strings.TrimSpace(t)
	}
	body := t[nl+1:]
	if end := strings.LastIndex(body, "```"); end >= 0 && strings.TrimSpace(body[end+3:]) == "" {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

var resultKeys = []string{"issues", "simplifications", "deferred", "observations"}

func parseResult(text string) (Result, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return Result{}, err
	}
	if obj == nil {
		return Result{}, errors.New("response is null")
	}
	found := false
	for _, k := range resultKeys {
		if _, ok := obj[k]; ok {
			found = true
			break
		}
	}
	if !found {
		return Result{}, errNoKnownKeys
	}

	var res Result
	var err error
	if res.Issues, err = decodeItems(obj["issues"]); err != nil {
		return Result{}, fmt.Errorf("issues: %w", err)
	}
	if res.Simplifications, err = decodeItems(obj["simplifications"]); err != nil {
		return Result{}, fmt.Errorf("simplifications: %w", err)
	}
	if res.Deferred, err = decodeItems(obj["deferred"]); err != nil {
		return Result{}, fmt.Errorf("deferred: %w", err)
	}
	if res.Observations, err = decodeObservations(obj["observations"]); err != nil {
		return Result{}, fmt.Errorf("observations: %w", err)
	}
	return res, nil
}

func decodeItems(raw json.RawMessage) ([]Item, error) {
	items := []Item{}
	if len(raw) == 0 || string(raw) == "null" {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// decodeObservations accepts strings, and objects shaped like Item which are
// flattened to "title: summary".
func decodeObservations(raw json.RawMessage) ([]string, error) {
	out := []string{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	for _, e := range elems {
		var s string
		if err := json.Unmarshal(e, &s); err == nil {
			out = append(out, s)
			continue
		}
		var it Item
		if err := json.Unmarshal(e, &it); err != nil {
			return nil, fmt.Errorf("observation must be a string: %w", err)
		}
		switch {
		case it.Title != "" && it.Summary != "":
			out = append(out, it.Title+": "+it.Summary)
		case it.Title != "":
			out = append(out, it.Title)
		default:
			out = append(out, it.Summary)
		}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
