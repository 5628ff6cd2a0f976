package llm

import "errors"

// ErrNoJSON indicates the model response contained no parseable JSON object.
var ErrNoJSON = errors.New("no JSON object found in response")
