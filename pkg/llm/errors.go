package llm

import (
	"errors"
	"fmt"
)

// ErrContentFilter is matched by errors.Is for every ContentFilterError
var ErrContentFilter = errors.New("content rejected by provider content filter")

// ContentFilterError reports that the model provider refused to produce content
// because its own content filter triggered.
type ContentFilterError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ContentFilterError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Provider, ErrContentFilter.Error())
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, ErrContentFilter.Error(), e.Message)
}

func (e *ContentFilterError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrContentFilter) true
func (e *ContentFilterError) Is(target error) bool {
	return target == ErrContentFilter
}

// IsContentFilter reports whether err is, or wraps, a content filter rejection
func IsContentFilter(err error) bool {
	return errors.Is(err, ErrContentFilter)
}
