package expand

import (
	"fmt"
	"strings"
)

// UnknownPlaceholderError reports a "{name}" interpolation placeholder
// missing from the expansion context. This is an authoring error in the
// workflow definition and always propagates.
type UnknownPlaceholderError struct {
	Placeholder string
	Text        string
}

func (e *UnknownPlaceholderError) Error() string {
	return fmt.Sprintf("unknown placeholder {%s} in %q", e.Placeholder, e.Text)
}

// ExpansionLimitError reports loop expansion blowing past the step
// ceiling.
type ExpansionLimitError struct {
	Produced int
	Limit    int
}

func (e *ExpansionLimitError) Error() string {
	return fmt.Sprintf("loop expansion produced %d steps, exceeding the limit of %d", e.Produced, e.Limit)
}

// GroupMismatchError reports adjacent steps sharing a loop group whose
// iteration spaces differ. Interleaving requires identical spaces.
type GroupMismatchError struct {
	Group string
	Tools []string
}

func (e *GroupMismatchError) Error() string {
	return fmt.Sprintf("loop group %q: steps [%s] have mismatched iteration spaces", e.Group, strings.Join(e.Tools, ", "))
}
