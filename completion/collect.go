package completion

import (
	"fmt"
	"strings"
)

// Collect drains the stream, forwarding every fragment to sink, and returns
// the concatenated answer. The stream is always closed before returning.
// On error the partial answer is returned alongside it.
func Collect(s Stream, sink func(string) error) (string, error) {
	defer s.Close()

	var answer strings.Builder
	for s.Next() {
		fragment := s.Text()
		answer.WriteString(fragment)
		if sink == nil {
			continue
		}
		if err := sink(fragment); err != nil {
			return answer.String(), fmt.Errorf("fail to deliver fragment: %w", err)
		}
	}
	if err := s.Err(); err != nil {
		return answer.String(), err
	}
	return answer.String(), nil
}
