package audit

import (
	"context"
	"errors"
)

// MultiAppender writes each entry to every appender. An entry that fails on
// one sink is still attempted on the rest; the joined error reports all
// failures.
type MultiAppender []Appender

// Append fans the entry out to all appenders.
func (m MultiAppender) Append(ctx context.Context, entry *Entry) error {
	var errs []error
	for _, a := range m {
		if err := a.Append(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Appender = (MultiAppender)(nil)
