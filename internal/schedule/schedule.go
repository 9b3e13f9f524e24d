package schedule

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	appLog "slidecycle/internal/log"
	"slidecycle/internal/model"
)

// DateKey returns the 8 digit ISO date, year first: 20240115.
func DateKey(t time.Time) string {
	return t.Format("20060102")
}

// WeekKey returns "week" followed by the ISO week number, unpadded: week3.
func WeekKey(t time.Time) string {
	_, wk := t.ISOWeek()
	return fmt.Sprintf("week%d", wk)
}

// KeyFor derives the comparison key for t under the given mode.
func KeyFor(mode model.KeyMode, t time.Time) (string, error) {
	switch mode {
	case model.KeyDate:
		return DateKey(t), nil
	case model.KeyWeek:
		return WeekKey(t), nil
	default:
		return "", fmt.Errorf("schedule: unknown key mode %q", mode)
	}
}

// ErrMalformedLine is matched by every *MalformedLineError.
var ErrMalformedLine = errors.New("malformed schedule line")

// MalformedLineError reports a line that does not split into key=value.
type MalformedLineError struct {
	Line   int
	Text   string
	Fields int
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("schedule line %d: %q has %d field(s), want key=value", e.Line, e.Text, e.Fields)
}

func (e *MalformedLineError) Is(target error) bool {
	return target == ErrMalformedLine
}

// ParseLine strips trailing whitespace and splits on '='. Exactly two
// fields are required; nothing else about the content is checked.
func ParseLine(n int, line string) (model.Entry, error) {
	line = strings.TrimRightFunc(line, unicode.IsSpace)
	fields := strings.Split(line, "=")
	if len(fields) != 2 {
		return model.Entry{}, &MalformedLineError{Line: n, Text: line, Fields: len(fields)}
	}
	return model.Entry{Line: n, Key: fields[0], Value: fields[1]}, nil
}

// Scan reads r line by line and calls fn for every well-formed entry in
// file order. Malformed lines are logged and skipped under MalformedSkip;
// under MalformedAbort the first one stops the scan and is returned. An
// error from fn also stops the scan. Lines have no length limit, and a
// final line without a newline is still read.
func Scan(r io.Reader, policy model.MalformedPolicy, fn func(model.Entry) error) error {
	br := bufio.NewReader(r)
	n := 0
	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("schedule: read: %w", err)
		}
		if line == "" && err != nil {
			return nil
		}
		n++
		entry, perr := ParseLine(n, line)
		if perr != nil {
			if policy == model.MalformedAbort {
				return perr
			}
			appLog.Warn("skipping malformed schedule line", "line", n, "err", perr)
		} else {
			appLog.Debug("schedule entry", "line", n, "key", entry.Key, "value", entry.Value)
			if ferr := fn(entry); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			return nil
		}
	}
}

// Match returns the entries whose key equals key, in file order. On an
// aborting error the matches seen so far are returned alongside it.
func Match(r io.Reader, key string, policy model.MalformedPolicy) ([]model.Entry, error) {
	var out []model.Entry
	err := Scan(r, policy, func(e model.Entry) error {
		if e.Key == key {
			out = append(out, e)
		}
		return nil
	})
	return out, err
}
