package model

// KeyMode selects how the comparison key is derived from the current date.
// Only one mode is active per deployment.
type KeyMode string

const (
	// KeyDate matches lines keyed by the ISO calendar date, e.g. "20240115".
	KeyDate KeyMode = "date"
	// KeyWeek matches lines keyed by the ISO week, e.g. "week3".
	KeyWeek KeyMode = "week"
)

// ImageMode selects how a schedule value is turned into an image file stem.
type ImageMode string

const (
	// ImageDirect uses the value as the file stem.
	ImageDirect ImageMode = "direct"
	// ImageIndex resolves the value through the built-in theme index.
	ImageIndex ImageMode = "index"
)

// MalformedPolicy decides what happens to a schedule line that does not
// split into exactly two fields.
type MalformedPolicy string

const (
	MalformedSkip  MalformedPolicy = "skip"
	MalformedAbort MalformedPolicy = "abort"
)

// Entry is one key=value schedule line, or an equivalent entry produced by
// a calendar source.
type Entry struct {
	// Line is the 1-based line number in the schedule file; zero for
	// entries that did not come from a text file.
	Line int

	Key   string
	Value string
}
