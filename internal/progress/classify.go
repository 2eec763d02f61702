package progress

import "regexp"

var (
	reHasSource = regexp.MustCompile(`^\[.*\] .*$`)
	reDebug     = regexp.MustCompile(`^\[debug\]`)
)

// Classify reports whether line belongs to the debug stream. Lines without a
// leading "[tag] " stay on the stream of the line before them.
func Classify(line string, previousWasDebug bool) bool {
	if reHasSource.MatchString(line) {
		return reDebug.MatchString(line)
	}
	return previousWasDebug
}

// Splitter classifies an ordered run of lines, carrying the previous
// classification between calls. It is not safe for concurrent use.
type Splitter struct {
	previousWasDebug bool
}

func (s *Splitter) Next(line string) bool {
	isDebug := Classify(line, s.previousWasDebug)
	s.previousWasDebug = isDebug
	return isDebug
}
