package progress

import "testing"

func TestClassify_DebugTagWinsRegardlessOfPrevious(t *testing.T) {
	for _, prev := range []bool{false, true} {
		if !Classify("[debug] Encodings: locale UTF-8", prev) {
			t.Fatalf("expected debug line to classify as debug (prev=%v)", prev)
		}
	}
}

func TestClassify_OtherTagsGoToDownloadStream(t *testing.T) {
	cases := []string{
		"[youtube] abc123: Downloading webpage",
		"[download] Destination: /tmp/x/a.mp4",
		"[download]  50.0% of 10MiB ETA 01:30",
	}
	for _, line := range cases {
		if Classify(line, true) {
			t.Fatalf("expected %q to classify as download", line)
		}
	}
}

func TestClassify_UntaggedInheritsPrevious(t *testing.T) {
	cases := []string{
		"",
		"    continuation of a wrapped line",
		"[debug]without-space",
		"ERROR: Unable to download webpage",
	}
	for _, line := range cases {
		if !Classify(line, true) {
			t.Fatalf("expected %q to inherit debug", line)
		}
		if Classify(line, false) {
			t.Fatalf("expected %q to inherit download", line)
		}
	}
}

func TestSplitter_RunOfUntaggedLinesFollowsFirstTaggedPredecessor(t *testing.T) {
	lines := []struct {
		text  string
		debug bool
	}{
		{"untagged before anything", false},
		{"[debug] System config: []", true},
		{"  wrapped 1", true},
		{"  wrapped 2", true},
		{"[info] Writing video description", false},
		{"  wrapped 3", false},
		{"[debug] Invoking downloader", true},
		{"tail", true},
	}

	var s Splitter
	for i, l := range lines {
		if got := s.Next(l.text); got != l.debug {
			t.Fatalf("line %d %q: got debug=%v want %v", i, l.text, got, l.debug)
		}
	}
}
