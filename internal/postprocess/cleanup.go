package postprocess

import "regexp"

var (
	headerLineRegex = regexp.MustCompile(`(?mi)^[ \t]*(here(?:'s| is) (?:the )?(?:translation|translated text)s?:?|translation:|translated text:)[ \t]*\n?`)

	boilerplateLineRegex = regexp.MustCompile(`(?mi)^[ \t]*(\[?end of (chapter|document|excerpt|text)\]?|disclaimer:.*|note:\s*this (?:is|text) (?:an?\s*)?ai[- ]generated.*|—+)[ \t]*\n?`)

	codeFenceLineRegex = regexp.MustCompile("(?m)^[ \t]*```[a-zA-Z]*[ \t]*\n?")

	blankRunRegex = regexp.MustCompile(`\n{3,}`)
)

// Options configures the optional cleanup stage of Apply. Marker stripping
// is unconditional and is not gated by these flags.
type Options struct {
	EnableHeaderStrip       bool
	EnableBoilerplateStrip  bool
	EnableCodeFenceStrip    bool
	PronounConsistencyCheck []PronounGroup
}

// Result is the outcome of running Apply: the finalized text plus any
// pronoun-consistency warnings, which never block completion.
type Result struct {
	Text     string
	Warnings []ConsistencyWarning
}

// Apply turns marker-bearing merged chunk text into the user-facing output:
// markers are always stripped, the optional regex cleanups run only when
// enabled, and blank-line runs of 3+ are always collapsed to exactly 2.
func Apply(chunkedText string, opts Options) Result {
	text := StripMarkers(chunkedText)

	if opts.EnableHeaderStrip {
		text = headerLineRegex.ReplaceAllString(text, "")
	}
	if opts.EnableBoilerplateStrip {
		text = boilerplateLineRegex.ReplaceAllString(text, "")
	}
	if opts.EnableCodeFenceStrip {
		text = codeFenceLineRegex.ReplaceAllString(text, "")
	}

	text = blankRunRegex.ReplaceAllString(text, "\n\n")

	var warnings []ConsistencyWarning
	if len(opts.PronounConsistencyCheck) > 0 {
		warnings = CheckPronounConsistency(text, opts.PronounConsistencyCheck)
	}

	return Result{Text: text, Warnings: warnings}
}
