// Package markdown implements the text-rewrite pipeline that turns raw
// extraction output into wiki-importable markdown: cleanup rules, ordered-list
// renumbering, inline image extraction and image reference relinking.
//
// All transforms are regex-driven rewrites over the raw text, not a parse
// tree. Upstream extraction output is too artifact-heavy for strict parsing,
// and the rules below tolerate (and fix) input a parser would reject.
package markdown

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

// Normalization rules compiled once. Normalize applies them in a fixed order;
// several rules depend on the output shape of earlier ones (e.g. list
// renumbering assumes comments are already gone), so the order must not change.
//
// headerSpaceRe excludes '#' from the char after the marker run: with a plain
// [^ \n] class, `#+` backtracks on an already-correct header and re-matches
// one of its own '#'s, mangling it further on every pass.
var (
	frontmatterRe  = regexp.MustCompile(`(?s)^---\n.*?\n---\n`)
	htmlCommentRe  = regexp.MustCompile(`(?s)<!--.*?-->`)
	multiBlankRe   = regexp.MustCompile(`\n{3,}`)
	headerSpaceRe  = regexp.MustCompile(`(?m)^(#+)([^# \n])`)
	blockTagRe     = regexp.MustCompile(`(?i)</?(div|span|html|body|head|script|style|iframe|link|meta)[^>]*?>`)
	imageSpacingRe = regexp.MustCompile(`([^\n])\n!\[`)
	listItemRe     = regexp.MustCompile(`^(\d+)\.\s(.*)`)
)

// Normalize rewrites extraction output into clean markdown. If title is
// non-empty and the document does not already start with it as an H1, a
// `# title` heading is prepended.
//
// Stages, in order: strip a leading YAML frontmatter block, strip HTML
// comments (extraction tools leave `<!-- image -->` style artifacts), collapse
// 3+ newlines to a single blank line, ensure a space after header markers,
// strip structural HTML tags that break wiki rendering (content between them
// is kept), unescape HTML entities, force a blank line before images so they
// start their own block, inject the title, renumber ordered lists, and trim.
func Normalize(md string, title string) string {
	md = frontmatterRe.ReplaceAllString(md, "")
	md = htmlCommentRe.ReplaceAllString(md, "")
	md = multiBlankRe.ReplaceAllString(md, "\n\n")
	md = headerSpaceRe.ReplaceAllString(md, "$1 $2")
	md = blockTagRe.ReplaceAllString(md, "")
	md = html.UnescapeString(md)
	md = imageSpacingRe.ReplaceAllString(md, "$1\n\n![")

	if title != "" {
		firstLine := strings.SplitN(strings.TrimSpace(md), "\n", 2)[0]
		if !strings.HasPrefix(firstLine, "# "+title) {
			// Trim leading blank lines so the prepend can't reintroduce
			// a 3+ newline run after the collapse stage.
			md = "# " + title + "\n\n" + strings.TrimLeft(md, " \t\n")
		}
	}

	md = renumberLists(md)

	return strings.TrimSpace(md)
}

// renumberLists fixes broken ordered-list numbering. Extraction tools commonly
// emit "1." for every item; a single counter walks the document and rewrites
// markers into a monotonic sequence.
//
// A literal "1." is always treated as the next item of the current sequence
// (counter+1). Any higher number is trusted as authoritative and the counter
// syncs to it. Header lines reset the counter to 0, so a genuine new list
// after a heading restarts at 1. Blank lines, images and body text neither
// reset nor advance the counter.
func renumberLists(md string) string {
	lines := strings.Split(md, "\n")
	out := make([]string, 0, len(lines))
	counter := 0

	for _, line := range lines {
		m := listItemRe.FindStringSubmatch(line)
		if m == nil {
			out = append(out, line)
			if strings.HasPrefix(strings.TrimSpace(line), "#") {
				counter = 0
			}
			continue
		}

		if n, _ := strconv.Atoi(m[1]); n == 1 {
			counter++
		} else {
			// "2.", "3." etc.: trust it but sync the counter.
			counter = n
		}
		out = append(out, fmt.Sprintf("%d. %s", counter, m[2]))
	}

	return strings.Join(out, "\n")
}
