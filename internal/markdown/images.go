package markdown

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

// MissingImageRef replaces an inline image whose base64 payload could not be
// decoded. The reference stays in the document so its position is preserved;
// the broken payload is dropped.
const MissingImageRef = "MISSING_IMAGE"

var dataURIImageRe = regexp.MustCompile(`!\[([^\]]*)\]\(data:(image/[a-zA-Z]+);base64,([^)]*)\)`)

// ExtractInlineImages finds every `![alt](data:image/...;base64,...)` reference
// in md, decodes the payloads, and rewrites each reference to
// `![alt](images/image_NNN.ext)`. It returns the rewritten markdown, a map
// from assigned filename to decoded bytes, warnings for payloads that failed
// to decode, and the number of references consumed.
//
// Filenames are assigned left-to-right starting at image_001; the counter also
// advances past failed decodes, so a later successful image never reuses a
// failed one's number. A decode failure replaces that single reference with
// MissingImageRef and is reported as a warning, never an error.
//
// Callers that number additional images must continue from the returned count,
// not from len(images): failed decodes own a number without owning a map entry.
func ExtractInlineImages(md string) (string, map[string][]byte, []string, int) {
	images := make(map[string][]byte)
	var warnings []string
	counter := 0

	rewritten := dataURIImageRe.ReplaceAllStringFunc(md, func(match string) string {
		m := dataURIImageRe.FindStringSubmatch(match)
		alt, mimeType, payload := m[1], m[2], m[3]

		counter++
		filename := fmt.Sprintf("image_%03d.%s", counter, extForMIME(mimeType))

		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("image %d: base64 decode failed: %v", counter, err))
			return fmt.Sprintf("![%s](%s)", alt, MissingImageRef)
		}

		images[filename] = data
		return fmt.Sprintf("![%s](images/%s)", alt, filename)
	})

	return rewritten, images, warnings, counter
}

// extForMIME maps a declared image MIME type to a file extension.
// Unknown types default to png rather than erroring: the declared type is
// advisory and a wrong extension is recoverable, a failed document is not.
func extForMIME(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "jpeg"), strings.Contains(mimeType, "jpg"):
		return "jpg"
	case strings.Contains(mimeType, "gif"):
		return "gif"
	case strings.Contains(mimeType, "webp"):
		return "webp"
	default:
		return "png"
	}
}

// Relink rewrites image references to externally-saved files. imageMap maps an
// original image identifier (a basename, as reported by the extraction
// service) to its new relative path, e.g. "images/image_001.png". Every
// reference whose URL ends with a mapped basename is rewritten to the new
// path; alt text is preserved.
//
// The match anchors on the basename suffix only — the extraction service's
// internal path prefixes are unknown and irrelevant. Map entries whose
// basename never occurs in the text are no-ops, and references to basenames
// missing from the map are left untouched: the set of known original names is
// authoritative. Duplicate basenames in the map resolve last-write-wins.
func Relink(md string, imageMap map[string]string) string {
	for original, newPath := range imageMap {
		re := regexp.MustCompile(`(!\[.*?\])\([^)]*?` + regexp.QuoteMeta(original) + `\)`)
		md = re.ReplaceAllString(md, "${1}("+newPath+")")
	}
	return md
}
