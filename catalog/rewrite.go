package catalog

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/iipsearch"
)

var (
	displayCleanup = strings.NewReplacer("(", "", ")", "", `"`, "", "_", " ")

	afterRange  = regexp.MustCompile(`notBefore:\[(-?\d*) TO 10000\]`)
	beforeRange = regexp.MustCompile(`notAfter:\[-10000 TO (-?\d*)\]`)

	// yearToken matches either a rewritten date phrase, which is copied as
	// is, or a space-led integer with an optional sign.
	yearToken = regexp.MustCompile(`\bdates (?:after|before) -?\d*| (-?)(\d+)\b`)
)

// RewriteForDisplay turns an index query into the text shown back to users:
// grouping and quote characters are dropped, underscores become spaces, the
// open-ended date ranges read as "dates after D" / "dates before D" and other
// years get an era suffix (" -44" reads " -44 BCE", " 79" reads " 79 CE").
//
// Years already carrying an era are left alone, so the rewrite is idempotent
// on its own output.
func RewriteForDisplay(query string) string {
	q := displayCleanup.Replace(query)
	q = afterRange.ReplaceAllString(q, "dates after ${1}")
	q = beforeRange.ReplaceAllString(q, "dates before ${1}")
	return annotateYears(q)
}

// DisplayQuery is RewriteForDisplay for caller input that may not be text.
func DisplayQuery(query string) (string, error) {
	if !utf8.ValidString(query) {
		return "", errors.Wrap(iipsearch.ErrDisplayRewrite, "query is not valid UTF-8")
	}
	return RewriteForDisplay(query), nil
}

func annotateYears(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)

	last := 0
	for _, m := range yearToken.FindAllStringSubmatchIndex(q, -1) {
		end := m[1]
		b.WriteString(q[last:end])
		last = end

		// m[4] < 0: the date phrase alternative matched.
		if m[4] < 0 || hasEra(q[end:]) {
			continue
		}
		if m[3] > m[2] {
			b.WriteString(" BCE")
		} else {
			b.WriteString(" CE")
		}
	}
	b.WriteString(q[last:])
	return b.String()
}

func hasEra(rest string) bool {
	for _, era := range []string{" BCE", " CE"} {
		if !strings.HasPrefix(rest, era) {
			continue
		}
		tail := rest[len(era):]
		if tail == "" || !isWordByte(tail[0]) {
			return true
		}
	}
	return false
}

func isWordByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
