package templates

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"
)

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return humanize.Time(*t)
}

func formatDuration(d *time.Duration) string {
	if d == nil {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func formatValues(values []float64) string {
	if len(values) == 0 {
		return "-"
	}
	s := ""
	for i, v := range values {
		if i > 0 {
			s += ", "
		}
		s += strconv.FormatFloat(v, 'g', 6, 64)
	}
	return s
}

func formatCount(n int) string {
	return humanize.Comma(int64(n))
}

func formatAttrs(m map[string]any) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := ""
	for i, k := range keys {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s=%v", k, m[k])
	}
	return s
}

func studyURL(name string) templ.SafeURL {
	return templ.URL("/studies/" + url.PathEscape(name))
}

// write renders HTML fragments, escaping every argument for HTML. URLs are
// expected to be path-escaped already.
func write(w io.Writer, format string, args ...any) error {
	escaped := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case templ.SafeURL:
			escaped[i] = templ.EscapeString(string(v))
		case string:
			escaped[i] = templ.EscapeString(v)
		default:
			escaped[i] = templ.EscapeString(fmt.Sprint(v))
		}
	}
	_, err := fmt.Fprintf(w, format, escaped...)
	return err
}
