package templates

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/a-h/templ"
)

// Layout wraps a page body.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s · mtune</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; }
table { border-collapse: collapse; }
th, td { padding: .3rem .8rem; border-bottom: 1px solid #ddd; text-align: left; }
td.num { text-align: right; font-variant-numeric: tabular-nums; }
tr.best { background: #eef8ee; }
</style>
</head>
<body>
<nav><a href="/">Studies</a></nav>
`, title); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</body>\n</html>\n")
		return err
	})
}

// StudiesPage lists every study.
func StudiesPage(rows []StudyRow) templ.Component {
	return Layout("Studies", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<h1>Studies</h1>\n"); err != nil {
			return err
		}
		if len(rows) == 0 {
			_, err := io.WriteString(w, "<p>No studies yet.</p>\n")
			return err
		}
		if _, err := io.WriteString(w, "<table>\n<tr><th>Name</th><th>Direction</th><th>Trials</th><th>Started</th><th>User attributes</th></tr>\n"); err != nil {
			return err
		}
		for _, r := range rows {
			if err := write(w, `<tr><td><a href="%s">%s</a></td><td>%s</td><td class="num">%s</td><td>%s</td><td>%s</td></tr>`+"\n",
				studyURL(r.Name), r.Name, strings.Join(r.Directions, ", "), formatCount(r.NTrials),
				formatTime(r.DatetimeStart), formatAttrs(r.UserAttrs)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</table>\n")
		return err
	}))
}

// StudyPage shows a study and its trials. Best trials are highlighted.
func StudyPage(d StudyDetail) templ.Component {
	return Layout(d.Name, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w, "<h1>%s</h1>\n<p>Direction: %s</p>\n", d.Name, strings.Join(d.Directions, ", ")); err != nil {
			return err
		}
		if len(d.UserAttrs) > 0 {
			if err := write(w, "<p>User attributes: %s</p>\n", formatAttrs(d.UserAttrs)); err != nil {
				return err
			}
		}

		states := make([]string, 0, len(d.States))
		for s := range d.States {
			states = append(states, s)
		}
		sort.Strings(states)
		if _, err := io.WriteString(w, "<ul>\n"); err != nil {
			return err
		}
		for _, s := range states {
			if err := write(w, "<li>%s: %s</li>\n", s, formatCount(d.States[s])); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "</ul>\n"); err != nil {
			return err
		}

		if _, err := io.WriteString(w, "<table>\n<tr><th>#</th><th>State</th><th>Values</th><th>Params</th><th>Started</th><th>Duration</th></tr>\n"); err != nil {
			return err
		}
		for _, t := range d.Trials {
			class := ""
			if t.Best {
				class = "best"
			}
			if err := write(w, `<tr class="%s"><td class="num">%s</td><td>%s</td><td class="num">%s</td><td>%s</td><td>%s</td><td class="num">%s</td></tr>`+"\n",
				class, t.Number, t.State, formatValues(t.Values), formatAttrs(t.Params),
				formatTime(t.DatetimeStart), formatDuration(t.Duration)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</table>\n")
		return err
	}))
}
