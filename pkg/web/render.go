package web

import (
	"embed"
	"html/template"
	"io"
	"time"

	"github.com/geniass/pricetrack/pkg/history"
	"github.com/geniass/pricetrack/pkg/tracker"
)

//go:embed templates
var templatesFs embed.FS

type BaseContext struct {
	PathPrefix string
}

type HistoryContext struct {
	BaseContext
	Title        string
	LastUpdated  time.Time
	Observations []history.Observation
}

func (c HistoryContext) FormattedLastUpdated() string {
	return c.LastUpdated.Local().Format("2006-01-02T15:04:05 MST")
}

// TaskView is a tracked product as shown on the home page.
type TaskView struct {
	ID        string
	URL       string
	Every     string
	StartedAt string
	Stopping  bool
}

func NewTaskView(t *tracker.Task) TaskView {
	return TaskView{
		ID:        t.ID,
		URL:       t.URL,
		Every:     t.Interval.String(),
		StartedAt: t.StartedAt.Local().Format(history.DateFormat),
		Stopping:  t.StopRequested(),
	}
}

type HomeContext struct {
	HistoryContext
	Tasks      []TaskView
	Flash      string
	FlashError bool
}

func RenderHistory(w io.Writer, c HistoryContext) error {
	return render(w, "templates/history.html.tpl", c)
}

func RenderHome(w io.Writer, c HomeContext) error {
	return render(w, "templates/index.html.tpl", c)
}

func render(w io.Writer, page string, data any) error {
	t, err := template.New("").Funcs(funcs).ParseFS(templatesFs, page)
	if err != nil {
		return err
	}
	t, err = t.ParseFS(templatesFs, "templates/common/*")
	if err != nil {
		return err
	}

	return t.ExecuteTemplate(w, "page", data)
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string { return t.Local().Format(history.DateFormat) },
}
