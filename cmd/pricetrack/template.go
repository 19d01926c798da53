package main

import "text/template"

var historyTemplate = template.Must(template.New("historyTemplate").Parse(
	`{{ range . -}}
{{ .Time.Format "2006-01-02 15:04:05" }}  {{ printf "%-12s" .Price }} {{ .Title }}
                     {{ .URL }}
{{ else -}}
No prices recorded yet.
{{ end -}}
`,
))
