package viewer

import (
	"html/template"
	"net/http"
	"unicode/utf8"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/storage"
)

const viewMessageRunes = 180

// shortMessage cuts s to viewMessageRunes runes.
func shortMessage(s string) string {
	if utf8.RuneCountInString(s) <= viewMessageRunes {
		return s
	}
	return string([]rune(s)[:viewMessageRunes-3]) + "..."
}

var viewTemplate = template.Must(template.New("view").Funcs(template.FuncMap{
	"short": shortMessage,
}).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8">
  <meta http-equiv="refresh" content="{{.Refresh}}">
  <title>Alerts Viewer</title>
  <style>
    body { font-family: sans-serif; margin: 16px; }
    table { border-collapse: collapse; width: 100%; font-size: 13px; }
    th, td { border: 1px solid #ddd; padding: 4px 6px; text-align: left; vertical-align: top; }
    th { background: #f4f4f4; }
    tr.critical { background: #fde2e2; }
    tr.warning { background: #fff6d6; }
  </style>
</head>
<body>
  <h3>Alerts (last {{len .Alerts}}, auto-refresh {{.Refresh}}s)</h3>
  <table id="alerts">
    <thead>
      <tr>
        <th>ID</th><th>Type</th><th>Status</th><th>Severity</th><th>LogID</th><th>Reason</th><th>Message</th><th>Created</th>
      </tr>
    </thead>
    <tbody>
    {{- range .Alerts}}
      <tr class="{{.Severity}}">
        <td>{{.ID}}</td><td>{{.AlertType}}</td><td>{{.Status}}</td><td>{{.Severity}}</td>
        <td>{{.LogID}}</td><td>{{.AnomalyReason}}</td><td>{{short .Message}}</td>
        <td>{{.CreatedAt.Format "2006-01-02 15:04:05"}}</td>
      </tr>
    {{- end}}
    </tbody>
  </table>
</body>
</html>
`))

type viewData struct {
	Refresh int
	Alerts  []AlertItem
}

func (s *Server) view(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.queryContext(r)
	defer cancel()

	views, err := s.repos.Alerts().List(ctx, storage.AlertFilter{Limit: defaultPageSize})
	if err != nil {
		s.logger.Sugar().Errorw("render view", "error", err)
		http.Error(w, "Error loading alerts", http.StatusInternalServerError)
		return
	}

	data := viewData{Refresh: s.config.RefreshSeconds}
	for _, v := range views {
		data.Alerts = append(data.Alerts, newAlertItem(v))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := viewTemplate.Execute(w, data); err != nil {
		s.logger.Sugar().Warnw("write view", "error", err)
	}
}
