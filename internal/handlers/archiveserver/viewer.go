package archiveserver

import (
	"errors"
	"html/template"
	"net/http"
)

var viewerTemplate = template.Must(template.New("viewer").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Himawari-8 Earth View</title>
    <meta http-equiv="refresh" content="{{.Refresh}}">
    <style>
        body {
            background-color: black;
            margin: 0;
            padding: 0;
            overflow: hidden;
            display: flex;
            justify-content: center;
            align-items: center;
            height: 100vh;
            width: 100vw;
        }
        img {
            max-width: 100%;
            max-height: 100%;
            height: auto;
            width: auto;
            object-fit: contain;
        }
    </style>
</head>
<body>
{{- if .ImageSrc}}
    <img src="{{.ImageSrc}}" alt="Himawari 8 Full Disk Image">
{{- end}}
</body>
</html>
`))

// viewerRefreshSeconds matches the default update interval
const viewerRefreshSeconds = 900

type viewerData struct {
	Refresh  int
	ImageSrc string
}

// handleViewer renders a black page showing the newest snapshot, refreshing itself
func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	data := viewerData{Refresh: viewerRefreshSeconds}

	latest, err := s.lookupLatest()
	switch {
	case err == nil:
		data.ImageSrc = "/" + latest.RelativeURL()
	case !errors.Is(err, ErrNoSnapshot):
		s.log.Warn().Err(err).Msg("failed to scan archive")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if err := viewerTemplate.Execute(w, data); err != nil {
		s.log.Warn().Err(err).Msg("failed to render viewer")
	}
}
