package server

import (
	"net/http"
)

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	AppName string
	Action  string // authorize URL the form posts back to, query preserved
}

// LoginPageHandler displays the login form. The authorize query it was
// redirected with is carried into the form action so the POST resumes the
// same authorization request.
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action := RouteAuthorize
		if q := r.URL.Query(); len(q) > 0 {
			action += "?" + q.Encode()
		}

		data := LoginPageData{
			AppName: s.config.GetAppName(),
			Action:  action,
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		w.Header().Set("Cache-Control", "no-store")
		if err := s.loginTmpl.Execute(w, data); err != nil {
			logError(r, err, "Failed to render login template")
			http.Error(w, "Failed to render login page", http.StatusInternalServerError)
		}
	}
}
