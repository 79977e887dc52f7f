package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/oauth-lite/oauth2"
	"github.com/jrsteele09/oauth-lite/sessions"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeText = "text/plain; charset=utf-8"

	maxFormBytes = 1 << 20
)

// flow is one of the protocol engine entry points.
type flow func(ctx context.Context, req *oauth2.Request) (*oauth2.Response, error)

// flowHandler adapts a protocol engine flow to net/http. A returned error is
// a service failure and always answers 500.
func (s *Server) flowHandler(fn flow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := newRequest(w, r)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		resp, err := fn(r.Context(), req)
		if err != nil {
			logError(r, err, "flow failed")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		s.writeResponse(w, r, resp)
	}
}

func newRequest(w http.ResponseWriter, r *http.Request) (*oauth2.Request, error) {
	req := &oauth2.Request{
		Method:        r.Method,
		Query:         r.URL.Query(),
		Authorization: r.Header.Get("Authorization"),
		RemoteAddr:    r.RemoteAddr,
	}
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		req.Form = r.PostForm
	}
	if cookie, err := r.Cookie(sessions.CookieName); err == nil {
		req.Cookie = cookie.Value
	}
	return req, nil
}

func (s *Server) writeResponse(w http.ResponseWriter, r *http.Request, resp *oauth2.Response) {
	switch {
	case resp.ClearCookie:
		s.setSessionCookie(w, r, "", -1)
	case resp.Cookie != "":
		s.setSessionCookie(w, r, resp.Cookie, int(s.config.GetMaxSessionAge().Seconds()))
	}

	header := w.Header()
	header.Set("Cache-Control", "no-store")
	header.Set("Pragma", "no-cache")
	if resp.Location != "" {
		header.Set("Location", resp.Location)
	}
	if resp.WWWAuthenticate != "" {
		header.Set("WWW-Authenticate", resp.WWWAuthenticate)
	}
	if resp.ContentType != "" {
		header.Set("Content-Type", resp.ContentType)
	}

	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			logError(r, err, "failed to write response")
		}
	}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessions.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}
