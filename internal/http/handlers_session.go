package http

import (
	"net/http"

	applog "faturas/internal/log"
	"faturas/internal/middleware/identity"
	"faturas/internal/session"
)

// handleSignIn initializes the caller's application state. withState already
// did the work; the response reports the plan flags the client needs.
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request, st *session.State) error {
	p := st.Profile()
	writeJSON(w, http.StatusOK, sessionView{
		UserID:    st.UserID(),
		Plan:      p.Plan,
		ProAccess: p.HasProAccess(s.invoices.Now()),
		Version:   st.Version(),
	})
	return nil
}

// handleSignOut tears the caller's state down. Signing out twice is not an error.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) error {
	userID, _ := identity.FromContext(r.Context())
	if s.sessions.SignOut(userID) {
		applog.FromContext(r.Context()).InfoContext(r.Context(), "Signed out")
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
