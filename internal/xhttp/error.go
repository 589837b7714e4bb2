package xhttp

import (
	"net/http"
)

func Error(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}

// MethodNotAllowed writes a 405 advertising the allowed methods.
func MethodNotAllowed(w http.ResponseWriter, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add(Allow, m)
	}
	Error(w, http.StatusMethodNotAllowed)
}
