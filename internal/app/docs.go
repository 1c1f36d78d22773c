package app

import (
	"log/slog"
	"net/http"

	// registers the generated OpenAPI document
	_ "github.com/shandysiswandi/otpgate/docs"
	"github.com/swaggo/swag/v2"
)

func serveAPIDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to read api doc", "error", err)
		http.Error(w, "api doc unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	//nolint:errcheck // best effort
	_, _ = w.Write([]byte(doc))
}
