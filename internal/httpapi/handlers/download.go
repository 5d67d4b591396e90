package handlers

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/isfo/attestation-service/internal/export"
)

// writeDownload renders t fully before sending so a rendering failure can
// still produce a JSON error.
func writeDownload(w http.ResponseWriter, r *http.Request, logger *zap.Logger, f export.Format, name string, t export.Table) {
	var buf bytes.Buffer
	if err := export.Write(&buf, f, t); err != nil {
		writeServerError(w, r, logger, "export", err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func queryDefault(r *http.Request, key, def string) string {
	if v := strings.TrimSpace(r.URL.Query().Get(key)); v != "" {
		return v
	}
	return def
}
