package admission

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }

// formatUnix devolve o instante em segundos Unix ("0" para zero).
func formatUnix(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.Unix(), 10)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
