package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hanlulong/stata-mcp/internal/session"
	"github.com/hanlulong/stata-mcp/internal/worker"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func newCommandID() string {
	return uuid.NewString()
}

func readBody(r *http.Request) (string, error) {
	defer r.Body.Close()
	buf, err := io.ReadAll(io.LimitReader(r.Body, 32<<20))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func filterSpillDir() string {
	return filepath.Join(os.TempDir(), "stata-mcp-filter-spill")
}

// breakSender is the narrow capability stop_execution/stop_session need from
// a session's worker handle: session.WorkerHandle itself only promises
// Stop/Alive, so this is asserted at the point of use the same way
// controller.WorkerConn is.
type breakSender interface {
	Send(cmd worker.Command) error
}

// sendBreak best-effort dispatches a cooperative Break to handle, returning
// whether the handle supported it.
func sendBreak(handle session.WorkerHandle) bool {
	sender, ok := handle.(breakSender)
	if !ok {
		return false
	}
	_ = sender.Send(worker.Command{CommandID: newCommandID(), Kind: worker.KindBreak})
	return true
}

// deadlineSeconds parses the "timeout" query parameter, falling back to def
// when absent or malformed.
func deadlineSeconds(r *http.Request, def time.Duration) float64 {
	raw := r.URL.Query().Get("timeout")
	if raw == "" {
		return def.Seconds()
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs < 0 {
		return def.Seconds()
	}
	return secs
}
