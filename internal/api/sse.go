package api

import (
	"fmt"
	"net/http"
	"strings"
)

// writeSSEFrame writes text as a single SSE "data:" frame, escaping embedded
// newlines across multiple data: lines per the SSE wire format.
func writeSSEFrame(w http.ResponseWriter, text string) {
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}
