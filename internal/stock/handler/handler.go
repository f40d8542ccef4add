// Package handler exposes the stock ledger over HTTP. Handlers decode and
// validate requests, resolve the acting staff member from the request
// context, and delegate to the service layer.
package handler

import (
	"net/http"
	"strconv"
)

func queryInt(r *http.Request, key string) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
