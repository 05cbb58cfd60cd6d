package net

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Errorf replies to an HTTP request with the specified error, also logging it.
func Errorf(log *zap.Logger, w http.ResponseWriter, code int, msgfmt string, args ...interface{}) {
	msg := fmt.Sprintf(msgfmt, args...)
	http.Error(w, msg, code)
	log.Warn("http error", zap.Int("status", code), zap.String("error", msg))
}

// WriteJSON replies to an HTTP request with v encoded as JSON.
func WriteJSON(log *zap.Logger, w http.ResponseWriter, code int, v interface{}) {
	bits, err := json.Marshal(v)
	if err != nil {
		Errorf(log, w, http.StatusInternalServerError, "encoding response: %s", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, err = w.Write(bits)
	if err != nil {
		log.Warn("sending response", zap.Error(err))
	}
}
