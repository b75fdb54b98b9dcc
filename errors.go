/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

func init() {
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: logDate,
	})
}

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	logger.Infof(format, args...)
}

// Error kinds reported to callers. Every rejection wraps exactly one of these.
var (
	ErrValidation = errors.New("validation")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrState      = errors.New("invalid state")
	ErrAuth       = errors.New("unauthorized")
)

type gameError struct {
	kind error
	msg  string
}

func (e *gameError) Error() string { return e.msg }

func (e *gameError) Unwrap() error { return e.kind }

func validationf(format string, args ...any) error {
	return &gameError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error {
	return &gameError{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &gameError{kind: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

func statef(format string, args ...any) error {
	return &gameError{kind: ErrState, msg: fmt.Sprintf(format, args...)}
}

func authf(format string, args ...any) error {
	return &gameError{kind: ErrAuth, msg: fmt.Sprintf(format, args...)}
}

// errorKind maps an error to its wire name and HTTP status.
func errorKind(err error) (string, int) {
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION", http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND", http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return "CONFLICT", http.StatusConflict
	case errors.Is(err, ErrState):
		return "STATE", http.StatusConflict
	case errors.Is(err, ErrAuth):
		return "AUTH", http.StatusForbidden
	default:
		return "INTERNAL", http.StatusInternalServerError
	}
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><p>%s</p></body></html>", body))

	return htmlBody.String()
}
