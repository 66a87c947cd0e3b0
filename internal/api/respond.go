package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rentify/rentify-go/internal/middleware"
	"github.com/rentify/rentify-go/internal/services"
	"go.uber.org/zap"
)

// maxFormBody bounds non-upload request bodies.
const maxFormBody = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type messageResponse struct {
	Message  string      `json:"message"`
	Redirect string      `json:"redirect,omitempty"`
	Data     interface{} `json:"data,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

func respondMessage(w http.ResponseWriter, status int, message, redirect string, data interface{}) {
	respondJSON(w, status, messageResponse{Message: message, Redirect: redirect, Data: data})
}

var conflictMessages = map[error]string{
	services.ErrInvalidState:      "This action is not allowed in the request's current status",
	services.ErrInsufficientStock: "Not enough stock available",
	services.ErrUnavailable:       "This cloth is currently unavailable",
	services.ErrDuplicateRequest:  "You already have an open request for this cloth",
	services.ErrEmailTaken:        "Email already registered",
}

var badRequestMessages = map[error]string{
	services.ErrInvalidRole:  "Invalid role selected",
	services.ErrInvalidCode:  "Invalid OTP",
	services.ErrResetExpired: "OTP expired, please request a new one",
}

// writeServiceError maps service errors onto status codes. Unexpected errors
// are logged and reported without detail.
func (a *App) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Message, Field: verr.Field})
		return
	}

	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	case errors.Is(err, services.ErrAccountInactive):
		respondError(w, http.StatusUnauthorized, "Account is inactive")
		return
	case errors.Is(err, services.ErrForbidden):
		respondError(w, http.StatusForbidden, "Access denied")
		return
	case errors.Is(err, services.ErrNotFound):
		respondError(w, http.StatusNotFound, "Not found")
		return
	}
	for target, msg := range conflictMessages {
		if errors.Is(err, target) {
			respondError(w, http.StatusConflict, msg)
			return
		}
	}
	for target, msg := range badRequestMessages {
		if errors.Is(err, target) {
			respondError(w, http.StatusBadRequest, msg)
			return
		}
	}

	a.logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		zap.Error(err),
	)
	respondError(w, http.StatusInternalServerError, "Internal server error")
}

var errBadBody = errors.New("invalid request body")

// decodeBody fills dst from a JSON body or from form fields named after
// dst's json tags. An empty body leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
		if err := r.ParseForm(); err != nil {
			return errBadBody
		}
		return decodeForm(r.PostForm, dst)
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxFormBody); err != nil {
			return errBadBody
		}
		return decodeForm(r.PostForm, dst)
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBody))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errBadBody
	}
	return nil
}

// decodeForm supports the string and integer fields the request payloads
// use, including fields of embedded structs.
func decodeForm(values url.Values, dst interface{}) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return errBadBody
	}
	return fillForm(values, v.Elem())
}

func fillForm(values url.Values, v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field, fv := t.Field(i), v.Field(i)
		if field.Anonymous && fv.Kind() == reflect.Struct {
			if err := fillForm(values, fv); err != nil {
				return err
			}
			continue
		}
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" || !fv.CanSet() {
			continue
		}
		raw, ok := values[name]
		if !ok || len(raw) == 0 {
			continue
		}
		switch fv.Kind() {
		case reflect.String:
			fv.SetString(raw[0])
		case reflect.Int, reflect.Int64:
			s := strings.TrimSpace(raw[0])
			if s == "" {
				continue
			}
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return &services.ValidationError{Field: name, Message: "Enter a whole number."}
			}
			fv.SetInt(n)
		}
	}
	return nil
}

// bind decodes the body and writes the error response itself; handlers
// return when it reports false.
func (a *App) bind(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	err := decodeBody(w, r, dst)
	if err == nil {
		return true
	}
	if errors.Is(err, errBadBody) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	a.writeServiceError(w, r, err)
	return false
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}
