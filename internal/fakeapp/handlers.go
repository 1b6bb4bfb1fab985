package fakeapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/kuitang/knowledge-e2e/internal/errs"
	"github.com/kuitang/knowledge-e2e/internal/model"
	"github.com/kuitang/knowledge-e2e/internal/obs"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
	maxNameLength    = 255
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// sourcename: not blank once trimmed and at most maxNameLength characters.
	_ = v.RegisterValidation("sourcename", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return strings.TrimSpace(name) != "" && utf8.RuneCountInString(name) <= maxNameLength
	})
	return v
}

// sourceRequest is the body of POST and PUT /api/sources.
type sourceRequest struct {
	Name     string         `json:"name" validate:"required,sourcename"`
	Type     string         `json:"type" validate:"required"`
	Config   map[string]any `json:"config"`
	Metadata map[string]any `json:"metadata"`
}

func errorBody(msg, code string) model.ErrorBody {
	return model.ErrorBody{Error: msg, Code: code}
}

func invalidTypeBody(typ string) model.ErrorBody {
	return model.ErrorBody{
		Error:      fmt.Sprintf("Invalid source type: %s", typ),
		Code:       string(errs.InvalidArgument),
		ValidTypes: model.SourceTypes,
	}
}

// decodeSourceRequest parses and validates a full source payload.
// It returns a ready error body when the payload is rejected.
func decodeSourceRequest(r *http.Request) (*sourceRequest, *model.ErrorBody) {
	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		body := errorBody("Invalid JSON: "+err.Error(), string(errs.InvalidArgument))
		return nil, &body
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			body := errorBody("Invalid request", string(errs.InvalidArgument))
			return nil, &body
		}
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fe.Field())
		}
		sort.Strings(details)
		body := model.ErrorBody{
			Error:   "Missing or invalid required fields",
			Code:    string(errs.InvalidArgument),
			Details: details,
		}
		return nil, &body
	}
	if !model.SourceType(req.Type).Valid() {
		body := invalidTypeBody(req.Type)
		return nil, &body
	}
	return &req, nil
}

func (s *Server) createSource(w http.ResponseWriter, r *http.Request) {
	req, bad := decodeSourceRequest(r)
	if bad != nil {
		writeJSON(w, http.StatusBadRequest, bad)
		return
	}
	src, err := s.store.CreateSource(r.Context(), model.Source{
		Name:     req.Name,
		Type:     model.SourceType(req.Type),
		Config:   req.Config,
		Metadata: req.Metadata,
	})
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.store.GetSource(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultListLimit
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = min(v, maxListLimit)
	}
	offset := 0
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		offset = v
	}

	items, total, err := s.store.ListSources(r.Context(), ListFilter{
		Type:   q.Get("type"),
		Status: q.Get("status"),
		Search: q.Get("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.SourceList{
		Items: items,
		Total: total,
		Pagination: model.Pagination{
			Limit:       limit,
			Offset:      offset,
			HasNext:     offset+len(items) < total,
			HasPrevious: offset > 0,
		},
	})
}

func (s *Server) replaceSource(w http.ResponseWriter, r *http.Request) {
	existing, err := s.store.GetSource(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	req, bad := decodeSourceRequest(r)
	if bad != nil {
		writeJSON(w, http.StatusBadRequest, bad)
		return
	}
	existing.Name = req.Name
	existing.Type = model.SourceType(req.Type)
	existing.Config = req.Config
	existing.Metadata = req.Metadata

	updated, err := s.store.SaveSource(r.Context(), existing)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// updateSource applies a partial update. Only name, type, config and metadata are writable;
// a supplied config or metadata object replaces the stored one.
func (s *Server) updateSource(w http.ResponseWriter, r *http.Request) {
	existing, err := s.store.GetSource(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("Invalid JSON: "+err.Error(), string(errs.InvalidArgument)))
		return
	}

	if raw, ok := patch["name"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil || validate.Var(name, "required,sourcename") != nil {
			writeJSON(w, http.StatusBadRequest, model.ErrorBody{
				Error:   "Invalid source name",
				Code:    string(errs.InvalidArgument),
				Details: []string{"name"},
			})
			return
		}
		existing.Name = name
	}
	if raw, ok := patch["type"]; ok {
		var typ string
		if err := json.Unmarshal(raw, &typ); err != nil || !model.SourceType(typ).Valid() {
			writeJSON(w, http.StatusBadRequest, invalidTypeBody(typ))
			return
		}
		existing.Type = model.SourceType(typ)
	}
	for key, dst := range map[string]*map[string]any{"config": &existing.Config, "metadata": &existing.Metadata} {
		raw, ok := patch[key]
		if !ok {
			continue
		}
		var value map[string]any
		if err := json.Unmarshal(raw, &value); err != nil {
			writeJSON(w, http.StatusBadRequest, model.ErrorBody{
				Error:   fmt.Sprintf("Invalid %s: expected an object", key),
				Code:    string(errs.InvalidArgument),
				Details: []string{key},
			})
			return
		}
		*dst = value
	}

	updated, err := s.store.SaveSource(r.Context(), existing)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteSource(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSource(r.Context(), r.PathValue("id")); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeErr maps a coded error onto its HTTP status. Uncoded errors become an opaque 500.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		obs.From(r.Context()).With("pkg", "fakeapp").Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody(errs.MessageOf(err), string(code)))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
