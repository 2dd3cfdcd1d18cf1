package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"latex-mathedit/internal/composer"
	"latex-mathedit/internal/latex"
	"latex-mathedit/internal/segment"
	"latex-mathedit/internal/types"
)

type latexRequest struct {
	Latex string `json:"latex"`
}

type textRequest struct {
	Text string `json:"text"`
}

type renderRequest struct {
	Content string `json:"content"`
}

type editRequest struct {
	Text    string `json:"text"`
	Content string `json:"content"`
}

type normalizeResponse struct {
	Normalized string `json:"normalized"`
}

type parseResponse struct {
	Segments  []types.MathSegment `json:"segments"`
	MathCount int                 `json:"math_count"`
}

type editResponse struct {
	Text       string                 `json:"text"`
	Segments   []types.MathSegment    `json:"segments"`
	Validation types.ValidationResult `json:"validation"`
}

func (s server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req latexRequest
	if !readJSONLimited(w, r, &req, maxBodyBytes) {
		return
	}
	writeJSON(w, http.StatusOK, normalizeResponse{Normalized: latex.Normalize(req.Latex)})
}

func (s server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req latexRequest
	if !readJSONLimited(w, r, &req, maxBodyBytes) {
		return
	}
	writeJSON(w, http.StatusOK, latex.Validate(req.Latex))
}

func (s server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !readJSONLimited(w, r, &req, maxBodyBytes) {
		return
	}
	segs := segment.Parse(req.Text)
	if segs == nil {
		segs = []types.MathSegment{}
	}
	writeJSON(w, http.StatusOK, parseResponse{Segments: segs, MathCount: segment.MathCount(segs)})
}

func (s server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if !readJSONLimited(w, r, &req, maxBodyBytes) {
		return
	}
	writeJSON(w, http.StatusOK, s.renderer.Render(req.Content))
}

func (s server) handleEditSegment(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid segment index", Code: types.ErrInvalidInput})
		return
	}
	var req editRequest
	if !readJSONLimited(w, r, &req, maxBodyBytes) {
		return
	}

	doc := composer.NewDocument(req.Text, s.renderer)
	result, err := doc.EditMath(index, req.Content)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, editResponse{
		Text:       doc.Text(),
		Segments:   doc.Segments(),
		Validation: result,
	})
}

func (s server) handleAssist(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error: "assistant is not configured",
			Code:  types.ErrConfig,
		})
		return
	}
	var req latexRequest
	if !readJSONLimited(w, r, &req, maxBodyBytes) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.assistTimeout)
	defer cancel()
	suggestion, err := s.assistant.Suggest(ctx, req.Latex)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}
