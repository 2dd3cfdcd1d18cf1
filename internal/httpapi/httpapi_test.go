package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latex-mathedit/internal/assist"
	"latex-mathedit/internal/types"
)

type fakeSuggester struct {
	got string
	err error
}

func (f *fakeSuggester) Suggest(ctx context.Context, expr string) (*assist.Suggestion, error) {
	f.got = expr
	if f.err != nil {
		return nil, f.err
	}
	return &assist.Suggestion{Original: expr, Suggested: "x^2", Validation: types.ValidationOK, Changed: true}, nil
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestNormalizeAndValidate(t *testing.T) {
	h := NewRouter(Deps{})

	rec := post(t, h, "/api/normalize", `{"latex":"x^{5} + {y}"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var norm normalizeResponse
	decode(t, rec, &norm)
	assert.Equal(t, "x^5 + y", norm.Normalized)

	rec = post(t, h, "/api/validate", `{"latex":"{a"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var v types.ValidationResult
	decode(t, rec, &v)
	assert.Equal(t, types.ValidationResult{Valid: false, Error: "Unbalanced braces"}, v)
}

func TestParse(t *testing.T) {
	h := NewRouter(Deps{})

	rec := post(t, h, "/api/parse", `{"text":"The area is $A=\\pi r^2$ square units"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp parseResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Segments, 3)
	assert.Equal(t, 1, resp.MathCount)
	assert.Equal(t, `A=\pi r^2`, resp.Segments[1].Content)

	rec = post(t, h, "/api/parse", `{"text":""}`)
	assert.JSONEq(t, `{"segments":[],"math_count":0}`, rec.Body.String())
}

func TestRender(t *testing.T) {
	h := NewRouter(Deps{})
	rec := post(t, h, "/api/render", `{"content":"\\(x\\)"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res types.RenderResult
	decode(t, rec, &res)
	assert.False(t, res.Fallback)
	assert.Contains(t, res.HTML, "<math")
}

func TestEditSegment(t *testing.T) {
	h := NewRouter(Deps{})

	rec := post(t, h, "/api/segments/1",
		`{"text":"The area is $A=\\pi r^2$ square units","content":"A = \\pi r^{2}"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp editResponse
	decode(t, rec, &resp)
	assert.Equal(t, `The area is $A = \pi r^2$ square units`, resp.Text)
	assert.True(t, resp.Validation.Valid)

	rec = post(t, h, "/api/segments/9", `{"text":"$x$","content":"y"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = post(t, h, "/api/segments/abc", `{"text":"$x$","content":"y"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBadBodies(t *testing.T) {
	h := NewRouter(Deps{})

	rec := post(t, h, "/api/normalize", `{"latex":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, h, "/api/normalize", `{"tex":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	big := `{"latex":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec = post(t, h, "/api/normalize", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAssist(t *testing.T) {
	rec := post(t, NewRouter(Deps{}), "/api/assist", `{"latex":"x^{2"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	fake := &fakeSuggester{}
	h := NewRouter(Deps{Assistant: fake})
	rec = post(t, h, "/api/assist", `{"latex":"x^{2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "x^{2", fake.got)
	var s assist.Suggestion
	decode(t, rec, &s)
	assert.Equal(t, "x^2", s.Suggested)

	fake.err = types.NewAppError(types.ErrAssist, "assistant request failed", nil)
	rec = post(t, h, "/api/assist", `{"latex":"x"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHealthz(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	NewRouter(Deps{}).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
