package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"kisscoffee/site/internal/export"
	"kisscoffee/site/internal/settings"
)

type failingPing struct {
	*flakyDocuments
}

func (failingPing) Ping(context.Context) error {
	return errors.New("dial tcp: connection refused")
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)
	h := newTestHandler(t, env)

	rec := doJSON(t, h, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK || decodeJSON(t, rec)["ok"] != true {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ready status = %d body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control = %q", got)
	}
}

func TestReadyReportsFailingDatabase(t *testing.T) {
	env := newTestEnv(t)
	env.service.documents = failingPing{env.documents}
	h := newTestHandler(t, env)

	rec := doJSON(t, h, http.MethodGet, "/api/ready", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body := decodeJSON(t, rec)
	checks, _ := body["checks"].(map[string]any)
	database, _ := checks["database"].(map[string]any)
	if body["status"] != "not_ready" || database["status"] != "error" {
		t.Fatalf("body = %v", body)
	}
}

func TestMenuSearchEndpoint(t *testing.T) {
	env := newTestEnv(t)
	h := newTestHandler(t, env)

	rec := doJSON(t, h, http.MethodGet, "/api/menu/search?q=espresso", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	results, _ := decodeJSON(t, rec)["results"].([]any)
	if len(results) == 0 {
		t.Fatalf("no results for espresso: %s", rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/menu/search?q=tea&category=Soup", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown category status = %d, want 400", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/menu/search?limit=-1", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative limit status = %d, want 400", rec.Code)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t)
	h := newTestHandler(t, env)
	token := signInToken(t, h, testOwnerEmail, testOwnerPassword)

	rec := doJSON(t, h, http.MethodPost, "/api/admin/settings", token, map[string]any{"customMessage": "New pastries every Friday"})
	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/admin/history?limit=5", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d body = %s", rec.Code, rec.Body.String())
	}
	revisions, _ := decodeJSON(t, rec)["revisions"].([]any)
	if len(revisions) != 2 {
		t.Fatalf("revisions = %v", revisions)
	}
	latest, _ := revisions[0].(map[string]any)
	if latest["message"] != "Update customMessage" || latest["author"] != ownerDisplayName {
		t.Fatalf("latest = %v", latest)
	}

	hash, _ := latest["hash"].(string)
	rec = doJSON(t, h, http.MethodGet, "/api/admin/history/"+hash, token, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "New pastries every Friday") {
		t.Fatalf("revision = %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/admin/history/deadbee", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown revision status = %d, want 404", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/admin/history", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous history status = %d, want 401", rec.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	env := newTestEnv(t)
	h := newTestHandler(t, env)
	token := signInToken(t, h, testOwnerEmail, testOwnerPassword)

	rec := doJSON(t, h, http.MethodGet, "/api/admin/export/xlsx", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("xlsx status = %d body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "kiss-coffee-menu.xlsx") {
		t.Fatalf("Content-Disposition = %q", got)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty spreadsheet")
	}

	rec = doJSON(t, h, http.MethodGet, "/api/admin/export/docx", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("docx status = %d, want 400", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/admin/export/xlsx?publish=true", token, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("publish without storage status = %d, want 503", rec.Code)
	}
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unsupported format", export.ErrUnsupportedFormat, http.StatusBadRequest, ""},
		{"pdf missing", export.ErrPDFDependencyMissing, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE"},
		{"publish disabled", export.ErrPublishDisabled, http.StatusServiceUnavailable, "PUBLISH_UNAVAILABLE"},
		{"domain", domainError(http.StatusTeapot, "TEAPOT", "short and stout", nil), http.StatusTeapot, "TEAPOT"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code, _, _ := mapError(tc.err)
			if status != tc.status {
				t.Fatalf("status = %d, want %d", status, tc.status)
			}
			if tc.code != "" && code != tc.code {
				t.Fatalf("code = %q, want %q", code, tc.code)
			}
		})
	}
}

func TestGetSettingsServesDefaultDocument(t *testing.T) {
	env := newTestEnv(t)
	h := newTestHandler(t, env)

	rec := doJSON(t, h, http.MethodGet, "/api/settings", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	doc := decodeJSON(t, rec)
	if doc["customMessage"] != settings.Default().CustomMessage {
		t.Fatalf("customMessage = %v", doc["customMessage"])
	}
}
