package nurture

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"growthdesk_backend/internal/leads/domain"
	"growthdesk_backend/internal/nurture/repository"

	"github.com/gin-gonic/gin"
)

func newTestRouter(h *harness) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	handler := NewHandler(h.svc)
	handler.RegisterSequenceRoutes(engine.Group("/nurture/sequences"))
	handler.RegisterLeadRoutes(engine.Group("/leads"))
	return engine
}

func doRequest(t *testing.T, engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestSequenceRoutesServeCatalog(t *testing.T) {
	h := newHarness(t)
	engine := newTestRouter(h)

	rec := doRequest(t, engine, http.MethodGet, "/nurture/sequences")
	if rec.Code != http.StatusOK {
		t.Fatalf("list sequences: status %d", rec.Code)
	}
	var listed struct {
		Version   int                `json:"version"`
		Sequences []SequenceResponse `json:"sequences"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Sequences) == 0 {
		t.Fatal("no sequences in catalog response")
	}
	for _, seq := range listed.Sequences {
		if seq.TotalSteps != len(seq.Steps) {
			t.Fatalf("sequence %s reports %d steps but lists %d", seq.Key, seq.TotalSteps, len(seq.Steps))
		}
	}

	rec = doRequest(t, engine, http.MethodGet, "/nurture/sequences/"+listed.Sequences[0].Key)
	if rec.Code != http.StatusOK {
		t.Fatalf("get sequence: status %d", rec.Code)
	}

	rec = doRequest(t, engine, http.MethodGet, "/nurture/sequences/no-such-sequence")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown sequence: status %d, want 404", rec.Code)
	}
}

func TestLeadRoutesDriveRunLifecycle(t *testing.T) {
	lead := testLead(domain.StatusWarm)
	h := newHarness(t, lead)
	engine := newTestRouter(h)

	base := "/leads/" + lead.ID.String() + "/nurture"

	rec := doRequest(t, engine, http.MethodPost, base)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: status %d body %s", rec.Code, rec.Body.String())
	}
	var started RunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	if started.Run.Status != repository.RunActive || len(started.Messages) != 1 {
		t.Fatalf("unexpected started run: status %s messages %d", started.Run.Status, len(started.Messages))
	}

	rec = doRequest(t, engine, http.MethodGet, base)
	if rec.Code != http.StatusOK {
		t.Fatalf("get run: status %d", rec.Code)
	}

	rec = doRequest(t, engine, http.MethodPost, base+"/pause")
	if rec.Code != http.StatusOK {
		t.Fatalf("pause: status %d body %s", rec.Code, rec.Body.String())
	}
	paused, _ := h.runs.GetRun(context.Background(), started.Run.ID)
	if paused.Status != repository.RunPaused {
		t.Fatalf("run status %s after pause", paused.Status)
	}

	rec = doRequest(t, engine, http.MethodDelete, base)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status %d body %s", rec.Code, rec.Body.String())
	}
	canceled, _ := h.runs.GetRun(context.Background(), started.Run.ID)
	if canceled.Status != repository.RunCanceled {
		t.Fatalf("run status %s after cancel", canceled.Status)
	}

	rec = doRequest(t, engine, http.MethodGet, "/leads/not-a-uuid/nurture")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid lead id: status %d, want 400", rec.Code)
	}
}
