package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KuchtaVR6/Learnopedia-sub000/internal/cache"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/content"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/identity"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/keyword"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/store"
)

func newTestServer(t *testing.T) *HTTPServer {
	t.Helper()
	mem := store.NewMemory()
	nodes := cache.New[*content.Node](time.Hour, 0)
	t.Cleanup(nodes.Close)
	amendments := cache.New[content.Amendment](time.Hour, 0)
	t.Cleanup(amendments.Close)
	manager := content.NewManager(mem, keyword.NewRegistry(mem), nodes, amendments, nil)
	svc := NewService(manager, mem, nil, nil, identity.NewResolver(mem), nil, []byte("test-secret"), time.Hour)
	return NewHTTPServer(svc, "*")
}

func doRequest(t *testing.T, server *HTTPServer, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response %s: %v", rr.Body.String(), err)
	}
	return payload
}

func login(t *testing.T, server *HTTPServer, nickname string) string {
	t.Helper()
	rr := doRequest(t, server, http.MethodPost, "/api/auth/login", "", fmt.Sprintf(`{"nickname":%q}`, nickname))
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	token, _ := decodeMap(t, rr)["accessToken"].(string)
	if token == "" {
		t.Fatalf("expected access token")
	}
	return token
}

// createContent posts a creation request and returns the new node's id.
func createContent(t *testing.T, server *HTTPServer, token, body string) int64 {
	t.Helper()
	rr := doRequest(t, server, http.MethodPost, "/api/contents", token, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create content: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeMap(t, rr)
	target, ok := payload["targetId"].(float64)
	if !ok || target == 0 {
		t.Fatalf("expected target id in %v", payload)
	}
	return int64(target)
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)
	rr := doRequest(t, server, http.MethodGet, "/api/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if decodeMap(t, rr)["ok"] != true {
		t.Fatalf("expected ok true, got %s", rr.Body.String())
	}
}

func TestLoginAndSession(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "avery")

	rr := doRequest(t, server, http.MethodGet, "/api/session", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	payload := decodeMap(t, rr)
	if payload["authenticated"] != true || payload["nickname"] != "avery" {
		t.Fatalf("unexpected session payload %v", payload)
	}

	rr = doRequest(t, server, http.MethodGet, "/api/session", "", "")
	if decodeMap(t, rr)["authenticated"] != false {
		t.Fatalf("expected unauthenticated session, got %s", rr.Body.String())
	}
}

func TestLoginRejectsEmptyNickname(t *testing.T) {
	server := newTestServer(t)
	rr := doRequest(t, server, http.MethodPost, "/api/auth/login", "", `{"nickname":"  "}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
	if decodeMap(t, rr)["code"] != "INVALID_BODY" {
		t.Fatalf("expected INVALID_BODY, got %s", rr.Body.String())
	}
}

func TestCreateContentRequiresAuth(t *testing.T) {
	server := newTestServer(t)
	rr := doRequest(t, server, http.MethodPost, "/api/contents", "", `{"type":"course","name":"Algebra"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
	if decodeMap(t, rr)["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED, got %s", rr.Body.String())
	}

	rr = doRequest(t, server, http.MethodPost, "/api/contents", "definitely-not-a-token", `{"type":"course","name":"Algebra"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rr.Code)
	}
}

func TestCreateAndFetchCourseTree(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "avery")

	courseID := createContent(t, server, token, `{"type":"course","name":"Algebra","description":"numbers","keywords":[{"word":"maths","score":90}]}`)
	chapterID := createContent(t, server, token, fmt.Sprintf(`{"type":"chapter","name":"Basics","parentId":%d}`, courseID))
	lessonID := createContent(t, server, token, fmt.Sprintf(`{"type":"lesson","name":"Intro","parentId":%d}`, chapterID))

	rr := doRequest(t, server, http.MethodPost, fmt.Sprintf("/api/lessons/%d/parts", lessonID), token,
		`{"type":"paragraph","seqNumber":32,"basicText":"rise over run"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add part: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	if decodeMap(t, rr)["type"] != "part" {
		t.Fatalf("expected part amendment, got %s", rr.Body.String())
	}

	rr = doRequest(t, server, http.MethodGet, fmt.Sprintf("/api/contents/%d", courseID), "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get content: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeMap(t, rr)
	if payload["name"] != "Algebra" || payload["type"] != "course" {
		t.Fatalf("unexpected course payload %v", payload)
	}
	if payload["authors"] != "1 author" {
		t.Fatalf("expected 1 author, got %v", payload["authors"])
	}
	children, _ := payload["children"].([]any)
	if len(children) != 1 {
		t.Fatalf("expected one chapter in tree, got %v", payload["children"])
	}
	chapter, _ := children[0].(map[string]any)
	grand, _ := chapter["children"].([]any)
	if len(grand) != 1 {
		t.Fatalf("expected lesson nested, got %v", chapter)
	}
	lesson, _ := grand[0].(map[string]any)
	parts, _ := lesson["parts"].([]any)
	if len(parts) != 1 {
		t.Fatalf("expected lesson part in tree, got %v", lesson)
	}
}

func TestCreateContentSequenceConflict(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "avery")

	courseID := createContent(t, server, token, `{"type":"course","name":"Algebra"}`)
	createContent(t, server, token, fmt.Sprintf(`{"type":"chapter","name":"One","parentId":%d,"seqNumber":32}`, courseID))

	rr := doRequest(t, server, http.MethodPost, "/api/contents", token,
		fmt.Sprintf(`{"type":"chapter","name":"Two","parentId":%d,"seqNumber":32}`, courseID))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}
	if decodeMap(t, rr)["code"] != "SEQUENCE_TAKEN" {
		t.Fatalf("expected SEQUENCE_TAKEN, got %s", rr.Body.String())
	}
}

func TestCreateContentParentRuleErrors(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "avery")

	rr := doRequest(t, server, http.MethodPost, "/api/contents", token, `{"type":"chapter","name":"Orphan"}`)
	if rr.Code != http.StatusBadRequest || decodeMap(t, rr)["code"] != "NEEDS_PARENT" {
		t.Fatalf("expected 400 NEEDS_PARENT, got %d %s", rr.Code, rr.Body.String())
	}

	courseID := createContent(t, server, token, `{"type":"course","name":"Algebra"}`)
	rr = doRequest(t, server, http.MethodPost, "/api/contents", token,
		fmt.Sprintf(`{"type":"lesson","name":"Skipped","parentId":%d}`, courseID))
	if rr.Code != http.StatusBadRequest || decodeMap(t, rr)["code"] != "WRONG_PARENT" {
		t.Fatalf("expected 400 WRONG_PARENT, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestEditMetaEndpoint(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "avery")
	courseID := createContent(t, server, token, `{"type":"course","name":"Algebra"}`)

	rr := doRequest(t, server, http.MethodPost, fmt.Sprintf("/api/contents/%d/meta", courseID), token,
		`{"name":"Algebra II"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("edit meta: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	if decodeMap(t, rr)["type"] != "meta" {
		t.Fatalf("expected meta amendment, got %s", rr.Body.String())
	}

	rr = doRequest(t, server, http.MethodGet, fmt.Sprintf("/api/contents/%d/meta", courseID), "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get meta: expected 200, got %d", rr.Code)
	}
	if decodeMap(t, rr)["name"] != "Algebra II" {
		t.Fatalf("expected renamed course, got %s", rr.Body.String())
	}

	rr = doRequest(t, server, http.MethodPost, fmt.Sprintf("/api/contents/%d/meta", courseID), token, `{}`)
	if rr.Code != http.StatusBadRequest || decodeMap(t, rr)["code"] != "EMPTY_MODIFICATION" {
		t.Fatalf("expected 400 EMPTY_MODIFICATION, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestAdoptionEndpoint(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "avery")

	courseA := createContent(t, server, token, `{"type":"course","name":"Algebra"}`)
	courseB := createContent(t, server, token, `{"type":"course","name":"Geometry"}`)
	chapterID := createContent(t, server, token, fmt.Sprintf(`{"type":"chapter","name":"Mover","parentId":%d}`, courseB))

	rr := doRequest(t, server, http.MethodPost, fmt.Sprintf("/api/contents/%d/adoption", chapterID), token,
		fmt.Sprintf(`{"newParentId":%d,"weight":5}`, courseA))
	if rr.Code != http.StatusCreated {
		t.Fatalf("adoption: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeMap(t, rr)
	if payload["type"] != "adoption" || payload["tariff"] != float64(5) {
		t.Fatalf("unexpected adoption payload %v", payload)
	}
}

func TestEditListEndpoint(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "avery")

	courseID := createContent(t, server, token, `{"type":"course","name":"Algebra"}`)
	chapterID := createContent(t, server, token, fmt.Sprintf(`{"type":"chapter","name":"Basics","parentId":%d}`, courseID))

	rr := doRequest(t, server, http.MethodPost, fmt.Sprintf("/api/contents/%d/list", courseID), token,
		fmt.Sprintf(`{"changes":[{"childContentId":%d,"delete":true}]}`, chapterID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("edit list: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	if decodeMap(t, rr)["type"] != "list" {
		t.Fatalf("expected list amendment, got %s", rr.Body.String())
	}

	// The hidden chapter is no longer navigable.
	rr = doRequest(t, server, http.MethodGet, fmt.Sprintf("/api/contents/%d", chapterID), "", "")
	if rr.Code != http.StatusNotFound || decodeMap(t, rr)["code"] != "NOT_NAVIGABLE" {
		t.Fatalf("expected 404 NOT_NAVIGABLE, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestVoteVetoAndSupports(t *testing.T) {
	server := newTestServer(t)
	creator := login(t, server, "avery")
	voter := login(t, server, "blair")

	courseID := createContent(t, server, creator, `{"type":"course","name":"Algebra"}`)

	// The creation amendment is the node's first history entry.
	rr := doRequest(t, server, http.MethodGet, fmt.Sprintf("/api/contents/%d/amendments", courseID), "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list amendments: expected 200, got %d", rr.Code)
	}
	history, _ := decodeMap(t, rr)["amendments"].([]any)
	if len(history) != 1 {
		t.Fatalf("expected one amendment, got %v", history)
	}
	first, _ := history[0].(map[string]any)
	amendmentID := int64(first["id"].(float64))

	rr = doRequest(t, server, http.MethodPost, fmt.Sprintf("/api/amendments/%d/vote", amendmentID), voter, `{"value":1}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("vote: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, server, http.MethodGet, fmt.Sprintf("/api/amendments/%d/supports", amendmentID), voter, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("supports: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	supports := decodeMap(t, rr)
	if supports["userOpinion"] != float64(1) {
		t.Fatalf("expected requester opinion 1, got %v", supports)
	}
	levels, _ := supports["levels"].([]any)
	if len(levels) != 1 {
		t.Fatalf("expected one level, got %v", supports)
	}

	rr = doRequest(t, server, http.MethodPost, fmt.Sprintf("/api/amendments/%d/veto", amendmentID), creator, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("veto: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doRequest(t, server, http.MethodGet, fmt.Sprintf("/api/amendments/%d", amendmentID), "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get amendment: expected 200, got %d", rr.Code)
	}
	if decodeMap(t, rr)["vetoed"] != true {
		t.Fatalf("expected amendment vetoed, got %s", rr.Body.String())
	}
}

func TestReputationEndpoint(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "avery")
	courseID := createContent(t, server, token, `{"type":"course","name":"Algebra"}`)

	rr := doRequest(t, server, http.MethodGet, fmt.Sprintf("/api/users/1/reputation?contentId=%d", courseID), "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reputation: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	shares, _ := decodeMap(t, rr)["shares"].([]any)
	if len(shares) != 1 {
		t.Fatalf("expected one level share, got %v", shares)
	}
	course, _ := shares[0].(map[string]any)
	if course["maximum"] != float64(100) || course["owned"] != float64(100) {
		t.Fatalf("expected creator stake 100/100, got %v", course)
	}
}

func TestUnknownContentReturns404(t *testing.T) {
	server := newTestServer(t)
	rr := doRequest(t, server, http.MethodGet, "/api/contents/9999", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
	if decodeMap(t, rr)["code"] != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %s", rr.Body.String())
	}
}

func TestSearchWithoutBackendReturnsEmptyResults(t *testing.T) {
	server := newTestServer(t)
	rr := doRequest(t, server, http.MethodGet, "/api/search?q=algebra", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeMap(t, rr)
	results, ok := payload["results"].([]any)
	if !ok || len(results) != 0 {
		t.Fatalf("expected empty results, got %v", payload)
	}
}

func TestAmendmentDetailShowsProposal(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "casey")

	rr := doRequest(t, server, http.MethodPost, "/api/contents", token,
		`{"type":"course","name":"Algebra","description":"numbers","keywords":[{"word":"maths","score":90}]}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create course: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeMap(t, rr)
	detail, _ := payload["detail"].(map[string]any)
	if detail == nil {
		t.Fatalf("expected creation detail in %v", payload)
	}
	if detail["name"] != "Algebra" || detail["type"] != "course" {
		t.Fatalf("unexpected creation detail %v", detail)
	}
	keywords, _ := detail["keywords"].([]any)
	if len(keywords) != 1 {
		t.Fatalf("expected one keyword in detail, got %v", detail["keywords"])
	}
	courseID := int64(payload["targetId"].(float64))

	rr = doRequest(t, server, http.MethodPost, fmt.Sprintf("/api/contents/%d/meta", courseID), token,
		`{"name":"Algebra II"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("edit meta: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	detail, _ = decodeMap(t, rr)["detail"].(map[string]any)
	if detail == nil || detail["newName"] != "Algebra II" {
		t.Fatalf("expected meta detail with new name, got %v", detail)
	}

	chapterID := createContent(t, server, token,
		fmt.Sprintf(`{"type":"chapter","parentId":%d,"name":"Basics"}`, courseID))
	lessonID := createContent(t, server, token,
		fmt.Sprintf(`{"type":"lesson","parentId":%d,"name":"Slope"}`, chapterID))

	rr = doRequest(t, server, http.MethodPost, fmt.Sprintf("/api/lessons/%d/parts", lessonID), token,
		`{"type":"paragraph","seqNumber":32,"basicText":"rise over run"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add part: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload = decodeMap(t, rr)
	detail, _ = payload["detail"].(map[string]any)
	if detail == nil {
		t.Fatalf("expected part detail in %v", payload)
	}
	part, _ := detail["part"].(map[string]any)
	if part == nil || part["basicText"] != "rise over run" || part["type"] != "paragraph" {
		t.Fatalf("expected resolved lesson part in detail, got %v", detail)
	}
	amendmentID := int64(payload["id"].(float64))

	// The same detail comes back on a later read of the amendment.
	rr = doRequest(t, server, http.MethodGet, fmt.Sprintf("/api/amendments/%d", amendmentID), "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get amendment: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	detail, _ = decodeMap(t, rr)["detail"].(map[string]any)
	if detail == nil {
		t.Fatalf("expected detail on fetched amendment")
	}
	if part, _ := detail["part"].(map[string]any); part == nil || part["basicText"] != "rise over run" {
		t.Fatalf("expected resolved part on fetched amendment, got %v", detail)
	}

	otherChapterID := createContent(t, server, token,
		fmt.Sprintf(`{"type":"chapter","parentId":%d,"name":"Curves"}`, courseID))
	rr = doRequest(t, server, http.MethodPost, fmt.Sprintf("/api/contents/%d/adoption", lessonID), token,
		fmt.Sprintf(`{"newParentId":%d,"weight":2}`, otherChapterID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("adopt: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	detail, _ = decodeMap(t, rr)["detail"].(map[string]any)
	if detail == nil || detail["newParentId"] != float64(otherChapterID) {
		t.Fatalf("expected adoption detail with new parent, got %v", detail)
	}

	rr = doRequest(t, server, http.MethodPost, fmt.Sprintf("/api/contents/%d/list", courseID), token,
		fmt.Sprintf(`{"changes":[{"childContentId":%d,"delete":true}]}`, chapterID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("edit list: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	detail, _ = decodeMap(t, rr)["detail"].(map[string]any)
	changes, _ := detail["changes"].([]any)
	if len(changes) != 1 {
		t.Fatalf("expected one list change in detail, got %v", detail)
	}
	change, _ := changes[0].(map[string]any)
	if change["delete"] != true {
		t.Fatalf("expected delete flag in list detail, got %v", change)
	}
}
