package http

import (
	"bufio"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"tally/internal/core"
	"tally/internal/identity"
	idmem "tally/internal/identity/memory"
	"tally/internal/log"
	"tally/internal/services"
	storemem "tally/internal/store/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *identity.Session) {
	t.Helper()
	logger := log.New(log.Config{Level: slog.LevelError, Component: log.ComponentApp})
	st := storemem.New()
	session := identity.NewSession(idmem.New(core.User{ID: "u1", DisplayName: "Ada"}), st, logger)
	ledger := services.NewLedgerService(session, st, nil, logger)
	srv := NewServer(":0", session, ledger, st, logger)
	ts := httptest.NewServer(srv.Server.Handler)
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return ts, session
}

func postForm(t *testing.T, ts *httptest.Server, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := http.PostForm(ts.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s error = %v", path, err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return sb.String()
}

func signInHTTP(t *testing.T, ts *httptest.Server) {
	t.Helper()
	resp := postForm(t, ts, "/signin", url.Values{})
	if body := readBody(t, resp); resp.StatusCode != http.StatusOK {
		t.Fatalf("signin status = %d, body = %s", resp.StatusCode, body)
	}
}

func awaitDashboard(t *testing.T, ts *httptest.Server, want string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var body string
	for time.Now().Before(deadline) {
		resp, err := http.Get(ts.URL + "/ui/dashboard")
		if err != nil {
			t.Fatalf("GET /ui/dashboard error = %v", err)
		}
		body = readBody(t, resp)
		if strings.Contains(body, want) {
			return body
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("dashboard never contained %q, last body:\n%s", want, body)
	return ""
}

func TestHealthEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		readBody(t, resp)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	readBody(t, resp)

	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := resp.Header.Get("Content-Security-Policy"); got == "" {
		t.Error("Content-Security-Policy header missing")
	}
}

func TestDashboardRequiresSignIn(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/ui/dashboard")
	if err != nil {
		t.Fatalf("GET /ui/dashboard error = %v", err)
	}
	body := readBody(t, resp)
	if !strings.Contains(body, "Sign in") {
		t.Errorf("signed-out dashboard missing sign-in prompt:\n%s", body)
	}
}

func TestMutationsAreRejectedWhenSignedOut(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := postForm(t, ts, "/projects", url.Values{"name": {"Trip"}})
	readBody(t, resp)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("signed-out create status = %d, want 401", resp.StatusCode)
	}
}

func TestMutationsRequirePostMethod(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/projects")
	if err != nil {
		t.Fatalf("GET /projects error = %v", err)
	}
	readBody(t, resp)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /projects status = %d, want 405", resp.StatusCode)
	}
	if got := resp.Header.Get("Allow"); got != "POST" {
		t.Errorf("Allow = %q, want POST", got)
	}
}

func TestCreateProjectShowsOnDashboard(t *testing.T) {
	ts, _ := newTestServer(t)
	signInHTTP(t, ts)

	resp := postForm(t, ts, "/projects", url.Values{"name": {"Holiday"}})
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create project status = %d, body = %s", resp.StatusCode, body)
	}
	if got := resp.Header.Get("HX-Trigger"); got != "ledger:changed" {
		t.Errorf("HX-Trigger = %q, want ledger:changed", got)
	}

	dash := awaitDashboard(t, ts, "Holiday")
	if !strings.Contains(dash, "by Ada") {
		t.Errorf("dashboard missing creator label:\n%s", dash)
	}
}

func TestCreateProjectRejectsBlankName(t *testing.T) {
	ts, _ := newTestServer(t)
	signInHTTP(t, ts)

	resp := postForm(t, ts, "/projects", url.Values{"name": {"   "}})
	readBody(t, resp)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("blank name status = %d, want 422", resp.StatusCode)
	}
}

func TestExpenseFlowThroughProjectView(t *testing.T) {
	ts, session := newTestServer(t)
	signInHTTP(t, ts)

	resp := postForm(t, ts, "/projects", url.Values{"name": {"Trip"}})
	readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create project status = %d", resp.StatusCode)
	}
	awaitDashboard(t, ts, "Trip")

	projects := session.Projects()
	if len(projects) != 1 {
		t.Fatalf("got %d projects, want 1", len(projects))
	}
	projectID := projects[0].ID

	resp = postForm(t, ts, "/expenses", url.Values{
		"project_id": {projectID},
		"item":       {"Beer"},
		"quantity":   {"3"},
		"amount":     {"10"},
		"price_mode": {"unit"},
	})
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create expense status = %d, body = %s", resp.StatusCode, body)
	}

	deadline := time.Now().Add(2 * time.Second)
	var view string
	for time.Now().Before(deadline) {
		vresp, err := http.Get(ts.URL + "/ui/project?id=" + projectID)
		if err != nil {
			t.Fatalf("GET /ui/project error = %v", err)
		}
		view = readBody(t, vresp)
		if strings.Contains(view, "Beer") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(view, "Beer") {
		t.Fatalf("project view missing expense:\n%s", view)
	}
	// 3 units at €10 each
	if !strings.Contains(view, "€30,00") {
		t.Errorf("project view missing derived total €30,00:\n%s", view)
	}
	if !strings.Contains(view, "€10,00") {
		t.Errorf("project view missing unit price €10,00:\n%s", view)
	}
	if !strings.Contains(view, "Ada") {
		t.Errorf("project view missing spender name:\n%s", view)
	}
}

func TestCreateExpenseRejectsBlankAmount(t *testing.T) {
	ts, session := newTestServer(t)
	signInHTTP(t, ts)

	resp := postForm(t, ts, "/projects", url.Values{"name": {"Trip"}})
	readBody(t, resp)
	awaitDashboard(t, ts, "Trip")
	projectID := session.Projects()[0].ID

	resp = postForm(t, ts, "/expenses", url.Values{
		"project_id": {projectID},
		"item":       {"Beer"},
		"amount":     {""},
	})
	readBody(t, resp)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("blank amount status = %d, want 422", resp.StatusCode)
	}
}

func TestProjectViewUnknownID(t *testing.T) {
	ts, _ := newTestServer(t)
	signInHTTP(t, ts)

	resp, err := http.Get(ts.URL + "/ui/project?id=nope")
	if err != nil {
		t.Fatalf("GET /ui/project error = %v", err)
	}
	readBody(t, resp)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown project status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteProjectCascadeViaHTTP(t *testing.T) {
	ts, session := newTestServer(t)
	signInHTTP(t, ts)

	resp := postForm(t, ts, "/projects", url.Values{"name": {"Trip"}})
	readBody(t, resp)
	awaitDashboard(t, ts, "Trip")
	projectID := session.Projects()[0].ID

	resp = postForm(t, ts, "/expenses", url.Values{
		"project_id": {projectID},
		"item":       {"Beer"},
		"amount":     {"5"},
	})
	readBody(t, resp)

	resp = postForm(t, ts, "/projects/delete", url.Values{"id": {projectID}})
	readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete project status = %d", resp.StatusCode)
	}

	awaitDashboard(t, ts, "No projects yet")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(session.Expenses()) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("expenses not removed by cascade, still %d", len(session.Expenses()))
}

func TestEventsStreamDeliversSnapshots(t *testing.T) {
	ts, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	if err != nil {
		t.Fatalf("NewRequest error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /events error = %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", got)
	}

	seen := map[string]bool{}
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			seen[strings.TrimPrefix(line, "event: ")] = true
		}
		if seen["projects"] && seen["expenses"] {
			return
		}
	}
	t.Fatalf("stream ended before both initial snapshots, saw %v", seen)
}
