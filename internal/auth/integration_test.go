package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mrlokans/librapp/internal/config"
	"github.com/mrlokans/librapp/internal/database/users"
	"github.com/mrlokans/librapp/internal/entities"
)

type recordedEvent struct {
	userID uint
	action string
}

type fakeRecorder struct {
	events []recordedEvent
}

func (f *fakeRecorder) RecordAuthEvent(_ context.Context, userID uint, action string) {
	f.events = append(f.events, recordedEvent{userID: userID, action: action})
}

type testServer struct {
	router   *gin.Engine
	svc      *Service
	recorder *fakeRecorder
	cookies  map[string]*http.Cookie
}

func setupTestServer(t *testing.T, mode config.AuthMode) *testServer {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get SQL DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&entities.User{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	cfg := config.Auth{
		Mode:             mode,
		SessionLifetime:  24 * time.Hour,
		BcryptCost:       4,
		SecureCookies:    false,
		MaxLoginAttempts: 3,
	}
	svc := NewService(users.NewRepository(db), cfg)
	sm, err := NewSessionManager(sqlDB, cfg)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	middleware := NewMiddleware(svc, sm, cfg)
	recorder := &fakeRecorder{}
	controller := NewAuthController(svc, sm, recorder, cfg, nil)
	t.Cleanup(controller.Stop)

	router := gin.New()
	router.Use(SecurityHeadersMiddleware())
	router.Use(sm.SessionLoadSave())
	router.Use(CSRFMiddleware(testCSRFSecret, false, SessionCookieName, svc))
	router.Use(middleware.Handler())
	api := router.Group("/api")
	controller.RegisterRoutes(api, middleware)
	api.GET("/loans", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c)})
	})

	return &testServer{router: router, svc: svc, recorder: recorder, cookies: map[string]*http.Cookie{}}
}

// do sends a request carrying every cookie received so far.
func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range s.cookies {
		req.AddCookie(c)
	}

	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	resp := http.Response{Header: rr.Header()}
	for _, c := range resp.Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(s.cookies, c.Name)
			continue
		}
		s.cookies[c.Name] = c
	}
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestIntegration_NoAuthMode(t *testing.T) {
	s := setupTestServer(t, config.AuthModeNone)

	rr := s.do(t, http.MethodGet, "/api/loans", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rr.Code)
	}

	status := decode(t, s.do(t, http.MethodGet, "/api/auth/status", "", nil))
	if status["setup_required"] != false {
		t.Errorf("Expected setup_required=false without auth, got %v", status["setup_required"])
	}
}

func TestIntegration_SetupLoginSessionFlow(t *testing.T) {
	s := setupTestServer(t, config.AuthModeLocal)

	status := decode(t, s.do(t, http.MethodGet, "/api/auth/status", "", nil))
	if status["setup_required"] != true {
		t.Fatalf("Expected setup_required=true, got %v", status)
	}

	if rr := s.do(t, http.MethodGet, "/api/loans", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 before login, got %d", rr.Code)
	}

	setup := `{"username":"admin","email":"admin@example.com","password":"password12345"}`
	if rr := s.do(t, http.MethodPost, "/api/auth/setup", setup, nil); rr.Code != http.StatusCreated {
		t.Fatalf("Setup returned %d: %s", rr.Code, rr.Body.String())
	}
	s.cookies = map[string]*http.Cookie{}

	if rr := s.do(t, http.MethodPost, "/api/auth/setup", setup, nil); rr.Code != http.StatusConflict {
		t.Errorf("Second setup returned %d, expected 409", rr.Code)
	}

	rr := s.do(t, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"password12345"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Login returned %d: %s", rr.Code, rr.Body.String())
	}
	if _, ok := s.cookies[SessionCookieName]; !ok {
		t.Fatal("No session cookie after login")
	}

	if rr := s.do(t, http.MethodGet, "/api/loans", "", nil); rr.Code != http.StatusOK {
		t.Errorf("Session request returned %d, expected 200", rr.Code)
	}

	me := decode(t, s.do(t, http.MethodGet, "/api/auth/me", "", nil))
	csrfToken, _ := me["csrf_token"].(string)
	if csrfToken == "" {
		t.Fatal("Expected a CSRF token from /api/auth/me")
	}

	if rr := s.do(t, http.MethodPost, "/api/auth/token", "", nil); rr.Code != http.StatusForbidden {
		t.Errorf("Session POST without CSRF token returned %d, expected 403", rr.Code)
	}

	rr = s.do(t, http.MethodPost, "/api/auth/token", "", map[string]string{CSRFTokenHeader: csrfToken})
	if rr.Code != http.StatusOK {
		t.Fatalf("Token request returned %d: %s", rr.Code, rr.Body.String())
	}
	token, _ := decode(t, rr)["token"].(string)
	if len(token) != len(TokenPrefix)+64 {
		t.Errorf("Token length = %d, want %d", len(token), len(TokenPrefix)+64)
	}

	rr = s.do(t, http.MethodPost, "/api/auth/logout", "", map[string]string{CSRFTokenHeader: csrfToken})
	if rr.Code != http.StatusOK {
		t.Fatalf("Logout returned %d: %s", rr.Code, rr.Body.String())
	}
	if rr := s.do(t, http.MethodGet, "/api/loans", "", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("Request after logout returned %d, expected 401", rr.Code)
	}

	// The bearer token outlives the session
	s.cookies = map[string]*http.Cookie{}
	if rr := s.do(t, http.MethodGet, "/api/loans", "", map[string]string{"Authorization": "Bearer " + token}); rr.Code != http.StatusOK {
		t.Errorf("Bearer request returned %d, expected 200", rr.Code)
	}

	var actions []string
	for _, e := range s.recorder.events {
		actions = append(actions, e.action)
	}
	want := []string{"setup", "login", "token_issued", "logout"}
	if strings.Join(actions, ",") != strings.Join(want, ",") {
		t.Errorf("Recorded %v, want %v", actions, want)
	}
}

func TestIntegration_AdminCreatesUser(t *testing.T) {
	s := setupTestServer(t, config.AuthModeLocal)

	admin, err := s.svc.CreateUser("admin", "admin@example.com", "password12345", entities.UserRoleAdmin)
	if err != nil {
		t.Fatalf("Failed to create admin: %v", err)
	}
	adminToken, _ := s.svc.GenerateToken(admin.ID)
	bearer := map[string]string{"Authorization": "Bearer " + adminToken}

	rr := s.do(t, http.MethodPost, "/api/users", `{"username":"clerk","email":"clerk@example.com","password":"password12345"}`, bearer)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Create user returned %d: %s", rr.Code, rr.Body.String())
	}
	if role := decode(t, rr)["role"]; role != string(entities.UserRoleLibrarian) {
		t.Errorf("Expected default librarian role, got %v", role)
	}

	rr = s.do(t, http.MethodPost, "/api/users", `{"username":"clerk","email":"other@example.com","password":"password12345"}`, bearer)
	if rr.Code != http.StatusConflict {
		t.Errorf("Duplicate user returned %d, expected 409", rr.Code)
	}

	rr = s.do(t, http.MethodPost, "/api/users", `{"username":"x","email":"x@example.com","password":"password12345"}`, bearer)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Invalid username returned %d, expected 400", rr.Code)
	}

	clerk, _ := s.svc.Authenticate("clerk", "password12345")
	clerkToken, _ := s.svc.GenerateToken(clerk.ID)
	rr = s.do(t, http.MethodGet, "/api/users", "", map[string]string{"Authorization": "Bearer " + clerkToken})
	if rr.Code != http.StatusForbidden {
		t.Errorf("Librarian listing users returned %d, expected 403", rr.Code)
	}
}

func TestIntegration_LoginRateLimit(t *testing.T) {
	s := setupTestServer(t, config.AuthModeLocal)
	if _, err := s.svc.CreateUser("admin", "admin@example.com", "password12345", entities.UserRoleAdmin); err != nil {
		t.Fatalf("Failed to create admin: %v", err)
	}

	bad := `{"username":"admin","password":"wrong-password"}`
	for i := 0; i < 3; i++ {
		if rr := s.do(t, http.MethodPost, "/api/auth/login", bad, nil); rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d returned %d, expected 401", i, rr.Code)
		}
	}

	rr := s.do(t, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"password12345"}`, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after repeated failures, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
}

func TestIntegration_SecurityHeaders(t *testing.T) {
	s := setupTestServer(t, config.AuthModeNone)

	rr := s.do(t, http.MethodGet, "/api/loans", "", nil)
	for _, h := range []string{"X-Frame-Options", "X-Content-Type-Options", "Content-Security-Policy"} {
		if rr.Header().Get(h) == "" {
			t.Errorf("Missing %s header", h)
		}
	}
}
