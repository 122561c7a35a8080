package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func newTestRouter(audience string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/me", JWTMiddleware(testSecret, audience), func(c *gin.Context) {
		email, ok := ContextIdentity{}.Email(c.Request.Context())
		id, _ := GetIdentity(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"email": email, "ok": ok, "role": id.Role})
	})
	return router
}

func issue(t *testing.T, secret, email, subject string, aud ...string) string {
	t.Helper()
	token, err := IssueToken(secret, email, "reporter", jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  aud,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func doRequest(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestJWTMiddlewareInjectsIdentity(t *testing.T) {
	router := newTestRouter("")
	resp := doRequest(router, "Bearer "+issue(t, testSecret, "Ana@Example.com", ""))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if body := resp.Body.String(); body != `{"email":"ana@example.com","ok":true,"role":"reporter"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestJWTMiddlewareFallsBackToSubject(t *testing.T) {
	router := newTestRouter("")
	resp := doRequest(router, "Bearer "+issue(t, testSecret, "", "bo@example.com"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestJWTMiddlewareRejects(t *testing.T) {
	cases := []struct {
		name     string
		audience string
		header   func(t *testing.T) string
	}{
		{name: "missing header", header: func(t *testing.T) string { return "" }},
		{name: "wrong scheme", header: func(t *testing.T) string { return "Basic abc" }},
		{name: "bad signature", header: func(t *testing.T) string { return "Bearer " + issue(t, "other", "a@b.c", "") }},
		{name: "no email", header: func(t *testing.T) string { return "Bearer " + issue(t, testSecret, "", "") }},
		{name: "wrong audience", audience: "web", header: func(t *testing.T) string { return "Bearer " + issue(t, testSecret, "a@b.c", "", "mobile") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(newTestRouter(tc.audience), tc.header(t))
			if resp.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.Code)
			}
		})
	}
}
