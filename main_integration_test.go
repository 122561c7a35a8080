package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/example/waste-report/internal/auth"
	"github.com/example/waste-report/internal/classifier"
	"github.com/example/waste-report/internal/handlers"
	"github.com/example/waste-report/internal/repository"
	"github.com/example/waste-report/internal/usecase"
)

const integrationSecret = "integration-secret"

// gatedClassifier signals started on every call and answers once release is
// closed.
type gatedClassifier struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedClassifier) Classify(ctx context.Context, prompt string, image classifier.Image) (string, error) {
	g.started <- struct{}{}
	<-g.release
	return `{"wasteType":"paper","quantity":"1kg","confidence":90}`, nil
}

func newIntegrationRouter(t *testing.T, logger *zap.Logger, cls classifier.Client) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:integration-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo := repository.NewRepository(db, logger)
	if err := repo.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	router := gin.New()
	handlers.RegisterRoutes(router, handlers.Deps{
		Registry: usecase.NewRegistry(usecase.WorkflowDeps{
			Classifier: cls,
			Reports:    repo,
			Identity:   auth.ContextIdentity{},
			Logger:     logger,
		}),
		Impact:  usecase.NewImpactService(repo, nil, 0, logger),
		Reports: repo,
		Rewards: repo,
		Logger:  logger,
	}, auth.JWTMiddleware(integrationSecret, ""))
	return router
}

func TestServerGracefulShutdownFinishesVerify(t *testing.T) {
	logger := zap.NewNop()

	cls := &gatedClassifier{started: make(chan struct{}, 1), release: make(chan struct{})}
	defer func() {
		select {
		case <-cls.release:
		default:
			close(cls.release)
		}
	}()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := &http.Server{Handler: newIntegrationRouter(t, logger, cls)}

	signalCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- serveHTTPServerWithOptions(server, 2*time.Second, logger, listener, signalCh)
	}()

	base := "http://" + listener.Addr().String()
	waitForServer(t, listener.Addr().String())

	token := signIntegrationToken(t, "collector@example.com")
	client := &http.Client{Timeout: 3 * time.Second}

	body, contentType := imageForm(t, []byte("paper-photo"))
	upload := authedRequest(t, http.MethodPost, base+"/report/image", token, body)
	upload.Header.Set("Content-Type", contentType)
	resp, err := client.Do(upload)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected upload status: %d", resp.StatusCode)
	}

	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	verify := authedRequest(t, http.MethodPost, base+"/report/verify", token, nil)
	go func() {
		resp, err := client.Do(verify)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-cls.started:
	case <-time.After(2 * time.Second):
		t.Fatal("verify did not reach the classifier in time")
	}

	signalCh <- syscall.SIGTERM
	time.Sleep(50 * time.Millisecond)
	close(cls.release)

	select {
	case resp := <-respCh:
		t.Cleanup(func() { resp.Body.Close() })
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status: %d body: %s", resp.StatusCode, string(raw))
		}
		var snap usecase.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			t.Fatalf("invalid snapshot %q: %v", raw, err)
		}
		if snap.State != usecase.StateSuccess || snap.Draft.Type != "paper" {
			t.Fatalf("expected verify to finish with success, got %+v", snap)
		}
	case err := <-errCh:
		t.Fatalf("verify request failed: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("verify request did not complete")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server did not shutdown cleanly: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not exit after shutdown")
	}
}

func authedRequest(t *testing.T, method, url, token string, body io.Reader) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func imageForm(t *testing.T, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="paper.png"`)
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func signIntegrationToken(t *testing.T, email string) string {
	t.Helper()
	token, err := auth.IssueToken(integrationSecret, email, "collector", jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}
