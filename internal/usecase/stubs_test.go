package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/waste-report/internal/classifier"
	"github.com/example/waste-report/internal/repository"
)

type stubIdentity struct {
	mu    sync.Mutex
	email string
}

func (s *stubIdentity) Email(ctx context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.email, s.email != ""
}

func (s *stubIdentity) set(email string) {
	s.mu.Lock()
	s.email = email
	s.mu.Unlock()
}

type createReportCall struct {
	userID       uint
	location     string
	wasteType    string
	amount       string
	imageURL     string
	verification string
}

type stubRepository struct {
	mu          sync.Mutex
	users       map[string]*repository.User
	nextID      uint
	recent      []repository.Report
	recentErr   error
	lookupErr   error
	userErr     error
	userExists  bool
	createErr   error
	createNil   bool
	createdAt   time.Time
	createCalls []createReportCall
	createGate  chan struct{}
}

func newStubRepository() *stubRepository {
	return &stubRepository{
		users:     make(map[string]*repository.User),
		nextID:    100,
		createdAt: time.Date(2024, 3, 5, 23, 30, 0, 0, time.FixedZone("EST", -5*3600)),
	}
}

func (s *stubRepository) GetUserByEmail(ctx context.Context, email string) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	return s.users[email], nil
}

func (s *stubRepository) CreateUser(ctx context.Context, email, name string) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := &repository.User{ID: uint(len(s.users) + 1), Email: email, Name: name}
	if s.userErr != nil {
		// userExists stands for a concurrent insert that won the unique index.
		if s.userExists {
			s.users[email] = user
		}
		return nil, s.userErr
	}
	s.users[email] = user
	return user, nil
}

func (s *stubRepository) CreateReport(ctx context.Context, userID uint, location, wasteType, amount, imageURL, verification string) (*repository.Report, error) {
	if s.createGate != nil {
		<-s.createGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls = append(s.createCalls, createReportCall{userID, location, wasteType, amount, imageURL, verification})
	if s.createErr != nil {
		return nil, s.createErr
	}
	if s.createNil {
		return nil, nil
	}
	s.nextID++
	return &repository.Report{
		ID:        s.nextID,
		UserID:    userID,
		Location:  location,
		WasteType: wasteType,
		Amount:    amount,
		Status:    repository.StatusPending,
		CreatedAt: s.createdAt,
	}, nil
}

func (s *stubRepository) GetRecentReports(ctx context.Context, limit int) ([]repository.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	return s.recent, nil
}

func (s *stubRepository) calls() []createReportCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]createReportCall(nil), s.createCalls...)
}

// stubClassifier answers with the queued responses in order. When gate is
// set, every call signals started and blocks until gate is closed or sent to.
type stubClassifier struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	images    []classifier.Image
	ctxErrs   []error
	started   chan struct{}
	gate      chan struct{}
}

func (s *stubClassifier) Classify(ctx context.Context, prompt string, image classifier.Image) (string, error) {
	s.mu.Lock()
	s.images = append(s.images, image)
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	started, gate := s.started, s.gate
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		text string
		err  error
	)
	if len(s.responses) > 0 {
		text = s.responses[0]
		s.responses = s.responses[1:]
	}
	if len(s.errs) > 0 {
		err = s.errs[0]
		s.errs = s.errs[1:]
	}
	return text, err
}

func (s *stubClassifier) queue(text string, err error) {
	s.mu.Lock()
	s.responses = append(s.responses, text)
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

type stubImageStore struct {
	err error
}

func (s *stubImageStore) Store(ctx context.Context, userID uint, image classifier.Image) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return image.DataURL(), nil
}

var errBoom = errors.New("boom")
