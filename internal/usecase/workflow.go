package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/waste-report/internal/classifier"
	"github.com/example/waste-report/internal/logging"
	"github.com/example/waste-report/internal/repository"
	"github.com/example/waste-report/internal/storage"
	"github.com/example/waste-report/internal/verification"
)

// State is the verification state of a workflow.
type State string

const (
	StateIdle      State = "idle"
	StateVerifying State = "verifying"
	StateSuccess   State = "success"
	StateFailure   State = "failure"
	StateNoWaste   State = "no_waste"
)

const (
	anonymousUserName      = "Anonymous User"
	defaultRecentLimit     = 10
	defaultClassifyTimeout = 60 * time.Second
	defaultSubmitTimeout   = 30 * time.Second
	reportDateLayout       = "2006-01-02"
)

// ReportRepository defines the persistence operations needed by the workflow.
type ReportRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*repository.User, error)
	CreateUser(ctx context.Context, email, name string) (*repository.User, error)
	CreateReport(ctx context.Context, userID uint, location, wasteType, amount, imageURL, verification string) (*repository.Report, error)
	GetRecentReports(ctx context.Context, limit int) ([]repository.Report, error)
}

// IdentityProvider resolves the signed-in user for a request.
type IdentityProvider interface {
	Email(ctx context.Context) (string, bool)
}

// UploadedImage is a file selected by the user.
type UploadedImage struct {
	Filename string
	MIMEType string
	Data     []byte
}

// EncodedImage is the base64 form of the current UploadedImage.
type EncodedImage = classifier.Image

// Draft holds the report fields being filled in. Type and Amount only ever
// come from the latest successful verification.
type Draft struct {
	Location string `json:"location"`
	Type     string `json:"type"`
	Amount   string `json:"amount"`
}

// ReportView is a report as listed to the user.
type ReportView struct {
	ID        uint                    `json:"id"`
	Location  string                  `json:"location"`
	WasteType string                  `json:"wasteType"`
	Amount    string                  `json:"amount"`
	CreatedAt string                  `json:"createdAt"`
	Status    repository.ReportStatus `json:"status"`
}

// NewReportView formats a persisted report, keeping only the UTC calendar
// date of its creation time.
func NewReportView(r repository.Report) ReportView {
	return ReportView{
		ID:        r.ID,
		Location:  r.Location,
		WasteType: r.WasteType,
		Amount:    r.Amount,
		CreatedAt: r.CreatedAt.UTC().Format(reportDateLayout),
		Status:    r.Status,
	}
}

// ImageInfo describes the selected image. Preview is empty until encoding
// has finished.
type ImageInfo struct {
	Filename string `json:"filename,omitempty"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Preview  string `json:"preview,omitempty"`
}

// Snapshot is a consistent read of the workflow.
type Snapshot struct {
	State      State                `json:"state"`
	Draft      Draft                `json:"draft"`
	Result     *verification.Result `json:"result,omitempty"`
	Image      *ImageInfo           `json:"image,omitempty"`
	CanVerify  bool                 `json:"canVerify"`
	CanSubmit  bool                 `json:"canSubmit"`
	Submitting bool                 `json:"submitting"`
	Notice     *Notice              `json:"notice,omitempty"`
	Reports    []ReportView         `json:"reports"`
}

// Policy holds optional limits on uploads and verification. Zero values
// disable the matching check.
type Policy struct {
	MaxImageBytes     int64
	AllowedMIMETypes  []string
	MaxVerifyAttempts int
}

func (p Policy) check(img UploadedImage) error {
	if p.MaxImageBytes > 0 && int64(len(img.Data)) > p.MaxImageBytes {
		return ErrImageTooLarge
	}
	if len(p.AllowedMIMETypes) == 0 {
		return nil
	}
	mimeType := strings.ToLower(strings.TrimSpace(img.MIMEType))
	for _, allowed := range p.AllowedMIMETypes {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == mimeType {
			return nil
		}
		if prefix, ok := strings.CutSuffix(allowed, "/*"); ok && strings.HasPrefix(mimeType, prefix+"/") {
			return nil
		}
	}
	return ErrUnsupportedImageType
}

// WorkflowDeps are the collaborators shared by every workflow.
type WorkflowDeps struct {
	Classifier      classifier.Client
	Reports         ReportRepository
	Images          storage.ImageStore
	Identity        IdentityProvider
	Policy          Policy
	ClassifyTimeout time.Duration
	SubmitTimeout   time.Duration
	RecentLimit     int
	Logger          *zap.Logger
}

// Workflow drives one user's report form: image selection, a single remote
// classification per verify, and submission gated on a successful result.
//
// Methods are safe for concurrent use. At most one Verify and one Submit run
// at a time; overlapping calls are rejected rather than queued.
type Workflow struct {
	deps   WorkflowDeps
	logger *zap.Logger

	mu             sync.Mutex
	user           *repository.User
	image          *UploadedImage
	encoded        *EncodedImage
	generation     uint64
	state          State
	result         *verification.Result
	draft          Draft
	verifying      bool
	submitting     bool
	verifyAttempts int
	notice         *Notice
	reports        []ReportView
}

// NewWorkflow resolves the signed-in user, creating an account on first
// visit, and loads the recent reports list.
func NewWorkflow(ctx context.Context, deps WorkflowDeps) (*Workflow, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Images == nil {
		deps.Images = storage.InlineStore{}
	}
	if deps.ClassifyTimeout <= 0 {
		deps.ClassifyTimeout = defaultClassifyTimeout
	}
	if deps.SubmitTimeout <= 0 {
		deps.SubmitTimeout = defaultSubmitTimeout
	}
	if deps.RecentLimit <= 0 {
		deps.RecentLimit = defaultRecentLimit
	}

	email, ok := deps.Identity.Email(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}

	logger := deps.Logger.Named("workflow").With(zap.String("email", email))
	user, err := deps.Reports.GetUserByEmail(ctx, email)
	if err != nil {
		logger.Error("failed to look up user", zap.Error(err))
		return nil, err
	}
	if user == nil {
		user, err = createUser(ctx, deps.Reports, email)
		if err != nil {
			logger.Error("failed to create user", zap.Error(err))
			return nil, err
		}
		logger.Info("resolved user on first visit", zap.Uint("user_id", user.ID))
	}

	w := &Workflow{
		deps:    deps,
		logger:  logger,
		user:    user,
		state:   StateIdle,
		reports: []ReportView{},
	}

	recent, err := deps.Reports.GetRecentReports(ctx, deps.RecentLimit)
	if err != nil {
		logger.Warn("failed to load recent reports", zap.Error(err))
		return w, nil
	}
	for _, r := range recent {
		w.reports = append(w.reports, NewReportView(r))
	}
	return w, nil
}

// createUser inserts the user, falling back to a lookup when the insert loses
// a race against another first visit with the same email.
func createUser(ctx context.Context, reports ReportRepository, email string) (*repository.User, error) {
	user, err := reports.CreateUser(ctx, email, anonymousUserName)
	if err == nil {
		return user, nil
	}
	existing, lookupErr := reports.GetUserByEmail(ctx, email)
	if lookupErr != nil || existing == nil {
		return nil, err
	}
	return existing, nil
}

// SelectImage makes img the current image, dropping any previous result.
// It is rejected while a verification or submission is in flight.
func (w *Workflow) SelectImage(ctx context.Context, img UploadedImage) (Snapshot, error) {
	if err := w.deps.Policy.check(img); err != nil {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.notice = errorNotice(UserMessage(err))
		return w.snapshotLocked(), err
	}

	w.mu.Lock()
	if err := w.busyLocked(); err != nil {
		snap := w.snapshotLocked()
		w.mu.Unlock()
		return snap, err
	}
	w.generation++
	gen := w.generation
	w.image = &img
	w.encoded = nil
	w.result = nil
	w.state = StateIdle
	w.draft.Type, w.draft.Amount = "", ""
	w.verifyAttempts = 0
	w.notice = nil
	w.mu.Unlock()

	encoded := EncodedImage{
		Base64:   base64.StdEncoding.EncodeToString(img.Data),
		MIMEType: img.MIMEType,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.generation {
		// A newer selection won; its own encoding will be stored.
		return w.snapshotLocked(), nil
	}
	w.encoded = &encoded
	return w.snapshotLocked(), nil
}

// SetLocation updates the only user-editable draft field.
func (w *Workflow) SetLocation(location string) Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft.Location = location
	return w.snapshotLocked()
}

// Verify classifies the current image with one remote call and moves the
// workflow to success, no_waste or failure. Precondition failures return an
// error and leave the state untouched; classification outcomes are reported
// through the snapshot.
//
// The remote call ignores cancellation of ctx: once started it runs until
// it answers or the classify timeout expires.
func (w *Workflow) Verify(ctx context.Context) (Snapshot, error) {
	w.mu.Lock()
	if err := w.verifyPreconditionLocked(); err != nil {
		snap := w.snapshotLocked()
		w.mu.Unlock()
		return snap, err
	}
	w.state = StateVerifying
	w.verifying = true
	w.verifyAttempts++
	w.notice = nil
	gen := w.generation
	image := *w.encoded
	w.mu.Unlock()

	requestID := uuid.NewString()
	opLogger := logging.WithOperation(w.logger, "usecase.verify", requestID)

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.deps.ClassifyTimeout)
	text, callErr := w.deps.Classifier.Classify(callCtx, verification.Prompt, image)
	cancel()

	var (
		result   *verification.Result
		parseErr error
	)
	if callErr == nil {
		result, parseErr = verification.ParseResponse(text)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.verifying = false

	if gen != w.generation {
		opLogger.Info("discarding verification of a replaced image")
		return w.snapshotLocked(), ErrStaleVerification
	}

	switch {
	case callErr != nil:
		opLogger.Error("error verifying waste", zap.Error(logging.NewOperationError("usecase.classify", requestID, callErr)))
		w.failLocked(MsgVerifyFailed)
	case errors.Is(parseErr, verification.ErrNoWaste):
		opLogger.Info("no waste detected")
		w.state = StateNoWaste
		w.result = nil
		w.notice = &Notice{Level: NoticeWarning, Message: MsgNoWasteInImage}
	case parseErr != nil:
		opLogger.Warn("failed to parse AI response", zap.Error(parseErr), zap.String("response", text))
		w.failLocked(MsgParseFailed)
	default:
		opLogger.Info("waste verified",
			zap.String("waste_type", result.WasteType),
			zap.String("quantity", result.Quantity),
			zap.Float64("confidence", result.Confidence),
		)
		w.result = result
		w.state = StateSuccess
		w.draft.Type = result.WasteType
		w.draft.Amount = result.Quantity
		w.notice = &Notice{Level: NoticeSuccess, Message: MsgVerified}
	}
	return w.snapshotLocked(), nil
}

// Submit persists the draft as a report. It requires a successful
// verification and the same signed-in user the workflow was created for;
// both are checked before any network call. On failure the draft and the
// result are kept so the user can retry without verifying again.
func (w *Workflow) Submit(ctx context.Context) (Snapshot, *ReportView, error) {
	return w.submit(ctx, nil)
}

// SubmitWithLocation is Submit with the location set in the same step. The
// draft is only changed once the preconditions pass.
func (w *Workflow) SubmitWithLocation(ctx context.Context, location string) (Snapshot, *ReportView, error) {
	return w.submit(ctx, &location)
}

func (w *Workflow) submit(ctx context.Context, location *string) (Snapshot, *ReportView, error) {
	w.mu.Lock()
	if w.submitting {
		snap := w.snapshotLocked()
		w.mu.Unlock()
		return snap, nil, ErrSubmitInProgress
	}
	email, authed := w.deps.Identity.Email(ctx)
	if w.state != StateSuccess || w.result == nil || !authed || w.user == nil || email != w.user.Email {
		err := ErrNotVerified
		if w.state == StateNoWaste {
			err = ErrNoWasteDetected
		}
		w.notice = errorNotice(UserMessage(err))
		snap := w.snapshotLocked()
		w.mu.Unlock()
		return snap, nil, err
	}
	if location != nil {
		w.draft.Location = *location
	}
	w.submitting = true
	w.notice = nil
	user := *w.user
	draft := w.draft
	result := *w.result
	var image *EncodedImage
	if w.encoded != nil {
		img := *w.encoded
		image = &img
	}
	w.mu.Unlock()

	requestID := uuid.NewString()
	opLogger := logging.WithOperation(w.logger, "usecase.submit", requestID)

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.deps.SubmitTimeout)
	report, err := w.persist(persistCtx, user, draft, result, image)
	cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false

	if err != nil {
		opLogger.Error("error submitting report", zap.Error(logging.NewOperationError("usecase.submit", requestID, err)))
		w.notice = errorNotice(MsgSubmitFailed)
		return w.snapshotLocked(), nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}

	view := NewReportView(*report)
	w.reports = append([]ReportView{view}, w.reports...)
	w.clearLocked()
	w.draft = Draft{}
	w.notice = &Notice{Level: NoticeSuccess, Message: MsgSubmitted}
	opLogger.Info("report submitted", zap.Uint("report_id", report.ID))
	return w.snapshotLocked(), &view, nil
}

func (w *Workflow) persist(ctx context.Context, user repository.User, draft Draft, result verification.Result, image *EncodedImage) (*repository.Report, error) {
	var imageURL string
	if image != nil {
		url, err := w.deps.Images.Store(ctx, user.ID, *image)
		if err != nil {
			return nil, err
		}
		imageURL = url
	}

	report, err := w.deps.Reports.CreateReport(ctx, user.ID, draft.Location, draft.Type, draft.Amount, imageURL, result.Metadata())
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, repository.ErrNotCreated
	}
	return report, nil
}

// Reset discards the image, result and draft, as when the form is torn down.
// A verification still in flight is discarded when it returns, and no new
// one can start before then.
func (w *Workflow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clearLocked()
	w.draft = Draft{}
	w.notice = nil
}

// Snapshot returns the current state of the workflow.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// UserID is the persisted id of the user the workflow belongs to.
func (w *Workflow) UserID() uint {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.user == nil {
		return 0
	}
	return w.user.ID
}

// Email is the address of the user the workflow belongs to.
func (w *Workflow) Email() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.user == nil {
		return ""
	}
	return w.user.Email
}

func (w *Workflow) verifyPreconditionLocked() error {
	if err := w.busyLocked(); err != nil {
		return err
	}
	switch {
	case w.image == nil:
		return ErrNoImage
	case w.encoded == nil:
		return ErrImageNotReady
	case w.deps.Policy.MaxVerifyAttempts > 0 && w.verifyAttempts >= w.deps.Policy.MaxVerifyAttempts:
		return ErrVerifyAttemptsExhausted
	}
	return nil
}

// busyLocked reports an outstanding remote call. The verifying flag outlives
// Reset so a discarded verification still blocks the next one until it returns.
func (w *Workflow) busyLocked() error {
	if w.verifying {
		return ErrVerifyInProgress
	}
	if w.submitting {
		return ErrSubmitInProgress
	}
	return nil
}

func (w *Workflow) failLocked(msg string) {
	w.state = StateFailure
	w.result = nil
	w.notice = errorNotice(msg)
}

func (w *Workflow) clearLocked() {
	w.generation++
	w.image = nil
	w.encoded = nil
	w.result = nil
	w.state = StateIdle
	w.verifyAttempts = 0
}

func (w *Workflow) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:      w.state,
		Draft:      w.draft,
		Submitting: w.submitting,
		CanVerify:  w.verifyPreconditionLocked() == nil,
		CanSubmit:  !w.submitting && w.state == StateSuccess && w.user != nil,
		Reports:    append([]ReportView(nil), w.reports...),
	}
	if w.result != nil {
		r := *w.result
		snap.Result = &r
	}
	if w.image != nil {
		info := &ImageInfo{
			Filename: w.image.Filename,
			MIMEType: w.image.MIMEType,
			Size:     int64(len(w.image.Data)),
		}
		if w.encoded != nil {
			info.Preview = w.encoded.DataURL()
		}
		snap.Image = info
	}
	if w.notice != nil {
		n := *w.notice
		snap.Notice = &n
	}
	if snap.Reports == nil {
		snap.Reports = []ReportView{}
	}
	return snap
}
