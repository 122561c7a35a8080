package usecase

import (
	"errors"

	"github.com/example/waste-report/internal/verification"
)

// NoticeLevel classifies a user-facing notice.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a short message meant for the person filling in the report.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

const (
	MsgVerified           = "Waste verified successfully."
	MsgNoWasteInImage     = "No waste detected in the image. Please upload an image containing waste."
	MsgParseFailed        = "Failed to process AI response. Please try again."
	MsgVerifyFailed       = "Error during verification. Please try again."
	MsgNoWasteResubmit    = "No waste detected in the image. Please upload a new image."
	MsgVerifyFirst        = "Please verify the waste before submitting or log in."
	MsgSubmitted          = "Report submitted successfully! A collector will be assigned soon."
	MsgSubmitFailed       = "Failed to submit report. Please try again."
	MsgNoImage            = "Please select an image of the waste first."
	MsgImageNotReady      = "The selected image is still being prepared. Please try again."
	MsgVerifyInProgress   = "Verification is already in progress."
	MsgSubmitInProgress   = "A submission is already in progress."
	MsgAttemptsExhausted  = "Verification attempt limit reached. Please upload a new image."
	MsgImageTooLarge      = "The selected image is too large."
	MsgUnsupportedImage   = "The selected file type is not supported."
	MsgImageReplaced      = "The image changed before verification finished."
	MsgUnauthenticated    = "Please log in to report waste."
	MsgSomethingWentWrong = "Something went wrong. Please try again."
)

var (
	ErrUnauthenticated         = errors.New("no authenticated user")
	ErrNoImage                 = errors.New("no image selected")
	ErrImageNotReady           = errors.New("image encoding not finished")
	ErrVerifyInProgress        = errors.New("verification already in progress")
	ErrSubmitInProgress        = errors.New("submission already in progress")
	ErrVerifyAttemptsExhausted = errors.New("verification attempts exhausted")
	ErrImageTooLarge           = errors.New("image exceeds size limit")
	ErrUnsupportedImageType    = errors.New("image type not allowed")
	ErrStaleVerification       = errors.New("image replaced during verification")
	ErrNoWasteDetected         = errors.New("submit rejected: no waste detected")
	ErrNotVerified             = errors.New("submit rejected: waste not verified")
	ErrSubmitFailed            = errors.New("report could not be saved")
)

// UserMessage maps a workflow error to the message shown to the user. Raw
// error text never leaves this package through it.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return MsgUnauthenticated
	case errors.Is(err, ErrNoImage):
		return MsgNoImage
	case errors.Is(err, ErrImageNotReady):
		return MsgImageNotReady
	case errors.Is(err, ErrVerifyInProgress):
		return MsgVerifyInProgress
	case errors.Is(err, ErrSubmitInProgress):
		return MsgSubmitInProgress
	case errors.Is(err, ErrVerifyAttemptsExhausted):
		return MsgAttemptsExhausted
	case errors.Is(err, ErrImageTooLarge):
		return MsgImageTooLarge
	case errors.Is(err, ErrUnsupportedImageType):
		return MsgUnsupportedImage
	case errors.Is(err, ErrStaleVerification):
		return MsgImageReplaced
	case errors.Is(err, ErrNoWasteDetected):
		return MsgNoWasteResubmit
	case errors.Is(err, ErrNotVerified):
		return MsgVerifyFirst
	case errors.Is(err, ErrSubmitFailed):
		return MsgSubmitFailed
	case errors.Is(err, verification.ErrNoWaste):
		return MsgNoWasteInImage
	default:
		return MsgSomethingWentWrong
	}
}

func errorNotice(msg string) *Notice {
	return &Notice{Level: NoticeError, Message: msg}
}
