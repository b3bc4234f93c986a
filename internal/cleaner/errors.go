package cleaner

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
)

// ErrorReason categorizes why a deletion failed
type ErrorReason int

const (
	ErrorPermissionDenied ErrorReason = iota
	ErrorFileInUse
	ErrorFileNotFound
	ErrorIsDirectory
	ErrorInvalidPath
	ErrorSystemProtected
	ErrorElevationCancelled
	ErrorElevationFailed
	ErrorUnknown
)

// String returns a human-readable error reason
func (e ErrorReason) String() string {
	switch e {
	case ErrorPermissionDenied:
		return "Permission denied"
	case ErrorFileInUse:
		return "File is in use"
	case ErrorFileNotFound:
		return "File not found"
	case ErrorIsDirectory:
		return "Is a directory"
	case ErrorInvalidPath:
		return "Invalid path"
	case ErrorSystemProtected:
		return "Protected by the system"
	case ErrorElevationCancelled:
		return "Administrator approval declined"
	case ErrorElevationFailed:
		return "Privileged removal failed"
	case ErrorUnknown:
		return "Unknown error"
	default:
		return "Unspecified error"
	}
}

// DeletionError is the per-unit failure recorded by a sweep
type DeletionError struct {
	Path      string
	Reason    ErrorReason
	Original  error
	Retryable bool
	NeedsSudo bool
}

// Error implements the error interface
func (e *DeletionError) Error() string {
	return fmt.Sprintf("%s: %s (%v)", e.Path, e.Reason, e.Original)
}

// Unwrap returns the underlying error
func (e *DeletionError) Unwrap() error {
	return e.Original
}

// UserMessage returns a one-line message suitable for the terminal
func (e *DeletionError) UserMessage() string {
	switch e.Reason {
	case ErrorPermissionDenied:
		if e.NeedsSudo {
			return fmt.Sprintf("Needs administrator approval to delete: %s", e.Path)
		}
		return fmt.Sprintf("Permission denied: %s", e.Path)
	case ErrorFileInUse:
		return fmt.Sprintf("File is being used: %s (close the application and try again)", e.Path)
	case ErrorFileNotFound:
		return fmt.Sprintf("Already deleted: %s", e.Path)
	case ErrorIsDirectory:
		return fmt.Sprintf("Cannot delete directory: %s", e.Path)
	case ErrorInvalidPath:
		return fmt.Sprintf("Invalid or unsafe path: %s", e.Path)
	case ErrorSystemProtected:
		return fmt.Sprintf("Protected by the operating system: %s", e.Path)
	case ErrorElevationCancelled:
		return fmt.Sprintf("Skipped, administrator approval was declined: %s", e.Path)
	case ErrorElevationFailed:
		return fmt.Sprintf("Privileged removal failed for %s: %v", e.Path, e.Original)
	default:
		return fmt.Sprintf("Error deleting %s: %v", e.Path, e.Original)
	}
}

// CategorizeError analyzes an error and returns a categorized DeletionError
func CategorizeError(path string, err error) *DeletionError {
	if err == nil {
		return nil
	}

	delErr := &DeletionError{
		Path:     path,
		Original: err,
		Reason:   ErrorUnknown,
	}

	var errno syscall.Errno
	switch {
	case errors.As(err, &errno):
		switch errno {
		case syscall.EACCES, syscall.EPERM:
			delErr.Reason = ErrorPermissionDenied
			delErr.NeedsSudo = true
		case syscall.EROFS:
			delErr.Reason = ErrorSystemProtected
		case syscall.EBUSY, syscall.ETXTBSY:
			delErr.Reason = ErrorFileInUse
			delErr.Retryable = true
		case syscall.ENOENT:
			delErr.Reason = ErrorFileNotFound
		case syscall.EISDIR, syscall.ENOTEMPTY:
			delErr.Reason = ErrorIsDirectory
		case syscall.EINVAL, syscall.ENAMETOOLONG:
			delErr.Reason = ErrorInvalidPath
		}
	case errors.Is(err, fs.ErrNotExist):
		delErr.Reason = ErrorFileNotFound
	case errors.Is(err, fs.ErrPermission):
		delErr.Reason = ErrorPermissionDenied
		delErr.NeedsSudo = true
	}

	return delErr
}

// GroupErrors groups deletion errors by reason
func GroupErrors(errs []*DeletionError) map[ErrorReason][]*DeletionError {
	grouped := make(map[ErrorReason][]*DeletionError)
	for _, err := range errs {
		grouped[err.Reason] = append(grouped[err.Reason], err)
	}
	return grouped
}

// FormatErrorSummary creates a user-friendly summary of errors
func FormatErrorSummary(errs []*DeletionError) string {
	if len(errs) == 0 {
		return ""
	}

	grouped := GroupErrors(errs)
	var b strings.Builder
	b.WriteString("Issues encountered:\n")

	line := func(reason ErrorReason, label, tip string) {
		items, ok := grouped[reason]
		if !ok {
			return
		}
		fmt.Fprintf(&b, "  - %s: %d\n", label, len(items))
		if tip != "" {
			fmt.Fprintf(&b, "    Tip: %s\n", tip)
		}
	}

	line(ErrorPermissionDenied, "Permission denied", "approve the administrator prompt or run with sudo")
	line(ErrorSystemProtected, "Protected by the system", "grant Full Disk Access in System Settings > Privacy & Security")
	line(ErrorElevationCancelled, "Administrator approval declined", "run the sweep again and approve the prompt")
	line(ErrorElevationFailed, "Privileged removal failed", "")
	line(ErrorFileInUse, "File in use", "close applications and retry")
	line(ErrorFileNotFound, "Already deleted", "")
	line(ErrorIsDirectory, "Directories", "")
	line(ErrorInvalidPath, "Invalid paths", "")
	line(ErrorUnknown, "Other errors", "")

	return b.String()
}
