package constants

import "fmt"

// ============================================================================
// REQUEST ERRORS
// ============================================================================

const (
	ErrMethodNotAllowed   = "Method Not Allowed"
	ErrMultipartForm      = "Failed to parse multipart form"
	ErrNoFileUploaded     = "No file uploaded. Send the spreadsheet in the 'file' field"
	ErrUnknownSource      = "Unknown source system %q. Use BCI or AUS"
	ErrUnsupportedFile    = "Unsupported file type %s. Upload .xlsx, .xls or .csv"
	ErrInvalidDryRun      = "dry_run must be true or false"
	ErrInvalidRunID       = "Invalid run id"
	ErrInvalidLimit       = "limit must be a positive number"
	ErrInvalidArtifact    = "Invalid artifact name"
	ErrOpenUploadedFile   = "Failed to open file: %s"
	ErrReadUploadedFile   = "Invalid or empty file: %s"
	ErrRouteNotFound      = "404 - Route not found"
	ErrIngestServiceUnset = "Ingest service unavailable"
)

// ============================================================================
// RUN ERRORS
// ============================================================================

const (
	ErrHeaderMismatch      = "File %s is missing required %s headers: %s"
	ErrDatabaseUnavailable = "Database unavailable. Nothing was written; retry when the database is reachable"
	ErrRunFailed           = "Run failed: %s"
	ErrRunNotFound         = "Run not found"
	ErrArtifactNotFound    = "Artifact not found for this run"
	ErrRunHistory          = "Failed to read run history"
)

// ============================================================================
// SUCCESS MESSAGES
// ============================================================================

const (
	SuccessIngested = "File ingested. %d of %d rows processed"
	SuccessDryRun   = "Dry run complete. %d of %d rows would be inserted"
)

// FormatError formats an error message with additional context
func FormatError(baseError string, context ...interface{}) string {
	if len(context) == 0 {
		return baseError
	}
	return fmt.Sprintf(baseError, context...)
}
