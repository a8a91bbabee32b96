package constants

// Content Types
const (
	ContentTypeJSON  = "application/json"
	ContentTypeText  = "Content-Type"
	ContentTypeCSV   = "text/csv; charset=utf-8"
	ContentTypePlain = "text/plain; charset=utf-8"
	ContentTypeXLSX  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Gateway limits
const (
	MaxUploadMemory    = 32 << 20
	DefaultGatewayPort = 8081
	DefaultRunsLimit   = 50
	MaxRunsLimit       = 500
)
