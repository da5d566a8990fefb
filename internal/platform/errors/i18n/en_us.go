package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnhandled         = "UNHANDLED"
	CodeEntryNotFound     = "ENTRY_NOT_FOUND"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodeUnauthenticated   = "UNAUTHENTICATED"
)

var enUSMessages = map[Code]string{
	CodeUnhandled:         "Server error",
	CodeEntryNotFound:     "Entry not found",
	CodeUnsupportedFormat: "{{if eq (print .Kind) \"icon\"}}Icon should be SVG{{else}}Image should be PNG or JPG{{end}}",
	CodeInvalidArgument:   "{{if .Field}}Invalid {{.Field}}{{if .Reason}}: {{.Reason}}{{end}}{{else}}Invalid request{{end}}",
	CodeUnauthenticated:   "Authentication required",
}
