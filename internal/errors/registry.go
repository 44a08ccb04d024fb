package errors

import "sort"

// Template defines a registered error type.
type Template struct {
	Category   Category
	Message    string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]Template{
	// ============================================
	// Configuration Errors (E100-E199)
	// ============================================

	"E101": {
		Category:   CategoryConfig,
		Message:    "Invalid configuration file",
		Suggestion: "Check chartsync.json for a missing comma, quote or brace.",
	},
	"E102": {
		Category:   CategoryConfig,
		Message:    "Cannot read configuration file",
		Suggestion: "Check that the file exists and is readable.",
	},
	"E103": {
		Category:   CategoryConfig,
		Message:    "Invalid server port",
		Suggestion: "Use a port between 1 and 65535.",
	},
	"E104": {
		Category:   CategoryConfig,
		Message:    "Unknown storage backend",
		Suggestion: `Set storage.backend to "memory", "file" or "s3".`,
	},
	"E105": {
		Category:   CategoryConfig,
		Message:    "Missing storage path",
		Suggestion: "Set storage.path to the preferences file when using the file backend.",
	},
	"E106": {
		Category:   CategoryConfig,
		Message:    "Missing S3 bucket",
		Suggestion: "Set storage.bucket when using the s3 backend.",
	},
	"E107": {
		Category:   CategoryConfig,
		Message:    "Invalid log level",
		Suggestion: `Use one of "debug", "info", "warn" or "error".`,
	},
	"E108": {
		Category:   CategoryConfig,
		Message:    "Invalid log format",
		Suggestion: `Use "text" or "json".`,
	},
	"E109": {
		Category:   CategoryConfig,
		Message:    "Invalid shutdown timeout",
		Suggestion: `Use a positive Go duration such as "30s".`,
	},
	"E110": {
		Category:   CategoryConfig,
		Message:    "Cannot write configuration file",
		Suggestion: "Check that the directory exists and is writable.",
	},

	// ============================================
	// Storage Errors (E200-E299)
	// ============================================

	"E201": {
		Category:   CategoryStorage,
		Message:    "Cannot open preference storage",
		Suggestion: "Check the storage section of chartsync.json.",
	},
	"E202": {
		Category:   CategoryStorage,
		Message:    "Preference read failed",
		Suggestion: "Check that the storage backend is reachable.",
	},
	"E203": {
		Category:   CategoryStorage,
		Message:    "Preference write failed",
		Suggestion: "Check that the storage backend is reachable and writable.",
	},

	// ============================================
	// CLI Errors (E300-E399)
	// ============================================

	"E301": {
		Category: CategoryCLI,
		Message:  "Invalid argument",
	},
	"E302": {
		Category: CategoryCLI,
		Message:  "Server failed",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}

// Codes returns every registered code, sorted.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// ByCategory returns the sorted codes registered under category.
func ByCategory(category Category) []string {
	var codes []string
	for code, t := range registry {
		if t.Category == category {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}
