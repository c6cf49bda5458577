package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Runtime (E001-E019)
	"E001": {
		Category: CategoryRuntime,
		Message:  "Cyclic scheduling detected",
		Detail:   "Observers kept writing cells during every flush until the generation limit was reached. The pending queue was dropped.",
	},
	"E002": {
		Category: CategoryRuntime,
		Message:  "Circular dependency",
		Detail:   "A derived cell was read while its own value was being computed.",
	},
	"E003": {
		Category: CategoryRuntime,
		Message:  "Observer failed",
		Detail:   "An observer panicked or returned an error. Delivery to other observers continued.",
	},

	// Reconcile (E040-E049)
	"E040": {
		Category: CategoryReconcile,
		Message:  "Duplicate item in sequence",
		Detail:   "Keyed reconciliation requires every item of a sequence to be unique.",
	},

	// Live (E060-E069)
	"E060": {
		Category: CategoryLive,
		Message:  "WebSocket upgrade failed",
		Detail:   "The client request could not be upgraded to a WebSocket connection.",
	},
	"E061": {
		Category: CategoryLive,
		Message:  "Listener failed",
		Detail:   "The HTTP server could not bind or stopped unexpectedly.",
	},

	// Config (E120-E149)
	"E120": {
		Category: CategoryConfig,
		Message:  "Invalid cellgraph.json",
		Detail:   "The configuration file could not be read or is not valid JSON.",
	},
	"E121": {
		Category: CategoryConfig,
		Message:  "Unknown log level",
		Detail:   "log.level must be one of debug, info, warn or error.",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration value is out of range or malformed.",
	},
	"E141": {
		Category: CategoryConfig,
		Message:  "cellgraph.json not found",
		Detail:   "No configuration file was found at the given location.",
	},

	// CLI (E160-E169)
	"E160": {
		Category: CategoryCLI,
		Message:  "Invalid sequence argument",
		Detail:   "Sequences are passed as comma-separated items, e.g. A,B,C.",
	},
	"E161": {
		Category: CategoryCLI,
		Message:  "Invalid flag value",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
