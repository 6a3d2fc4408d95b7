package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

const docBase = "https://jibbrjabbr.dev/docs/errors/"

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Config errors (JJ100-JJ199)

	"JJ101": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "No jj.yaml, jj.yml or jj.json was found in the directory or its parents.",
		DocURL:   docBase + "JJ101",
	},
	"JJ102": {
		Category: CategoryConfig,
		Message:  "Config file is malformed",
		Detail:   "The configuration file could not be parsed as YAML or JSON.",
		DocURL:   docBase + "JJ102",
	},
	"JJ103": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration value is out of range or of the wrong form.",
		DocURL:   docBase + "JJ103",
	},
	"JJ104": {
		Category: CategoryConfig,
		Message:  "Unknown storage backend",
		Detail:   "storage.backend must be one of memory, sql or s3.",
		DocURL:   docBase + "JJ104",
	},

	// Script errors (JJ200-JJ299)

	"JJ201": {
		Category: CategoryScript,
		Message:  "Script does not compile",
		Detail:   "A host script has a syntax error and cannot be loaded.",
		DocURL:   docBase + "JJ201",
	},
	"JJ202": {
		Category: CategoryScript,
		Message:  "Script not found",
		Detail:   "A host names a script file that does not exist.",
		DocURL:   docBase + "JJ202",
	},

	// CLI errors (JJ300-JJ399)

	"JJ301": {
		Category: CategoryCLI,
		Message:  "Port in use",
		Detail:   "The configured listen address is already in use by another process.",
		DocURL:   docBase + "JJ301",
	},
	"JJ302": {
		Category: CategoryCLI,
		Message:  "Client storage unavailable",
		Detail:   "The configured client storage backend could not be opened.",
		DocURL:   docBase + "JJ302",
	},
	"JJ303": {
		Category: CategoryCLI,
		Message:  "Tracing exporter unavailable",
		Detail:   "The OTLP trace exporter could not be created.",
		DocURL:   docBase + "JJ303",
	},
}

// GetAllCodes returns all registered error codes in order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
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
