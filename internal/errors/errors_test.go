package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{"config error", "JJ101", "Config file not found", CategoryConfig},
		{"script error", "JJ201", "Script does not compile", CategoryScript},
		{"cli error", "JJ301", "Port in use", CategoryCLI},
		{"unknown error code", "JJ999", "Unknown error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestErrorString(t *testing.T) {
	if got := New("JJ101").Error(); got != "JJ101: Config file not found" {
		t.Errorf("Error() = %q", got)
	}
	wrapped := New("JJ102").Wrap(fmt.Errorf("line 3: bad indent"))
	if got := wrapped.Error(); got != "JJ102: Config file is malformed: line 3: bad indent" {
		t.Errorf("Error() = %q", got)
	}
	if got := Newf(CategoryCLI, "port %d busy", 8080).Error(); got != "port 8080 busy" {
		t.Errorf("Error() = %q", got)
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := fmt.Errorf("serve: %w", New("JJ302").Wrap(cause))
	if !stderrors.Is(err, cause) {
		t.Fatal("errors.Is did not find the cause")
	}
	var je *Error
	if !stderrors.As(err, &je) || je.Code != "JJ302" {
		t.Fatalf("errors.As=%v, want JJ302", je)
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "JJ101") != nil {
		t.Fatal("FromError(nil) != nil")
	}
	orig := New("JJ201")
	if FromError(orig, "JJ101") != orig {
		t.Fatal("FromError rewrapped an *Error")
	}
	got := FromError(stderrors.New("boom"), "JJ303")
	if got.Code != "JJ303" || got.Wrapped == nil {
		t.Fatalf("FromError=%+v", got)
	}
}

func TestWithLocationFromError(t *testing.T) {
	dir := t.TempDir()
	src := "var a = 1;\nvar b = (;\nvar c = 3;\n"
	if err := os.WriteFile(filepath.Join(dir, "chat.js"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	resolve := func(name string) string { return filepath.Join(dir, name) }

	tests := []struct {
		name string
		msg  string
		line int
		col  int
	}{
		{"engine form", "SyntaxError: chat.js: Line 2:10 Unexpected token ;", 2, 10},
		{"compiler form", "chat.js:2:9: unexpected", 2, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New("JJ201").WithLocationFromError(stderrors.New(tt.msg), resolve)
			if err.Location == nil {
				t.Fatal("no location parsed")
			}
			if err.Location.Line != tt.line || err.Location.Column != tt.col {
				t.Fatalf("Location=%v, want line %d col %d", err.Location, tt.line, tt.col)
			}
			if len(err.Context) == 0 || !strings.Contains(strings.Join(err.Context, "\n"), "var b") {
				t.Fatalf("Context=%q, want the offending line", err.Context)
			}
		})
	}

	plain := New("JJ201").WithLocationFromError(stderrors.New("no position here"), resolve)
	if plain.Location != nil {
		t.Fatalf("Location=%v, want nil", plain.Location)
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New("JJ103").
		WithSuggestion("Use a positive duration").
		Wrap(stderrors.New("suspend_timeout: -1s"))
	err.Location = &Location{File: "jj.yaml", Line: 4}
	out := err.Format()

	for _, want := range []string{
		"ERROR JJ103: Invalid configuration value",
		"suspend_timeout: -1s",
		"jj.yaml:4",
		"Hint: Use a positive duration",
		"Learn more: " + docBase + "JJ103",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q:\n%s", want, out)
		}
	}
}

func TestFormatCompact(t *testing.T) {
	err := New("JJ201")
	err.Location = &Location{File: "chat.js", Line: 2, Column: 5}
	if got := err.FormatCompact(); got != "chat.js:2:5: JJ201: Script does not compile" {
		t.Errorf("FormatCompact() = %q", got)
	}
}

func TestFormatJSON(t *testing.T) {
	err := New("JJ104").Wrap(stderrors.New("redis"))
	var out map[string]any
	if e := json.Unmarshal([]byte(err.FormatJSON()), &out); e != nil {
		t.Fatalf("FormatJSON is not JSON: %v", e)
	}
	if out["code"] != "JJ104" || out["category"] != "config" || out["cause"] != "redis" {
		t.Fatalf("FormatJSON=%v", out)
	}
}

func TestPrintError(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var buf bytes.Buffer
	PrintError(&buf, fmt.Errorf("serve: %w", New("JJ301")))
	if !strings.Contains(buf.String(), "ERROR JJ301: Port in use") {
		t.Errorf("PrintError=%q", buf.String())
	}

	buf.Reset()
	PrintError(&buf, stderrors.New("plain"))
	if !strings.Contains(buf.String(), "ERROR: plain") {
		t.Errorf("PrintError=%q", buf.String())
	}
}

func TestRegistry(t *testing.T) {
	codes := GetAllCodes()
	if len(codes) == 0 || codes[0] != "JJ101" {
		t.Fatalf("GetAllCodes()=%v", codes)
	}
	for _, code := range codes {
		tmpl, ok := GetTemplate(code)
		if !ok || tmpl.Message == "" || !strings.HasSuffix(tmpl.DocURL, code) {
			t.Errorf("template %s = %+v", code, tmpl)
		}
	}

	Register("JJ399", ErrorTemplate{Category: CategoryCLI, Message: "Test"})
	defer delete(registry, "JJ399")
	if New("JJ399").Message != "Test" {
		t.Fatal("registered template not used")
	}
}

func TestColors(t *testing.T) {
	prev := colorEnabled
	defer func() { colorEnabled = prev }()

	EnableColors()
	if got := red("x"); got != "\x1b[31mx\x1b[0m" {
		t.Fatalf("red(x)=%q, want ANSI red", got)
	}
	if got := bold(gray("x")); got != "\x1b[1m\x1b[90mx\x1b[0m\x1b[0m" {
		t.Fatalf("bold(gray(x))=%q, want nested ANSI codes", got)
	}
	DisableColors()
	if got := red("x"); got != "x" {
		t.Fatalf("red(x)=%q with colors off, want x", got)
	}
}

func TestSourceIsFormatted(t *testing.T) {
	files, err := filepath.Glob("*.go")
	if err != nil {
		t.Fatal(err)
	}
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			t.Fatal(err)
		}
		formatted, err := format.Source(src)
		if err != nil {
			t.Fatalf("%s: %v", file, err)
		}
		if !bytes.Equal(src, formatted) {
			t.Errorf("%s is not gofmt-formatted", file)
		}
		if bytes.IndexByte(src, 0x1b) >= 0 {
			t.Errorf("%s contains a raw escape byte", file)
		}
	}
}
