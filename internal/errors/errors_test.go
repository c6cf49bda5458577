package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
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
		{
			name:    "runtime error",
			code:    "E001",
			wantMsg: "Cyclic scheduling detected",
			wantCat: CategoryRuntime,
		},
		{
			name:    "reconcile error",
			code:    "E040",
			wantMsg: "Duplicate item in sequence",
			wantCat: CategoryReconcile,
		},
		{
			name:    "config error",
			code:    "E141",
			wantMsg: "cellgraph.json not found",
			wantCat: CategoryConfig,
		},
		{
			name:    "unknown error code",
			code:    "E999",
			wantMsg: "Unknown error",
			wantCat: "",
		},
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

func TestNewf(t *testing.T) {
	err := Newf(CategoryCLI, "item %q repeated", "B")
	if err.Message != `item "B" repeated` {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Category != CategoryCLI {
		t.Errorf("Category = %q, want %q", err.Category, CategoryCLI)
	}
}

func TestError_Error(t *testing.T) {
	if got, want := New("E001").Error(), "E001: Cyclic scheduling detected"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	plain := &Error{Message: "test error"}
	if plain.Error() != "test error" {
		t.Errorf("Error() = %q, want %q", plain.Error(), "test error")
	}

	wrapped := New("E120").Wrap(stderrors.New("unexpected EOF"))
	if got, want := wrapped.Error(), "E120: Invalid cellgraph.json: unexpected EOF"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestError_WithOffset(t *testing.T) {
	data := []byte("{\n  \"log\": {\n    \"level\": debug\n  }\n}\n")
	offset := int64(bytes.Index(data, []byte("debug")))

	err := New("E120").WithOffset("cellgraph.json", data, offset)
	if err.Location == nil {
		t.Fatal("Location is nil")
	}
	if err.Location.Line != 3 {
		t.Errorf("Line = %d, want 3", err.Location.Line)
	}
	if err.Location.Column != 14 {
		t.Errorf("Column = %d, want 14", err.Location.Column)
	}
	if len(err.Context) == 0 || !strings.Contains(strings.Join(err.Context, "\n"), "debug") {
		t.Errorf("Context = %q, want the offending line", err.Context)
	}

	out := New("E120").WithOffset("x", data, int64(len(data)+10))
	if out.Location != nil {
		t.Error("out of range offset should leave Location unset")
	}
}

func TestError_Builders(t *testing.T) {
	err := New("E160").
		WithDetail("custom").
		WithSuggestion("separate items with commas").
		WithExample("cellgraph diff A,B,C A,C,B")
	if err.Detail != "custom" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if err.Suggestion != "separate items with commas" {
		t.Errorf("Suggestion = %q", err.Suggestion)
	}
	if err.Example != "cellgraph diff A,B,C A,C,B" {
		t.Errorf("Example = %q", err.Example)
	}
}

func TestError_Wrap(t *testing.T) {
	inner := stderrors.New("boom")
	outer := New("E061").Wrap(inner)

	if outer.Unwrap() != inner {
		t.Error("Unwrap() should return wrapped error")
	}
	if !stderrors.Is(outer, inner) {
		t.Error("errors.Is should see the wrapped error")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "E001") != nil {
		t.Error("FromError(nil, ...) should return nil")
	}

	coded := New("E001")
	if FromError(coded, "E002") != coded {
		t.Error("FromError should return coded errors as-is")
	}

	std := stderrors.New("test error")
	result := FromError(std, "E003")
	if result.Wrapped != std || result.Code != "E003" {
		t.Errorf("FromError = %+v", result)
	}
}

func TestLocation_String(t *testing.T) {
	tests := []struct {
		name string
		loc  *Location
		want string
	}{
		{"nil location", nil, ""},
		{"with column", &Location{File: "cellgraph.json", Line: 10, Column: 5}, "cellgraph.json:10:5"},
		{"without column", &Location{File: "cellgraph.json", Line: 10}, "cellgraph.json:10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.loc.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	data := []byte("{\n  \"scheduler\": {\"cycleLimit\": -1}\n}\n")
	err := New("E122").
		WithOffset("cellgraph.json", data, int64(bytes.Index(data, []byte("-1")))).
		WithSuggestion("Use a positive limit").
		WithExample(`"scheduler": {"cycleLimit": 100}`).
		Wrap(stderrors.New("cycleLimit must be positive"))

	formatted := err.Format()
	for _, want := range []string{
		"E122",
		"Invalid configuration value",
		"cellgraph.json:2:",
		"→",
		"Hint: Use a positive limit",
		"Example:",
		"Cause: cycleLimit must be positive",
	} {
		if !strings.Contains(formatted, want) {
			t.Errorf("Format() missing %q:\n%s", want, formatted)
		}
	}
}

func TestFormatCompact(t *testing.T) {
	err := New("E001").WithLocation("cellgraph.json", 10, 5)
	want := "cellgraph.json:10:5: E001: Cyclic scheduling detected"
	if got := err.FormatCompact(); got != want {
		t.Errorf("FormatCompact() = %q, want %q", got, want)
	}
}

func TestFormatJSON(t *testing.T) {
	err := New("E001").WithLocation("cellgraph.json", 10, 5)

	var got map[string]any
	if jerr := json.Unmarshal([]byte(err.FormatJSON()), &got); jerr != nil {
		t.Fatalf("FormatJSON produced invalid JSON: %v", jerr)
	}
	if got["code"] != "E001" {
		t.Errorf("code = %v", got["code"])
	}
	if got["category"] != "runtime" {
		t.Errorf("category = %v", got["category"])
	}
	if _, ok := got["location"]; !ok {
		t.Error("JSON should contain location")
	}
}

func TestGetAllCodes(t *testing.T) {
	codes := GetAllCodes()
	found := false
	for _, code := range codes {
		if code == "E120" {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("E120 missing from %v", codes)
	}
}

func TestGetTemplate(t *testing.T) {
	template, ok := GetTemplate("E002")
	if !ok {
		t.Fatal("E002 should exist")
	}
	if template.Message != "Circular dependency" {
		t.Errorf("Message = %q", template.Message)
	}
	if _, ok := GetTemplate("E999"); ok {
		t.Error("E999 should not exist")
	}
}

func TestRegister(t *testing.T) {
	Register("E999", ErrorTemplate{
		Category: CategoryRuntime,
		Message:  "Custom test error",
	})
	defer delete(registry, "E999")

	if err := New("E999"); err.Message != "Custom test error" {
		t.Errorf("Message = %q, want %q", err.Message, "Custom test error")
	}
}

func TestWrapText(t *testing.T) {
	if got := wrapText("short text", 100); len(got) != 1 || got[0] != "short text" {
		t.Errorf("wrapText short text: got %v", got)
	}
	if got := wrapText("this is a longer text that should be wrapped", 20); len(got) != 3 {
		t.Errorf("wrapText long text: expected 3 lines, got %d: %v", len(got), got)
	}
	if got := wrapText("", 10); len(got) != 0 {
		t.Errorf("wrapText empty: expected empty, got %v", got)
	}
}

func TestPrint(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var buf bytes.Buffer
	Print(&buf, New("E160"))
	if !strings.Contains(buf.String(), "E160: Invalid sequence argument") {
		t.Errorf("Print coded = %q", buf.String())
	}

	buf.Reset()
	Print(&buf, stderrors.New("plain"))
	if !strings.Contains(buf.String(), "ERROR: plain") {
		t.Errorf("Print plain = %q", buf.String())
	}
}

func TestColorFunctions(t *testing.T) {
	EnableColors()
	if !strings.Contains(red("test"), "\033[31m") {
		t.Error("red should contain ANSI code when colors enabled")
	}
	DisableColors()
	if strings.Contains(red("test"), "\033[") {
		t.Error("red should not contain ANSI code when colors disabled")
	}
	EnableColors()
}
