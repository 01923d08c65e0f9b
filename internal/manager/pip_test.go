package manager

import (
	"reflect"
	"testing"
)

// Test data: sample importlib.metadata dump output
const mockPipMetadataJSON = `[
  {"name": "requests", "version": "2.31.0", "path": ""},
  {"name": "numpy", "version": "1.26.2", "path": ""},
  {"name": "", "version": "0.0.1", "path": ""}
]`

// Test data: sample pip list --format=json output
const mockPipListJSON = `[
  {"name": "requests", "version": "2.31.0"},
  {"name": "pip", "version": "23.3.1"}
]`

// Test data: legacy tabular pip list output
const mockPipListText = `Package    Version
---------- -------
requests   2.25.0
numpy      1.19.5
setuptools 68.0.0`

func TestParsePipMetadata(t *testing.T) {
	records, err := parsePipMetadata(mockPipMetadataJSON)
	if err != nil {
		t.Fatalf("parsePipMetadata failed: %v", err)
	}

	// The unnamed distribution is skipped.
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Name != "requests" || records[0].Version != "2.31.0" {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[0].Manager != Pip {
		t.Errorf("expected manager pip, got %s", records[0].Manager)
	}
}

func TestParsePipMetadataInvalid(t *testing.T) {
	if _, err := parsePipMetadata("not json"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParsePipListJSON(t *testing.T) {
	records, err := parsePipListJSON(mockPipListJSON)
	if err != nil {
		t.Fatalf("parsePipListJSON failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[1].Name != "pip" || records[1].Version != "23.3.1" {
		t.Errorf("unexpected second record: %+v", records[1])
	}
}

func TestParsePipListJSONRejectsText(t *testing.T) {
	if _, err := parsePipListJSON(mockPipListText); err == nil {
		t.Error("expected error for tabular output")
	}
}

func TestParsePipListText(t *testing.T) {
	records := parsePipListText(mockPipListText)

	want := []PackageRecord{
		{Manager: Pip, Name: "requests", Version: "2.25.0", Source: "pip list"},
		{Manager: Pip, Name: "numpy", Version: "1.19.5", Source: "pip list"},
		{Manager: Pip, Name: "setuptools", Version: "68.0.0", Source: "pip list"},
	}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("parsePipListText mismatch:\ngot  %+v\nwant %+v", records, want)
	}
}

func TestParsePipListTextSkipsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		count int
	}{
		{"empty input", "", 0},
		{"header only", "Package Version\n------- -------", 0},
		{"single column line skipped", "requests 2.25.0\nbroken", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(parsePipListText(tt.input)); got != tt.count {
				t.Errorf("expected %d records, got %d", tt.count, got)
			}
		})
	}
}

func TestCountPipAuditVulnerabilities(t *testing.T) {
	const report = `{
  "dependencies": [
    {"name": "requests", "vulns": [{"id": "PYSEC-1"}, {"id": "PYSEC-2"}]},
    {"name": "numpy", "vulns": []}
  ]
}`

	tests := []struct {
		name string
		pkg  string
		want int
	}{
		{"package with vulns", "requests", 2},
		{"case-insensitive match", "Requests", 2},
		{"package without vulns", "numpy", 0},
		{"unknown package", "flask", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := countPipAuditVulnerabilities(report, tt.pkg); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}

	if got := countPipAuditVulnerabilities("garbage", "requests"); got != 0 {
		t.Errorf("unparsable report should yield 0, got %d", got)
	}
}

func TestLastLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"traceback", "Traceback (most recent call last):\n  ...\nModuleNotFoundError: No module named 'foo'", "ModuleNotFoundError: No module named 'foo'"},
		{"trailing blanks", "error here\n\n\n", "error here"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lastLine(tt.input); got != tt.want {
				t.Errorf("lastLine(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
