package extractor

import (
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/talentsift/talentsift/fault"
	"github.com/talentsift/talentsift/resume"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sampleResume = `Jane Doe
Senior Software Engineer

Experience
Senior Software Engineer, Initech 2019 - present
Built Go services on Kubernetes with PostgreSQL and Redis.
Backend Developer, Globex 2015 - 2019
Python and Django, some JavaScript.

Skills
Golang, k8s, Postgres, redis, python, js
`

func TestExtractPlainText(t *testing.T) {
	e := New(testLogger())

	doc, err := e.Extract("resume.txt", []byte(sampleResume))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if doc.Fields.CandidateName != "Jane Doe" {
		t.Errorf("candidate name = %q, want %q", doc.Fields.CandidateName, "Jane Doe")
	}

	wantSkills := []string{"django", "go", "javascript", "kubernetes", "postgresql", "python", "redis"}
	if !reflect.DeepEqual(doc.Fields.Skills, wantSkills) {
		t.Errorf("skills = %v, want %v", doc.Fields.Skills, wantSkills)
	}

	if len(doc.Fields.Experience) != 2 {
		t.Fatalf("experience entries = %d, want 2", len(doc.Fields.Experience))
	}
	if doc.Fields.Experience[0].From != "2019" || doc.Fields.Experience[0].To != "" {
		t.Errorf("first experience = %+v, want 2019-present", doc.Fields.Experience[0])
	}
	if doc.Fields.Experience[1].From != "2015" || doc.Fields.Experience[1].To != "2019" {
		t.Errorf("second experience = %+v, want 2015-2019", doc.Fields.Experience[1])
	}
}

func TestExtractHTMLStripsMarkup(t *testing.T) {
	e := New(testLogger())

	html := `<html><head><style>body { color: red }</style>
<script>alert("x")</script></head>
<body><h1>John Smith</h1><p>Data Analyst with SQL and Tableau</p></body></html>`

	doc, err := e.Extract("resume.html", []byte(html))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	for _, forbidden := range []string{"alert", "color: red", "<p>"} {
		if strings.Contains(doc.Text, forbidden) {
			t.Errorf("extracted text still contains %q", forbidden)
		}
	}
	wantSkills := []string{"sql", "tableau"}
	if !reflect.DeepEqual(doc.Fields.Skills, wantSkills) {
		t.Errorf("skills = %v, want %v", doc.Fields.Skills, wantSkills)
	}
}

func TestExtractRejectsBadInput(t *testing.T) {
	e := New(testLogger())

	tests := []struct {
		name     string
		filename string
		data     []byte
	}{
		{"empty document", "resume.txt", nil},
		{"unsupported extension", "resume.xlsx", []byte("data")},
		{"no extension", "resume", []byte("data")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Extract(tt.filename, tt.data); !fault.IsInvalid(err) {
				t.Errorf("Extract(%q) error = %v, want invalid input", tt.filename, err)
			}
		})
	}
}

func TestExtractCorruptPDFIsPermanent(t *testing.T) {
	e := New(testLogger())
	if _, err := e.Extract("resume.pdf", []byte("not a pdf at all")); !fault.IsPermanent(err) {
		t.Errorf("corrupt PDF error = %v, want permanent extraction error", err)
	}
}

func TestExtractDeterministic(t *testing.T) {
	e := New(testLogger())

	first, err := e.Extract("resume.txt", []byte(sampleResume))
	if err != nil {
		t.Fatalf("first extract: %v", err)
	}
	second, err := e.Extract("resume.txt", []byte(sampleResume))
	if err != nil {
		t.Fatalf("second extract: %v", err)
	}
	if first.Text != second.Text {
		t.Error("normalized text differs between runs")
	}
	if !reflect.DeepEqual(first.Fields, second.Fields) {
		t.Errorf("fields differ between runs:\n%+v\n%+v", first.Fields, second.Fields)
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"windows line endings", "a\r\nb", "a\nb"},
		{"collapses spaces", "a   b\t\tc", "a b c"},
		{"drops blank lines", "a\n\n\n  \nb", "a\nb"},
		{"trims edges", "  a  \n  b  ", "a\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.in); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDeriveFieldsSkillAliases(t *testing.T) {
	fields := DeriveFields("golang k8s postgres js")
	want := resume.Fields{
		Skills: []string{"go", "javascript", "kubernetes", "postgresql"},
		Titles: []string{},
	}
	if !reflect.DeepEqual(fields.Skills, want.Skills) {
		t.Errorf("skills = %v, want %v", fields.Skills, want.Skills)
	}
}

func TestDeriveTitlesSkipsProse(t *testing.T) {
	text := "Jane Doe\nStaff Engineer\n" +
		"I once worked as an engineer on a very large team building many things for many people"
	fields := DeriveFields(text)
	if len(fields.Titles) != 1 || fields.Titles[0] != "staff engineer" {
		t.Errorf("titles = %v, want [staff engineer]", fields.Titles)
	}
}

func TestSupportedExt(t *testing.T) {
	for _, ext := range []string{".pdf", ".doc", ".docx", ".html", ".txt", ".PDF"} {
		if !SupportedExt(ext) {
			t.Errorf("SupportedExt(%q) = false", ext)
		}
	}
	for _, ext := range []string{".xlsx", ".png", "", ".exe"} {
		if SupportedExt(ext) {
			t.Errorf("SupportedExt(%q) = true", ext)
		}
	}
}
