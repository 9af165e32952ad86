package extractor

import (
	"regexp"
	"sort"
	"strings"

	"github.com/talentsift/talentsift/resume"
)

// skillAliases maps every recognized spelling to its canonical skill name.
// The dictionary is deliberately static: field derivation must stay a pure
// function of the text so redelivered tasks produce identical output.
var skillAliases = map[string]string{
	"go":            "go",
	"golang":        "go",
	"python":        "python",
	"java":          "java",
	"javascript":    "javascript",
	"js":            "javascript",
	"typescript":    "typescript",
	"c++":           "c++",
	"c#":            "c#",
	"rust":          "rust",
	"ruby":          "ruby",
	"php":           "php",
	"scala":         "scala",
	"kotlin":        "kotlin",
	"swift":         "swift",
	"sql":           "sql",
	"postgresql":    "postgresql",
	"postgres":      "postgresql",
	"mysql":         "mysql",
	"mongodb":       "mongodb",
	"redis":         "redis",
	"elasticsearch": "elasticsearch",
	"opensearch":    "opensearch",
	"kafka":         "kafka",
	"rabbitmq":      "rabbitmq",
	"docker":        "docker",
	"kubernetes":    "kubernetes",
	"k8s":           "kubernetes",
	"terraform":     "terraform",
	"ansible":       "ansible",
	"aws":           "aws",
	"gcp":           "gcp",
	"azure":         "azure",
	"linux":         "linux",
	"git":           "git",
	"grpc":          "grpc",
	"graphql":       "graphql",
	"react":         "react",
	"angular":       "angular",
	"vue":           "vue",
	"django":        "django",
	"flask":         "flask",
	"spring":        "spring",
	"tensorflow":    "tensorflow",
	"pytorch":       "pytorch",
	"spark":         "spark",
	"hadoop":        "hadoop",
	"excel":         "excel",
	"tableau":       "tableau",
}

var titleKeywords = []string{
	"engineer", "developer", "architect", "manager", "analyst",
	"scientist", "designer", "consultant", "administrator", "lead",
	"director", "specialist", "recruiter",
}

var (
	tokenPattern     = regexp.MustCompile(`[A-Za-z+#][A-Za-z0-9+#]*`)
	dateRangePattern = regexp.MustCompile(`(?i)\b((?:19|20)\d{2})(?:-\d{2})?\s*(?:-|–|—|to|until)\s*((?:19|20)\d{2}(?:-\d{2})?|present|current|now)\b`)
	spacesPattern    = regexp.MustCompile(`[ \t]+`)
	namePattern      = regexp.MustCompile(`^[A-Za-zÀ-ÿ'. -]+$`)
)

// NormalizeText canonicalizes line endings and whitespace so that hashing
// and embedding see a stable representation.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(spacesPattern.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// DeriveFields extracts structured fields from normalized text. The
// output is deterministic: skills and titles are deduplicated and sorted,
// experience entries keep document order.
func DeriveFields(text string) resume.Fields {
	lines := strings.Split(text, "\n")

	fields := resume.Fields{
		CandidateName: deriveCandidateName(lines),
		Skills:        deriveSkills(text),
		Titles:        deriveTitles(lines),
		Experience:    deriveExperience(lines),
	}
	return fields
}

func deriveSkills(text string) []string {
	seen := make(map[string]struct{})
	for _, token := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if canonical, ok := skillAliases[token]; ok {
			seen[canonical] = struct{}{}
		}
	}
	skills := make([]string, 0, len(seen))
	for s := range seen {
		skills = append(skills, s)
	}
	sort.Strings(skills)
	return skills
}

func deriveTitles(lines []string) []string {
	seen := make(map[string]struct{})
	for _, line := range lines {
		lower := strings.ToLower(line)
		// Long lines are prose, not headings.
		if len(strings.Fields(lower)) > 8 {
			continue
		}
		for _, kw := range titleKeywords {
			if strings.Contains(lower, kw) {
				seen[strings.TrimSpace(lower)] = struct{}{}
				break
			}
		}
	}
	titles := make([]string, 0, len(seen))
	for t := range seen {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles
}

func deriveExperience(lines []string) []resume.Experience {
	var out []resume.Experience
	for i, line := range lines {
		m := dateRangePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		to := strings.ToLower(m[2])
		if to == "present" || to == "current" || to == "now" {
			to = ""
		}
		exp := resume.Experience{From: m[1], To: to}

		// The role usually sits on the date line or the one just above it.
		title := strings.TrimSpace(dateRangePattern.ReplaceAllString(line, ""))
		title = strings.Trim(title, " ,;:-–—|")
		if title == "" && i > 0 {
			title = strings.TrimSpace(lines[i-1])
		}
		exp.Title = title
		out = append(out, exp)
	}
	return out
}

func deriveCandidateName(lines []string) string {
	for _, line := range lines {
		words := strings.Fields(line)
		if len(words) == 0 || len(words) > 4 {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "resume") || strings.Contains(lower, "curriculum") {
			continue
		}
		if namePattern.MatchString(line) {
			return line
		}
		// The name is a header; stop looking once we hit body text.
		break
	}
	return ""
}
