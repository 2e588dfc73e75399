package report

import (
	"strings"
)

// Subsection is one level-3 block of a parsed report.
type Subsection struct {
	Heading string   `json:"heading"`
	Content []string `json:"content"`
}

// ParseMarkdown converts a Markdown report into a loose JSON structure:
// the level-1 heading under "title", lines before any section under
// "content", each level-2 heading as a snake_case key holding a list of
// plain lines and Subsection records for its level-3 blocks. Empty
// sections are pruned.
func ParseMarkdown(markdown string) map[string]any {
	sections := map[string]any{
		"title":   "",
		"content": []string{},
	}
	currentSection := ""
	var currentSub *Subsection

	flushSub := func() {
		if currentSub == nil || currentSection == "" {
			return
		}
		list, _ := sections[currentSection].([]any)
		sections[currentSection] = append(list, *currentSub)
		currentSub = nil
	}

	for _, raw := range strings.Split(markdown, "\n") {
		line := strings.TrimRight(raw, " \t")

		switch {
		case strings.HasPrefix(line, "# "):
			sections["title"] = strings.TrimSpace(line[2:])

		case strings.HasPrefix(line, "## "):
			flushSub()
			currentSection = sectionKey(line[3:])
			if _, ok := sections[currentSection]; !ok {
				sections[currentSection] = []any{}
			}

		case strings.HasPrefix(line, "### "):
			flushSub()
			if currentSection == "" {
				currentSection = "overview"
				if _, ok := sections[currentSection]; !ok {
					sections[currentSection] = []any{}
				}
			}
			currentSub = &Subsection{Heading: strings.TrimSpace(line[4:])}

		case strings.TrimSpace(line) != "":
			text := strings.TrimSpace(line)
			if currentSub != nil {
				currentSub.Content = append(currentSub.Content, text)
			} else if currentSection != "" {
				list, _ := sections[currentSection].([]any)
				sections[currentSection] = append(list, text)
			} else {
				preamble, _ := sections["content"].([]string)
				sections["content"] = append(preamble, text)
			}
		}
	}
	flushSub()

	// Prune empty entries so consumers see only populated keys.
	for key, value := range sections {
		switch v := value.(type) {
		case string:
			if v == "" {
				delete(sections, key)
			}
		case []string:
			if len(v) == 0 {
				delete(sections, key)
			}
		case []any:
			if len(v) == 0 {
				delete(sections, key)
			}
		}
	}
	return sections
}

func sectionKey(heading string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(heading)), " ", "_")
}
