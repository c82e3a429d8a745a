// Package skills handles the SKILL.md document each binary embeds: parsing
// its frontmatter, installing it where agents look for skills, and
// discovering what is already installed.
package skills

// Skill is a parsed SKILL.md document
type Skill struct {
	Name        string // Unique name from frontmatter
	Description string // Brief description shown to agents
	Directory   string // Directory holding SKILL.md, empty for embedded docs
	Content     string // Body of SKILL.md without frontmatter
	Raw         []byte // Complete SKILL.md as written to disk
}
