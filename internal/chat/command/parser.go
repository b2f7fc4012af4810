package command

import "strings"

// ParseResult holds the parsed command name and arguments from a text line.
type ParseResult struct {
	// Command is the first word of the input, lowercased, with any prefix removed.
	Command string
	// Args are the remaining words after the command.
	Args []string
	// RawArgs is the raw text after the command.
	RawArgs string
}

// Arg returns the first argument, or "" when there is none.
func (p ParseResult) Arg() string {
	if len(p.Args) == 0 {
		return ""
	}
	return p.Args[0]
}

// IsCommand reports whether line is prefixed as a command.
func IsCommand(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), Prefix)
}

// Parse splits a text line into a command and arguments. A leading Prefix
// is stripped from the command word.
//
// Postcondition: If line is empty, Command is empty.
func Parse(line string) ParseResult {
	line = strings.TrimSpace(line)
	if line == "" {
		return ParseResult{}
	}

	word, rest, _ := strings.Cut(line, " ")
	cmd := strings.ToLower(strings.TrimPrefix(word, Prefix))
	rest = strings.TrimSpace(rest)

	var args []string
	if rest != "" {
		args = strings.Fields(rest)
	}

	return ParseResult{
		Command: cmd,
		Args:    args,
		RawArgs: rest,
	}
}
