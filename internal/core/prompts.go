package core

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/valter-silva-au/vaultd/pkg/models"
)

// annotationTimeFormat stamps every section the daemon appends to a task.
const annotationTimeFormat = "2006-01-02 15:04:05 MST"

// taskPromptTemplate is sent to the agent for a task file.
var taskPromptTemplate = template.Must(template.New("task").Parse(`You are working on a task from the file "{{.Name}}".

## Task

{{.Content}}

## Instructions

- Do the work described above inside the current directory.
- When you are done, reply with a short summary of what you did. The summary is appended to the task file.
- If you cannot continue without a decision or information from a human, stop and reply with a section that starts with the exact heading:

{{.BlockingMarker}}

  followed by your question. Do not guess when blocked.
`))

// directivePromptTemplate is sent to the agent for one inline directive.
var directivePromptTemplate = template.Must(template.New("directive").Parse(`An inline instruction was found in the file "{{.Path}}" on line {{.Line}}:

{{.SourceLine}}

## Instruction

{{.Instruction}}

## Current file content

{{.Content}}

## Instructions

- Carry out the instruction by editing "{{.Path}}" in place.
- Remove line {{.Line}} (the line starting with {{.Trigger}}) from the file once the instruction is handled.
- Do not touch other lines that start with {{.Trigger}}; they are handled separately.
`))

type taskPromptData struct {
	Name           string
	Content        string
	BlockingMarker string
}

type directivePromptData struct {
	Path        string
	Line        int
	SourceLine  string
	Instruction string
	Content     string
	Trigger     string
}

// BuildTaskPrompt renders the prompt for a task file.
func BuildTaskPrompt(name, content, blockingMarker string) (string, error) {
	var buf bytes.Buffer
	err := taskPromptTemplate.Execute(&buf, taskPromptData{
		Name:           name,
		Content:        strings.TrimRight(content, "\n"),
		BlockingMarker: blockingMarker,
	})
	if err != nil {
		return "", fmt.Errorf("rendering task prompt: %w", err)
	}
	return buf.String(), nil
}

// BuildDirectivePrompt renders the prompt for a directive found in path.
func BuildDirectivePrompt(path string, d models.Directive, content, trigger string) (string, error) {
	var buf bytes.Buffer
	err := directivePromptTemplate.Execute(&buf, directivePromptData{
		Path:        path,
		Line:        d.LineNumber,
		SourceLine:  strings.TrimSpace(d.SourceLine),
		Instruction: d.Instruction,
		Content:     strings.TrimRight(content, "\n"),
		Trigger:     trigger,
	})
	if err != nil {
		return "", fmt.Errorf("rendering directive prompt: %w", err)
	}
	return buf.String(), nil
}

// appendSection joins content and a new section separated by a rule.
func appendSection(content, section string) string {
	return strings.TrimRight(content, "\n") + "\n\n---\n\n" + section + "\n"
}

// AnnotateCompleted appends the agent's summary to a finished task.
func AnnotateCompleted(content, output string, at time.Time) string {
	return appendSection(content, fmt.Sprintf("## Agent Summary (%s)\n\n%s",
		at.Format(annotationTimeFormat), strings.TrimSpace(output)))
}

// AnnotateBlocked appends the agent's raw output, which holds its question.
func AnnotateBlocked(content, output string, at time.Time) string {
	return appendSection(content, fmt.Sprintf("**Status:** blocked (%s)\n\n%s",
		at.Format(annotationTimeFormat), strings.TrimSpace(output)))
}

// AnnotateError appends a failed run's error text.
func AnnotateError(content, errText string, at time.Time) string {
	errText = strings.TrimSpace(errText)
	if errText == "" {
		errText = "(no error output)"
	}
	return appendSection(content, fmt.Sprintf("**Status:** error (%s)\n\n```\n%s\n```",
		at.Format(annotationTimeFormat), errText))
}
