package models

// Directive is an inline instruction embedded in document text, such as
// "@agent summarize the meeting notes above".
type Directive struct {
	SourceLine  string `json:"source_line"`
	Instruction string `json:"instruction"`
	LineNumber  int    `json:"line_number"` // 1-based
}
