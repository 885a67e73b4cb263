package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// IssueCode is the machine-readable classification of a validation issue.
type IssueCode string

const (
	CodeTooSmall       IssueCode = "too_small"
	CodeInvalidType    IssueCode = "invalid_type"
	CodeInvalidEnum    IssueCode = "invalid_enum_value"
	CodeInvalidPattern IssueCode = "invalid_pattern"
)

const (
	msgEmptyList    = "Messages array cannot be empty"
	msgEmptyContent = "Content cannot be empty"
	msgBadPattern   = "Invalid message pattern: messages must alternate between user and assistant, " +
		"end with a user message, and start with user for odd lengths or assistant for even lengths"
)

// Issue describes one reason a message list was rejected.
type Issue struct {
	Path    string    `json:"path"`
	Message string    `json:"message"`
	Code    IssueCode `json:"code"`
}

// Result is either an accepted Conversation or a non-empty list of issues.
type Result struct {
	Conversation Conversation
	Issues       []Issue
}

// OK reports whether validation passed.
func (r Result) OK() bool { return len(r.Issues) == 0 }

// Err returns a *ValidationError when validation failed, nil otherwise.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &ValidationError{Issues: r.Issues}
}

// ValidationError carries every issue found in a rejected message list.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	if len(e.Issues) == 1 {
		return fmt.Sprintf("validation failed: %s: %s", e.Issues[0].Path, e.Issues[0].Message)
	}
	return fmt.Sprintf("validation failed: %s: %s (and %d more)", e.Issues[0].Path, e.Issues[0].Message, len(e.Issues)-1)
}

// ParseError reports a request body that is not well-formed JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "malformed JSON: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// Validate checks a typed message list. It never mutates msgs and always
// returns the same Result for the same input.
func Validate(msgs []Message, mode Mode) Result {
	if len(msgs) == 0 {
		return rejected(Issue{Path: "messages", Message: msgEmptyList, Code: CodeTooSmall})
	}
	var issues []Issue
	for i, m := range msgs {
		issues = append(issues, checkMessage(i, m, mode, true, true)...)
	}
	if len(issues) > 0 {
		return Result{Issues: issues}
	}
	if mode != ModeRelaxed && !alternates(msgs) {
		return rejected(Issue{Path: "messages", Message: msgBadPattern, Code: CodeInvalidPattern})
	}
	return Result{Conversation: newConversation(msgs)}
}

// Decode parses a request body of the form {"messages": [...]} and validates
// it. The returned error is non-nil only for malformed JSON (*ParseError);
// shape problems are reported as issues in the Result.
func Decode(body []byte, mode Mode) (Result, error) {
	if !json.Valid(body) {
		var v any
		err := json.Unmarshal(body, &v)
		if err == nil {
			err = fmt.Errorf("invalid JSON")
		}
		return Result{}, &ParseError{Err: err}
	}

	var envelope map[string]json.RawMessage
	if isNull(body) || json.Unmarshal(body, &envelope) != nil {
		return rejected(Issue{Path: "", Message: "Expected object, received " + jsonKind(body), Code: CodeInvalidType}), nil
	}
	raw, ok := envelope["messages"]
	if !ok {
		return rejected(Issue{Path: "messages", Message: "Required", Code: CodeInvalidType}), nil
	}
	var elems []json.RawMessage
	if isNull(raw) || json.Unmarshal(raw, &elems) != nil {
		return rejected(Issue{Path: "messages", Message: "Expected array, received " + jsonKind(raw), Code: CodeInvalidType}), nil
	}
	if len(elems) == 0 {
		return rejected(Issue{Path: "messages", Message: msgEmptyList, Code: CodeTooSmall}), nil
	}

	msgs := make([]Message, len(elems))
	var issues []Issue
	for i, el := range elems {
		m, roleOK, contentOK, typeIssues := decodeMessage(i, el)
		issues = append(issues, typeIssues...)
		issues = append(issues, checkMessage(i, m, mode, roleOK, contentOK)...)
		msgs[i] = m
	}
	if len(issues) > 0 {
		return Result{Issues: issues}, nil
	}
	return Validate(msgs, mode), nil
}

func decodeMessage(i int, el json.RawMessage) (m Message, roleOK, contentOK bool, issues []Issue) {
	var fields map[string]json.RawMessage
	if isNull(el) || json.Unmarshal(el, &fields) != nil {
		issues = append(issues, Issue{
			Path:    fmt.Sprintf("messages.%d", i),
			Message: "Expected object, received " + jsonKind(el),
			Code:    CodeInvalidType,
		})
		return m, false, false, issues
	}
	role, issue := stringField(fields, i, "role")
	if issue != nil {
		issues = append(issues, *issue)
	} else {
		m.Role, roleOK = Role(role), true
	}
	content, issue := stringField(fields, i, "content")
	if issue != nil {
		issues = append(issues, *issue)
	} else {
		m.Content, contentOK = content, true
	}
	return m, roleOK, contentOK, issues
}

func stringField(fields map[string]json.RawMessage, i int, name string) (string, *Issue) {
	path := fmt.Sprintf("messages.%d.%s", i, name)
	raw, ok := fields[name]
	if !ok {
		return "", &Issue{Path: path, Message: "Required", Code: CodeInvalidType}
	}
	var s string
	if isNull(raw) || json.Unmarshal(raw, &s) != nil {
		return "", &Issue{Path: path, Message: "Expected string, received " + jsonKind(raw), Code: CodeInvalidType}
	}
	return s, nil
}

func checkMessage(i int, m Message, mode Mode, checkRole, checkContent bool) []Issue {
	var issues []Issue
	if checkRole && !mode.allows(m.Role) {
		issues = append(issues, Issue{
			Path:    fmt.Sprintf("messages.%d.role", i),
			Message: enumMessage(mode, m.Role),
			Code:    CodeInvalidEnum,
		})
	}
	if checkContent && m.Content == "" {
		issues = append(issues, Issue{
			Path:    fmt.Sprintf("messages.%d.content", i),
			Message: msgEmptyContent,
			Code:    CodeTooSmall,
		})
	}
	return issues
}

// alternates implements the strict-mode turn rule: the last message is the
// user's, no two neighbours share a role, and the first role is user for odd
// lengths and assistant for even lengths.
func alternates(msgs []Message) bool {
	n := len(msgs)
	if msgs[n-1].Role != RoleUser {
		return false
	}
	for i := 1; i < n; i++ {
		if msgs[i].Role == msgs[i-1].Role {
			return false
		}
	}
	first := RoleUser
	if n%2 == 0 {
		first = RoleAssistant
	}
	return msgs[0].Role == first
}

func enumMessage(mode Mode, got Role) string {
	allowed := mode.AllowedRoles()
	quoted := make([]string, len(allowed))
	for i, r := range allowed {
		quoted[i] = "'" + string(r) + "'"
	}
	return fmt.Sprintf("Invalid enum value. Expected %s, received '%s'", strings.Join(quoted, " | "), got)
}

func rejected(issue Issue) Result {
	return Result{Issues: []Issue{issue}}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func jsonKind(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "undefined"
	}
	switch trimmed[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}
