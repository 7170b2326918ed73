package engine

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Bindings — значения, доступные в плейсхолдерах {{name}}.
type Bindings map[string]string

// Имена стандартных bindings.
const (
	BindingUserID     = "user_id"
	BindingTaskID     = "task_id"
	BindingUserIDHash = "user_id_hash"
	BindingTaskIDHash = "task_id_hash"
)

// NewBindings создаёт стандартный набор bindings для invocation:
// user_id, task_id и их md5-хэши (hex).
func NewBindings(userID, taskID string) Bindings {
	return Bindings{
		BindingUserID:     userID,
		BindingTaskID:     taskID,
		BindingUserIDHash: md5Hex(userID),
		BindingTaskIDHash: md5Hex(taskID),
	}
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Render подставляет значения bindings в шаблон.
//
// Грамматика: литеральный текст вперемешку с плейсхолдерами
//
//	{{name}}
//	{{name[start..end]}}   {{name[start..]}}   {{name[..end]}}   {{name[..]}}   {{name[]}}
//	{{name[i]}}
//
// Индексы считаются в символах (rune), а не в байтах.
// Неизвестное имя, битый плейсхолдер или выход за границы — TemplateError.
func Render(tmpl string, b Bindings) (string, error) {
	// Быстрый путь: шаблонных выражений нет
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	tokens, err := tokenize(tmpl)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.Grow(len(tmpl))
	for _, tok := range tokens {
		if tok.kind == tokenLiteral {
			sb.WriteString(tok.text)
			continue
		}

		value, ok := b[tok.name]
		if !ok {
			return "", &TemplateError{
				Template: tmpl,
				Pos:      tok.pos,
				Message:  "unknown binding " + strconv.Quote(tok.name),
				Err:      ErrUnknownBinding,
			}
		}

		sliced, err := tok.rng.apply(value)
		if err != nil {
			return "", &TemplateError{
				Template: tmpl,
				Pos:      tok.pos,
				Message:  err.Error(),
				Err:      ErrRangeOutOfBounds,
			}
		}
		sb.WriteString(sliced)
	}

	return sb.String(), nil
}

// MustRender рендерит шаблон и паникует при ошибке.
// Используется только для тестов.
func MustRender(tmpl string, b Bindings) string {
	result, err := Render(tmpl, b)
	if err != nil {
		panic(err)
	}
	return result
}

// --- Tokenizer ---

type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenPlaceholder
)

type token struct {
	kind tokenKind
	pos  int

	// literal
	text string

	// placeholder
	name string
	rng  sliceRange
}

// sliceRange — диапазон [start..end] или одиночный индекс.
// Нулевое значение означает "всё значение".
type sliceRange struct {
	single   bool
	index    int
	start    int
	end      int
	hasStart bool
	hasEnd   bool
}

// apply вырезает диапазон из value (в символах).
func (r sliceRange) apply(value string) (string, error) {
	if !r.single && !r.hasStart && !r.hasEnd {
		return value, nil
	}

	runes := []rune(value)
	n := len(runes)

	if r.single {
		if r.index >= n {
			return "", fmt.Errorf("index %d out of range for length %d", r.index, n)
		}
		return string(runes[r.index]), nil
	}

	start, end := 0, n
	if r.hasStart {
		start = r.start
	}
	if r.hasEnd {
		end = r.end
	}
	if end > n {
		return "", fmt.Errorf("end %d out of range for length %d", end, n)
	}
	if start > end {
		return "", fmt.Errorf("start %d greater than end %d", start, end)
	}
	return string(runes[start:end]), nil
}

// tokenize разбивает шаблон на литералы и плейсхолдеры.
func tokenize(tmpl string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(tmpl) {
		open := strings.Index(tmpl[i:], "{{")
		if open < 0 {
			tokens = append(tokens, token{kind: tokenLiteral, pos: i, text: tmpl[i:]})
			break
		}
		if open > 0 {
			tokens = append(tokens, token{kind: tokenLiteral, pos: i, text: tmpl[i : i+open]})
		}

		start := i + open
		closeIdx := strings.Index(tmpl[start+2:], "}}")
		if closeIdx < 0 {
			return nil, malformed(tmpl, start, "unterminated placeholder")
		}
		body := tmpl[start+2 : start+2+closeIdx]

		tok, err := parsePlaceholder(tmpl, start, body)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		i = start + 2 + closeIdx + 2
	}
	return tokens, nil
}

// parsePlaceholder разбирает тело плейсхолдера: name или name[range].
func parsePlaceholder(tmpl string, pos int, body string) (token, error) {
	body = strings.TrimSpace(body)

	n := 0
	for n < len(body) && isNameByte(body[n]) {
		n++
	}
	if n == 0 {
		return token{}, malformed(tmpl, pos, "placeholder has no name")
	}

	tok := token{kind: tokenPlaceholder, pos: pos, name: body[:n]}

	rest := strings.TrimSpace(body[n:])
	if rest == "" {
		return tok, nil
	}
	if rest[0] != '[' || rest[len(rest)-1] != ']' {
		return token{}, malformed(tmpl, pos, "unexpected "+strconv.Quote(rest)+" after name")
	}

	rng, ok := parseRange(strings.TrimSpace(rest[1 : len(rest)-1]))
	if !ok {
		return token{}, malformed(tmpl, pos, "invalid range "+strconv.Quote(rest))
	}
	tok.rng = rng
	return tok, nil
}

// parseRange разбирает содержимое [...]: "", "i", "a..b", "a..", "..b", "..".
func parseRange(s string) (sliceRange, bool) {
	if s == "" {
		return sliceRange{}, true
	}

	left, right, isRange := strings.Cut(s, "..")
	if !isRange {
		idx, ok := parseIndex(s)
		if !ok {
			return sliceRange{}, false
		}
		return sliceRange{single: true, index: idx}, true
	}

	var r sliceRange
	left, right = strings.TrimSpace(left), strings.TrimSpace(right)
	if left != "" {
		v, ok := parseIndex(left)
		if !ok {
			return sliceRange{}, false
		}
		r.start, r.hasStart = v, true
	}
	if right != "" {
		v, ok := parseIndex(right)
		if !ok {
			return sliceRange{}, false
		}
		r.end, r.hasEnd = v, true
	}
	return r, true
}

// parseIndex принимает только десятичные цифры (без знака).
func parseIndex(s string) (int, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isNameByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

func malformed(tmpl string, pos int, msg string) *TemplateError {
	return &TemplateError{
		Template: tmpl,
		Pos:      pos,
		Message:  msg,
		Err:      ErrMalformedPlaceholder,
	}
}
