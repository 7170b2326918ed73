package engine

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/shaiso/playbook/internal/domain"
)

// Format — формат playbook-документа.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// packageTable — служебная таблица документа, не протокол.
const packageTable = "package"

// Допустимые поля шага.
var validStepFields = map[string]bool{
	"if":                 true,
	"step_name":          true,
	"process":            true,
	"process_wait":       true,
	"process_kill":       true,
	"check_exit_code":    true,
	"stdout_file":        true,
	"stderr_file":        true,
	"exit_code":          true,
	"send_variable":      true,
	"recv_variable":      true,
	"from_role":          true,
	"to_role":            true,
	"index":              true,
	"file":               true,
	"create_entry":       true,
	"update_entry":       true,
	"delete_entry":       true,
	"read_entry":         true,
	"read_or_wait_entry": true,
}

// Поля entry-операций в порядке приоритета.
var entryFields = []struct {
	field string
	op    domain.EntryOp
}{
	{"create_entry", domain.EntryCreate},
	{"read_entry", domain.EntryRead},
	{"read_or_wait_entry", domain.EntryReadOrWait},
	{"update_entry", domain.EntryUpdate},
	{"delete_entry", domain.EntryDelete},
}

// FormatFromPath определяет формат по расширению файла.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", newConfigError("", "", "", fmt.Sprintf("unsupported document extension %q", filepath.Ext(path)), ErrConfig)
	}
}

func parserFor(format Format) (koanf.Parser, error) {
	switch format {
	case FormatTOML:
		return toml.Parser(), nil
	case FormatYAML:
		return yaml.Parser(), nil
	default:
		return nil, newConfigError("", "", "", fmt.Sprintf("unsupported document format %q", format), ErrConfig)
	}
}

// ParseFile читает playbook-документ с диска через koanf.
func ParseFile(path string) ([]domain.ProtocolSpec, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	parser, err := parserFor(format)
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, newConfigError("", "", "", fmt.Sprintf("load %s: %v", path, err), ErrConfig)
	}

	return parseTree(k.Raw())
}

// Parse разбирает playbook-документ из памяти.
//
// Документ: необязательная таблица package (с use_playbook = true)
// и одна или несколько таблиц протоколов.
func Parse(data []byte, format Format) ([]domain.ProtocolSpec, error) {
	parser, err := parserFor(format)
	if err != nil {
		return nil, err
	}

	tree, err := parser.Unmarshal(data)
	if err != nil {
		return nil, newConfigError("", "", "", fmt.Sprintf("parse %s: %v", format, err), ErrConfig)
	}

	return parseTree(tree)
}

// parseTree строит ProtocolSpec из разобранного дерева документа.
func parseTree(tree map[string]any) ([]domain.ProtocolSpec, error) {
	var protocols []domain.ProtocolSpec

	for _, key := range sortedKeys(tree) {
		table, ok := tree[key].(map[string]any)
		if !ok {
			// Скалярные значения верхнего уровня к протоколам не относятся
			continue
		}

		if key == packageTable {
			enabled, _ := table["use_playbook"].(bool)
			if !enabled {
				return nil, newConfigError(packageTable, "", "use_playbook",
					"use_playbook must be true", ErrPlaybookDisabled)
			}
			continue
		}

		protocol, err := parseProtocol(key, table)
		if err != nil {
			return nil, err
		}
		protocols = append(protocols, *protocol)
	}

	if err := Validate(protocols); err != nil {
		return nil, err
	}
	return protocols, nil
}

// parseProtocol разбирает таблицу одного протокола.
func parseProtocol(key string, table map[string]any) (*domain.ProtocolSpec, error) {
	name, err := requireString(table, "name")
	if err != nil {
		return nil, wrapField(key, "", err)
	}
	workdir, err := requireString(table, "workdir")
	if err != nil {
		return nil, wrapField(key, "", err)
	}

	rolesTable, ok := table["roles"].(map[string]any)
	if !ok {
		return nil, newConfigError(key, "", "roles", "roles table is required", ErrMissingField)
	}

	protocol := &domain.ProtocolSpec{
		Name:    name,
		Workdir: workdir,
	}

	for _, roleName := range sortedKeys(rolesTable) {
		roleTable, ok := rolesTable[roleName].(map[string]any)
		if !ok {
			return nil, newConfigError(key, roleName, "", "role must be a table", ErrInvalidType)
		}
		role, err := parseRole(key, roleName, workdir, roleTable)
		if err != nil {
			return nil, err
		}
		protocol.Roles = append(protocol.Roles, *role)
	}

	return protocol, nil
}

// parseRole разбирает роль и её playbook.
func parseRole(protocolKey, name, defaultWorkdir string, table map[string]any) (*domain.RoleSpec, error) {
	role := &domain.RoleSpec{
		Name:            name,
		MaxParticipants: domain.Unbounded,
		MinParticipants: 0,
		Workdir:         defaultWorkdir,
	}

	if v, ok, err := optionalInt(table, "max_num"); err != nil {
		return nil, wrapField(protocolKey, name, err)
	} else if ok {
		role.MaxParticipants = v
	}
	if v, ok, err := optionalInt(table, "min_num"); err != nil {
		return nil, wrapField(protocolKey, name, err)
	} else if ok {
		role.MinParticipants = v
	}

	playbook, ok := table["playbook"].(map[string]any)
	if !ok {
		return nil, newConfigError(protocolKey, name, "playbook", "playbook table is required", ErrMissingField)
	}

	if v, ok, err := optionalString(playbook, "workdir"); err != nil {
		return nil, wrapField(protocolKey, name, err)
	} else if ok {
		role.Workdir = v
	}

	rawSteps, ok := playbook["steps"].([]any)
	if !ok {
		return nil, newConfigError(protocolKey, name, "playbook.steps", "steps array is required", ErrMissingField)
	}

	for i, raw := range rawSteps {
		stepTable, ok := raw.(map[string]any)
		if !ok {
			return nil, &ConfigError{Protocol: protocolKey, Role: name, Step: i,
				Message: "step must be a table", Err: ErrInvalidType}
		}
		step, err := parseStep(i, stepTable)
		if err != nil {
			if cErr, ok := err.(*ConfigError); ok {
				cErr.Protocol, cErr.Role, cErr.Step = protocolKey, name, i
			}
			return nil, err
		}
		role.Steps = append(role.Steps, *step)
	}

	return role, nil
}

// parseStep превращает таблицу шага в domain.Step с ровно одним действием.
func parseStep(position int, table map[string]any) (*domain.Step, error) {
	for key := range table {
		if !validStepFields[key] {
			return nil, stepError(key, fmt.Sprintf("unknown field %q", key), ErrUnknownField)
		}
	}

	// Все поля, кроме check_exit_code и index, — строки
	str := make(map[string]string, len(table))
	for key, v := range table {
		if key == "check_exit_code" || key == "index" {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, stepError(key, fmt.Sprintf("expected string, got %T", v), ErrInvalidType)
		}
		str[key] = s
	}
	has := func(key string) bool {
		_, ok := table[key]
		return ok
	}

	checkCode, hasCheck, err := optionalInt(table, "check_exit_code")
	if err != nil {
		return nil, err
	}
	index, hasIndex, err := optionalInt(table, "index")
	if err != nil {
		return nil, err
	}
	if hasIndex && index < 0 {
		return nil, stepError("index", "index must not be negative", ErrInvalidType)
	}

	step := &domain.Step{
		Index: position,
		Name:  str["step_name"],
		If:    str["if"],
	}

	isProcess := has("process") || has("process_wait") || has("process_kill")
	isSend := has("send_variable")
	isRecv := has("recv_variable")

	var entryOps []int
	for i, ef := range entryFields {
		if has(ef.field) {
			entryOps = append(entryOps, i)
		}
	}

	families := 0
	for _, present := range []bool{isProcess, isSend, isRecv, len(entryOps) > 0} {
		if present {
			families++
		}
	}
	if families == 0 {
		return nil, stepError("", "step has no action", ErrUnrecognizedStep)
	}
	if families > 1 || len(entryOps) > 1 {
		return nil, stepError("", "step declares more than one action", ErrAmbiguousStep)
	}

	// Поля, относящиеся к конкретным семействам
	isReap := has("process_wait") || has("process_kill")
	for _, f := range []string{"check_exit_code", "stdout_file", "stderr_file", "exit_code"} {
		if has(f) && !isReap {
			return nil, stepError(f, f+" requires process_wait or process_kill", ErrAmbiguousStep)
		}
	}
	if has("to_role") && !isSend {
		return nil, stepError("to_role", "to_role requires send_variable", ErrAmbiguousStep)
	}
	if has("from_role") && !isRecv {
		return nil, stepError("from_role", "from_role requires recv_variable", ErrAmbiguousStep)
	}
	if hasIndex && !isSend && !isRecv {
		return nil, stepError("index", "index requires send_variable or recv_variable", ErrAmbiguousStep)
	}
	if has("file") && isProcess {
		return nil, stepError("file", "file is not used by process steps", ErrAmbiguousStep)
	}

	switch {
	case isProcess:
		action, err := parseProcessAction(step, str, has, checkCode, hasCheck)
		if err != nil {
			return nil, err
		}
		step.Action = action

	case isSend:
		if str["file"] == "" {
			return nil, stepError("file", "send_variable requires file", ErrMissingField)
		}
		if str["to_role"] == "" {
			return nil, stepError("to_role", "send_variable requires to_role", ErrMissingField)
		}
		a := &domain.SendVariableAction{
			Name:   str["send_variable"],
			File:   str["file"],
			ToRole: str["to_role"],
		}
		if hasIndex {
			idx := index
			a.Index = &idx
		}
		step.Action = a

	case isRecv:
		if str["from_role"] == "" {
			return nil, stepError("from_role", "recv_variable requires from_role", ErrMissingField)
		}
		if !hasIndex {
			return nil, stepError("index", "recv_variable requires index", ErrMissingField)
		}
		step.Action = &domain.RecvVariableAction{
			Name:     str["recv_variable"],
			FromRole: str["from_role"],
			Index:    index,
			File:     str["file"],
		}

	default:
		ef := entryFields[entryOps[0]]
		if ef.op == domain.EntryDelete {
			if has("file") {
				return nil, stepError("file", "delete_entry does not take a file", ErrAmbiguousStep)
			}
		} else if str["file"] == "" {
			return nil, stepError("file", ef.field+" requires file", ErrMissingField)
		}
		step.Action = &domain.EntryAction{
			Op:   ef.op,
			Key:  str[ef.field],
			File: str["file"],
		}
	}

	return step, nil
}

// parseProcessAction собирает LaunchAction или ReapAction.
func parseProcessAction(step *domain.Step, str map[string]string, has func(string) bool, checkCode int, hasCheck bool) (domain.Action, error) {
	if has("process_wait") && has("process_kill") {
		return nil, stepError("process_kill", "process_wait and process_kill are exclusive", ErrAmbiguousStep)
	}

	var reap *domain.ReapAction
	if has("process_wait") || has("process_kill") {
		reap = &domain.ReapAction{
			Target:       str["process_wait"],
			StdoutFile:   str["stdout_file"],
			StderrFile:   str["stderr_file"],
			ExitCodeFile: str["exit_code"],
		}
		if has("process_kill") {
			reap.Target = str["process_kill"]
			reap.Kill = true
		}
		if reap.Target == "" {
			return nil, stepError("process_wait", "process target must not be empty", ErrMissingField)
		}
		if hasCheck {
			code := checkCode
			reap.CheckExitCode = &code
		}
	}

	if !has("process") {
		return reap, nil
	}

	if step.Name == "" {
		return nil, stepError("step_name", "process requires step_name", ErrMissingField)
	}
	return &domain.LaunchAction{Command: str["process"], Reap: reap}, nil
}

// Validate проверяет набор протоколов целиком.
//
// Проверяет:
//   - уникальность имён протоколов
//   - уникальность имён ролей внутри протокола
//   - корректность границ min_num/max_num
func Validate(protocols []domain.ProtocolSpec) error {
	seen := make(map[string]bool)
	for i := range protocols {
		p := &protocols[i]
		if p.Name == "" {
			return newConfigError("", "", "name", "protocol has empty name", ErrMissingField)
		}
		if seen[p.Name] {
			return newConfigError(p.Name, "", "name", "duplicate protocol name", ErrConfig)
		}
		seen[p.Name] = true

		roles := make(map[string]bool)
		for j := range p.Roles {
			r := &p.Roles[j]
			if roles[r.Name] {
				return newConfigError(p.Name, r.Name, "", "duplicate role name", ErrConfig)
			}
			roles[r.Name] = true

			if r.MinParticipants < 0 || r.MaxParticipants < 0 || r.MinParticipants > r.MaxParticipants {
				return newConfigError(p.Name, r.Name, "min_num",
					fmt.Sprintf("min_num %d and max_num %d are inconsistent", r.MinParticipants, r.MaxParticipants),
					ErrInvalidBounds)
			}
		}
	}
	return nil
}

// --- Helpers ---

func stepError(field, message string, err error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Err: err}
}

func wrapField(protocol, role string, err error) error {
	if cErr, ok := err.(*ConfigError); ok {
		cErr.Protocol, cErr.Role = protocol, role
	}
	return err
}

func requireString(table map[string]any, key string) (string, error) {
	v, ok, err := optionalString(table, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &ConfigError{Step: -1, Field: key, Message: key + " is required", Err: ErrMissingField}
	}
	return v, nil
}

func optionalString(table map[string]any, key string) (string, bool, error) {
	raw, ok := table[key]
	if !ok {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", false, &ConfigError{Step: -1, Field: key,
			Message: fmt.Sprintf("expected string, got %T", raw), Err: ErrInvalidType}
	}
	return s, true, nil
}

// optionalInt читает целое: TOML даёт int64, YAML — int, JSON-подобные источники — float64.
func optionalInt(table map[string]any, key string) (int, bool, error) {
	raw, ok := table[key]
	if !ok {
		return 0, false, nil
	}
	switch n := raw.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case uint64:
		if n > math.MaxInt {
			break
		}
		return int(n), true, nil
	case float64:
		if n == math.Trunc(n) && math.Abs(n) <= math.MaxInt32 {
			return int(n), true, nil
		}
	}
	return 0, false, &ConfigError{Step: -1, Field: key,
		Message: fmt.Sprintf("expected integer, got %v", raw), Err: ErrInvalidType}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
