package engine

import (
	"os"
	"regexp"
)

// envVarRe — ссылка на переменную окружения: $NAME.
var envVarRe = regexp.MustCompile(`\$(\w+)`)

// LookupFunc — источник переменных окружения (os.LookupEnv по умолчанию).
type LookupFunc func(key string) (string, bool)

// SubstituteEnv заменяет $NAME значением переменной окружения процесса.
// Если переменная не задана, токен остаётся как есть. Ошибок не бывает.
func SubstituteEnv(s string) string {
	return SubstituteEnvFunc(s, os.LookupEnv)
}

// SubstituteEnvFunc — SubstituteEnv с явным источником переменных.
func SubstituteEnvFunc(s string, lookup LookupFunc) string {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return envVarRe.ReplaceAllStringFunc(s, func(token string) string {
		if v, ok := lookup(token[1:]); ok {
			return v
		}
		return token
	})
}

// Resolver рендерит динамические строки playbook: сначала плейсхолдеры
// {{...}}, затем переменные окружения $NAME.
//
// Через Resolver проходят рабочая директория, пути к файлам,
// команды процессов, имена переменных и ключи entries.
type Resolver struct {
	Bindings  Bindings
	LookupEnv LookupFunc
}

// NewResolver создаёт Resolver, читающий окружение процесса.
func NewResolver(b Bindings) *Resolver {
	return &Resolver{Bindings: b, LookupEnv: os.LookupEnv}
}

// Resolve выполняет Render, затем SubstituteEnv.
func (r *Resolver) Resolve(s string) (string, error) {
	rendered, err := Render(s, r.Bindings)
	if err != nil {
		return "", err
	}
	return SubstituteEnvFunc(rendered, r.LookupEnv), nil
}
