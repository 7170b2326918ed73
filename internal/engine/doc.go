// Package engine содержит разбор и рендеринг playbook.
//
// Включает:
//   - parser.go   — парсинг playbook-документа (TOML/YAML) в domain.ProtocolSpec
//   - template.go — плейсхолдеры {{name}} и {{name[a..b]}}
//   - env.go      — подстановка $NAME из окружения
//
// Engine отвечает за статическую часть playbook: всё, что можно
// проверить до запуска первого шага.
package engine
