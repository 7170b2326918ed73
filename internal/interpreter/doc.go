// Package interpreter выполняет playbook одной роли.
//
// Invocation — одно выполнение роли одним пользователем в одном task:
//   - bootstrap: проверка числа участников, рабочая директория, param.json
//   - шаги строго по порядку, каждый до конца перед следующим
//   - первая ошибка останавливает invocation
//
// Все относительные пути разрешаются от рабочей директории invocation,
// текущая директория процесса не меняется.
package interpreter
