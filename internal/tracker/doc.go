// Package tracker собирает итоги task на стороне инициатора.
//
// Инициатор регистрирует task (Track), рассылает назначения
// (host.StartTask) и ждёт итоги всех участников (Wait).
// Итоги приходят из очереди playbook.tasks.completed,
// куда их публикуют хосты участников.
package tracker
