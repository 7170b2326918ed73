// Package process содержит супервизор фоновых процессов invocation.
//
// Supervisor запускает shell-команды шагов, регистрирует их под именем
// шага и позволяет позже дождаться или убить процесс по этому имени.
// Каждая invocation владеет своим Supervisor; имена не пересекаются
// между invocation.
package process
