// Package engine содержит модель графа job.
//
// Включает:
//   - dag.go      — построение графа шагов, проверка циклов, топология
//   - parser.go   — разбор и валидация JobSpec из JSON
//   - template.go — рендеринг аргументов task ({{ .Index }}, {{ .Params.x }})
//
// Engine отвечает за понимание структуры job и определение того,
// какие шаги готовы к запуску; само выполнение — в пакете scheduler.
package engine
