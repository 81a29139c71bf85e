package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/shaiso/stepflow/internal/domain"
)

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — возвращает значение по умолчанию, если второй аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	// join — объединяет слайс строк
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},

	// add — сложение целых (для 1-based номеров шардов)
	"add": func(a, b int) int {
		return a + b
	},
}

// RenderString рендерит одну строку с контекстом task.
//
// Доступны поля TaskContext:
//   - {{ .Step }}, {{ .Index }}, {{ .Total }}
//   - {{ .Workdir }}, {{ .Datasets }}
//   - {{ .Params.name }}
//
// Строки без "{{" возвращаются как есть.
func RenderString(s string, tc domain.TaskContext) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	tmpl, err := template.New("arg").Funcs(templateFuncs).Option("missingkey=zero").Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, tc); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// RenderArgs рендерит аргументы команды для task.
func RenderArgs(args []string, tc domain.TaskContext) ([]string, error) {
	out := make([]string, len(args))
	for i, arg := range args {
		rendered, err := RenderString(arg, tc)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		out[i] = rendered
	}
	return out, nil
}
