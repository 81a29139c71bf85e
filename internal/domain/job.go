package domain

// JobSpec — определение job: плоский список шагов с зависимостями.
//
// JobSpec поступает от внешнего источника (файл, сообщение из очереди)
// полностью сформированным; планировщик его не изменяет.
type JobSpec struct {
	// Name — имя job (например, "eval-mnist").
	Name string `json:"name"`

	// Workdir — рабочая директория, передаётся в контекст каждого task.
	Workdir string `json:"workdir,omitempty"`

	// Datasets — ссылки на датасеты (непрозрачные для планировщика).
	Datasets []string `json:"datasets,omitempty"`

	// Params — параметры job, доступные всем шагам.
	Params map[string]any `json:"params,omitempty"`

	// Steps — шаги job.
	Steps []StepDef `json:"steps"`
}

// StepDef — определение шага из JobSpec.
type StepDef struct {
	// Name — уникальное имя шага в пределах job.
	Name string `json:"name"`

	// TaskNum — количество tasks, на которые делится шаг.
	TaskNum int `json:"task_num"`

	// Concurrency — максимум одновременно выполняемых tasks шага.
	// 0 трактуется как 1.
	Concurrency int `json:"concurrency,omitempty"`

	// Resources — требования к ресурсам (планировщиком не интерпретируются).
	Resources []Resource `json:"resources,omitempty"`

	// Needs — имена шагов, от которых зависит этот шаг.
	Needs []string `json:"needs,omitempty"`

	// Params — параметры шага; перекрывают JobSpec.Params.
	Params map[string]any `json:"params,omitempty"`
}

// Resource — требование к ресурсу: имя, request и limit.
type Resource struct {
	Name    string  `json:"name"`
	Request float64 `json:"request,omitempty"`
	Limit   float64 `json:"limit,omitempty"`
}

// StepByName возвращает определение шага по имени.
func (j *JobSpec) StepByName(name string) (StepDef, bool) {
	for _, def := range j.Steps {
		if def.Name == name {
			return def, true
		}
	}
	return StepDef{}, false
}

// TaskTemplate собирает шаблон контекста task для шага.
// Index и Total заполняются при делении шага на tasks.
func (j *JobSpec) TaskTemplate(def StepDef) TaskContext {
	params := make(map[string]any, len(j.Params)+len(def.Params))
	for k, v := range j.Params {
		params[k] = v
	}
	for k, v := range def.Params {
		params[k] = v
	}

	datasets := make([]string, len(j.Datasets))
	copy(datasets, j.Datasets)

	return TaskContext{
		Step:     def.Name,
		Workdir:  j.Workdir,
		Datasets: datasets,
		Params:   params,
	}
}
