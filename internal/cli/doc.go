// Package cli реализует инструмент командной строки Promotor.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Promotor API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для постановки задач продвижения и инспекции
// очереди, постов, вариантов, dead-letter и счётчиков.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Promotor API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	tasks, err := client.ListTasks(cli.ListTasksOpts{Status: "queued"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: promotor task list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - task: enqueue, list, show
//   - post: list, show
//   - variant: list
//   - dlq: list, show
//   - counters
//
// Каждая группа создаётся через фабричную функцию (NewTaskCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
