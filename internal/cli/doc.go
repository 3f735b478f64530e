// Package cli реализует инструмент командной строки quizflow.
//
// # Обзор
//
// CLI — операторская утилита: работает напрямую с хранилищем через
// сервисы lifecycle, scheduler, notify и audit. Используется для ручных
// переходов квизов, разбора упавших задач и просмотра журнала.
//
// # Ключевые компоненты
//
// ## App
//
// Набор сервисов, с которыми работают команды. Создаётся лениво через
// AppFunc после разбора PersistentFlags (--config), освобождается
// после выполнения команды.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения — в stderr.
// Это позволяет использовать pipe: quizflow jobs list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - quiz: publish, close, release
//   - jobs: list, show, retry, cancel, complete
//   - notifications: list, read, unread
//   - activity: последние записи журнала
//   - migrate: применение и откат миграций
//
// Каждая группа создаётся через фабричную функцию (NewQuizCmd и т.д.),
// принимающую appFn и outputFn. Действия оператора (retry, cancel)
// пишутся в журнал активности.
package cli
