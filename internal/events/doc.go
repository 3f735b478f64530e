// Package events собирает и рассылает доменные события.
//
// Buffer живёт в пределах одной единицы работы: агрегаты поднимают
// события, транзакция собирает их в буфер, после коммита буфер
// передаётся Dispatcher'у.
//
// Подавление (Buffer.Suppress) нужно обработчикам, которые сами
// сохраняют вторичные сущности (например, пачку уведомлений):
// без него создание уведомлений снова попадало бы в диспетчер.
package events
