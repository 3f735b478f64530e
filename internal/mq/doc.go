// Package mq — транспорт пакетных писем через RabbitMQ.
//
// Структура:
//   - connection.go — соединение с переподключением
//   - topology.go   — обменники, очереди, привязки
//   - publisher.go  — постановка EmailBatch в очередь (notify.EmailQueue)
//   - consumer.go   — потребление с ack/nack и dead-letter
//
// Topology:
//   - quizflow.email → email.batches (DLQ: dlq.email)
//   - quizflow.dlq   → dlq.email
package mq
