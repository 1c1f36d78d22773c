// Package messaging is a broker-agnostic publish/consume layer.
//
// Drivers exist for NSQ, NATS, Kafka and Google Pub/Sub, plus an in-process
// broker for single-instance deployments and tests. Select one with
// NewFromDriver.
package messaging
