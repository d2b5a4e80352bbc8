// Package infra holds the adapters around the controller: plant transports
// (MQTT, Modbus, Kafka), forecast files, result stores, metrics exporters
// and the cbc solver backend. Adapters register themselves in the core
// factories and depend only on core interfaces.
package infra
