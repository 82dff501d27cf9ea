package config

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"

type EventStoreType string

const EVENT_STORE_SQLITE EventStoreType = "sqlite"
const EVENT_STORE_INMEM EventStoreType = "memory"

type Config struct {
	RedisConfig           RedisConfig
	HttpPort              int
	StorageType           StorageType
	EventStoreType        EventStoreType
	EventStorePath        string
	StreamName            string
	StreamCapacity        int
	PublishEvents         bool
	CorrelationGCInterval int
	CorrelationRetention  int
	DefinitionCacheTTL    int
	MaxConcurrentActions  int
	Debug                 bool
}

type RedisConfig struct {
	Addrs     []string
	Namespace string
}
