package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	SERVICE_NAME string
	TRACE_URL    string
}

type WorkerConfig struct {
	WORKER_ID       string // advertised base URL, e.g. http://host:8081
	LISTEN_ADDR     string
	PROJECTS_CONFIG string
	SCRATCH_DIR     string
	STORE_TYPE      string // fs | memory | redis | jetstream
	ARCHIVE_TYPE    string // fs | minio | none
	RUNNER_TYPE     string // gradle | static
}

type BalancerConfig struct {
	LISTEN_ADDR   string
	WORKERS       []string // worker base URLs
	REGISTRY_TYPE string   // freecache | postgres
}

type ResultStoreConfig struct {
	DIR           string
	TTL           int // seconds
	SWEEP_SECONDS int
}

type RedisConfig struct {
	URL            string
	ClientPassword string
	TTL            int
}

type NatsConfig struct {
	URL               string
	TTL               int
	BUCKET_NAME       string
	BUCKET_SIZE_BYTES int
}

type MinioConfig struct {
	URL        string
	BUCKET     string
	ACCESS_KEY string
	SECRET_KEY string
	USE_SSL    bool
}

type PostgresConfig struct {
	URL string
}

type FreeCacheConfig struct {
	SIZE_BYTES int
	TTL        int
}

func env(key string) string {
	v := os.Getenv(key)
	return v
}

func convertStringToInt(s string, key string) (int, error) {
	sInt, err := strconv.Atoi(s)
	if err != nil {
		return -1, fmt.Errorf("error initializing config with key: %s, err: %v", key, err)
	}
	return sInt, nil
}

func GetConfig() (*Config, error) {
	sn := env("SERVICE_NAME")
	if sn == "" {
		return nil, fmt.Errorf("KEY: SERVICE_NAME is empty")
	}
	return &Config{
		SERVICE_NAME: sn,
		TRACE_URL:    env("TRACE_URL"),
	}, nil
}

func GetWorkerConfig() (*WorkerConfig, error) {
	id := env("WORKER_ID")
	if id == "" {
		return nil, fmt.Errorf("KEY: WORKER_ID is empty")
	}
	addr := env("WORKER_LISTEN_ADDR")
	if addr == "" {
		addr = ":8081"
	}
	pc := env("PROJECTS_CONFIG")
	if pc == "" {
		return nil, fmt.Errorf("KEY: PROJECTS_CONFIG is empty")
	}
	sd := env("SCRATCH_DIR")
	if sd == "" {
		return nil, fmt.Errorf("KEY: SCRATCH_DIR is empty")
	}
	st := env("STORE_TYPE")
	if st == "" {
		st = "fs"
	}
	at := env("ARCHIVE_TYPE")
	if at == "" {
		at = "none"
	}
	rt := env("RUNNER_TYPE")
	if rt == "" {
		rt = "gradle"
	}
	return &WorkerConfig{
		WORKER_ID:       id,
		LISTEN_ADDR:     addr,
		PROJECTS_CONFIG: pc,
		SCRATCH_DIR:     sd,
		STORE_TYPE:      st,
		ARCHIVE_TYPE:    at,
		RUNNER_TYPE:     rt,
	}, nil
}

func GetBalancerConfig() (*BalancerConfig, error) {
	addr := env("BALANCER_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	ws := env("WORKERS")
	if ws == "" {
		return nil, fmt.Errorf("KEY: WORKERS is empty")
	}
	var workers []string
	for _, w := range strings.Split(ws, ",") {
		w = strings.TrimSpace(w)
		if w != "" {
			workers = append(workers, w)
		}
	}
	if len(workers) == 0 {
		return nil, fmt.Errorf("KEY: WORKERS has no usable entries")
	}
	rt := env("REGISTRY_TYPE")
	if rt == "" {
		rt = "freecache"
	}
	return &BalancerConfig{
		LISTEN_ADDR:   addr,
		WORKERS:       workers,
		REGISTRY_TYPE: rt,
	}, nil
}

func GetResultStoreConfig() (*ResultStoreConfig, error) {
	dir := env("RESULTS_DIR")
	if dir == "" {
		return nil, fmt.Errorf("KEY: RESULTS_DIR is empty")
	}
	ttl, err := convertStringToInt(env("RESULTS_TTL"), "RESULTS_TTL")
	if err != nil {
		return nil, err
	}
	sweep, err := convertStringToInt(env("RESULTS_SWEEP_SECONDS"), "RESULTS_SWEEP_SECONDS")
	if err != nil {
		return nil, err
	}
	return &ResultStoreConfig{
		DIR:           dir,
		TTL:           ttl,
		SWEEP_SECONDS: sweep,
	}, nil
}

func GetRedisConfig() (*RedisConfig, error) {
	url := env("REDIS_ENDPOINT")
	if url == "" {
		return nil, fmt.Errorf("KEY: REDIS_ENDPOINT is empty")
	}
	ttl, err := convertStringToInt(env("REDIS_TTL"), "REDIS_TTL")
	if err != nil {
		return nil, err
	}
	return &RedisConfig{
		URL:            url,
		ClientPassword: env("REDIS_CLIENT_PASSWORD"),
		TTL:            ttl,
	}, nil
}

func GetNatsConfig() (*NatsConfig, error) {
	url := env("JETSTREAM_URL")
	if url == "" {
		return nil, fmt.Errorf("KEY: JETSTREAM_URL is empty")
	}
	ttl, err := convertStringToInt(env("JETSTREAM_TTL"), "JETSTREAM_TTL")
	if err != nil {
		return nil, err
	}
	bn := env("JETSTREAM_BUCKET_NAME")
	if bn == "" {
		return nil, fmt.Errorf("KEY: JETSTREAM_BUCKET_NAME is empty")
	}
	bs, err := convertStringToInt(env("JETSTREAM_BUCKET_SIZE"), "JETSTREAM_BUCKET_SIZE")
	if err != nil {
		return nil, err
	}
	return &NatsConfig{
		URL:               url,
		TTL:               ttl,
		BUCKET_NAME:       bn,
		BUCKET_SIZE_BYTES: bs,
	}, nil
}

func GetMinioConfig() (*MinioConfig, error) {
	url := env("MINIO_ENDPOINT")
	if url == "" {
		return nil, fmt.Errorf("KEY: MINIO_ENDPOINT is empty")
	}
	b := env("MINIO_BUCKET")
	if b == "" {
		return nil, fmt.Errorf("KEY: MINIO_BUCKET is empty")
	}
	ssl := env("MINIO_USE_SSL")
	if ssl != "true" && ssl != "false" {
		return nil, fmt.Errorf("KEY: MINIO_USE_SSL is invalid")
	}
	ak := env("MINIO_ACCESS_KEY")
	if ak == "" {
		return nil, fmt.Errorf("KEY: MINIO_ACCESS_KEY is empty")
	}
	sk := env("MINIO_SECRET_KEY")
	if sk == "" {
		return nil, fmt.Errorf("KEY: MINIO_SECRET_KEY is empty")
	}
	return &MinioConfig{
		URL:        url,
		BUCKET:     b,
		USE_SSL:    ssl == "true",
		ACCESS_KEY: ak,
		SECRET_KEY: sk,
	}, nil
}

func GetPostgresConfig() (*PostgresConfig, error) {
	url := env("POSTGRES_URL")
	if url == "" {
		return nil, fmt.Errorf("KEY: POSTGRES_URL is empty")
	}
	return &PostgresConfig{
		URL: url,
	}, nil
}

func GetFreeCacheConfig() (*FreeCacheConfig, error) {
	fs, err := convertStringToInt(env("FREECACHE_SIZE"), "FREECACHE_SIZE")
	if err != nil {
		return nil, err
	}
	ttl, err := convertStringToInt(env("FREECACHE_TTL"), "FREECACHE_TTL")
	if err != nil {
		return nil, err
	}
	return &FreeCacheConfig{
		SIZE_BYTES: fs,
		TTL:        ttl,
	}, nil
}
