// Package component selects concrete backends by configured type, the one
// place where wiring decisions live.
package component

import (
	"context"
	"fmt"

	"anvil/internal/balancer/registry"
	regfreecache "anvil/internal/balancer/registry/freecache"
	regpostgres "anvil/internal/balancer/registry/postgres"
	"anvil/internal/builder"
	"anvil/internal/builder/gradle"
	"anvil/internal/component/redis"
	"anvil/internal/config"
	"anvil/internal/resultstore"
	rsfs "anvil/internal/resultstore/fs"
	rsjetstream "anvil/internal/resultstore/jetstream"
	rsmemory "anvil/internal/resultstore/memory"
	rsredis "anvil/internal/resultstore/redis"
	"anvil/internal/storage"
	stfs "anvil/internal/storage/fs"
	stminio "anvil/internal/storage/minio"
)

func GetResultStore(ctx context.Context, storeType string) (resultstore.Store, error) {
	switch storeType {
	case "memory":
		return rsmemory.NewMemoryStore(), nil
	case "redis":
		client, err := redis.NewRedisClient(ctx)
		if err != nil {
			return nil, err
		}
		cfg, err := config.GetRedisConfig()
		if err != nil {
			return nil, err
		}
		return rsredis.NewRedisStore(client, cfg.TTL), nil
	case "jetstream":
		return rsjetstream.NewJetStreamStore()
	case "fs":
		cfg, err := config.GetResultStoreConfig()
		if err != nil {
			return nil, err
		}
		return rsfs.NewFSStore(cfg.DIR)
	default:
		return nil, fmt.Errorf("unknown result store type %q", storeType)
	}
}

func GetRegistry(ctx context.Context, registryType string) (registry.Registry, error) {
	switch registryType {
	case "postgres":
		cfg, err := config.GetPostgresConfig()
		if err != nil {
			return nil, err
		}
		return regpostgres.NewPostgresRegistry(ctx, cfg.URL)
	case "freecache":
		cfg, err := config.GetFreeCacheConfig()
		if err != nil {
			return nil, err
		}
		return regfreecache.NewFreeCacheRegistry(cfg.SIZE_BYTES, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown registry type %q", registryType)
	}
}

func GetRunner(runnerType string) (builder.Runner, error) {
	switch runnerType {
	case "gradle":
		return gradle.NewRunner(), nil
	case "static":
		return &builder.StaticRunner{Artifact: []byte("ok")}, nil
	default:
		return nil, fmt.Errorf("unknown runner type %q", runnerType)
	}
}

func GetArchive(archiveType string) (storage.Storage, error) {
	switch archiveType {
	case "none":
		return nil, nil
	case "minio":
		cfg, err := config.GetMinioConfig()
		if err != nil {
			return nil, err
		}
		return stminio.NewMinioClient(*cfg)
	case "fs":
		cfg, err := config.GetResultStoreConfig()
		if err != nil {
			return nil, err
		}
		return stfs.NewFSStorage(cfg.DIR + "/archive")
	default:
		return nil, fmt.Errorf("unknown archive type %q", archiveType)
	}
}
