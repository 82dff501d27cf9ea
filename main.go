package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chorusflow/chorus/agent"
	"github.com/chorusflow/chorus/config"
	"github.com/chorusflow/chorus/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cli struct {
	cfg config.Config
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "chorus", "namespace used in storage")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("storage-impl", "memory", "implementation of definition/execution storage")
	cmd.Flags().String("event-store-impl", "sqlite", "implementation of the event store")
	cmd.Flags().String("event-store-path", "chorus-events.db", "path of the sqlite event store")
	cmd.Flags().String("stream-name", "workflow-events", "name of the dispatch stream")
	cmd.Flags().Int("stream-capacity", 4096, "dispatch stream queue capacity")
	cmd.Flags().Bool("publish-events", false, "mirror events onto redis pub/sub")
	cmd.Flags().Int("correlation-gc-interval", 60, "correlation window gc interval in seconds")
	cmd.Flags().Int("correlation-retention", 3600, "correlation window retention in seconds")
	cmd.Flags().Int("definition-cache-ttl", 300, "definition cache ttl in seconds")
	cmd.Flags().Int("max-concurrent-actions", 8, "default per-level action concurrency")
	cmd.Flags().Bool("debug", false, "enable debug logging")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configFile != "" {
			return err
		}
	}

	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.EventStoreType = config.EventStoreType(viper.GetString("event-store-impl"))
	c.cfg.EventStorePath = viper.GetString("event-store-path")
	c.cfg.StreamName = viper.GetString("stream-name")
	c.cfg.StreamCapacity = viper.GetInt("stream-capacity")
	c.cfg.PublishEvents = viper.GetBool("publish-events")
	c.cfg.CorrelationGCInterval = viper.GetInt("correlation-gc-interval")
	c.cfg.CorrelationRetention = viper.GetInt("correlation-retention")
	c.cfg.DefinitionCacheTTL = viper.GetInt("definition-cache-ttl")
	c.cfg.MaxConcurrentActions = viper.GetInt("max-concurrent-actions")
	c.cfg.Debug = viper.GetBool("debug")
	return logger.InitLogger(c.cfg.Debug)
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	a, err := agent.New(c.cfg)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		return err
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return a.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "chorus",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
