package server

import (
	"github.com/spf13/cobra"
)

var envFile string

var CMD = &cobra.Command{
	Use:   "server",
	Short: "start the document gateway http server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadDotEnv(envFile); err != nil {
			return err
		}
		cfg, err := LoadConfig(Conf)
		if err != nil {
			return err
		}
		return Main(cfg)
	},
}

func init() {
	f := CMD.Flags()
	f.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading DOCGATE_* variables")
	f.String("listen", Conf.GetString("listen"), "http listen address")
	f.String("stats-listen", Conf.GetString("stats-listen"), "listen address for /healthz and /metrics")
	f.String("store", Conf.GetString("store"), "store backend: pebble, memory or tikv")
	f.String("pebble-path", Conf.GetString("pebble-path"), "pebble data directory")
	f.StringSlice("pd-endpoint", nil, "tikv placement driver endpoints")
	f.String("bus", Conf.GetString("bus"), "change bus: solo, nats or embedded")
	f.String("nats-url", Conf.GetString("nats-url"), "nats server url when bus is nats")
	f.Int("nats-port", Conf.GetInt("nats-port"), "client port of the embedded nats server")
	f.String("otel-endpoint", "", "OTLP gRPC collector endpoint, tracing is off when empty")
	f.Duration("schema-ttl", Conf.GetDuration("schema-ttl"), "how long compiled schemas are cached")
	f.String("log-level", Conf.GetString("log-level"), "debug, info, warn or error")

	if err := Conf.BindPFlags(f); err != nil {
		panic(err)
	}
}
