package main

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zcmgo/udpm/internal/logging"
)

var (
	cfgFile string

	groupAddr string
	groupPort uint16
	ifaceName string
	ttl       int
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "zcmcat",
	Short: "zcmcat sends and receives messages over a ZCM UDP multicast transport",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $ZCMCAT_CONFIG or none)")
	rootCmd.PersistentFlags().StringVar(&groupAddr, "group", "239.255.76.67", "multicast group address")
	rootCmd.PersistentFlags().Uint16Var(&groupPort, "port", 7667, "multicast UDP port")
	rootCmd.PersistentFlags().StringVar(&ifaceName, "iface", "", "network interface to use (default: OS-chosen)")
	rootCmd.PersistentFlags().IntVar(&ttl, "ttl", 1, "multicast TTL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace/debug/info/warn/error)")

	_ = viper.BindPFlag("group", rootCmd.PersistentFlags().Lookup("group"))
	_ = viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("iface", rootCmd.PersistentFlags().Lookup("iface"))
	_ = viper.BindPFlag("ttl", rootCmd.PersistentFlags().Lookup("ttl"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(recvCmd)
}

func initConfig() error {
	viper.SetEnvPrefix("zcmcat")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	path := cfgFile
	if path == "" {
		path = os.Getenv("ZCMCAT_CONFIG")
	}
	if path == "" {
		return nil
	}

	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	return nil
}

// resolveInterface looks up the named interface, if any was given.
func resolveInterface(name string) (*net.Interface, error) {
	if name == "" {
		return nil, nil
	}
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("unknown interface %q: %w", name, err)
	}
	return ifi, nil
}

func newLogger() (*logging.Config, error) {
	return &logging.Config{Level: viper.GetString("log_level")}, nil
}

// Execute runs the zcmcat root command.
func Execute() error {
	cobra.OnInitialize(func() {
		if err := initConfig(); err != nil {
			fmt.Println(err)
		}
	})
	return rootCmd.Execute()
}
