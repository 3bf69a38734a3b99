package main

import (
	"bufio"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zcmgo/udpm/internal/logging"

	zcm "github.com/zcmgo/udpm"
)

var sendCmd = &cobra.Command{
	Use:   "send <channel> [payload]",
	Short: "Publish one message to a channel, or one line per stdin line if payload is omitted",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	t, err := newTransportFromFlags()
	if err != nil {
		return err
	}
	defer t.Destroy()

	channel := args[0]

	if len(args) == 2 {
		return t.Send(channel, []byte(args[1]))
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := t.Send(channel, scanner.Bytes()); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}
	return scanner.Err()
}

func newTransportFromFlags() (*zcm.Transport, error) {
	logCfg, err := newLogger()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(*logCfg)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	ifi, err := resolveInterface(viper.GetString("iface"))
	if err != nil {
		return nil, err
	}

	group := net.ParseIP(viper.GetString("group"))
	if group == nil {
		return nil, fmt.Errorf("invalid --group address %q", viper.GetString("group"))
	}

	cfg := zcm.Config{
		GroupAddr: group,
		Port:      uint16(viper.GetInt("port")),
		Interface: ifi,
		TTL:       viper.GetInt("ttl"),
		Logger:    logger,
	}

	return zcm.NewTransport(cfg)
}
