package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	zcm "github.com/zcmgo/udpm"
)

var recvCmd = &cobra.Command{
	Use:   "recv <channel>",
	Short: "Print messages received on a channel until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecv,
}

func runRecv(cmd *cobra.Command, args []string) error {
	t, err := newTransportFromFlags()
	if err != nil {
		return err
	}
	defer t.Destroy()

	channel := args[0]
	t.RecvEnable(channel, true)

	for {
		msg, err := t.Recv(1000)
		if err != nil {
			if errors.Is(err, zcm.ErrTimeout) {
				continue
			}
			if errors.Is(err, zcm.ErrClosed) {
				return nil
			}
			return fmt.Errorf("recv: %w", err)
		}
		if msg.Channel != channel {
			continue
		}
		fmt.Printf("%s [%d bytes] %s\n", msg.Channel, len(msg.Payload()), msg.Payload())
	}
}
