package main

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/danmuck/packetwire/internal/logging"
	"github.com/danmuck/packetwire/internal/packet"
	"github.com/spf13/cobra"
)

type options struct {
	Addr         string
	Count        int
	PayloadSize  int
	UrgentRatio  float64
	Partitions   int
	MaxChunk     int
	Seed         int64
	Timeout      time.Duration
	DialAttempts int
}

func defaultOptions() options {
	return options{
		Addr:         "127.0.0.1:5701",
		Count:        100,
		PayloadSize:  64,
		UrgentRatio:  0.1,
		Partitions:   271,
		MaxChunk:     512,
		Timeout:      5 * time.Second,
		DialAttempts: defaultRetryPolicy().attempts,
	}
}

func (o options) validate() error {
	switch {
	case o.Count < 0:
		return fmt.Errorf("count must not be negative")
	case o.PayloadSize < 0:
		return fmt.Errorf("payload size must not be negative")
	case o.UrgentRatio < 0 || o.UrgentRatio > 1:
		return fmt.Errorf("urgent ratio must be within [0,1]")
	case o.MaxChunk <= 0:
		return fmt.Errorf("max chunk must be positive")
	}
	return nil
}

func newRootCommand() *cobra.Command {
	opts := defaultOptions()
	cmd := &cobra.Command{
		Use:           "packetgen",
		Short:         "Write framed packets to a packetd listener in random-sized chunks",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.ConfigureRuntime()
			if err := opts.validate(); err != nil {
				return err
			}
			if opts.Seed == 0 {
				opts.Seed = time.Now().UnixNano()
			}
			stats, err := run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			logger := logging.Component("packetgen")
			logger.Info().
				Str("addr", opts.Addr).
				Int("packets", stats.Packets).
				Int("urgent", stats.Urgent).
				Int("bytes", stats.Bytes).
				Int("writes", stats.Writes).
				Msg("done")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.Addr, "addr", "a", opts.Addr, "packetd listen address")
	f.IntVarP(&opts.Count, "count", "n", opts.Count, "number of packets")
	f.IntVar(&opts.PayloadSize, "payload", opts.PayloadSize, "payload size in bytes")
	f.Float64Var(&opts.UrgentRatio, "urgent-ratio", opts.UrgentRatio, "fraction of packets flagged urgent")
	f.IntVar(&opts.Partitions, "partitions", opts.Partitions, "partition id range; 0 sends unpartitioned packets")
	f.IntVar(&opts.MaxChunk, "max-chunk", opts.MaxChunk, "largest single socket write")
	f.Int64Var(&opts.Seed, "seed", 0, "random seed (0 picks one)")
	f.IntVar(&opts.DialAttempts, "dial-attempts", opts.DialAttempts, "dial attempts before giving up")
	f.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "dial and write timeout")
	return cmd
}

type stats struct {
	Packets int
	Urgent  int
	Bytes   int
	Writes  int
}

func run(ctx context.Context, opts options) (stats, error) {
	rng := rand.New(rand.NewSource(opts.Seed))
	stream, st := buildStream(rng, opts)

	policy := defaultRetryPolicy()
	policy.attempts = opts.DialAttempts
	conn, err := dialWithRetry(ctx, net.Dialer{Timeout: opts.Timeout}, opts.Addr, policy, rng, logging.Component("packetgen"))
	if err != nil {
		return stats{}, err
	}
	defer conn.Close()
	if opts.Timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(opts.Timeout))
	}

	for _, chunk := range splitChunks(rng, stream, opts.MaxChunk) {
		if _, err := conn.Write(chunk); err != nil {
			return st, fmt.Errorf("write after %d writes: %w", st.Writes, err)
		}
		st.Writes++
	}
	return st, nil
}

// buildStream encodes opts.Count packets back to back.
func buildStream(rng *rand.Rand, opts options) ([]byte, stats) {
	var st stats
	var out []byte
	for i := 0; i < opts.Count; i++ {
		payload := make([]byte, opts.PayloadSize)
		rng.Read(payload)

		var flags uint16 = packet.FlagOp
		if rng.Float64() < opts.UrgentRatio {
			flags |= packet.FlagUrgent
			st.Urgent++
		}
		partition := packet.NoPartition
		if opts.Partitions > 0 {
			partition = int32(rng.Intn(opts.Partitions))
		}
		out = packet.AppendPacket(out, packet.New(payload, partition, flags))
		st.Packets++
	}
	st.Bytes = len(out)
	return out, st
}

// splitChunks cuts b into pieces of 1..max bytes that share b's backing array.
func splitChunks(rng *rand.Rand, b []byte, max int) [][]byte {
	var out [][]byte
	for len(b) > 0 {
		n := 1 + rng.Intn(max)
		if n > len(b) {
			n = len(b)
		}
		out = append(out, b[:n])
		b = b[n:]
	}
	return out
}
