package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/devaloi/lobbychat/internal/client"
	"github.com/devaloi/lobbychat/internal/config"
	"github.com/devaloi/lobbychat/internal/domain"
	"github.com/devaloi/lobbychat/internal/transport"
)

var (
	flagPageURL  string
	flagClients  int
	flagRoom     string
	flagMessages int
	flagTimeout  time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Drive many chat clients against a server",
	RunE:  runLoadTest,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagPageURL, "page-url", "http://localhost:8080", "origin of the chat server")
	flags.IntVar(&flagClients, "clients", 10, "number of concurrent clients")
	flags.StringVar(&flagRoom, "room", "loadtest", "room to chat in; lobby is allowed")
	flags.IntVar(&flagMessages, "messages", 10, "messages per client")
	flags.DurationVar(&flagTimeout, "timeout", 30*time.Second, "overall deadline")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute loadtest command")
	}
}

type stats struct {
	connected int64
	sent      int64
	received  int64
	errors    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (s *stats) observe(d time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.mu.Unlock()
}

func runLoadTest(cmd *cobra.Command, args []string) error {
	config.SetupLogger(config.ConsoleWriter(os.Stderr), "info")

	url, err := transport.URLFor(flagPageURL)
	if err != nil {
		return err
	}
	log.Info().Int("clients", flagClients).Int("messages", flagMessages).Str("room", flagRoom).Str("url", url).Msg("load test")

	ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
	defer cancel()

	var (
		st stats
		wg sync.WaitGroup
	)
	start := time.Now()
	for i := 0; i < flagClients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := runClient(ctx, url, id, &st); err != nil {
				atomic.AddInt64(&st.errors, 1)
				log.Warn().Err(err).Int("client", id).Msg("client failed")
			}
		}(i)
	}
	wg.Wait()
	report(&st, time.Since(start))
	return nil
}

// runClient logs in, enters the room, sends its messages and waits until
// every one of them has been echoed back.
func runClient(ctx context.Context, url string, id int, st *stats) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := client.New(transport.New(url), nil)
	go c.Run(ctx)

	views, unsubscribe := c.Subscribe()
	defer unsubscribe()
	wait := func(cond func(client.View) bool) (client.View, error) {
		for {
			select {
			case v, ok := <-views:
				if !ok {
					return client.View{}, client.ErrStopped
				}
				if cond(v) {
					return v, nil
				}
			case <-ctx.Done():
				return client.View{}, ctx.Err()
			}
		}
	}

	if _, err := wait(func(v client.View) bool { return v.Ready }); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	atomic.AddInt64(&st.connected, 1)

	user := fmt.Sprintf("user_%d", id)
	if err := c.Login(user); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if _, err := wait(func(v client.View) bool { return v.Authenticated }); err != nil {
		return fmt.Errorf("await login: %w", err)
	}
	if flagRoom != domain.Lobby {
		if err := c.SwitchRoom(flagRoom); err != nil {
			return fmt.Errorf("switch: %w", err)
		}
	}

	sentAt := make(map[string]time.Time, flagMessages)
	for i := 0; i < flagMessages; i++ {
		text := fmt.Sprintf("msg %d from %s", i, user)
		sentAt[text] = time.Now()
		if err := c.SendMessage(text); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		atomic.AddInt64(&st.sent, 1)
	}

	seen := 0
	_, err := wait(func(v client.View) bool {
		for _, m := range v.Transcript[min(seen, len(v.Transcript)):] {
			if m.Sender == user && strings.HasPrefix(m.Text, "msg ") {
				if t, ok := sentAt[m.Text]; ok {
					st.observe(time.Since(t))
					delete(sentAt, m.Text)
				}
			}
			atomic.AddInt64(&st.received, 1)
		}
		seen = len(v.Transcript)
		return len(sentAt) == 0
	})
	if err != nil {
		return fmt.Errorf("await echoes (%d missing): %w", len(sentAt), err)
	}
	return nil
}

func report(st *stats, elapsed time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sort.Slice(st.latencies, func(i, j int) bool { return st.latencies[i] < st.latencies[j] })

	ev := log.Info().
		Int64("connected", st.connected).
		Int64("sent", st.sent).
		Int64("received", st.received).
		Int64("errors", st.errors).
		Dur("elapsed", elapsed)
	if elapsed > 0 {
		ev = ev.Float64("msgs_per_sec", math.Round(float64(st.sent)/elapsed.Seconds()*100)/100)
	}
	if n := len(st.latencies); n > 0 {
		ev = ev.
			Dur("p50", st.latencies[n*50/100]).
			Dur("p95", st.latencies[min(n*95/100, n-1)]).
			Dur("p99", st.latencies[min(n*99/100, n-1)])
	}
	ev.Msg("load test complete")
}
