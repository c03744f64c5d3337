// Command demo runs concurrent payouts through the engine against the
// in-memory gateway and prints each outcome. No database or network needed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"telegram-reaction-payout/internal/config"
	"telegram-reaction-payout/internal/domain/model"
	payAdapters "telegram-reaction-payout/internal/infra/adapters/payment"
	"telegram-reaction-payout/internal/infra/logging"
	"telegram-reaction-payout/internal/infra/worker"
	"telegram-reaction-payout/internal/usecase"
)

func main() {
	n := flag.Int("n", 5, "number of receivers")
	pending := flag.Int("pending", 2, "in_progress answers before the gateway settles")
	maxAttempts := flag.Int("max-attempts", 10, "confirmation calls per payout")
	poll := flag.Duration("poll", 200*time.Millisecond, "wait between confirmation calls")
	rateFlag := flag.String("rate", "0.5", "currency units per reaction")
	flag.Parse()

	logger := logging.New(config.LogConfig{Level: "info", Format: "console"}, true)
	rate, err := model.ParseRate(*rateFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	engine := usecase.NewPayoutEngine(payAdapters.NewNoopTransferClient(*pending),
		usecase.EngineConfig{MaxAttempts: *maxAttempts, PollInterval: *poll}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := worker.NewPool(*n, *n, logger)
	pool.Start(ctx)

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		rows []string
	)
	start := time.Now()
	for i := 1; i <= *n; i++ {
		r, err := model.NewReceiver(fmt.Sprintf("41001000000%04d", i), int64(1000+i), fmt.Sprintf("user%d", i), int64(i*10))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		wg.Add(1)
		task := func(ctx context.Context) error {
			defer wg.Done()
			out, err := engine.Withdraw(ctx, r, rate)
			mu.Lock()
			rows = append(rows, fmt.Sprintf("%-18s %8s RUB  %-9s attempts=%d err=%v",
				r.Account, r.AmountDue(rate).StringFixed(2), out.Kind, out.Attempts, err))
			mu.Unlock()
			return err
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			fmt.Fprintln(os.Stderr, err)
		}
	}
	wg.Wait()
	pool.Stop()

	for _, row := range rows {
		fmt.Println(row)
	}
	total := decimal.Zero
	for i := 1; i <= *n; i++ {
		total = total.Add(decimal.NewFromInt(int64(i * 10)).Mul(rate))
	}
	fmt.Printf("%d payouts, %s RUB total, %s elapsed\n", *n, total.StringFixed(2), time.Since(start).Round(time.Millisecond))
}
