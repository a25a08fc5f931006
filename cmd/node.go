package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spacedata/sdchain/api"
	"github.com/spacedata/sdchain/events"
	"github.com/spacedata/sdchain/exception"
	"github.com/spacedata/sdchain/jsonrpc"
	"github.com/spacedata/sdchain/logx"
	"github.com/spacedata/sdchain/miner"
	"github.com/spacedata/sdchain/monitoring"
	"github.com/spacedata/sdchain/ratelimit"
	"github.com/spacedata/sdchain/validator"
	"github.com/spf13/cobra"
)

var noMiner bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the node: JSON-RPC, HTTP API with metrics, and the background miner",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&noMiner, "no-miner", false, "Serve RPC only; blocks are mined through chain.mine")
}

func runNode() error {
	setup, err := loadSetup()
	if err != nil {
		return err
	}
	monitoring.InitMetrics()

	bus := events.NewEventBus()
	c, bs, err := setup.openChain(bus)
	if err != nil {
		return err
	}
	defer bs.MustClose()

	subID, eventCh := bus.Subscribe()
	exception.SafeGo("eventLogger", func() {
		for ev := range eventCh {
			switch e := ev.(type) {
			case *events.BlockAppended:
				logx.Info("EVENT", fmt.Sprintf("block %d appended hash=%s entries=%d", e.BlockIndex(), e.BlockHash(), e.EntryCount()))
			case *events.ValidationFailed:
				logx.Warn("EVENT", fmt.Sprintf("validation failed at block %d: %s", e.BlockIndex(), e.Reason()))
			default:
				logx.Debug("EVENT", ev.Type(), " next block ", ev.BlockIndex())
			}
		}
	})
	defer bus.Unsubscribe(subID)

	rpc := jsonrpc.NewServer(setup.node.RPCAddr, c, validator.NewChecker(c.Difficulty(), bus))
	if len(setup.node.CORSOrigins) > 0 {
		rpc.SetCORSConfig(jsonrpc.CORSConfig{
			AllowedOrigins: setup.node.CORSOrigins,
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
		})
	}
	if cors, ok := jsonrpc.CORSFromEnv(); ok {
		rpc.SetCORSConfig(cors)
	}
	if rlCfg := setup.node.RateLimit; rlCfg.MaxRequests > 0 {
		limiter := ratelimit.NewRateLimiter(&ratelimit.RateLimiterConfig{MaxRequests: rlCfg.MaxRequests, WindowSize: rateWindow(rlCfg.WindowMs)})
		defer limiter.Stop()
		rpc.SetRateLimiter(limiter)
	}
	rpc.Start()

	var apiSrv *api.APIServer
	if setup.node.HTTPAddr != "" {
		apiSrv = api.NewAPIServer(c, setup.node.HTTPAddr)
		if rlCfg := setup.node.RateLimit; rlCfg.MaxRequests > 0 {
			apiLimiter := ratelimit.NewRateLimiter(&ratelimit.RateLimiterConfig{MaxRequests: rlCfg.MaxRequests, WindowSize: rateWindow(rlCfg.WindowMs)})
			defer apiLimiter.Stop()
			apiSrv.Limiter = apiLimiter
		}
		apiSrv.Start()
	}

	collectCtx, stopCollector := context.WithCancel(context.Background())
	defer stopCollector()
	exception.SafeGo("systemMetrics", func() {
		monitoring.RunSystemCollector(collectCtx, 15*time.Second)
	})

	var mineSvc *miner.Service
	if !noMiner {
		mineSvc = miner.NewService(c, time.Duration(setup.miner.IntervalMs)*time.Millisecond, setup.miner.MinPending)
		mineSvc.Start()
	}

	last, _ := c.LastBlock()
	logx.Info("NODE", fmt.Sprintf("Node running: height=%d difficulty=%d rpc=%s http=%s", last.Index, c.Difficulty(), setup.node.RPCAddr, setup.node.HTTPAddr))

	ctx, stop := signalContext()
	defer stop()
	<-ctx.Done()
	logx.Info("NODE", "Shutting down")

	if mineSvc != nil {
		mineSvc.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rpc.Shutdown(shutdownCtx); err != nil {
		logx.Error("RPC", "Shutdown failed: ", err)
	}
	if apiSrv != nil {
		if err := apiSrv.Shutdown(shutdownCtx); err != nil {
			logx.Error("API", "Shutdown failed: ", err)
		}
	}
	return nil
}

func rateWindow(ms int) time.Duration {
	if ms <= 0 {
		return time.Second
	}
	return time.Duration(ms) * time.Millisecond
}
