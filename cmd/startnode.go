package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"autoseal-node/config"
	"autoseal-node/consensus"
	"autoseal-node/core"
	"autoseal-node/database"
	"autoseal-node/execution"
	"autoseal-node/health"
	"autoseal-node/logger"
	"autoseal-node/rpc"
)

var startNodeCmd = &cobra.Command{
	Use:   "startnode",
	Short: "Start the auto-seal node",
	Long:  `Start the chain, the sealing engine and the JSON-RPC server.`,
	RunE:  runStartNode,
}

func runStartNode(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.GetLogLevel())
	logger.Info("Starting auto-seal node...")
	logger.Infof("Configuration: datadir=%s rpc=%s:%d chainid=%d sealmode=%s interval=%s",
		cfg.DataDir, cfg.RPCAddr, cfg.RPCPort, cfg.ChainID, cfg.SealMode, cfg.SealInterval)

	db, err := database.NewDatabase(cfg.ChainDataDir(), cfg.Cache, cfg.Handles)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	genesis := core.DefaultGenesis(cfg.ChainID)
	if cfg.GenesisFilePath != "" {
		if loaded, err := core.LoadGenesis(cfg.GenesisFilePath); err == nil {
			genesis = loaded
		} else {
			logger.Warningf("Could not load genesis file: %v. Using defaults.", err)
		}
	}

	engine := consensus.NewAutoSeal(cfg.GasLimitTarget)
	validator := core.NewValidator(cfg.MaxBlockTxs)

	blockchain, err := core.NewBlockchain(db, engine, validator, genesis, cfg.ForceGenesis)
	if err != nil {
		return fmt.Errorf("failed to initialize blockchain: %w", err)
	}
	defer blockchain.Close()

	mempool := core.NewMempool(cfg.PoolSize)
	blockchain.SetMempool(mempool)

	vm := execution.NewVM(blockchain.Config())

	mode := core.InstantMode
	if strings.ToLower(cfg.SealMode) == "interval" {
		mode = core.IntervalMode
	}
	var coinbase common.Address
	if cfg.Coinbase != "" {
		if !common.IsHexAddress(cfg.Coinbase) {
			return fmt.Errorf("invalid coinbase address %q", cfg.Coinbase)
		}
		coinbase = common.HexToAddress(cfg.Coinbase)
	}

	miner := core.NewMiner(core.MinerConfig{
		Mode:              mode,
		Interval:          cfg.SealInterval,
		Coinbase:          coinbase,
		MaxBlockTxs:       cfg.MaxBlockTxs,
		AllowEmptyInstant: cfg.AllowEmptyInstant,
	}, blockchain, mempool, engine, vm)

	events := make(chan core.Event, 16)
	sub := miner.SubscribeEvents(events)
	defer sub.Unsubscribe()

	if err := miner.Start(); err != nil {
		return fmt.Errorf("failed to start sealing engine: %w", err)
	}
	defer miner.Stop()

	rpcServer := rpc.NewServer(&rpc.Config{
		Host:          cfg.RPCAddr,
		Port:          cfg.RPCPort,
		EnableMetrics: cfg.EnableMetrics,
	}, blockchain, mempool, miner)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("failed to start RPC server: %w", err)
	}
	defer rpcServer.Stop()

	var healthServer *health.Server
	if cfg.EnableHealth {
		healthServer = health.NewServer()
		healthServer.Register("sealing", func() error {
			if s := miner.Status(); s == core.StatusFaulted {
				return fmt.Errorf("sealing engine faulted")
			}
			return nil
		})
		healthServer.Register("database", func() error {
			_, err := db.Has([]byte("currentBlock"))
			return err
		})
		if err := healthServer.Start(cfg.RPCAddr, cfg.HealthPort); err != nil {
			return fmt.Errorf("failed to start health server: %w", err)
		}
		defer healthServer.Stop()
	}

	logger.Info("Node started. Press Ctrl+C to stop.")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case sig := <-sigCh:
			logger.Infof("Received signal %v, shutting down...", sig)
			return nil
		case ev := <-events:
			if ev.Err != nil {
				logger.Errorf("Sealing engine halted: %v", ev.Err)
				return fmt.Errorf("sealing engine fault: %w", ev.Err)
			}
		}
	}
}
