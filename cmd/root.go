package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"autoseal-node/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "autoseal",
	Short: "Auto-seal development chain node",
	Long: `autoseal runs a single-node Ethereum-compatible development chain.
Blocks are produced locally without proof of work, either instantly on
transaction arrival or on a fixed interval.`,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(startNodeCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.autoseal/config.yaml or ./config.yaml)")

	rootCmd.PersistentFlags().String("datadir", config.DefaultConfig.DataDir, "Data directory for chain data")
	rootCmd.PersistentFlags().String("rpcaddr", config.DefaultConfig.RPCAddr, "JSON-RPC listen address")
	rootCmd.PersistentFlags().Int("rpcport", config.DefaultConfig.RPCPort, "JSON-RPC port")
	rootCmd.PersistentFlags().Uint64("chainid", config.DefaultConfig.ChainID, "Chain ID")
	rootCmd.PersistentFlags().String("log_level", config.DefaultConfig.LogLevel, "Logging level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("sealmode", config.DefaultConfig.SealMode, "Block production mode: instant or interval")
	rootCmd.PersistentFlags().Duration("sealinterval", config.DefaultConfig.SealInterval, "Block interval for interval mode")
	rootCmd.PersistentFlags().String("coinbase", config.DefaultConfig.Coinbase, "Address credited with priority fees")
	rootCmd.PersistentFlags().Uint64("gaslimittarget", config.DefaultConfig.GasLimitTarget, "Gas limit the chain steers toward")
	rootCmd.PersistentFlags().Int("maxblocktxs", config.DefaultConfig.MaxBlockTxs, "Maximum transactions per block (0 = unlimited)")
	rootCmd.PersistentFlags().Bool("allowemptyinstant", config.DefaultConfig.AllowEmptyInstant, "Seal empty blocks in instant mode")
	rootCmd.PersistentFlags().Bool("forcegenesis", config.DefaultConfig.ForceGenesis, "Recreate the genesis block, discarding the existing head")
	rootCmd.PersistentFlags().String("genesisfilepath", config.DefaultConfig.GenesisFilePath, "Path to a genesis.json file")

	viper.BindPFlag("datadir", rootCmd.PersistentFlags().Lookup("datadir"))
	viper.BindPFlag("rpcaddr", rootCmd.PersistentFlags().Lookup("rpcaddr"))
	viper.BindPFlag("rpcport", rootCmd.PersistentFlags().Lookup("rpcport"))
	viper.BindPFlag("chainid", rootCmd.PersistentFlags().Lookup("chainid"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log_level"))
	viper.BindPFlag("sealmode", rootCmd.PersistentFlags().Lookup("sealmode"))
	viper.BindPFlag("sealinterval", rootCmd.PersistentFlags().Lookup("sealinterval"))
	viper.BindPFlag("coinbase", rootCmd.PersistentFlags().Lookup("coinbase"))
	viper.BindPFlag("gaslimittarget", rootCmd.PersistentFlags().Lookup("gaslimittarget"))
	viper.BindPFlag("maxblocktxs", rootCmd.PersistentFlags().Lookup("maxblocktxs"))
	viper.BindPFlag("allowemptyinstant", rootCmd.PersistentFlags().Lookup("allowemptyinstant"))
	viper.BindPFlag("forcegenesis", rootCmd.PersistentFlags().Lookup("forcegenesis"))
	viper.BindPFlag("genesisfilepath", rootCmd.PersistentFlags().Lookup("genesisfilepath"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".autoseal"))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("AUTOSEAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
		fmt.Fprintf(os.Stderr, "Error reading config file %q: %v\n", viper.ConfigFileUsed(), err)
	}
}
