package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/84hero/evm-txclient/pkg/rpc"
	"github.com/84hero/evm-txclient/pkg/signer"
	"github.com/84hero/evm-txclient/pkg/sink"
	"github.com/84hero/evm-txclient/pkg/txcodec"
)

// PrivateKeyEnv holds the hex key used by the send command.
const PrivateKeyEnv = "EVMTX_PRIVATE_KEY"

// defaultGasPerPubdata is the zkSync default pubdata price limit.
const defaultGasPerPubdata = 50000

var logsCommand = &cli.Command{
	Name:  "logs",
	Usage: "collect logs matching the app config filters and export them",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "from", Value: "earliest", Usage: "first block (number or tag)"},
		&cli.StringFlag{Name: "to", Value: "latest", Usage: "last block (number or tag)"},
		&cli.Uint64Flag{Name: "batch", Usage: "blocks per export window (default: client.batch_size)"},
	},
	Action: runLogs,
}

var sendCommand = &cli.Command{
	Name:  "send",
	Usage: "sign and submit a transfer with the key in " + PrivateKeyEnv,
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "to", Required: true, Usage: "recipient address"},
		&cli.StringFlag{Name: "value", Value: "0", Usage: "amount in wei (decimal or 0x)"},
		&cli.StringFlag{Name: "data", Usage: "hex call data"},
		&cli.BoolFlag{Name: "legacy", Usage: "send a legacy transaction instead of an EIP-712 one"},
		&cli.StringFlag{Name: "fee-token", Usage: "fee token address (EIP-712 only)"},
		&cli.Uint64Flag{Name: "gas-limit", Usage: "gas limit (default: eth_estimateGas)"},
		&cli.Uint64Flag{Name: "gas-per-pubdata", Value: defaultGasPerPubdata, Usage: "gas per pubdata byte limit (EIP-712 only)"},
	},
	Action: runSend,
}

var balanceCommand = &cli.Command{
	Name:  "balance",
	Usage: "print the balance of an address in wei",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "address", Required: true},
		&cli.StringFlag{Name: "block", Value: "latest"},
	},
	Action: runBalance,
}

var gasPriceCommand = &cli.Command{
	Name:   "gas-price",
	Usage:  "print the node's gas price in wei",
	Action: runGasPrice,
}

var receiptCommand = &cli.Command{
	Name:  "receipt",
	Usage: "print a transaction receipt as JSON",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "hash", Required: true},
	},
	Action: runReceipt,
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// parseWei accepts a decimal or 0x-prefixed amount.
func parseWei(s string) (*big.Int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return rpc.ParseQuantity(s)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

// resolveBlock turns a tag into a height; latest and pending become the head.
func resolveBlock(ctx context.Context, client *rpc.Client, tag rpc.BlockTag) (uint64, error) {
	if n, ok := tag.Number(); ok {
		return n, nil
	}
	if tag == rpc.Earliest {
		return 0, nil
	}
	return client.BlockNumber(ctx)
}

func runLogs(c *cli.Context) error {
	appCfg, err := loadAppConfig(c.String(appConfigFlag.Name))
	if err != nil {
		return fmt.Errorf("load app config: %w", err)
	}
	filters, registry, err := initFilter(appCfg.Filters)
	if err != nil {
		return err
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	fromTag, err := rpc.ParseBlockTag(c.String("from"))
	if err != nil {
		return err
	}
	toTag, err := rpc.ParseBlockTag(c.String("to"))
	if err != nil {
		return err
	}
	from, err := resolveBlock(c.Context, s.client, fromTag)
	if err != nil {
		return err
	}
	to, err := resolveBlock(c.Context, s.client, toTag)
	if err != nil {
		return err
	}

	outputs := initOutputs(appCfg)
	if len(outputs) == 0 {
		outputs = append(outputs, sink.NewConsoleOutput())
	}
	fanout := sink.NewFanout(outputs...)
	defer fanout.Close()

	var dec sink.Decoder
	if registry.Len() > 0 {
		dec = registry
	}

	collector := rpc.NewCollector(s.client)
	collector.MaxDepth = s.cfg.Client.MaxDepth
	collector.Parallel = s.cfg.Client.Parallel
	collector.UseBloom = s.cfg.Client.UseBloom

	batch := c.Uint64("batch")
	if batch == 0 {
		batch = s.cfg.Client.BatchSize
	}
	network := s.client.Network().String()

	var total int
	log.Info("Collecting logs", "from", from, "to", to, "batch", batch, "filters", len(filters), "outputs", fanout.Len())
	err = collector.CollectBatchesAll(c.Context, filters, from, to, batch, func(ctx context.Context, lo, hi uint64, logs []types.Log) error {
		total += len(logs)
		return fanout.Send(ctx, sink.Batch{
			Network:   network,
			FromBlock: lo,
			ToBlock:   hi,
			Records:   sink.NewRecords(logs, dec),
		})
	})
	if err != nil {
		return err
	}
	log.Info("Logs exported", "count", total)
	return nil
}

func runSend(c *cli.Context) error {
	key := os.Getenv(PrivateKeyEnv)
	if key == "" {
		return fmt.Errorf("%s is not set", PrivateKeyEnv)
	}
	ks, err := signer.NewKeySignerFromHex(key)
	if err != nil {
		return err
	}
	to, err := parseAddress(c.String("to"))
	if err != nil {
		return err
	}
	value, err := parseWei(c.String("value"))
	if err != nil {
		return err
	}
	var data []byte
	if d := c.String("data"); d != "" {
		if data, err = hexutil.Decode(d); err != nil {
			return fmt.Errorf("invalid data: %w", err)
		}
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := c.Context

	gasPrice, err := s.client.GasPrice(ctx)
	if err != nil {
		return err
	}
	gasLimit := new(big.Int).SetUint64(c.Uint64("gas-limit"))
	if gasLimit.Sign() == 0 {
		from := ks.Address()
		gasLimit, err = s.client.EstimateGas(ctx, rpc.EstimateRequest{From: &from, To: to, Value: value, Data: data})
		if err != nil {
			return err
		}
	}

	var hash common.Hash
	if c.Bool("legacy") {
		hash, err = s.client.SendLegacyTransaction(ctx, txcodec.LegacyTransaction{
			To:       &to,
			Value:    value,
			Data:     data,
			GasPrice: gasPrice,
			GasLimit: gasLimit,
		}, ks.Address(), ks)
	} else {
		var tx txcodec.TypedTransaction
		tx, err = typedTransfer(s.client, to, value, data, gasPrice, gasLimit, c.String("fee-token"), c.Uint64("gas-per-pubdata"))
		if err != nil {
			return err
		}
		hash, err = s.client.SendTypedTransaction(ctx, tx, ks.Address(), ks)
	}
	if err != nil {
		return err
	}
	log.Info("Transaction submitted", "hash", hash, "from", ks.Address(), "to", to, "value", value, "gas", gasLimit)
	fmt.Fprintln(c.App.Writer, hash.Hex())
	return nil
}

var errNoChainID = errors.New("EIP-712 transactions need a known chain id; set client.chain or client.chain_id")

func typedTransfer(client *rpc.Client, to common.Address, value *big.Int, data []byte, gasPrice, gasLimit *big.Int, feeToken string, gasPerPubdata uint64) (txcodec.TypedTransaction, error) {
	id, ok := client.Network().ChainID()
	if !ok {
		return txcodec.TypedTransaction{}, errNoChainID
	}
	tx := txcodec.TypedTransaction{
		To:            to,
		Value:         value,
		Data:          data,
		ChainID:       id.Uint64(),
		GasPrice:      gasPrice,
		GasLimit:      gasLimit,
		GasPerPubdata: new(big.Int).SetUint64(gasPerPubdata),
	}
	if feeToken != "" {
		addr, err := parseAddress(feeToken)
		if err != nil {
			return txcodec.TypedTransaction{}, err
		}
		tx.FeeToken = addr
	}
	return tx, nil
}

func runBalance(c *cli.Context) error {
	addr, err := parseAddress(c.String("address"))
	if err != nil {
		return err
	}
	block, err := rpc.ParseBlockTag(c.String("block"))
	if err != nil {
		return err
	}
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	balance, err := s.client.GetBalance(c.Context, addr, block)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, balance.String())
	return nil
}

func runGasPrice(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	price, err := s.client.GasPrice(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, price.String())
	return nil
}

func runReceipt(c *cli.Context) error {
	hash := common.HexToHash(c.String("hash"))
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	receipt, err := s.client.GetTransactionReceipt(c.Context, hash)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(receipt)
}
