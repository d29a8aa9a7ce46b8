package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20ABI = `[
	{"name":"transfer","type":"function","inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

// ERC20Client talks to the token contract through a JSON-RPC provider and
// signs transfers with the custodial key.
type ERC20Client struct {
	eth      *ethclient.Client
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	confirm  RetryPolicy

	// decimals is cached after the first lookup; mu guards it because the
	// client is shared across goroutines.
	mu       sync.Mutex
	decimals *uint8
}

func NewERC20Client(rpcEndpoint string, chainID int64, contract string, seedPhrase string, confirm RetryPolicy) (*ERC20Client, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid token contract address %q", contract)
	}

	key, from, err := DeriveWallet(seedPhrase)
	if err != nil {
		return nil, err
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, err
	}

	eth, err := ethclient.Dial(rpcEndpoint)
	if err != nil {
		return nil, fmt.Errorf("dial rpc provider: %w", err)
	}

	return &ERC20Client{
		eth:      eth,
		abi:      parsed,
		contract: common.HexToAddress(contract),
		key:      key,
		from:     from,
		chainID:  big.NewInt(chainID),
		confirm:  confirm.withDefaults(),
	}, nil
}

func (c *ERC20Client) HolderAddress() string {
	return c.from.Hex()
}

func (c *ERC20Client) Decimals(ctx context.Context) (uint8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decimals != nil {
		return *c.decimals, nil
	}

	out, err := c.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals result %T", out[0])
	}
	c.decimals = &d
	return d, nil
}

func (c *ERC20Client) BalanceOf(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	out, err := c.call(ctx, "balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result %T", out[0])
	}
	return bal, nil
}

func (c *ERC20Client) Transfer(ctx context.Context, to string, amount *big.Int) (string, error) {
	if !common.IsHexAddress(to) {
		return "", fmt.Errorf("invalid recipient address %q", to)
	}

	data, err := c.abi.Pack("transfer", common.HexToAddress(to), amount)
	if err != nil {
		return "", err
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}
	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &c.contract,
		Data: data,
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTransaction(nonce, c.contract, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", err
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return signed.Hash().Hex(), nil
}

func (c *ERC20Client) WaitConfirmed(ctx context.Context, txHash string) error {
	hash := common.HexToHash(txHash)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.confirm.Interval
	policy.MaxInterval = c.confirm.Interval * 10

	op := func() (*types.Receipt, error) {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err != nil {
			// ethereum.NotFound while the tx is still pending; retry.
			return nil, err
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return nil, backoff.Permanent(fmt.Errorf("transaction %s reverted", txHash))
		}
		return receipt, nil
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.confirm.MaxAttempts)))
	if err != nil {
		return fmt.Errorf("confirm transaction %s: %w", txHash, err)
	}
	return nil
}

func (c *ERC20Client) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	res, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := c.abi.Unpack(method, res)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s returned no values", method)
	}
	return out, nil
}
