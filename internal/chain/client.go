package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"hashscope/internal/config"
	"hashscope/internal/models"
	"hashscope/internal/utils"
)

// Backend is the slice of the HSK node API the client needs. *ethclient.Client
// satisfies it; tests substitute a fake.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Client talks to the HSK deposit contract: balance reads, usage deductions
// signed with the server-held authority key, and receipt lookups.
type Client struct {
	backend       Backend
	contractABI   abi.ABI
	contract      common.Address
	authority     *ecdsa.PrivateKey
	authorityAddr common.Address
	feeRecipient  common.Address
	gasLimit      uint64
	submitTimeout time.Duration
	logger        *utils.Logger

	chainIDMu sync.Mutex
	chainID   *big.Int
}

// Dial connects to the configured HSK RPC node and builds a settlement client.
func Dial(cfg config.ChainConfig, logger *utils.Logger) (*Client, error) {
	backend, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial HSK node %s: %w", cfg.RPCURL, err)
	}
	return NewClient(backend, cfg, logger)
}

// NewClient builds a settlement client on an existing backend.
func NewClient(backend Backend, cfg config.ChainConfig, logger *utils.Logger) (*Client, error) {
	contractABI, err := parseDepositABI()
	if err != nil {
		return nil, fmt.Errorf("parse deposit contract ABI: %w", err)
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid deposit contract address %q", cfg.ContractAddress)
	}
	if !common.IsHexAddress(cfg.FeeRecipient) {
		return nil, fmt.Errorf("invalid fee recipient address %q", cfg.FeeRecipient)
	}

	c := &Client{
		backend:       backend,
		contractABI:   contractABI,
		contract:      common.HexToAddress(cfg.ContractAddress),
		feeRecipient:  common.HexToAddress(cfg.FeeRecipient),
		gasLimit:      cfg.GasLimit,
		submitTimeout: cfg.SubmitTimeout,
		logger:        logger,
	}

	if cfg.AuthorityKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.AuthorityKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse authority key: %w", err)
		}
		c.authority = key
		c.authorityAddr = crypto.PubkeyToAddress(key.PublicKey)
	}

	return c, nil
}

// AuthorityAddress returns the address the client signs deductions with, or
// the zero address when no key is configured.
func (c *Client) AuthorityAddress() common.Address {
	return c.authorityAddr
}

// FeeRecipient returns the address usage fees are routed to.
func (c *Client) FeeRecipient() common.Address {
	return c.feeRecipient
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := c.contractABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s result: %w", method, err)
	}
	return values, nil
}

// GetBalance reads a user's deposited balance from the contract.
func (c *Client) GetBalance(ctx context.Context, wallet string) (*big.Int, error) {
	if !common.IsHexAddress(wallet) {
		return nil, fmt.Errorf("invalid wallet address %q", wallet)
	}

	values, err := c.call(ctx, "getBalance", common.HexToAddress(wallet))
	if err != nil {
		return nil, err
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getBalance returned %T, want *big.Int", values[0])
	}
	return balance, nil
}

// GetContractBalance reads the total HSK held by the deposit contract.
func (c *Client) GetContractBalance(ctx context.Context) (*big.Int, error) {
	values, err := c.call(ctx, "getContractBalance")
	if err != nil {
		return nil, err
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getContractBalance returned %T, want *big.Int", values[0])
	}
	return balance, nil
}

func (c *Client) resolveChainID(ctx context.Context) (*big.Int, error) {
	c.chainIDMu.Lock()
	defer c.chainIDMu.Unlock()

	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	c.chainID = id
	return id, nil
}

// DeductForUsage submits a signed deductForUsage transaction moving amount
// wei from the user's deposit to the fee recipient. The whole round trip
// (balance check, nonce and gas discovery, broadcast) is bounded by the
// configured submit timeout so a stalled node cannot hold callers hostage.
//
// Returns the transaction hash on acceptance. ErrInsufficientFunds means the
// deduction is not fundable; any other failure wraps ErrSubmissionFailed.
func (c *Client) DeductForUsage(ctx context.Context, wallet string, amount *big.Int) (string, error) {
	if c.authority == nil {
		return "", ErrNoAuthorityKey
	}
	if !common.IsHexAddress(wallet) {
		return "", fmt.Errorf("invalid wallet address %q", wallet)
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", fmt.Errorf("deduction amount must be positive, got %v", amount)
	}

	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	user := common.HexToAddress(wallet)

	balance, err := c.GetBalance(ctx, wallet)
	if err != nil {
		return "", fmt.Errorf("%w: preflight balance read: %v", ErrSubmissionFailed, err)
	}
	if balance.Cmp(amount) < 0 {
		return "", fmt.Errorf("%w: wallet %s has %s, needs %s",
			ErrInsufficientFunds, wallet, FormatWei(balance), FormatWei(amount))
	}

	nonce, err := c.backend.PendingNonceAt(ctx, c.authorityAddr)
	if err != nil {
		return "", fmt.Errorf("%w: fetch nonce: %v", ErrSubmissionFailed, err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: suggest gas price: %v", ErrSubmissionFailed, err)
	}
	chainID, err := c.resolveChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	data, err := c.contractABI.Pack("deductForUsage", user, amount, c.feeRecipient)
	if err != nil {
		return "", fmt.Errorf("%w: pack deductForUsage: %v", ErrSubmissionFailed, err)
	}

	tx := types.NewTransaction(nonce, c.contract, big.NewInt(0), c.gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), c.authority)
	if err != nil {
		return "", fmt.Errorf("%w: sign: %v", ErrSubmissionFailed, err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("%w: broadcast: %v", ErrSubmissionFailed, err)
	}

	hash := signed.Hash().Hex()
	c.logger.Info("submitted usage deduction",
		"wallet", wallet,
		"amount", FormatWei(amount),
		"tx_hash", hash,
		"nonce", nonce)
	return hash, nil
}

// TransactionStatus maps a transaction hash to its settlement state. A hash
// with no receipt yet is pending, not an error. Synthetic failed-* hashes
// never reached the chain and are failed by definition.
func (c *Client) TransactionStatus(ctx context.Context, txHash string) (models.TxStatus, error) {
	if strings.HasPrefix(txHash, "failed-") {
		return models.TxFailed, nil
	}

	receipt, err := c.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return models.TxPending, nil
	}
	if err != nil {
		return "", fmt.Errorf("fetch receipt %s: %w", txHash, err)
	}

	if receipt.Status == types.ReceiptStatusSuccessful {
		return models.TxConfirmed, nil
	}
	return models.TxFailed, nil
}

// DepositEvent is a decoded Deposit log from a confirmed transaction.
type DepositEvent struct {
	Wallet string
	Amount *big.Int
}

// VerifyDeposit confirms that txHash landed on chain and emitted a Deposit
// event from the deposit contract, returning the depositor and amount. Used
// to validate user-reported deposits before crediting them.
func (c *Client) VerifyDeposit(ctx context.Context, txHash string) (*DepositEvent, error) {
	receipt, err := c.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, fmt.Errorf("transaction %s not found on chain", txHash)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch receipt %s: %w", txHash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted", txHash)
	}

	depositTopic := c.contractABI.Events["Deposit"].ID
	for _, logEntry := range receipt.Logs {
		if logEntry.Address != c.contract || len(logEntry.Topics) < 2 || logEntry.Topics[0] != depositTopic {
			continue
		}
		values, err := c.contractABI.Unpack("Deposit", logEntry.Data)
		if err != nil {
			return nil, fmt.Errorf("decode Deposit event in %s: %w", txHash, err)
		}
		amount, ok := values[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("Deposit amount decoded as %T, want *big.Int", values[0])
		}
		return &DepositEvent{
			Wallet: common.BytesToAddress(logEntry.Topics[1].Bytes()).Hex(),
			Amount: amount,
		}, nil
	}

	return nil, fmt.Errorf("transaction %s has no Deposit event from the deposit contract", txHash)
}
