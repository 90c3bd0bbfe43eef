package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"Karana-Planner/internal/device"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Config 描述如何构造一个 EVM 兼容链客户端。
type Config struct {
	Name          string
	RPCURL        string
	WalletAddress string
	Notes         string
}

// Client 封装对单条链的只读访问，并实现 device.Refresher。
type Client struct {
	name      string
	notes     string
	rpcClient *gethrpc.Client
	reader    chainReader
	wallet    common.Address
	hasWallet bool
	mu        sync.Mutex
}

// chainReader 汇集快照刷新所需的只读方法，便于测试替换。
type chainReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PeerCount(ctx context.Context) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// NewClient 连接配置中的 RPC 端点并返回可用的客户端。
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置链节点 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接链节点失败: %w", err)
	}

	client := &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		rpcClient: rpcClient,
		reader:    ethclient.NewClient(rpcClient),
	}
	if wallet := strings.TrimSpace(cfg.WalletAddress); wallet != "" {
		client.wallet = common.HexToAddress(wallet)
		client.hasWallet = true
	}
	return client, nil
}

// newClientWithReader 绕过拨号直接注入读取后端，供测试使用。
func newClientWithReader(name string, reader chainReader, wallet string) *Client {
	client := &Client{name: name, reader: reader}
	if wallet = strings.TrimSpace(wallet); wallet != "" {
		client.wallet = common.HexToAddress(wallet)
		client.hasWallet = true
	}
	return client
}

// Name 返回链在注册表中的名称。
func (c *Client) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Refresh 实现 device.Refresher，把链上数据覆盖进设备快照。
func (c *Client) Refresh(ctx context.Context, snap *device.Snapshot) error {
	if c == nil || c.reader == nil {
		return errors.New("未初始化的链客户端")
	}
	if snap == nil {
		return errors.New("设备快照不能为空")
	}

	peers, err := c.reader.PeerCount(ctx)
	if err != nil {
		return fmt.Errorf("获取对等节点数失败: %w", err)
	}
	snap.Network.PeerCount = int(peers)

	block, err := c.reader.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	snap.Network.BlockHeight = block

	chainID, err := c.reader.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("获取链 ID 失败: %w", err)
	}
	if chainID != nil {
		snap.Network.ChainID = chainID.String()
	}

	if c.hasWallet {
		balance, err := c.reader.BalanceAt(ctx, c.wallet, nil)
		if err != nil {
			return fmt.Errorf("查询钱包余额失败: %w", err)
		}
		snap.Wallet.Exists = true
		snap.Wallet.Address = c.wallet.Hex()
		snap.Wallet.BalanceKara = weiToKara(balance)
	}
	return nil
}

// Close 释放客户端持有的网络连接。
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
	c.reader = nil
}

// weiToKara 把最小单位余额换算成 KARA。
func weiToKara(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	kara, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		big.NewFloat(1e18),
	).Float64()
	return kara
}

var _ device.Refresher = (*Client)(nil)
