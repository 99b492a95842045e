package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kaifufi/simpledao-client-go/chain"
)

const (
	// DefaultBridgeEndpoint is where the browser bridge page listens by default
	DefaultBridgeEndpoint = "ws://127.0.0.1:8765/bridge"

	// HeartbeatInterval is the default ping interval
	HeartbeatInterval = 30 * time.Second

	writeWait = 10 * time.Second

	notificationQueueSize = 32
)

// Provider notifications relayed by the bridge
const (
	NotificationAccountsChanged = "accountsChanged"
	NotificationChainChanged    = "chainChanged"
	NotificationDisconnect      = "disconnect"
)

// rpcMessage is a JSON-RPC 2.0 request, response or notification
type rpcMessage struct {
	Version string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ProviderError  `json:"error,omitempty"`
}

// BridgeErrorHandler is a callback for transport errors
type BridgeErrorHandler func(err error)

// BridgeConfig holds configuration for the bridge provider
type BridgeConfig struct {
	Endpoint          string
	HeartbeatInterval time.Duration
	OnError           BridgeErrorHandler
	OnDisconnect      func()
}

// BridgeProvider forwards EIP-1193 requests over a WebSocket to a bridge page
// running next to a browser wallet, and relays the wallet's notifications.
type BridgeProvider struct {
	config BridgeConfig

	conn        *websocket.Conn
	mu          sync.RWMutex
	writeMu     sync.Mutex
	isConnected bool

	pending   map[string]chan *rpcMessage
	pendingMu sync.Mutex

	ctx             context.Context
	cancel          context.CancelFunc
	heartbeatTicker *time.Ticker

	notifications chan rpcMessage
	accountsFeed  event.Feed
	chainFeed     event.Feed
}

// NewBridgeProvider creates a new bridge provider. Call Connect before use.
func NewBridgeProvider(config BridgeConfig) *BridgeProvider {
	if config.Endpoint == "" {
		config.Endpoint = DefaultBridgeEndpoint
	}
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = HeartbeatInterval
	}

	return &BridgeProvider{
		config:  config,
		pending: make(map[string]chan *rpcMessage),
	}
}

// Connect establishes the WebSocket connection to the bridge
func (b *BridgeProvider) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isConnected {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.config.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to wallet bridge: %w", err)
	}

	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.conn = conn
	b.isConnected = true
	b.notifications = make(chan rpcMessage, notificationQueueSize)

	b.startHeartbeat()
	go b.dispatchLoop(b.ctx, b.notifications)
	go b.readLoop(conn)

	log.Infof("Connected to wallet bridge at %s", b.config.Endpoint)
	return nil
}

// Disconnect closes the bridge connection
func (b *BridgeProvider) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.disconnect()
}

// disconnect must be called with b.mu held
func (b *BridgeProvider) disconnect() error {
	if !b.isConnected {
		return nil
	}

	b.isConnected = false

	if b.heartbeatTicker != nil {
		b.heartbeatTicker.Stop()
	}

	var err error
	if b.conn != nil {
		err = b.conn.Close()
		b.conn = nil
	}

	b.failPending()

	if b.cancel != nil {
		b.cancel()
	}

	return err
}

// IsConnected returns the current connection status
func (b *BridgeProvider) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.isConnected
}

// RequestAccounts implements Provider
func (b *BridgeProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := b.request(ctx, "eth_requestAccounts", nil, &accounts); err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	return accounts, nil
}

// ChainID implements Provider
func (b *BridgeProvider) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := b.request(ctx, "eth_chainId", nil, &id); err != nil {
		return nil, err
	}
	return (*big.Int)(&id), nil
}

// SwitchChain implements Provider
func (b *BridgeProvider) SwitchChain(ctx context.Context, chainID *big.Int) error {
	params := []interface{}{
		map[string]string{"chainId": hexutil.EncodeBig(chainID)},
	}
	return b.request(ctx, "wallet_switchEthereumChain", params, nil)
}

// SendTransaction implements Provider
func (b *BridgeProvider) SendTransaction(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error) {
	params := []interface{}{
		map[string]interface{}{
			"from": from,
			"to":   to,
			"data": hexutil.Bytes(data),
		},
	}

	var txHash common.Hash
	if err := b.request(ctx, "eth_sendTransaction", params, &txHash); err != nil {
		return common.Hash{}, err
	}
	return txHash, nil
}

// SubscribeAccountsChanged implements Provider
func (b *BridgeProvider) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return b.accountsFeed.Subscribe(ch)
}

// SubscribeChainChanged implements Provider
func (b *BridgeProvider) SubscribeChainChanged(ch chan<- *big.Int) event.Subscription {
	return b.chainFeed.Subscribe(ch)
}

// Backend implements Provider. Ledger reads go through the wallet's own node.
func (b *BridgeProvider) Backend() chain.Backend {
	return b
}

// CallContract implements bind.ContractCaller
func (b *BridgeProvider) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out hexutil.Bytes
	if err := b.request(ctx, "eth_call", []interface{}{toCallArg(msg), toBlockArg(blockNumber)}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CodeAt implements bind.ContractCaller
func (b *BridgeProvider) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	var out hexutil.Bytes
	if err := b.request(ctx, "eth_getCode", []interface{}{contract, toBlockArg(blockNumber)}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TransactionReceipt implements chain.Backend
func (b *BridgeProvider) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	if err := b.request(ctx, "eth_getTransactionReceipt", []interface{}{txHash}, &receipt); err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

// request sends a JSON-RPC request and waits for the matching response
func (b *BridgeProvider) request(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal %s params: %w", method, err)
	}

	id := uuid.NewString()
	respCh := make(chan *rpcMessage, 1)

	b.pendingMu.Lock()
	b.pending[id] = respCh
	b.pendingMu.Unlock()

	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, id)
		b.pendingMu.Unlock()
	}()

	msg := rpcMessage{Version: "2.0", ID: id, Method: method, Params: rawParams}
	if err := b.sendMessage(msg); err != nil {
		return err
	}
	log.Tracef("Bridge request %s %s", id, method)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case resp := <-respCh:
		if resp == nil {
			return &ProviderError{Code: CodeDisconnected, Message: "wallet bridge disconnected"}
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
		return nil
	}
}

// sendMessage writes a message over the WebSocket connection
func (b *BridgeProvider) sendMessage(msg interface{}) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.isConnected || b.conn == nil {
		return &ProviderError{Code: CodeDisconnected, Message: "wallet bridge not connected"}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if err := b.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// startHeartbeat starts the ping ticker (must be called with b.mu held)
func (b *BridgeProvider) startHeartbeat() {
	b.heartbeatTicker = time.NewTicker(b.config.HeartbeatInterval)
	ticker, conn, ctx := b.heartbeatTicker, b.conn, b.ctx

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					b.reportError(fmt.Errorf("heartbeat failed: %w", err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// readLoop reads messages until the connection fails
func (b *BridgeProvider) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.reportError(fmt.Errorf("read error: %w", err))
			}
			b.handleDisconnect(conn)
			return
		}

		var msg rpcMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			b.reportError(fmt.Errorf("malformed bridge message: %w", err))
			continue
		}

		if msg.ID != "" {
			b.deliver(&msg)
			continue
		}
		if msg.Method != "" {
			b.mu.RLock()
			queue, ctx := b.notifications, b.ctx
			b.mu.RUnlock()
			select {
			case queue <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *BridgeProvider) deliver(msg *rpcMessage) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	respCh, ok := b.pending[msg.ID]
	if !ok {
		log.Debugf("Dropping bridge response for unknown request %s", msg.ID)
		return
	}
	delete(b.pending, msg.ID)
	respCh <- msg
}

// dispatchLoop publishes notifications in arrival order. It runs apart from
// readLoop so a slow subscriber cannot stall request responses.
func (b *BridgeProvider) dispatchLoop(ctx context.Context, queue <-chan rpcMessage) {
	for {
		select {
		case msg := <-queue:
			b.handleNotification(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (b *BridgeProvider) handleNotification(msg rpcMessage) {
	switch msg.Method {
	case NotificationAccountsChanged:
		var params [][]common.Address
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			b.reportError(fmt.Errorf("malformed %s notification: %w", msg.Method, err))
			return
		}
		accounts := []common.Address{}
		if len(params) > 0 {
			accounts = params[0]
		}
		log.Debugf("Wallet accounts changed: %d account(s)", len(accounts))
		b.accountsFeed.Send(accounts)

	case NotificationChainChanged:
		var params []hexutil.Big
		if err := json.Unmarshal(msg.Params, &params); err != nil || len(params) == 0 {
			b.reportError(fmt.Errorf("malformed %s notification: %v", msg.Method, err))
			return
		}
		chainID := (*big.Int)(&params[0])
		log.Debugf("Wallet chain changed to %v", chainID)
		b.chainFeed.Send(new(big.Int).Set(chainID))

	case NotificationDisconnect:
		log.Infof("Wallet reported disconnect")
		b.accountsFeed.Send([]common.Address{})

	default:
		log.Tracef("Ignoring bridge notification %q", msg.Method)
	}
}

// handleDisconnect tears down after the connection drops. The wallet is
// reported as having no authorized accounts; there is no reconnect.
func (b *BridgeProvider) handleDisconnect(conn *websocket.Conn) {
	b.mu.Lock()
	if b.conn != conn {
		b.mu.Unlock()
		return
	}
	_ = b.disconnect()
	b.mu.Unlock()

	log.Warnf("Wallet bridge connection lost")
	if b.config.OnDisconnect != nil {
		b.config.OnDisconnect()
	}
	b.accountsFeed.Send([]common.Address{})
}

// failPending wakes all outstanding requests with a nil response
func (b *BridgeProvider) failPending() {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	for id, respCh := range b.pending {
		close(respCh)
		delete(b.pending, id)
	}
}

func (b *BridgeProvider) reportError(err error) {
	log.Errorf("Wallet bridge: %v", err)
	if b.config.OnError != nil {
		b.config.OnError(err)
	}
}

func toCallArg(msg ethereum.CallMsg) interface{} {
	arg := map[string]interface{}{
		"from": msg.From,
		"to":   msg.To,
	}
	if len(msg.Data) > 0 {
		arg["data"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}
	if msg.Gas != 0 {
		arg["gas"] = hexutil.Uint64(msg.Gas)
	}
	return arg
}

func toBlockArg(number *big.Int) string {
	if number == nil {
		return "latest"
	}
	return hexutil.EncodeBig(number)
}

var _ Provider = (*BridgeProvider)(nil)
