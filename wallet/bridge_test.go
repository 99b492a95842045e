package wallet

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bridgeAccount = common.HexToAddress("0x00000000000000000000000000000000000A11CE")

// bridgePage plays the browser side of the bridge. Requests are answered by
// handler; returning a nil message leaves the request unanswered.
type bridgePage struct {
	t       *testing.T
	server  *httptest.Server
	handler func(req rpcMessage) *rpcMessage

	mu       sync.Mutex
	conn     *websocket.Conn
	requests []rpcMessage
	ready    chan struct{}
}

func newBridgePage(t *testing.T, handler func(req rpcMessage) *rpcMessage) *bridgePage {
	t.Helper()

	page := &bridgePage{t: t, handler: handler, ready: make(chan struct{})}
	upgrader := websocket.Upgrader{}

	page.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		page.mu.Lock()
		page.conn = conn
		page.mu.Unlock()
		close(page.ready)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req rpcMessage
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			page.mu.Lock()
			page.requests = append(page.requests, req)
			page.mu.Unlock()

			if resp := page.handler(req); resp != nil {
				resp.Version, resp.ID = "2.0", req.ID
				page.send(*resp)
			}
		}
	}))
	t.Cleanup(page.server.Close)
	return page
}

func (p *bridgePage) endpoint() string {
	return "ws" + strings.TrimPrefix(p.server.URL, "http")
}

// send may run on the server goroutine, so failures are reported without FailNow
func (p *bridgePage) send(msg rpcMessage) {
	data, err := json.Marshal(msg)
	assert.NoError(p.t, err)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.NoError(p.t, p.conn.WriteMessage(websocket.TextMessage, data))
}

func (p *bridgePage) notify(method string, params interface{}) {
	raw, err := json.Marshal(params)
	require.NoError(p.t, err)
	p.send(rpcMessage{Version: "2.0", Method: method, Params: raw})
}

func (p *bridgePage) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.Close()
}

func (p *bridgePage) lastRequest() rpcMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(p.t, p.requests)
	return p.requests[len(p.requests)-1]
}

func result(v interface{}) *rpcMessage {
	raw, _ := json.Marshal(v)
	return &rpcMessage{Result: raw}
}

func connectBridge(t *testing.T, page *bridgePage, config BridgeConfig) *BridgeProvider {
	t.Helper()

	config.Endpoint = page.endpoint()
	b := NewBridgeProvider(config)
	require.NoError(t, b.Connect(bg))
	t.Cleanup(func() { _ = b.Disconnect() })

	select {
	case <-page.ready:
	case <-time.After(time.Second):
		t.Fatal("bridge page never saw a connection")
	}
	return b
}

func walletHandler(req rpcMessage) *rpcMessage {
	switch req.Method {
	case "eth_requestAccounts":
		return result([]common.Address{bridgeAccount})
	case "eth_chainId":
		return result("0xaa36a7")
	case "wallet_switchEthereumChain":
		return result(nil)
	case "eth_sendTransaction":
		return result(common.HexToHash("0x01"))
	case "eth_call":
		return result("0x000000000000000000000000000000000000000000000000000000000000002a")
	case "eth_getCode":
		return result("0x6080")
	case "eth_getTransactionReceipt":
		return result(nil)
	}
	return &rpcMessage{Error: &ProviderError{Code: CodeUnsupportedMethod, Message: "unsupported method " + req.Method}}
}

func TestNewBridgeProviderDefaults(t *testing.T) {
	b := NewBridgeProvider(BridgeConfig{})
	assert.Equal(t, DefaultBridgeEndpoint, b.config.Endpoint)
	assert.Equal(t, HeartbeatInterval, b.config.HeartbeatInterval)
	assert.False(t, b.IsConnected())

	_, err := b.RequestAccounts(bg)
	require.ErrorIs(t, err, ErrDisconnected)
}

func TestBridgeRequests(t *testing.T) {
	page := newBridgePage(t, walletHandler)
	b := connectBridge(t, page, BridgeConfig{})
	assert.True(t, b.IsConnected())

	accs, err := b.RequestAccounts(bg)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{bridgeAccount}, accs)

	id, err := b.ChainID(bg)
	require.NoError(t, err)
	assert.Equal(t, int64(11155111), id.Int64())

	require.NoError(t, b.SwitchChain(bg, big.NewInt(11155111)))
	var switchParams []map[string]string
	require.NoError(t, json.Unmarshal(page.lastRequest().Params, &switchParams))
	assert.Equal(t, []map[string]string{{"chainId": "0xaa36a7"}}, switchParams)

	data := []byte{0xde, 0xad}
	to := common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	txHash, err := b.SendTransaction(bg, bridgeAccount, to, data)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x01"), txHash)

	var sendParams []struct {
		From common.Address `json:"from"`
		To   common.Address `json:"to"`
		Data hexutil.Bytes  `json:"data"`
	}
	require.NoError(t, json.Unmarshal(page.lastRequest().Params, &sendParams))
	require.Len(t, sendParams, 1)
	assert.Equal(t, bridgeAccount, sendParams[0].From)
	assert.Equal(t, to, sendParams[0].To)
	assert.Equal(t, hexutil.Bytes(data), sendParams[0].Data)

	out, err := b.CallContract(bg, ethereum.CallMsg{To: &to, Data: data}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), new(big.Int).SetBytes(out).Int64())

	var callParams []json.RawMessage
	require.NoError(t, json.Unmarshal(page.lastRequest().Params, &callParams))
	require.Len(t, callParams, 2)
	assert.JSONEq(t, `"latest"`, string(callParams[1]))

	code, err := b.CodeAt(bg, to, big.NewInt(16))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, code)

	_, err = b.TransactionReceipt(bg, txHash)
	require.ErrorIs(t, err, ethereum.NotFound)
}

func TestBridgeProviderErrors(t *testing.T) {
	page := newBridgePage(t, func(req rpcMessage) *rpcMessage {
		switch req.Method {
		case "eth_requestAccounts":
			return &rpcMessage{Error: &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}}
		case "wallet_switchEthereumChain":
			return &rpcMessage{Error: &ProviderError{Code: CodeUnrecognizedChain, Message: "Unrecognized chain ID \"0xaa36a7\"."}}
		case "eth_sendTransaction":
			return &rpcMessage{Error: &ProviderError{Code: -32603, Message: "execution reverted: Already voted", Data: "0x08c379a0"}}
		}
		return result([]common.Address{})
	})
	b := connectBridge(t, page, BridgeConfig{})

	_, err := b.RequestAccounts(bg)
	require.ErrorIs(t, err, ErrUserRejected)

	err = b.SwitchChain(bg, big.NewInt(11155111))
	require.ErrorIs(t, err, ErrUnrecognizedChain)

	_, err = b.SendTransaction(bg, bridgeAccount, bridgeAccount, nil)
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, "0x08c379a0", providerErr.Data)
	assert.False(t, IsUserRejection(err))

	_, err = b.ChainID(bg)
	require.Error(t, err, "empty account list is not a chain id")
}

func TestBridgeNoAccounts(t *testing.T) {
	page := newBridgePage(t, func(req rpcMessage) *rpcMessage {
		return result([]common.Address{})
	})
	b := connectBridge(t, page, BridgeConfig{})

	_, err := b.RequestAccounts(bg)
	require.ErrorIs(t, err, ErrNoAccounts)
}

func TestBridgeNotifications(t *testing.T) {
	page := newBridgePage(t, walletHandler)
	b := connectBridge(t, page, BridgeConfig{})

	accountsCh := make(chan []common.Address, 4)
	chainCh := make(chan *big.Int, 4)
	defer b.SubscribeAccountsChanged(accountsCh).Unsubscribe()
	defer b.SubscribeChainChanged(chainCh).Unsubscribe()

	page.notify(NotificationAccountsChanged, [][]common.Address{{bridgeAccount}})
	page.notify(NotificationChainChanged, []string{"0x1"})
	page.notify(NotificationAccountsChanged, [][]common.Address{{}})
	page.notify(NotificationDisconnect, []interface{}{})

	select {
	case accs := <-accountsCh:
		assert.Equal(t, []common.Address{bridgeAccount}, accs)
	case <-time.After(time.Second):
		t.Fatal("no accountsChanged")
	}
	select {
	case id := <-chainCh:
		assert.Equal(t, int64(1), id.Int64())
	case <-time.After(time.Second):
		t.Fatal("no chainChanged")
	}
	for i := 0; i < 2; i++ {
		select {
		case accs := <-accountsCh:
			assert.Empty(t, accs)
		case <-time.After(time.Second):
			t.Fatal("no empty accountsChanged")
		}
	}
}

func TestBridgeMalformedNotification(t *testing.T) {
	errs := make(chan error, 4)
	page := newBridgePage(t, walletHandler)
	connectBridge(t, page, BridgeConfig{OnError: func(err error) { errs <- err }})

	page.notify(NotificationChainChanged, []string{"not hex"})

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "malformed chainChanged")
	case <-time.After(time.Second):
		t.Fatal("malformed notification not reported")
	}
}

func TestBridgeConnectionLost(t *testing.T) {
	page := newBridgePage(t, func(req rpcMessage) *rpcMessage { return nil })

	disconnected := make(chan struct{})
	b := connectBridge(t, page, BridgeConfig{OnDisconnect: func() { close(disconnected) }})

	accountsCh := make(chan []common.Address, 1)
	defer b.SubscribeAccountsChanged(accountsCh).Unsubscribe()

	pending := make(chan error, 1)
	go func() {
		_, err := b.RequestAccounts(bg)
		pending <- err
	}()

	require.Eventually(t, func() bool {
		page.mu.Lock()
		defer page.mu.Unlock()
		return len(page.requests) == 1
	}, time.Second, time.Millisecond)

	page.close()

	select {
	case err := <-pending:
		require.ErrorIs(t, err, ErrDisconnected)
	case <-time.After(time.Second):
		t.Fatal("pending request not failed")
	}
	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("OnDisconnect not called")
	}
	select {
	case accs := <-accountsCh:
		assert.Empty(t, accs)
	case <-time.After(time.Second):
		t.Fatal("no empty accountsChanged after connection loss")
	}

	assert.False(t, b.IsConnected())
	_, err := b.ChainID(bg)
	require.ErrorIs(t, err, ErrDisconnected)
}
