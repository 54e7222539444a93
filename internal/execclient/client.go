// Package execclient signs and submits marketable-limit orders against the
// Polymarket CLOB, deriving a deterministic client_order_id per intent so
// retries are idempotent at the provider.
package execclient

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/coinbot/internal/model"
)

const (
	ctfExchange = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	chainID     = 137

	sigTypeEOA       = 0
	sigTypePolyProxy = 1
)

// OrderAdapter abstracts a provider SDK-backed submission path. The shipped
// implementation signs orders itself (EIP-712 + HMAC) rather than depending
// on an external SDK; this interface exists so a future SDK-backed adapter
// can be slotted in without changing Client's retry/dry-run/error-taxonomy
// logic.
type OrderAdapter interface {
	Submit(ctx Context, req OrderRequest) (*OrderResponse, error)
}

// Context carries the handful of request-scoped values the adapter needs.
// A plain struct rather than context.Context since no cancellation is
// threaded through the provider call in v1.
type Context struct {
	TimeoutSeconds int
}

type OrderRequest struct {
	TokenID       string
	Side          model.Side
	Price         decimal.Decimal
	Size          decimal.Decimal
	ClientOrderID string
}

type OrderResponse struct {
	Accepted bool
	Status   string
	Raw      map[string]any
	Err      error
}

type Config struct {
	ClobURL       string
	PrivateKeyHex string
	FunderAddress string
	APIKey        string
	APISecret     string
	APIPassphrase string
	DryRun        bool
	MaxRetries    int
	RequestTimeoutSeconds int
}

// Client submits marketable-limit orders derived from sized ExecutionIntents.
type Client struct {
	cfg        Config
	privateKey *ecdsa.PrivateKey
	address    string
	httpClient *http.Client
	adapter    OrderAdapter
}

// New constructs a Client. adapter may be nil, in which case Client falls
// back straight to the direct HTTP POST path.
func New(cfg Config, adapter OrderAdapter) (*Client, error) {
	c := &Client{
		cfg:        cfg,
		adapter:    adapter,
		httpClient: &http.Client{Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second},
	}

	if cfg.PrivateKeyHex != "" {
		raw := strings.TrimPrefix(cfg.PrivateKeyHex, "0x")
		pk, err := crypto.HexToECDSA(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		c.privateKey = pk
		c.address = crypto.PubkeyToAddress(pk.PublicKey).Hex()
	}

	return c, nil
}

// ClientOrderID derives the deterministic id for a sized intent.
func ClientOrderID(intent model.ExecutionIntent) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		intent.MarketID, intent.Outcome, intent.Side, intent.WindowID,
		strings.Join(intent.CoalescedEventIDs, ","), intent.TargetNotionalUSD.String())
	digest := sha256.Sum256([]byte(raw))
	return "cb-" + hex.EncodeToString(digest[:])[:24]
}

// SubmitMarketableLimit submits a sized intent at price/size against tokenID
// (resolved by the caller from the market metadata cache) and returns an
// OrderSubmission recording outcome, endpoint, and error classification.
func (c *Client) SubmitMarketableLimit(intent model.ExecutionIntent, tokenID string, price, size decimal.Decimal, marketSlug string) model.OrderSubmission {
	cid := ClientOrderID(intent)

	submission := model.OrderSubmission{
		ClientOrderID: cid,
		Endpoint:      c.cfg.ClobURL + "/order",
		Payload: map[string]any{
			"token_id": tokenID,
			"side":     string(intent.Side),
			"price":    price.String(),
			"size":     size.String(),
			"slug":     marketSlug,
		},
	}

	if c.cfg.DryRun {
		submission.Accepted = true
		submission.Status = model.StatusDryRunAcknowledged
		log.Info().Str("client_order_id", cid).Str("market", intent.MarketID).Msg("order_dry_run_acknowledged")
		return submission
	}

	if c.adapter != nil {
		resp, err := c.submitViaAdapter(tokenID, intent.Side, price, size, cid)
		if err == nil {
			submission.Accepted = resp.Accepted
			submission.Status = resp.Status
			submission.Response = resp.Raw
			return submission
		}
		log.Warn().Err(err).Msg("order_adapter_failed_falling_back_to_http")
	}

	return c.submitViaHTTP(submission, tokenID, intent.Side, price, size)
}

func (c *Client) submitViaAdapter(tokenID string, side model.Side, price, size decimal.Decimal, cid string) (*OrderResponse, error) {
	req := OrderRequest{TokenID: tokenID, Side: side, Price: price, Size: size, ClientOrderID: cid}
	resp, err := c.adapter.Submit(Context{TimeoutSeconds: c.cfg.RequestTimeoutSeconds}, req)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil && isUnauthorized(resp.Err.Error()) {
		// Resubmit exactly once. Client has no credential-refresh hook, so the
		// retry goes out with whatever credentials the adapter already holds.
		resp, err = c.adapter.Submit(Context{TimeoutSeconds: c.cfg.RequestTimeoutSeconds}, req)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (c *Client) submitViaHTTP(submission model.OrderSubmission, tokenID string, side model.Side, price, size decimal.Decimal) model.OrderSubmission {
	maxRetries := c.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	order, err := c.buildSignedOrder(tokenID, price, size, side)
	if err != nil {
		submission.Accepted = false
		submission.Status = model.StatusRejected
		submission.Error = err.Error()
		return submission
	}

	payload := map[string]any{
		"order":           order,
		"owner":           c.cfg.APIKey,
		"orderType":       "FAK",
		"client_order_id": submission.ClientOrderID,
	}

	var lastErr string
	for attempt := 1; attempt <= maxRetries; attempt++ {
		body, err := c.post("/order", payload)
		if err == nil {
			var result struct {
				OrderID  string `json:"orderID"`
				Status   string `json:"status"`
				ErrorMsg string `json:"errorMsg"`
			}
			if jsonErr := json.Unmarshal(body, &result); jsonErr == nil && result.ErrorMsg == "" {
				submission.Accepted = true
				submission.Status = model.StatusAcknowledged
				submission.Response = map[string]any{"order_id": result.OrderID, "status": result.Status}
				return submission
			} else if result.ErrorMsg != "" {
				lastErr = result.ErrorMsg
				if isMinSizeError(lastErr) {
					submission.ErrorCode = model.ErrorCodeMinSize
					submission.Accepted = false
					submission.Status = model.StatusRejected
					submission.Error = lastErr
					return submission
				}
			}
		} else {
			lastErr = err.Error()
		}

		if attempt < maxRetries {
			time.Sleep(time.Duration(float64(attempt)*100) * time.Millisecond)
		}
	}

	submission.Accepted = false
	submission.Status = model.StatusRejected
	submission.Error = lastErr
	return submission
}

func isMinSizeError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "size") && strings.Contains(lower, "lower than the minimum")
}

func isUnauthorized(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key")
}

// ── EIP-712 signing, adapted to this module's order shape ──

type signedOrder struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

func (c *Client) buildSignedOrder(tokenID string, price, size decimal.Decimal, side model.Side) (*signedOrder, error) {
	maker := c.cfg.FunderAddress
	if maker == "" {
		maker = c.address
	}

	usdcDecimals := decimal.NewFromInt(1_000_000)
	var makerAmount, takerAmount decimal.Decimal
	if side == model.Buy {
		makerAmount = size.Mul(price).Mul(usdcDecimals).Floor()
		takerAmount = size.Mul(usdcDecimals).Floor()
	} else {
		makerAmount = size.Mul(usdcDecimals).Floor()
		takerAmount = size.Mul(price).Mul(usdcDecimals).Floor()
	}

	order := &signedOrder{
		Salt:          generateSalt(),
		Maker:         maker,
		Signer:        c.address,
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       tokenID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          string(side),
		SignatureType: sigTypePolyProxy,
	}

	sig, err := c.signOrderEIP712(order)
	if err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}
	order.Signature = sig
	return order, nil
}

func (c *Client) signOrderEIP712(order *signedOrder) (string, error) {
	if c.privateKey == nil {
		return "", fmt.Errorf("private key not loaded")
	}

	domainSeparator := buildDomainSeparator(ctfExchange, chainID)
	orderHash := buildOrderStructHash(order)

	data := append([]byte("\x19\x01"), domainSeparator[:]...)
	data = append(data, orderHash[:]...)
	finalHash := crypto.Keccak256(data)

	sig, err := crypto.Sign(finalHash, c.privateKey)
	if err != nil {
		return "", err
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return hexutil.Encode(sig), nil
}

func buildDomainSeparator(contractAddr string, chain int) [32]byte {
	domainTypeHash := crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	nameHash := crypto.Keccak256([]byte("Polymarket CTF Exchange"))
	versionHash := crypto.Keccak256([]byte("1"))
	chainBytes := common.LeftPadBytes(big.NewInt(int64(chain)).Bytes(), 32)
	contractBytes := common.LeftPadBytes(common.HexToAddress(contractAddr).Bytes(), 32)

	data := append([]byte{}, domainTypeHash...)
	data = append(data, nameHash...)
	data = append(data, versionHash...)
	data = append(data, chainBytes...)
	data = append(data, contractBytes...)

	var result [32]byte
	copy(result[:], crypto.Keccak256(data))
	return result
}

func buildOrderStructHash(order *signedOrder) [32]byte {
	orderTypeHash := crypto.Keccak256([]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"))

	sideVal := byte(0)
	if order.Side == string(model.Sell) {
		sideVal = 1
	}

	data := append([]byte{}, orderTypeHash...)
	data = append(data, padUint256(order.Salt)...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(order.Maker).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(order.Signer).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(order.Taker).Bytes(), 32)...)
	data = append(data, padUint256(order.TokenID)...)
	data = append(data, padUint256(order.MakerAmount)...)
	data = append(data, padUint256(order.TakerAmount)...)
	data = append(data, padUint256(order.Expiration)...)
	data = append(data, padUint256(order.Nonce)...)
	data = append(data, padUint256(order.FeeRateBps)...)
	data = append(data, common.LeftPadBytes([]byte{sideVal}, 32)...)
	data = append(data, common.LeftPadBytes([]byte{byte(order.SignatureType)}, 32)...)

	var result [32]byte
	copy(result[:], crypto.Keccak256(data))
	return result
}

func padUint256(s string) []byte {
	n := new(big.Int)
	n.SetString(s, 10)
	return common.LeftPadBytes(n.Bytes(), 32)
}

// generateSalt derives the order's uint256 salt from a fresh v4 uuid rather
// than a raw random read, so salts stay traceable in logs if ever needed.
func generateSalt() string {
	id := uuid.New()
	return new(big.Int).SetBytes(id[:]).String()
}

// ── HMAC-authenticated HTTP ──

func (c *Client) post(path string, body any) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.cfg.ClobURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req, jsonBody)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (c *Client) addHeaders(req *http.Request, body []byte) {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	req.Header.Set("POLY_ADDRESS", c.address)
	req.Header.Set("POLY_API_KEY", c.cfg.APIKey)
	req.Header.Set("POLY_API_SECRET", c.cfg.APISecret)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_PASSPHRASE", c.cfg.APIPassphrase)

	if c.cfg.APISecret != "" {
		message := timestamp + req.Method + req.URL.Path + string(body)
		req.Header.Set("POLY_SIGNATURE", c.hmacSign(message))
	}
}

func (c *Client) hmacSign(message string) string {
	key, err := base64.URLEncoding.DecodeString(c.cfg.APISecret)
	if err != nil {
		key, err = base64.StdEncoding.DecodeString(c.cfg.APISecret)
		if err != nil {
			key = []byte(c.cfg.APISecret)
		}
	}
	h := hmac.New(sha256.New, key)
	h.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}
