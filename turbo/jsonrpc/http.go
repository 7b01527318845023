package jsonrpc

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	jsoniter "github.com/json-iterator/go"

	"github.com/corexec/corexec/erigon-lib/common"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// NewHTTPHandler builds the JSON-RPC POST `/` listener on chi, distinct
// from the Engine API's httprouter listener (spec §C.9: "chi serves
// JSON-RPC, httprouter serves Engine API").
func NewHTTPHandler(server *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.Post("/", func(w http.ResponseWriter, req *http.Request) { handleRPC(w, req, server) })
	return r
}

func handleRPC(w http.ResponseWriter, r *http.Request, server *Server) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, nil, codeParseError, "failed to read body")
		return
	}
	body = trimLeadingSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var reqs []rpcRequest
		if err := jsonAPI.Unmarshal(body, &reqs); err != nil {
			writeError(w, nil, codeParseError, err.Error())
			return
		}
		resp := make([]rpcResponse, len(reqs))
		for i, req := range reqs {
			resp[i] = buildResponse(r, server, req)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = jsonAPI.NewEncoder(w).Encode(resp)
		return
	}

	var req rpcRequest
	if err := jsonAPI.Unmarshal(body, &req); err != nil {
		writeError(w, nil, codeParseError, err.Error())
		return
	}
	resp := buildResponse(r, server, req)
	w.Header().Set("Content-Type", "application/json")
	_ = jsonAPI.NewEncoder(w).Encode(resp)
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}

func buildResponse(r *http.Request, server *Server, req rpcRequest) rpcResponse {
	if req.Method == "" {
		return rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{codeInvalidRequest, "missing method"}}
	}
	result, rpcErr := dispatch(r, server, req)
	if rpcErr != nil {
		return rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func writeError(w http.ResponseWriter, id json.RawMessage, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	_ = jsonAPI.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}})
}

func param(req rpcRequest, i int, v interface{}) *rpcError {
	if i >= len(req.Params) {
		return &rpcError{codeInvalidParams, "missing parameter"}
	}
	if err := jsonAPI.Unmarshal(req.Params[i], v); err != nil {
		return &rpcError{codeInvalidParams, err.Error()}
	}
	return nil
}

func optionalTag(req rpcRequest, i int) BlockTag {
	var tag BlockTag
	if i < len(req.Params) {
		_ = jsonAPI.Unmarshal(req.Params[i], &tag)
	}
	return tag
}

func dispatch(r *http.Request, server *Server, req rpcRequest) (interface{}, *rpcError) {
	ctx := r.Context()
	switch req.Method {
	case "eth_blockNumber":
		n, err := server.BlockNumber(ctx)
		return wrap(n, err)

	case "eth_chainId":
		return server.ChainID(), nil

	case "eth_syncing":
		v, err := server.Syncing(ctx)
		return wrap(v, err)

	case "eth_getBlockByNumber":
		tag := optionalTag(req, 0)
		var fullTx bool
		if e := param(req, 1, &fullTx); e != nil {
			return nil, e
		}
		v, err := server.GetBlockByNumber(ctx, tag, fullTx)
		return wrap(v, err)

	case "eth_getBlockByHash":
		var hash common.Hash
		if e := param(req, 0, &hash); e != nil {
			return nil, e
		}
		var fullTx bool
		if e := param(req, 1, &fullTx); e != nil {
			return nil, e
		}
		v, err := server.GetBlockByHash(ctx, hash, fullTx)
		return wrap(v, err)

	case "eth_getBalance":
		var addr common.Address
		if e := param(req, 0, &addr); e != nil {
			return nil, e
		}
		v, err := server.GetBalance(ctx, addr, optionalTag(req, 1))
		return wrap(v, err)

	case "eth_getCode":
		var addr common.Address
		if e := param(req, 0, &addr); e != nil {
			return nil, e
		}
		v, err := server.GetCode(ctx, addr, optionalTag(req, 1))
		return wrap(v, err)

	case "eth_getStorageAt":
		var addr common.Address
		if e := param(req, 0, &addr); e != nil {
			return nil, e
		}
		var slot common.Hash
		if e := param(req, 1, &slot); e != nil {
			return nil, e
		}
		v, err := server.GetStorageAt(ctx, addr, slot, optionalTag(req, 2))
		return wrap(v, err)

	case "eth_getTransactionCount":
		var addr common.Address
		if e := param(req, 0, &addr); e != nil {
			return nil, e
		}
		v, err := server.GetTransactionCount(ctx, addr, optionalTag(req, 1))
		return wrap(v, err)

	case "eth_getTransactionByHash":
		var hash common.Hash
		if e := param(req, 0, &hash); e != nil {
			return nil, e
		}
		v, err := server.GetTransactionByHash(ctx, hash)
		return wrap(v, err)

	case "eth_getTransactionReceipt":
		var hash common.Hash
		if e := param(req, 0, &hash); e != nil {
			return nil, e
		}
		v, err := server.GetTransactionReceipt(ctx, hash)
		return wrap(v, err)

	case "eth_call":
		var args CallArgs
		if e := param(req, 0, &args); e != nil {
			return nil, e
		}
		v, err := server.Call(ctx, args, optionalTag(req, 1))
		return wrap(v, err)

	case "eth_estimateGas":
		var args CallArgs
		if e := param(req, 0, &args); e != nil {
			return nil, e
		}
		v, err := server.EstimateGas(ctx, args)
		return wrap(v, err)

	case "eth_sendRawTransaction":
		var raw common.Bytes
		if e := param(req, 0, &raw); e != nil {
			return nil, e
		}
		v, err := server.SendRawTransaction(raw)
		return wrap(v, err)

	case "eth_gasPrice":
		return server.GasPrice(), nil

	case "eth_maxPriorityFeePerGas":
		return server.MaxPriorityFeePerGas(), nil

	case "eth_feeHistory":
		var count common.Quantity
		if e := param(req, 0, &count); e != nil {
			return nil, e
		}
		v, err := server.FeeHistory(ctx, uint64(count), optionalTag(req, 1))
		return wrap(v, err)

	case "eth_newFilter":
		var q FilterQuery
		if e := param(req, 0, &q); e != nil {
			return nil, e
		}
		v, err := server.NewFilter(ctx, q)
		return wrap(v, err)

	case "eth_newBlockFilter":
		v, err := server.NewBlockFilter(ctx)
		return wrap(v, err)

	case "eth_getFilterChanges":
		var id common.Quantity
		if e := param(req, 0, &id); e != nil {
			return nil, e
		}
		v, err := server.GetFilterChanges(ctx, id)
		return wrap(v, err)

	case "net_version":
		return server.NetVersion(), nil
	case "net_listening":
		return server.NetListening(), nil
	case "net_peerCount":
		return server.NetPeerCount(), nil

	case "web3_clientVersion":
		return server.Web3ClientVersion(), nil
	case "web3_sha3":
		var data common.Bytes
		if e := param(req, 0, &data); e != nil {
			return nil, e
		}
		return server.Web3Sha3(data), nil

	default:
		return nil, &rpcError{codeMethodNotFound, "method not found: " + req.Method}
	}
}

func wrap(v interface{}, err error) (interface{}, *rpcError) {
	if err != nil {
		return nil, &rpcError{codeInternal, err.Error()}
	}
	return v, nil
}
