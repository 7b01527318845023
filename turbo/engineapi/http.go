package engineapi

import (
	"encoding/json"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/julienschmidt/httprouter"

	"github.com/corexec/corexec/erigon-lib/common"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

var supportedCapabilities = []string{
	"engine_newPayloadV1", "engine_newPayloadV2", "engine_newPayloadV3",
	"engine_forkchoiceUpdatedV1", "engine_forkchoiceUpdatedV2", "engine_forkchoiceUpdatedV3",
	"engine_getPayloadV1", "engine_getPayloadV2", "engine_getPayloadV3",
	"engine_getPayloadBodiesByHashV1", "engine_getPayloadBodiesByRangeV1",
}

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

// NewHTTPHandler builds the Engine API's JWT-authenticated httprouter
// listener (spec §C.9: httprouter serves the Engine API, separate from
// chi's JSON-RPC listener).
func NewHTTPHandler(secret []byte, server *Server) http.Handler {
	router := httprouter.New()
	router.POST("/", jwtAuth(secret, func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		handleRPC(w, r, server)
	}))
	return router
}

func handleRPC(w http.ResponseWriter, r *http.Request, server *Server) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, nil, codeParseError, "failed to read body")
		return
	}

	var req rpcRequest
	if err := jsonAPI.Unmarshal(body, &req); err != nil {
		writeError(w, nil, codeParseError, err.Error())
		return
	}
	if req.Method == "" {
		writeError(w, req.ID, codeInvalidRequest, "missing method")
		return
	}

	result, rpcErr := dispatch(r, server, req)
	if rpcErr != nil {
		writeError(w, req.ID, rpcErr.Code, rpcErr.Message)
		return
	}
	writeResult(w, req.ID, result)
}

func dispatch(r *http.Request, server *Server, req rpcRequest) (interface{}, *rpcError) {
	ctx := r.Context()
	switch req.Method {
	case "engine_newPayloadV1", "engine_newPayloadV2", "engine_newPayloadV3":
		if len(req.Params) < 1 {
			return nil, &rpcError{codeInvalidParams, "missing payload"}
		}
		if err := prescanStructure(req.Params[0]); err != nil {
			return nil, &rpcError{codeInvalidParams, err.Error()}
		}
		var payload ExecutionPayload
		if err := jsonAPI.Unmarshal(req.Params[0], &payload); err != nil {
			return nil, &rpcError{codeInvalidParams, err.Error()}
		}
		status, err := server.NewPayload(ctx, &payload)
		if err != nil {
			return nil, &rpcError{codeInternal, err.Error()}
		}
		return status, nil

	case "engine_forkchoiceUpdatedV1", "engine_forkchoiceUpdatedV2", "engine_forkchoiceUpdatedV3":
		if len(req.Params) < 1 {
			return nil, &rpcError{codeInvalidParams, "missing forkchoiceState"}
		}
		var fcReq ForkChoiceUpdatedRequest
		if err := jsonAPI.Unmarshal(req.Params[0], &fcReq.State); err != nil {
			return nil, &rpcError{codeInvalidParams, err.Error()}
		}
		if len(req.Params) > 1 && string(req.Params[1]) != "null" {
			var attrs PayloadAttributes
			if err := jsonAPI.Unmarshal(req.Params[1], &attrs); err != nil {
				return nil, &rpcError{codeInvalidParams, err.Error()}
			}
			fcReq.Attributes = &attrs
		}
		resp, err := server.ForkchoiceUpdated(ctx, &fcReq)
		if err != nil {
			return nil, &rpcError{codeInternal, err.Error()}
		}
		return resp, nil

	case "engine_getPayloadV1", "engine_getPayloadV2", "engine_getPayloadV3":
		if len(req.Params) < 1 {
			return nil, &rpcError{codeInvalidParams, "missing payload id"}
		}
		var id string
		if err := jsonAPI.Unmarshal(req.Params[0], &id); err != nil {
			return nil, &rpcError{codeInvalidParams, err.Error()}
		}
		resp, err := server.GetPayload(id)
		if err != nil {
			return nil, &rpcError{codeInvalidParams, err.Error()}
		}
		return resp, nil

	case "engine_exchangeCapabilities":
		return supportedCapabilities, nil

	case "engine_getPayloadBodiesByHashV1":
		if len(req.Params) < 1 {
			return nil, &rpcError{codeInvalidParams, "missing hashes"}
		}
		var hashes []common.Hash
		if err := jsonAPI.Unmarshal(req.Params[0], &hashes); err != nil {
			return nil, &rpcError{codeInvalidParams, err.Error()}
		}
		bodies, err := server.GetPayloadBodiesByHash(ctx, hashes)
		if err != nil {
			return nil, &rpcError{codeInternal, err.Error()}
		}
		return bodies, nil

	case "engine_getPayloadBodiesByRangeV1":
		if len(req.Params) < 2 {
			return nil, &rpcError{codeInvalidParams, "missing start/count"}
		}
		var start, count common.Quantity
		if err := jsonAPI.Unmarshal(req.Params[0], &start); err != nil {
			return nil, &rpcError{codeInvalidParams, err.Error()}
		}
		if err := jsonAPI.Unmarshal(req.Params[1], &count); err != nil {
			return nil, &rpcError{codeInvalidParams, err.Error()}
		}
		bodies, err := server.GetPayloadBodiesByRange(ctx, uint64(start), uint64(count))
		if err != nil {
			return nil, &rpcError{codeInternal, err.Error()}
		}
		return bodies, nil

	default:
		return nil, &rpcError{codeMethodNotFound, "method not found: " + req.Method}
	}
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = jsonAPI.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func writeError(w http.ResponseWriter, id json.RawMessage, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	_ = jsonAPI.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}})
}
