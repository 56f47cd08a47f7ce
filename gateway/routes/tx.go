package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"cdpproxy/core"
	"cdpproxy/core/types"
	"cdpproxy/gateway/middleware"
)

const txRequestLimit = 1 << 20 // 1 MiB

type submitRequest struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value,omitempty"`
	Gas   uint64 `json:"gas,omitempty"`
	Data  string `json:"data,omitempty"`
}

type submitResponse struct {
	Sequence uint64         `json:"sequence"`
	Output   string         `json:"output"`
	Events   []*types.Event `json:"events"`
}

func (req submitRequest) tx() (core.Tx, error) {
	from, err := parseAddress(req.From)
	if err != nil {
		return core.Tx{}, fmt.Errorf("from: %w", err)
	}
	to, err := parseAddress(req.To)
	if err != nil {
		return core.Tx{}, fmt.Errorf("to: %w", err)
	}
	tx := core.Tx{From: from, To: to, Gas: req.Gas}
	if v := strings.TrimSpace(req.Value); v != "" {
		value, ok := new(big.Int).SetString(v, 10)
		if !ok || value.Sign() < 0 {
			return core.Tx{}, fmt.Errorf("%w: invalid value %q", errBadRequest, req.Value)
		}
		tx.Value = value
	}
	if d := strings.TrimSpace(req.Data); d != "" {
		data, err := hexutil.Decode(d)
		if err != nil {
			return core.Tx{}, fmt.Errorf("%w: data: %v", errBadRequest, err)
		}
		tx.Data = data
	}
	return tx, nil
}

// submit runs one transaction. With auth enabled the token subject must be
// the sender.
func (s *server) submit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, txRequestLimit))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read request body: %w", err))
		return
	}
	var req submitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	tx, err := req.tx()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if s.auth.Enabled() {
		subject, ok := middleware.Subject(r.Context())
		if !ok || !common.IsHexAddress(subject) || common.HexToAddress(subject) != tx.From {
			writeError(w, http.StatusForbidden, errors.New("token subject does not match sender"))
			return
		}
	}
	receipt, err := s.node.Submit(r.Context(), tx)
	if err != nil {
		s.logger.Info("transaction rejected",
			slog.String("from", tx.From.Hex()),
			slog.String("to", tx.To.Hex()),
			slog.String("requestId", middleware.RequestID(r.Context())),
			slog.String("error", err.Error()))
		writeError(w, statusFor(err), err)
		return
	}
	events := receipt.Events
	if events == nil {
		events = []*types.Event{}
	}
	writeJSON(w, http.StatusOK, submitResponse{
		Sequence: receipt.Sequence,
		Output:   hexutil.Encode(receipt.Output),
		Events:   events,
	})
}
