package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/trailbot/internal/book"
	"github.com/alanyoungcy/trailbot/internal/decimal"
	"github.com/alanyoungcy/trailbot/internal/domain"
)

// Method names of the RPC surface. Each maps to one handler in dispatch.
const (
	MethodSubmitBuy              = "submitBuy"
	MethodConfirmBuy             = "confirmBuy"
	MethodFailBuy                = "failBuy"
	MethodInsertPosition         = "insertPosition"
	MethodUpdatePosition         = "updatePosition"
	MethodRemovePosition         = "removePosition"
	MethodGetPosition            = "getPosition"
	MethodGetPositionAndMaybePNL = "getPositionAndMaybePNL"
	MethodListPositions          = "listPositions"
	MethodListPositionsByUser    = "listPositionsByUser"
	MethodListClosedByUser       = "listClosedPositionsByUser"
	MethodGetPositionCounts      = "getPositionCounts"
	MethodGetTokenPrice          = "getTokenPrice"
	MethodUpdatePrice            = "updatePrice"
	MethodUpdatePositionTracker  = "updatePositionTracker"
	MethodMarkPositionAsClosing  = "markPositionAsClosing"
	MethodMarkPositionAsClosed   = "markPositionAsClosed"
	MethodMarkPositionAsOpen     = "markPositionAsOpen"
	MethodEditTriggerPercent     = "editTriggerPercent"
	MethodSetSellAutoDouble      = "setSellAutoDouble"
	MethodDeactivatePosition     = "deactivatePosition"
	MethodReactivatePosition     = "reactivatePosition"
	MethodListDeactivated        = "listDeactivatedPositions"
	MethodGetDeactivatedPosition = "getDeactivatedPosition"
	MethodAdminDeleteAll         = "adminDeleteAll"
	MethodHeartbeatWakeup        = "heartbeatWakeup"
	MethodWakeUp                 = "wakeUp"
)

// pairEnvelope is the addressing every bound request must carry.
type pairEnvelope struct {
	TokenAddress   string `json:"tokenAddress"`
	VsTokenAddress string `json:"vsTokenAddress"`
}

type positionIDRequest struct {
	PositionID string `json:"positionID"`
}

type confirmBuyRequest struct {
	PositionID string         `json:"positionID"`
	FillPrice  decimal.Amount `json:"fillPrice"`
	TokenAmt   decimal.Amount `json:"tokenAmt"`
}

type positionRequest struct {
	Position domain.Position `json:"position"`
}

type userIDRequest struct {
	UserID int64 `json:"userID"`
}

type updatePriceRequest struct {
	Price        decimal.Amount `json:"price"`
	ObservedAtMS int64          `json:"observedAtMS"`
}

type markClosedRequest struct {
	PositionID string          `json:"positionID"`
	NetPNL     *decimal.Amount `json:"netPNL,omitempty"`
}

type markOpenRequest struct {
	PositionID           string `json:"positionID"`
	SellFailedOnSlippage bool   `json:"sellFailedOnSlippage,omitempty"`
}

type editTriggerRequest struct {
	PositionID string  `json:"positionID"`
	Percent    float64 `json:"percent"`
}

type setAutoDoubleRequest struct {
	PositionID string `json:"positionID"`
	Enabled    bool   `json:"enabled"`
}

type adminRequest struct {
	UserID int64 `json:"userID"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type acceptedResponse struct {
	Accepted bool `json:"accepted"`
}

type priceResponse struct {
	Price decimal.Amount `json:"price"`
	Fresh bool           `json:"fresh"`
}

type editTriggerResponse struct {
	Result string `json:"result"`
}

// isHeartbeatMethod reports whether method carries no pair addressing and is
// exempt from pair binding.
func isHeartbeatMethod(method string) bool {
	return method == MethodHeartbeatWakeup || method == MethodWakeUp
}

// Handle processes one request to completion: hydrate if cold, enforce the
// pair binding, dispatch, then flush every persistent component before
// returning — on handler failure too, so mutations made before the error are
// persisted while the error itself still reaches the caller.
func (a *Actor) Handle(ctx context.Context, method string, payload json.RawMessage) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.hydrate(ctx); err != nil {
		return nil, err
	}

	if !isHeartbeatMethod(method) {
		var env pairEnvelope
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &env); err != nil {
				return nil, fmt.Errorf("actor: decode request envelope: %w", domain.ErrInvalidRequest)
			}
		}
		if err := a.checkPairBinding(env.TokenAddress, env.VsTokenAddress); err != nil {
			a.flushAll(ctx)
			return nil, err
		}
	}

	result, err := a.dispatch(ctx, method, payload)
	a.flushAll(ctx)
	return result, err
}

func (a *Actor) dispatch(ctx context.Context, method string, payload json.RawMessage) (any, error) {
	switch method {
	case MethodSubmitBuy:
		var req book.SubmitBuyRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		pos := a.book.SubmitBuy(req)
		a.logger.InfoContext(ctx, "actor: buy submitted",
			slog.String("positionID", pos.ID), slog.Int64("userID", pos.UserID))
		return pos, nil

	case MethodConfirmBuy:
		var req confirmBuyRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		if !a.book.ConfirmBuy(req.PositionID, req.FillPrice, req.TokenAmt) {
			return nil, fmt.Errorf("actor: confirm buy %s: %w", req.PositionID, domain.ErrNotFound)
		}
		pos, _ := a.book.Get(req.PositionID)
		return pos, nil

	case MethodFailBuy:
		var req positionIDRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return okResponse{OK: a.book.FailBuy(req.PositionID)}, nil

	case MethodInsertPosition:
		var req positionRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		if err := a.book.Insert(req.Position); err != nil {
			return nil, fmt.Errorf("actor: insert position %s: %w", req.Position.ID, err)
		}
		return okResponse{OK: true}, nil

	case MethodUpdatePosition:
		var req positionRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		if !a.book.Update(req.Position) {
			return nil, fmt.Errorf("actor: update position %s: %w", req.Position.ID, domain.ErrNotFound)
		}
		return okResponse{OK: true}, nil

	case MethodRemovePosition:
		var req positionIDRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		_, removed := a.book.Remove(req.PositionID)
		return okResponse{OK: removed}, nil

	case MethodGetPosition, MethodGetDeactivatedPosition:
		var req positionIDRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		pos, ok := a.book.Get(req.PositionID)
		if !ok {
			return nil, fmt.Errorf("actor: position %s: %w", req.PositionID, domain.ErrNotFound)
		}
		if method == MethodGetDeactivatedPosition && pos.Status != domain.StatusDeactivated {
			return nil, fmt.Errorf("actor: position %s is not deactivated: %w", req.PositionID, domain.ErrNotFound)
		}
		return pos, nil

	case MethodGetPositionAndMaybePNL:
		var req positionIDRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return a.positionAndMaybePNL(ctx, req.PositionID)

	case MethodListPositions:
		return a.book.List(), nil

	case MethodListPositionsByUser:
		var req userIDRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return a.book.ListByUser(req.UserID), nil

	case MethodListClosedByUser:
		var req userIDRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return a.book.ListClosedForUser(req.UserID), nil

	case MethodGetPositionCounts:
		return a.book.Counts(), nil

	case MethodGetTokenPrice:
		price, fresh, err := a.freshPrice(ctx)
		if err != nil {
			return nil, err
		}
		return priceResponse{Price: price, Fresh: fresh}, nil

	case MethodUpdatePrice:
		var req updatePriceRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return acceptedResponse{Accepted: a.price.MaybeAccept(req.Price, req.ObservedAtMS)}, nil

	case MethodUpdatePositionTracker:
		price, _, err := a.freshPrice(ctx)
		if err != nil {
			return nil, err
		}
		batch := a.book.OnPriceTick(price)
		if !batch.Empty() {
			a.logger.InfoContext(ctx, "actor: tick produced work",
				slog.String("pair", a.pairID()),
				slog.Int("toClose", len(batch.PositionsToClose)),
				slog.Int("buysToConfirm", len(batch.BuysToConfirm)),
				slog.Int("sellsToConfirm", len(batch.SellsToConfirm)))
		}
		a.emitBatch(ctx, batch)
		return batch, nil

	case MethodMarkPositionAsClosing:
		var req positionIDRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		pos, ok := a.book.ManualClose(req.PositionID)
		if !ok {
			return nil, fmt.Errorf("actor: close position %s: %w", req.PositionID, domain.ErrNotFound)
		}
		batch := domain.ActionBatch{}
		if pos.Status == domain.StatusClosing {
			batch.PositionsToClose = append(batch.PositionsToClose, pos)
		}
		a.emitBatch(ctx, batch)
		return batch, nil

	case MethodMarkPositionAsClosed:
		var req markClosedRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		netPNL := decimal.Zero()
		if req.NetPNL != nil {
			netPNL = *req.NetPNL
		}
		pos, ok := a.book.MarkClosed(req.PositionID, netPNL)
		if !ok {
			return nil, fmt.Errorf("actor: mark closed %s: %w", req.PositionID, domain.ErrNotFound)
		}
		a.notifyClosed(ctx, pos)
		return pos, nil

	case MethodMarkPositionAsOpen:
		var req markOpenRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		if req.SellFailedOnSlippage {
			a.book.IncrementSellFailures(req.PositionID)
		}
		if !a.book.MarkOpen(req.PositionID) {
			return nil, fmt.Errorf("actor: mark open %s: %w", req.PositionID, domain.ErrNotFound)
		}
		pos, _ := a.book.Get(req.PositionID)
		return pos, nil

	case MethodEditTriggerPercent:
		var req editTriggerRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return editTriggerResponse{Result: triggerResultString(a.book.UpdateTriggerPercent(req.PositionID, req.Percent))}, nil

	case MethodSetSellAutoDouble:
		var req setAutoDoubleRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return okResponse{OK: a.book.SetSellAutoDouble(req.PositionID, req.Enabled)}, nil

	case MethodDeactivatePosition:
		var req positionIDRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return okResponse{OK: a.book.Deactivate(req.PositionID)}, nil

	case MethodReactivatePosition:
		var req positionIDRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		// Reactivation re-baselines the peak at the current price when one
		// can be had; otherwise the recorded peak/fill floor applies.
		freshPeak := decimal.Zero()
		if price, _, err := a.freshPrice(ctx); err == nil {
			freshPeak = price
		}
		return okResponse{OK: a.book.Reactivate(req.PositionID, freshPeak)}, nil

	case MethodListDeactivated:
		return a.book.ListDeactivated(), nil

	case MethodAdminDeleteAll:
		var req adminRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		// Denied requests are a success-shaped no-op on purpose.
		if a.deps.Admin != nil && a.deps.Admin.CanWipe(req.UserID) {
			a.book.DeleteAll()
			a.logger.WarnContext(ctx, "actor: all positions deleted",
				slog.String("pair", a.pairID()), slog.Int64("userID", req.UserID))
		}
		return okResponse{OK: true}, nil

	case MethodHeartbeatWakeup:
		a.heartbeatMS.Set(a.nowMS())
		return okResponse{OK: true}, nil

	case MethodWakeUp:
		return okResponse{OK: true}, nil

	default:
		return nil, fmt.Errorf("actor: method %q: %w", method, domain.ErrUnknownMethod)
	}
}

// freshPrice resolves token metadata once per lifetime, then consults the
// staleness-bounded cache.
func (a *Actor) freshPrice(ctx context.Context) (decimal.Amount, bool, error) {
	if _, err := a.resolvedTokenInfo(ctx); err != nil {
		return decimal.Zero(), false, err
	}
	return a.price.GetPrice(ctx, a.deps.Oracle, a.tokenAddress.Get(), a.vsTokenAddress.Get())
}

func (a *Actor) positionAndMaybePNL(ctx context.Context, id string) (domain.PositionAndMaybePNL, error) {
	pos, ok := a.book.Get(id)
	if !ok {
		return domain.PositionAndMaybePNL{}, fmt.Errorf("actor: position %s: %w", id, domain.ErrNotFound)
	}
	out := domain.PositionAndMaybePNL{Position: pos}
	price, _, err := a.freshPrice(ctx)
	if err != nil {
		// No price means no PNL, not a failed request.
		a.logger.WarnContext(ctx, "actor: no price for PNL",
			slog.String("positionID", id), slog.String("error", err.Error()))
		return out, nil
	}
	pnl := domain.MeasurePNL(pos, price)
	out.PNL = &pnl
	return out, nil
}

func triggerResultString(r book.TriggerUpdateResult) string {
	switch r {
	case book.TriggerUpdated:
		return "updated"
	case book.TriggerInvalidPercent:
		return "invalid-percent"
	case book.TriggerPositionNotFound:
		return "not-found"
	case book.TriggerPositionClosing:
		return "is-closing"
	case book.TriggerPositionClosed:
		return "is-closed"
	default:
		return "unknown"
	}
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("actor: empty request body: %w", domain.ErrInvalidRequest)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("actor: decode request: %v: %w", err, domain.ErrInvalidRequest)
	}
	return nil
}
