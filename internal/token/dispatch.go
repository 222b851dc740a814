package token

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hotchain/hotledger/internal/asset"
)

// Action names accepted by Dispatch.
const (
	ActionCreate         = "create"
	ActionIssue          = "issue"
	ActionRetire         = "retire"
	ActionTransfer       = "transfer"
	ActionStakedTransfer = "stakedtransfer"
	ActionOpen           = "open"
	ActionClose          = "close"
	ActionFreezeBonus    = "freezebonus"
	ActionClearBonus     = "clearbonus"
	ActionPayBonus       = "paybonus"
	ActionCloseBonus     = "closebonus"
)

type createArgs struct {
	Issuer        string `json:"issuer"`
	MaximumSupply string `json:"maximum_supply"`
}

type issueArgs struct {
	To       string `json:"to"`
	Quantity string `json:"quantity"`
	Memo     string `json:"memo"`
}

type retireArgs struct {
	Quantity string `json:"quantity"`
	Memo     string `json:"memo"`
}

type transferArgs struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Quantity string `json:"quantity"`
	Memo     string `json:"memo"`
}

type openArgs struct {
	Owner  string `json:"owner"`
	Symbol string `json:"symbol"`
	Payer  string `json:"ram_payer"`
}

type closeArgs struct {
	Owner  string `json:"owner"`
	Symbol string `json:"symbol"`
}

type freezeArgs struct {
	Bonus     string `json:"bonus"`
	Minimum   string `json:"minimum"`
	Collector string `json:"collector"`
}

// ErrUnknownAction is returned by Dispatch for names it does not serve.
var ErrUnknownAction = errors.New("unknown action")

// Dispatch runs the named action with JSON encoded arguments. Signers are
// taken from ctx.
func (c *Contract) Dispatch(ctx context.Context, name string, raw json.RawMessage) (any, error) {
	switch name {
	case ActionCreate:
		var a createArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		maxSupply, err := parseAsset(a.MaximumSupply)
		if err != nil {
			return nil, err
		}
		return nil, c.Create(ctx, a.Issuer, maxSupply)
	case ActionIssue:
		var a issueArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		q, err := parseAsset(a.Quantity)
		if err != nil {
			return nil, err
		}
		return nil, c.Issue(ctx, a.To, q, a.Memo)
	case ActionRetire:
		var a retireArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		q, err := parseAsset(a.Quantity)
		if err != nil {
			return nil, err
		}
		return nil, c.Retire(ctx, q, a.Memo)
	case ActionTransfer, ActionStakedTransfer:
		var a transferArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		q, err := parseAsset(a.Quantity)
		if err != nil {
			return nil, err
		}
		if name == ActionStakedTransfer {
			return nil, c.StakedTransfer(ctx, a.From, a.To, q, a.Memo)
		}
		return nil, c.Transfer(ctx, a.From, a.To, q, a.Memo)
	case ActionOpen:
		var a openArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		sym, err := parseSymbol(a.Symbol)
		if err != nil {
			return nil, err
		}
		return nil, c.Open(ctx, a.Owner, sym, a.Payer)
	case ActionClose:
		var a closeArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		sym, err := parseSymbol(a.Symbol)
		if err != nil {
			return nil, err
		}
		return nil, c.Close(ctx, a.Owner, sym)
	case ActionFreezeBonus:
		var a freezeArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		pool, err := parseAsset(a.Bonus)
		if err != nil {
			return nil, err
		}
		minimum, err := parseAsset(a.Minimum)
		if err != nil {
			return nil, err
		}
		return nil, c.FreezeBonus(ctx, pool, minimum, a.Collector)
	case ActionClearBonus:
		return c.ClearBonus(ctx)
	case ActionPayBonus:
		var a PayBonusArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		return c.PayBonus(ctx, a.To)
	case ActionCloseBonus:
		var a CloseBonusArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		return nil, c.CloseBonus(ctx, a.Force)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownAction, name)
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalid("decode arguments: %v", err)
	}
	return nil
}

func parseAsset(s string) (asset.Asset, error) {
	a, err := asset.Parse(s)
	if err != nil {
		return asset.Asset{}, invalid("%v", err)
	}
	return a, nil
}

func parseSymbol(s string) (asset.Symbol, error) {
	sym, err := asset.ParseSymbol(s)
	if err != nil {
		return asset.Symbol{}, invalid("%v", err)
	}
	return sym, nil
}
