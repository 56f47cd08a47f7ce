// core/genesis/spec.go
package genesis

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// NativeSymbol names the native coin in allocations.
const NativeSymbol = "ETH"

// Spec describes the initial protocol state: tokens, prices, collateral
// parameters, balances, aggregators and roles.
type Spec struct {
	GenesisTime         string                       `yaml:"genesisTime"`
	Admin               string                       `yaml:"admin"`
	DebtToken           TokenSpec                    `yaml:"debtToken"`
	FlashloanPremiumBps uint64                       `yaml:"flashloanPremiumBps"`
	RouterFeeBps        uint64                       `yaml:"routerFeeBps"`
	OperationWindow     string                       `yaml:"operationWindow,omitempty"`
	WrappedNative       string                       `yaml:"wrappedNative,omitempty"`
	Collateral          []CollateralSpec             `yaml:"collateral"`
	Alloc               map[string]map[string]string `yaml:"alloc"` // addr -> symbol -> amount
	Dexes               []DexSpec                    `yaml:"dexes,omitempty"`
	Roles               map[string][]string          `yaml:"roles,omitempty"` // role -> []addr
	Managers            []string                     `yaml:"managers,omitempty"`

	genesisTimestamp time.Time
	window           time.Duration
	admin            common.Address
	tokens           map[string]TokenSpec
}

type TokenSpec struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

// CollateralSpec is a collateral token with its USD price and risk
// parameters. Price and ratios are 18-decimal strings.
type CollateralSpec struct {
	TokenSpec          `yaml:",inline"`
	Price              string `yaml:"price"`
	MinCollateralRatio string `yaml:"minCollateralRatio"`
	OriginationFee     string `yaml:"originationFee,omitempty"`
	BorrowRate         string `yaml:"borrowRate,omitempty"`
}

// DexSpec registers an aggregator. An empty router selects the reference
// router, which is also its own spender.
type DexSpec struct {
	Index   uint64 `yaml:"index"`
	Router  string `yaml:"router,omitempty"`
	Spender string `yaml:"spender,omitempty"`
}

// LoadSpec reads and validates a YAML genesis file.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseSpec decodes and validates a YAML genesis document. Unknown fields
// are rejected.
func ParseSpec(raw []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

func (s *Spec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// Window returns the operation window, zero when unset.
func (s *Spec) Window() time.Duration { return s.window }

func (s *Spec) AdminAddress() common.Address { return s.admin }

// Token returns the token registered under symbol.
func (s *Spec) Token(symbol string) (TokenSpec, bool) {
	t, ok := s.tokens[strings.ToUpper(strings.TrimSpace(symbol))]
	return t, ok
}

// Validate checks the spec and caches the parsed values.
func (s *Spec) Validate() error {
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = ts

	if s.admin, err = parseAddress(s.Admin); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if s.FlashloanPremiumBps > 10_000 {
		return fmt.Errorf("flashloanPremiumBps must be 10000 or fewer")
	}
	if s.RouterFeeBps > 10_000 {
		return fmt.Errorf("routerFeeBps must be 10000 or fewer")
	}
	s.window = 0
	if strings.TrimSpace(s.OperationWindow) != "" {
		if s.window, err = time.ParseDuration(s.OperationWindow); err != nil {
			return fmt.Errorf("operationWindow: %w", err)
		}
		if s.window <= 0 {
			return fmt.Errorf("operationWindow must be positive")
		}
	}

	s.tokens = make(map[string]TokenSpec, len(s.Collateral)+1)
	if err := s.addToken(s.DebtToken); err != nil {
		return fmt.Errorf("debtToken: %w", err)
	}
	for i := range s.Collateral {
		c := &s.Collateral[i]
		if err := s.addToken(c.TokenSpec); err != nil {
			return fmt.Errorf("collateral[%d]: %w", i, err)
		}
		price, err := parseAmountString(c.Price)
		if err != nil {
			return fmt.Errorf("collateral[%d] price: %w", i, err)
		}
		if price.Sign() == 0 {
			return fmt.Errorf("collateral[%d]: price must be positive", i)
		}
		for name, v := range map[string]string{
			"minCollateralRatio": c.MinCollateralRatio,
			"originationFee":     c.OriginationFee,
			"borrowRate":         c.BorrowRate,
		} {
			if _, err := parseAmountString(v); err != nil {
				return fmt.Errorf("collateral[%d] %s: %w", i, name, err)
			}
		}
	}
	if w := strings.TrimSpace(s.WrappedNative); w != "" {
		if _, ok := s.Token(w); !ok {
			return fmt.Errorf("wrappedNative: undefined token %q", w)
		}
	}

	holders := make([]string, 0, len(s.Alloc))
	for holder := range s.Alloc {
		holders = append(holders, holder)
	}
	sort.Strings(holders)
	for _, holder := range holders {
		if _, err := parseAddress(holder); err != nil {
			return fmt.Errorf("alloc[%q]: %w", holder, err)
		}
		for symbol, amount := range s.Alloc[holder] {
			if !strings.EqualFold(symbol, NativeSymbol) {
				if _, ok := s.Token(symbol); !ok {
					return fmt.Errorf("alloc[%q][%q]: undefined token", holder, symbol)
				}
			}
			if _, err := parseAmountString(amount); err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", holder, symbol, err)
			}
		}
	}

	indexes := make(map[uint64]struct{}, len(s.Dexes))
	for i, d := range s.Dexes {
		if _, dup := indexes[d.Index]; dup {
			return fmt.Errorf("dexes[%d]: duplicate index %d", i, d.Index)
		}
		indexes[d.Index] = struct{}{}
		if (strings.TrimSpace(d.Router) == "") != (strings.TrimSpace(d.Spender) == "") {
			return fmt.Errorf("dexes[%d]: router and spender must be set together", i)
		}
		for _, a := range []string{d.Router, d.Spender} {
			if strings.TrimSpace(a) == "" {
				continue
			}
			if _, err := parseAddress(a); err != nil {
				return fmt.Errorf("dexes[%d]: %w", i, err)
			}
		}
	}

	for role, accounts := range s.Roles {
		if strings.TrimSpace(role) == "" {
			return fmt.Errorf("roles: role name must be provided")
		}
		for i, account := range accounts {
			if _, err := parseAddress(account); err != nil {
				return fmt.Errorf("roles[%q][%d]: %w", role, i, err)
			}
		}
	}
	for i, m := range s.Managers {
		if _, err := parseAddress(m); err != nil {
			return fmt.Errorf("managers[%d]: %w", i, err)
		}
	}
	return nil
}

func (s *Spec) addToken(t TokenSpec) error {
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("symbol must be provided")
	}
	if strings.EqualFold(t.Symbol, NativeSymbol) {
		return fmt.Errorf("symbol %q is reserved for the native coin", t.Symbol)
	}
	if t.Decimals > 18 {
		return fmt.Errorf("decimals must be 18 or fewer")
	}
	if _, err := parseAddress(t.Address); err != nil {
		return err
	}
	key := strings.ToUpper(strings.TrimSpace(t.Symbol))
	if _, exists := s.tokens[key]; exists {
		return fmt.Errorf("duplicate symbol %q", t.Symbol)
	}
	s.tokens[key] = t
	return nil
}

// ParseAddress parses a 0x-prefixed hex address and rejects the zero
// address.
func ParseAddress(value string) (common.Address, error) {
	return parseAddress(value)
}

func parseAddress(value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid address %q", value)
	}
	addr := common.HexToAddress(trimmed)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("zero address")
	}
	return addr, nil
}

// ParseAmount parses a non-negative base-10 integer. Empty means zero.
func ParseAmount(value string) (*big.Int, error) {
	return parseAmountString(value)
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
