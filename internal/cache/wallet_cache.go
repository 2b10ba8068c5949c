package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/stream-wager-engine/internal/domain"
)

// kv é o subconjunto do cliente Redis usado pelo cache
type kv interface {
	redis.Scripter
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// setIfNewer só grava quando a versão em cache é menor que a nova;
// uma leitura antiga nunca sobrescreve o saldo gravado depois de um commit
var setIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
	local ok, w = pcall(cjson.decode, cur)
	if ok and type(w) == 'table' and tonumber(w['version']) and tonumber(w['version']) >= tonumber(ARGV[2]) then
		return 0
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// WalletCache guarda a projeção da carteira no Redis com TTL
// A fonte da verdade é o banco; gravações são condicionadas à versão da carteira
type WalletCache struct {
	R   kv
	TTL time.Duration
}

func NewWalletCache(r kv, ttl time.Duration) *WalletCache { return &WalletCache{R: r, TTL: ttl} }

func keyWallet(userID string) string { return "wallet:" + userID }

func (c *WalletCache) Get(ctx context.Context, userID string) (*domain.Wallet, bool, error) {
	b, err := c.R.Get(ctx, keyWallet(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var w domain.Wallet
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, false, err
	}
	return &w, true, nil
}

// Set grava a projeção se ela for mais nova que a do cache; devolve false quando ignorada
func (c *WalletCache) Set(ctx context.Context, w *domain.Wallet) (bool, error) {
	b, err := json.Marshal(w)
	if err != nil {
		return false, err
	}
	n, err := setIfNewer.Run(ctx, c.R, []string{keyWallet(w.UserID)}, b, w.Version, c.TTL.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *WalletCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, keyWallet(id))
	}
	return c.R.Del(ctx, keys...).Err()
}
