package chain

import (
	"sync"
	"time"
)

// Preset describes a network the client knows by chain id.
type Preset struct {
	Name      string
	ChainID   uint64
	BlockTime time.Duration // Average block time
	// LogBatchSize is the block window a single eth_getLogs sweep covers
	// before the collector has to split it.
	LogBatchSize uint64
	Endpoint     string // (Optional) Default public RPC
}

var (
	registry = make(map[string]Preset)
	byID     = make(map[uint64]string)
	mu       sync.RWMutex
)

// Register adds or replaces a preset under its name.
func Register(p Preset) {
	mu.Lock()
	defer mu.Unlock()
	if old, ok := registry[p.Name]; ok {
		delete(byID, old.ChainID)
	}
	registry[p.Name] = p
	byID[p.ChainID] = p.Name
}

// Get retrieves a preset by name.
func Get(name string) (Preset, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := registry[name]
	return p, ok
}

// ByID retrieves a preset by chain id.
func ByID(id uint64) (Preset, bool) {
	mu.RLock()
	defer mu.RUnlock()
	name, ok := byID[id]
	if !ok {
		return Preset{}, false
	}
	return registry[name], true
}

// Built-in presets
func init() {
	Register(Preset{
		Name:         "eth-mainnet",
		ChainID:      1,
		BlockTime:    12 * time.Second,
		LogBatchSize: 2000,
	})

	Register(Preset{
		Name:         "eth-sepolia",
		ChainID:      11155111,
		BlockTime:    12 * time.Second,
		LogBatchSize: 2000,
	})

	Register(Preset{
		Name:         "zksync-era",
		ChainID:      324,
		BlockTime:    1 * time.Second,
		LogBatchSize: 10000,
		Endpoint:     "https://mainnet.era.zksync.io",
	})

	Register(Preset{
		Name:         "zksync-era-testnet",
		ChainID:      280,
		BlockTime:    1 * time.Second,
		LogBatchSize: 10000,
		Endpoint:     "https://testnet.era.zksync.dev",
	})
}
