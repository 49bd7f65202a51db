package dispatch

import (
	"context"
	"fmt"

	"github.com/shaiso/Promotor/internal/domain"
)

// ErrUnsupportedPlatform возвращается для платформ без диспатчера.
var ErrUnsupportedPlatform = fmt.Errorf("unsupported platform")

// Registry сопоставляет платформам их диспатчеры. Платформа — закрытый
// enum, поэтому полнота покрытия проверяется конструктором, а не
// обнаруживается в рантайме на промахе.
type Registry struct {
	dispatchers map[domain.Platform]Dispatcher
}

// NewRegistry создаёт реестр, в котором каждая известная платформа
// обслуживается fallback-диспатчером def.
func NewRegistry(def Dispatcher) *Registry {
	r := &Registry{dispatchers: make(map[domain.Platform]Dispatcher)}
	for _, p := range domain.AllPlatforms() {
		r.dispatchers[p] = def
	}
	return r
}

// Register заменяет диспатчер платформы.
func (r *Registry) Register(p domain.Platform, d Dispatcher) {
	r.dispatchers[p] = d
}

// Dispatch маршрутизирует запрос диспатчеру платформы.
func (r *Registry) Dispatch(ctx context.Context, req Request) (*Result, error) {
	d, ok := r.dispatchers[req.Platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, req.Platform)
	}
	return d.Dispatch(ctx, req)
}
