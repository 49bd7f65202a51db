package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Simulated — диспатчер-заглушка вместо реальных клиентов платформ.
// Публикация всегда "успешна", externalId синтетический, метрики
// рисуются из равномерного распределения. Используется в dev-окружении
// и как fallback для платформ без боевого клиента.
type Simulated struct {
	// Latency — искусственная задержка вызова (0 = без задержки).
	Latency time.Duration
}

// Dispatch имитирует публикацию.
func (s *Simulated) Dispatch(ctx context.Context, req Request) (*Result, error) {
	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &Result{
		ExternalID: fmt.Sprintf("sim-%s-%s", req.Platform, uuid.NewString()[:8]),
		Simulated:  true,
		Metrics: map[string]int{
			"impressions": rand.Intn(200),
			"clicks":      rand.Intn(10),
		},
		Raw: fmt.Sprintf("simulated dispatch for content %s", req.ContentID),
	}, nil
}
