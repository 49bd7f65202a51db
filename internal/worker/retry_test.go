package worker

import (
	"testing"
	"time"

	"github.com/shaiso/Promotor/internal/domain"
)

func TestBackoff_Exponential(t *testing.T) {
	base := 30 * time.Second

	// Без учёта jitter задержка не меньше base·2^attempts
	for attempts := 0; attempts <= 4; attempts++ {
		d := Backoff(attempts, base, domain.ErrClassGeneric)
		min := base * time.Duration(int64(1)<<attempts)
		max := min + time.Duration(float64(base)*0.3)
		if d < min || d >= max {
			t.Errorf("attempts=%d: backoff %v outside [%v, %v)", attempts, d, min, max)
		}
	}
}

func TestBackoff_ExponentCapped(t *testing.T) {
	base := time.Second

	// Экспонента ограничена: 20 попыток не дают больше 2^6 + jitter
	d := Backoff(20, base, domain.ErrClassGeneric)
	max := base*64 + time.Duration(float64(base)*0.3)
	if d >= max {
		t.Errorf("backoff %v should be capped at %v", d, max)
	}
	if d < base*64 {
		t.Errorf("backoff %v should be at least %v", d, base*64)
	}
}

func TestBackoff_ClassFactors(t *testing.T) {
	base := 10 * time.Second

	generic := Backoff(1, base, domain.ErrClassGeneric)
	rateLimit := Backoff(1, base, domain.ErrClassRateLimit)

	// rate_limit ждёт как минимум вдвое дольше generic минус jitter-окно
	if rateLimit < generic {
		t.Errorf("rate_limit backoff %v should exceed generic %v", rateLimit, generic)
	}
	if rateLimit < base*2*2 {
		t.Errorf("rate_limit backoff %v should be at least %v", rateLimit, base*4)
	}
}

func TestBackoff_Monotonic(t *testing.T) {
	base := 30 * time.Second
	jitterSpan := time.Duration(float64(base) * 0.3)

	// Нижняя граница backoff растёт с попытками даже при худшем jitter
	prev := time.Duration(0)
	for attempts := 0; attempts <= maxBackoffExponent; attempts++ {
		lower := base * time.Duration(int64(1)<<attempts)
		if lower <= prev+jitterSpan {
			t.Errorf("attempts=%d: lower bound %v does not dominate previous %v + jitter", attempts, lower, prev)
		}
		prev = lower
	}
}

func TestJitter_Bounds(t *testing.T) {
	base := 30 * time.Second
	span := time.Duration(float64(base) * 0.3)

	for i := 0; i < 100; i++ {
		j := jitter(base)
		if j < 0 || j >= span {
			t.Fatalf("jitter %v outside [0, %v)", j, span)
		}
	}
}

func TestJitter_ZeroBase(t *testing.T) {
	if j := jitter(0); j != 0 {
		t.Errorf("zero base should give zero jitter, got %v", j)
	}
}
